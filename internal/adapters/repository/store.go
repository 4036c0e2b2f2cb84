// Package repository defines the cap event store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/okian/capwatch/internal/domain/model"
)

// Store provides durable, deduplicated access to cap events.
type Store interface {
	// Init idempotently ensures the cap_events table exists with its
	// uniqueness constraint on (rsn, cap_timestamp).
	Init(ctx context.Context) error

	// InsertBatch inserts the given events in one transaction, silently
	// ignoring any that violate the uniqueness constraint. Returns the
	// number of rows actually inserted, for observability only.
	InsertBatch(ctx context.Context, events []model.CapEvent) (int64, error)

	// RecentSince returns all events with a timestamp at or after since.
	// Storage-layer ordering is unspecified.
	RecentSince(ctx context.Context, since time.Time) ([]model.CapEvent, error)

	// RecordManualCap records an admin override cap for rsn at ts. Returns
	// false if the (rsn, ts) pair was already stored.
	RecordManualCap(ctx context.Context, rsn string, ts time.Time, adminUser string) (bool, error)

	Close() error
}
