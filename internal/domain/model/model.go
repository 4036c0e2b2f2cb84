// Package model contains domain models passed between layers.
package model

import "time"

// Source distinguishes how a cap event entered the store.
type Source string

// Known cap event sources.
const (
	SourceAuto   Source = "auto"   // discovered by an ingestion run
	SourceManual Source = "manual" // recorded by an admin override
)

// ClanMember is one row of the clan hiscores roster. Members are refetched
// at the start of every ingestion run and never persisted.
type ClanMember struct {
	RSN     string // display name, NBSP-normalized and trimmed
	Rank    string
	TotalXP int64
	Kills   int64
}

// Activity is a single entry of a member's RuneMetrics activity log.
// Only used transiently for classification.
type Activity struct {
	Date    string `json:"date"` // upstream format "02-Jan-2006 15:04", no timezone
	Details string `json:"details"`
	Text    string `json:"text"`
}

// CapEvent records one member capping at the clan citadel. Uniqueness is on
// (RSN, Timestamp); re-inserting a seen pair is a no-op at the store layer.
type CapEvent struct {
	RSN        string
	Timestamp  time.Time // UTC, minute resolution
	Source     Source
	ManualUser string // admin identity, only set when Source is SourceManual
}
