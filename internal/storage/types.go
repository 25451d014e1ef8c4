package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "bolt": single-file bbolt database (default)
//   - "sqlite": SQLite database file
//
// If Driver is "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SentTrack is one entry of the sent-tracks ledger.
type SentTrack struct {
	TrackID string
	Format  string
	FileID  string
	Title   string
	// Archived is true once the file was posted to the save channel.
	Archived bool
	SentAt   time.Time
}

// AuditEntry records an operator action.
type AuditEntry struct {
	ID       string
	At       time.Time
	ActorID  int64
	Action   string
	Target   string
	OK       int
	Fail     int
	Error    string
	TookMS   int64
	MetaJSON string
}
