package storage

import (
	"context"
	"errors"
	"strings"

	"tunebot/pkg/logx"
)

// Store is the persistence API used by the app.
type Store interface {
	GetSentTrack(ctx context.Context, trackID, format string) (SentTrack, bool, error)
	PutSentTrack(ctx context.Context, t SentTrack) error

	AddServedUser(ctx context.Context, userID int64) error
	AddServedChat(ctx context.Context, chatID int64) error
	ListServedUsers(ctx context.Context) ([]int64, error)
	ListServedChats(ctx context.Context) ([]int64, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, ErrDisabled) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "none":
		return nil, ErrDisabled
	case "", "bolt", "bbolt":
		return openBolt(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func ledgerKey(trackID, format string) string {
	if format == "" {
		format = "audio"
	}
	return format + ":" + trackID
}
