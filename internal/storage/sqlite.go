package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tunebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetSentTrack(ctx context.Context, trackID, format string) (SentTrack, bool, error) {
	var (
		out      SentTrack
		title    sql.NullString
		archived int
		sentAt   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT track_id, format, file_id, title, archived, sent_at FROM sent_tracks WHERE key = ?`,
		ledgerKey(trackID, format),
	).Scan(&out.TrackID, &out.Format, &out.FileID, &title, &archived, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SentTrack{}, false, nil
	}
	if err != nil {
		return SentTrack{}, false, err
	}
	out.Title = title.String
	out.Archived = archived != 0
	out.SentAt, _ = time.Parse(time.RFC3339Nano, sentAt)
	return out, true, nil
}

func (s *sqliteStore) PutSentTrack(ctx context.Context, t SentTrack) error {
	if t.TrackID == "" {
		return errors.New("storage: empty track id")
	}
	if t.SentAt.IsZero() {
		t.SentAt = time.Now()
	}
	if t.Format == "" {
		t.Format = "audio"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sent_tracks(key, track_id, format, file_id, title, archived, sent_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(key) DO UPDATE SET file_id=excluded.file_id, title=excluded.title,
		   archived=excluded.archived, sent_at=excluded.sent_at`,
		ledgerKey(t.TrackID, t.Format), t.TrackID, t.Format, t.FileID, nullStr(t.Title),
		boolInt(t.Archived), t.SentAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AddServedUser(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO served_users(id) VALUES(?)`, id)
	return err
}

func (s *sqliteStore) AddServedChat(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO served_chats(id) VALUES(?)`, id)
	return err
}

func (s *sqliteStore) ListServedUsers(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, `SELECT id FROM served_users ORDER BY id`)
}

func (s *sqliteStore) ListServedChats(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, `SELECT id FROM served_chats ORDER BY id`)
}

func (s *sqliteStore) listIDs(ctx context.Context, q string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(id, at, actor_id, action, target, ok, fail, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.At.Format(time.RFC3339Nano), e.ActorID, e.Action, e.Target,
		e.OK, e.Fail, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
