package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"tunebot/pkg/logx"
)

var (
	bucketTracks = []byte("sent_tracks")
	bucketUsers  = []byte("served_users")
	bucketChats  = []byte("served_chats")
	bucketAudit  = []byte("audit")
)

type boltStore struct {
	db  *bolt.DB
	log logx.Logger
}

func openBolt(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./data/tunebot.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketTracks, bucketUsers, bucketChats, bucketAudit} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("bolt store opened", logx.String("path", path))
	return &boltStore{db: db, log: log}, nil
}

func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *boltStore) GetSentTrack(ctx context.Context, trackID, format string) (SentTrack, bool, error) {
	var out SentTrack
	if err := ctx.Err(); err != nil {
		return out, false, err
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTracks).Get([]byte(ledgerKey(trackID, format)))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &out)
	})
	return out, found, err
}

func (s *boltStore) PutSentTrack(ctx context.Context, t SentTrack) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.TrackID == "" {
		return errors.New("storage: empty track id")
	}
	if t.SentAt.IsZero() {
		t.SentAt = time.Now()
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTracks).Put([]byte(ledgerKey(t.TrackID, t.Format)), b)
	})
}

func (s *boltStore) AddServedUser(ctx context.Context, id int64) error {
	return s.addID(ctx, bucketUsers, id)
}

func (s *boltStore) AddServedChat(ctx context.Context, id int64) error {
	return s.addID(ctx, bucketChats, id)
}

func (s *boltStore) ListServedUsers(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, bucketUsers)
}

func (s *boltStore) ListServedChats(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, bucketChats)
}

func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func (s *boltStore) addID(ctx context.Context, bucket []byte, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := idKey(id)
	// Read first so the hot path (already known chat) stays a read tx.
	var exists bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucket).Get(k) != nil
		return nil
	})
	if exists {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(k, []byte{1})
	})
}

func (s *boltStore) listIDs(ctx context.Context, bucket []byte) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, _ []byte) error {
			if len(k) == 8 {
				out = append(out, int64(binary.BigEndian.Uint64(k)))
			}
			return nil
		})
	})
	return out, err
}

func (s *boltStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketAudit)
		seq, err := bk.NextSequence()
		if err != nil {
			return err
		}
		return bk.Put(idKey(int64(seq)), b)
	})
}
