package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"tunebot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, driver := range []string{"bolt", "sqlite"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, driver+".db")}, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func TestSentTrackLedger(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		if _, ok, err := st.GetSentTrack(ctx, "abc123", "audio"); err != nil || ok {
			t.Fatalf("%s: expected miss, got ok=%v err=%v", name, ok, err)
		}
		if err := st.PutSentTrack(ctx, SentTrack{TrackID: "abc123", Format: "audio", FileID: "F1", Title: "Song"}); err != nil {
			t.Fatalf("%s: put: %v", name, err)
		}
		got, ok, err := st.GetSentTrack(ctx, "abc123", "audio")
		if err != nil || !ok {
			t.Fatalf("%s: expected hit, got ok=%v err=%v", name, ok, err)
		}
		if got.FileID != "F1" || got.Title != "Song" || got.Archived {
			t.Fatalf("%s: unexpected entry %+v", name, got)
		}

		// Same id in another format is a separate entry.
		if _, ok, _ := st.GetSentTrack(ctx, "abc123", "video"); ok {
			t.Fatalf("%s: expected video miss", name)
		}

		if err := st.PutSentTrack(ctx, SentTrack{TrackID: "abc123", Format: "audio", FileID: "F2", Archived: true}); err != nil {
			t.Fatalf("%s: overwrite: %v", name, err)
		}
		got, _, _ = st.GetSentTrack(ctx, "abc123", "audio")
		if got.FileID != "F2" || !got.Archived {
			t.Fatalf("%s: expected overwrite, got %+v", name, got)
		}
	}
}

func TestServedDirectory(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		for _, id := range []int64{42, 7, 42} {
			if err := st.AddServedUser(ctx, id); err != nil {
				t.Fatalf("%s: add user: %v", name, err)
			}
		}
		if err := st.AddServedChat(ctx, -1001); err != nil {
			t.Fatalf("%s: add chat: %v", name, err)
		}

		users, err := st.ListServedUsers(ctx)
		if err != nil {
			t.Fatalf("%s: list users: %v", name, err)
		}
		sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
		if len(users) != 2 || users[0] != 7 || users[1] != 42 {
			t.Fatalf("%s: expected [7 42], got %v", name, users)
		}
		chats, err := st.ListServedChats(ctx)
		if err != nil {
			t.Fatalf("%s: list chats: %v", name, err)
		}
		if len(chats) != 1 || chats[0] != -1001 {
			t.Fatalf("%s: expected [-1001], got %v", name, chats)
		}
	}
}

func TestAppendAudit(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		for i := 0; i < 2; i++ {
			if err := st.AppendAudit(ctx, AuditEntry{ActorID: 1, Action: "broadcast", Target: "all", OK: 3, Fail: 1}); err != nil {
				t.Fatalf("%s: audit: %v", name, err)
			}
		}
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	if _, err := Open(Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
