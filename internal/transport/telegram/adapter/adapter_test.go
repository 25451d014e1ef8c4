package adapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"tunebot/internal/transport"
	"tunebot/pkg/logx"
)

// opaqueWrap wraps an error without formatting it. A FloodError built
// outside telebot has no message to format.
type opaqueWrap struct{ err error }

func (w opaqueWrap) Error() string { return "send failed" }
func (w opaqueWrap) Unwrap() error { return w.err }

func TestClassifyTelebotErrors(t *testing.T) {
	t.Parallel()

	rl := classify(opaqueWrap{tele.FloodError{RetryAfter: 9}})
	if d, ok := transport.RetryAfter(rl); !ok || d != 9*time.Second {
		t.Fatalf("expected 9s rate limit, got %v %v", d, ok)
	}

	tests := []struct {
		err  error
		want error
	}{
		{tele.ErrBlockedByUser, transport.ErrForbidden},
		{tele.ErrKickedFromSuperGroup, transport.ErrForbidden},
		{tele.ErrUserIsDeactivated, transport.ErrForbidden},
		{fmt.Errorf("copy: %w", tele.ErrNotStartedByUser), transport.ErrForbidden},
		{tele.ErrChatNotFound, transport.ErrInvalidRecipient},
		{fmt.Errorf("send: %w", tele.ErrGroupMigrated), transport.ErrInvalidRecipient},
	}
	for _, tt := range tests {
		got := classify(tt.err)
		if !errors.Is(got, tt.want) {
			t.Fatalf("%v: expected %v, got %v", tt.err, tt.want, got)
		}
	}
}

func TestClassifyTextFallback(t *testing.T) {
	t.Parallel()

	rl := classify(errors.New("telegram: Too Many Requests: retry after 17 (429)"))
	if d, ok := transport.RetryAfter(rl); !ok || d != 17*time.Second {
		t.Fatalf("expected 17s rate limit, got %v %v", d, ok)
	}

	tests := []struct {
		msg  string
		want error
	}{
		{"telegram: Forbidden: bot was blocked by the user (403)", transport.ErrForbidden},
		{"telegram: Forbidden: user is deactivated (403)", transport.ErrForbidden},
		{"telegram: Forbidden: bot was kicked from the supergroup chat (403)", transport.ErrForbidden},
		{"telegram: Bad Request: chat not found (400)", transport.ErrInvalidRecipient},
		{"telegram: Bad Request: CHAT_WRITE_FORBIDDEN (400)", transport.ErrInvalidRecipient},
	}
	for _, tt := range tests {
		got := classify(errors.New(tt.msg))
		if !errors.Is(got, tt.want) {
			t.Fatalf("%q: expected %v, got %v", tt.msg, tt.want, got)
		}
		if !transport.IsPermanent(got) {
			t.Fatalf("%q: expected permanent", tt.msg)
		}
	}

	other := errors.New("dial tcp: i/o timeout")
	if got := classify(other); got != other || transport.IsPermanent(got) {
		t.Fatalf("expected transient error unchanged, got %v", got)
	}
	if classify(nil) != nil {
		t.Fatal("expected nil for nil")
	}
}

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	if got := splitText("hello", 10, ""); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected split: %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitText(s, 12, "")
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("unexpected split: %q", got)
	}
}

func TestSplitTextAvoidsHTMLTags(t *testing.T) {
	t.Parallel()
	s := "abcdefgh<b>bold</b>"
	got := splitText(s, 10, "HTML")
	if got[0] != "abcdefgh" {
		t.Fatalf("expected cut before tag, got %q", got)
	}
	if strings.Join(got, "") != s {
		t.Fatalf("expected no text lost, got %q", got)
	}
}

func offlineAdapter(t *testing.T) (*Adapter, chan transport.Update) {
	t.Helper()
	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a.bot.Me.ID = 99
	out := make(chan transport.Update, 4)
	a.out.Store((chan<- transport.Update)(out))
	return a, out
}

func nextUpdate(t *testing.T, out chan transport.Update) transport.Update {
	t.Helper()
	select {
	case up := <-out:
		return up
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an update")
		return transport.Update{}
	}
}

func TestCallbackUpdate(t *testing.T) {
	a, out := offlineAdapter(t)
	a.bot.ProcessUpdate(tele.Update{Callback: &tele.Callback{
		ID:      "cb1",
		Sender:  &tele.User{ID: 7},
		Data:    "dl:abc",
		Message: &tele.Message{ID: 5, Chat: &tele.Chat{ID: -100}},
	}})

	up := nextUpdate(t, out)
	if up.Kind != transport.UpdateCallback || up.Callback == nil {
		t.Fatalf("expected callback update, got %+v", up)
	}
	cb := up.Callback
	if cb.ID != "cb1" || cb.FromID != 7 || cb.Data != "dl:abc" || cb.Message != (transport.MessageRef{ChatID: -100, MessageID: 5}) {
		t.Fatalf("unexpected callback %+v", cb)
	}
}

func TestMembershipUpdates(t *testing.T) {
	a, out := offlineAdapter(t)
	chat := &tele.Chat{ID: -100, Title: "Rock", Type: tele.ChatSuperGroup, Username: "rockers"}

	a.bot.ProcessUpdate(tele.Update{Message: &tele.Message{
		ID: 1, Chat: chat, Sender: &tele.User{ID: 7, FirstName: "Ann"},
		UserJoined: &tele.User{ID: 99},
	}})
	up := nextUpdate(t, out)
	if up.Kind != transport.UpdateMembership || !up.Membership.Joined || up.Membership.ActorID != 7 || up.Membership.ChatUsername != "rockers" {
		t.Fatalf("unexpected join update %+v", up.Membership)
	}

	a.bot.ProcessUpdate(tele.Update{Message: &tele.Message{
		ID: 2, Chat: chat, Sender: &tele.User{ID: 99},
		UserLeft: &tele.User{ID: 99},
	}})
	up = nextUpdate(t, out)
	if up.Membership == nil || up.Membership.Joined || !up.Membership.SelfLeave {
		t.Fatalf("unexpected leave update %+v", up.Membership)
	}

	// Other members leaving are not reported.
	a.bot.ProcessUpdate(tele.Update{Message: &tele.Message{
		ID: 3, Chat: chat, Sender: &tele.User{ID: 7},
		UserLeft: &tele.User{ID: 7},
	}})
	select {
	case up := <-out:
		t.Fatalf("expected no update, got %+v", up)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInlineKeyboard(t *testing.T) {
	t.Parallel()
	so := sendOptions(&transport.SendOptions{Buttons: [][]transport.Button{
		{{Text: "One", Data: "dl:1"}},
		{{Text: "Site", URL: "https://example.com"}},
	}})
	if so.ReplyMarkup == nil || len(so.ReplyMarkup.InlineKeyboard) != 2 {
		t.Fatalf("expected two keyboard rows, got %+v", so.ReplyMarkup)
	}
	if b := so.ReplyMarkup.InlineKeyboard[0][0]; b.Text != "One" || b.Data != "dl:1" {
		t.Fatalf("unexpected button %+v", b)
	}
	if b := so.ReplyMarkup.InlineKeyboard[1][0]; b.URL != "https://example.com" {
		t.Fatalf("unexpected url button %+v", b)
	}
}
