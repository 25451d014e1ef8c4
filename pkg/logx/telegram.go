package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TextSender delivers a log line to a chat.
type TextSender interface {
	SendLog(ctx context.Context, chatID int64, text string) error
}

type telegramSink struct {
	sender TextSender
	queue  chan string

	mu       sync.Mutex
	chatID   int64
	minLevel zerolog.Level
	limiter  *rate.Limiter

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newTelegramSink(sender TextSender) *telegramSink {
	t := &telegramSink{
		sender:   sender,
		queue:    make(chan string, 256),
		minLevel: LevelWarn,
		limiter:  rate.NewLimiter(1, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	t.mu.Lock()
	t.chatID = cfg.ChatID
	t.minLevel = ParseLevel(cfg.MinLevel, LevelWarn)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	t.mu.Unlock()
}

func (t *telegramSink) run() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case msg := <-t.queue:
			t.mu.Lock()
			chatID := t.chatID
			t.mu.Unlock()
			if chatID == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = t.sender.SendLog(ctx, chatID, msg)
			cancel()
		}
	}
}

func (t *telegramSink) close() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(LevelInfo, p)
}

// WriteLevel never blocks; lines are dropped when the queue is full or the
// rate limit is exceeded.
func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	minLevel, lim := t.minLevel, t.limiter
	t.mu.Unlock()

	if level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	msg := formatLogLine(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case t.queue <- msg:
	default:
	}
	return len(p), nil
}

// formatLogLine renders a zerolog JSON line as a short chat message.
func formatLogLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 3500)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 600))
	}
	return truncate(b.String(), 3500)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
