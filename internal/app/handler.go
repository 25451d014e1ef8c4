package app

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"tunebot/internal/download"
	"tunebot/internal/notifier/broadcast"
	"tunebot/internal/storage"
	"tunebot/internal/telemetry"
	"tunebot/internal/transport"
	"tunebot/pkg/logx"
)

// Resolver is the part of the download pipeline the handler needs.
type Resolver interface {
	Resolve(ctx context.Context, req download.TrackRequest) (*download.Result, error)
	StreamURL(ctx context.Context, link string, f download.Format) (string, error)
	Info(ctx context.Context, link string) (download.TrackInfo, error)
	Search(ctx context.Context, query string, limit int) ([]download.TrackInfo, error)
	Playlist(ctx context.Context, link string, limit int) ([]download.TrackInfo, error)
}

// HandlerConfig is the hot-reloadable part of the handler.
type HandlerConfig struct {
	Owners      []int64
	SaveChannel int64
	// LogChatID receives join and leave notices; 0 disables them.
	LogChatID int64
	// KeepFor is how long a sent file stays on disk; 0 keeps it.
	KeepFor time.Duration
	// Workers bounds concurrently handled messages.
	Workers int
}

// Handler turns incoming messages into downloads and broadcasts.
type Handler struct {
	send     transport.Sender
	resolver Resolver
	store    storage.Store // nil when storage is disabled
	bc       *broadcast.Dispatcher
	counters *telemetry.Counters
	log      logx.Logger

	mu          sync.RWMutex
	owners      map[int64]struct{}
	saveChannel int64
	logChatID   int64
	keepFor     time.Duration
	workers     int

	// archiving holds track keys currently being posted to the save channel.
	archiving sync.Map

	// removeLater schedules deletion of a sent file.
	removeLater func(path string, after time.Duration)
	// pause spaces out playlist entries.
	pause func(ctx context.Context, d time.Duration) error
}

func NewHandler(cfg HandlerConfig, send transport.Sender, resolver Resolver, store storage.Store, bc *broadcast.Dispatcher, counters *telemetry.Counters, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if counters == nil {
		counters = telemetry.New()
	}
	h := &Handler{
		send:     send,
		resolver: resolver,
		store:    store,
		bc:       bc,
		counters: counters,
		log:      log.With(logx.String("comp", "commands")),
	}
	h.removeLater = h.scheduleRemove
	h.pause = sleepCtx
	h.Apply(cfg)
	return h
}

// Apply swaps the reloadable settings.
func (h *Handler) Apply(cfg HandlerConfig) {
	owners := make(map[int64]struct{}, len(cfg.Owners))
	for _, id := range cfg.Owners {
		owners[id] = struct{}{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	h.mu.Lock()
	h.owners = owners
	h.saveChannel = cfg.SaveChannel
	h.logChatID = cfg.LogChatID
	h.keepFor = cfg.KeepFor
	h.workers = cfg.Workers
	h.mu.Unlock()
}

func (h *Handler) isOwner(id int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.owners[id]
	return ok
}

func (h *Handler) settings() (saveChannel int64, keepFor time.Duration) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.saveChannel, h.keepFor
}

func (h *Handler) ownerIDs() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]int64, 0, len(h.owners))
	for id := range h.owners {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Run consumes updates until ctx ends or the channel closes. Each update
// is handled on its own goroutine; at most Workers run at once.
func (h *Handler) Run(ctx context.Context, updates <-chan transport.Update) error {
	h.mu.RLock()
	sem := semaphore.NewWeighted(int64(h.workers))
	h.mu.RUnlock()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			fn := h.route(up)
			if fn == nil {
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			wg.Add(1)
			go func(kind transport.UpdateKind) {
				defer wg.Done()
				defer sem.Release(1)
				defer func() {
					if r := recover(); r != nil {
						h.log.Error("panic in update handler", logx.String("kind", string(kind)), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
					}
				}()
				fn(ctx)
			}(up.Kind)
		}
	}
}

// route picks the handler for up; nil drops it.
func (h *Handler) route(up transport.Update) func(context.Context) {
	switch {
	case up.Kind == transport.UpdateMessage && up.Message != nil:
		m := *up.Message
		return func(ctx context.Context) { h.Handle(ctx, m) }
	case up.Kind == transport.UpdateCallback && up.Callback != nil:
		cb := *up.Callback
		return func(ctx context.Context) { h.HandleCallback(ctx, cb) }
	case up.Kind == transport.UpdateMembership && up.Membership != nil:
		ev := *up.Membership
		return func(ctx context.Context) { h.HandleMembership(ctx, ev) }
	}
	return nil
}

// parseCommand splits "/cmd@bot args" into ("cmd", "args").
func parseCommand(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text, " ")
	head = strings.TrimPrefix(head, "/")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Handle processes one message.
func (h *Handler) Handle(ctx context.Context, m transport.Message) {
	h.recordServed(ctx, m)

	cmd, args, ok := parseCommand(m.Text)
	if !ok {
		return
	}
	log := h.log.With(logx.String("cmd", cmd), logx.Int64("chat_id", m.ChatID), logx.Int64("from", m.FromID))
	log.Debug("command received")

	switch cmd {
	case "start", "help":
		h.reply(ctx, m, helpText)
	case "song", "music":
		h.handleMedia(ctx, m, args, download.FormatAudio, log)
	case "video":
		h.handleMedia(ctx, m, args, download.FormatVideo, log)
	case "vurl":
		h.handleStreamURL(ctx, m, args, log)
	case "broadcast", "bcast":
		if h.ownerOnly(ctx, m) {
			h.handleBroadcast(ctx, m, args, log)
		}
	case "bstatus":
		if h.ownerOnly(ctx, m) {
			h.handleBroadcastStatus(ctx, m)
		}
	case "bcancel":
		if h.ownerOnly(ctx, m) {
			h.handleBroadcastCancel(ctx, m)
		}
	case "dstats":
		if h.ownerOnly(ctx, m) {
			h.reply(ctx, m, h.counters.Snapshot().Format())
		}
	}
}

const helpText = `<b>tunebot</b>
/song &lt;link, id, playlist or name&gt; - audio
/video &lt;link, id or name&gt; - video
/vurl &lt;link&gt; - direct stream link`

func (h *Handler) ownerOnly(ctx context.Context, m transport.Message) bool {
	if h.isOwner(m.FromID) {
		return true
	}
	h.log.Debug("owner command rejected", logx.Int64("from", m.FromID))
	return false
}

// recordServed adds the chat (or the private user) to the directory.
func (h *Handler) recordServed(ctx context.Context, m transport.Message) {
	if h.store == nil {
		return
	}
	var err error
	if m.IsPrivate {
		err = h.store.AddServedUser(ctx, m.FromID)
	} else if m.ChatID != 0 {
		err = h.store.AddServedChat(ctx, m.ChatID)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.Warn("directory update failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
	}
}

func (h *Handler) reply(ctx context.Context, m transport.Message, text string) {
	h.replyTo(ctx, m.ChatID, m.ID, text)
}

func (h *Handler) replyTo(ctx context.Context, chatID int64, msgID int, text string) {
	_, err := h.send.SendText(ctx, chatID, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyTo: msgID})
	if err != nil {
		h.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
