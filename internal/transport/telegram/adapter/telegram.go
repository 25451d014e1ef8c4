package adapter

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "tunebot/internal/runtime/supervisor"
	"tunebot/internal/transport"
	"tunebot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Offline builds the bot without calling getMe.
	Offline bool
}

// Adapter is the telebot implementation of transport.Adapter.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- transport.Update
	runMu   sync.Mutex
	running bool

	// sup owns the poll loop and the drop reporter; created by Start.
	sup *rtsup.Supervisor

	// droppedUpdates counts updates lost because the consumer was slower
	// than the poll loop. Reported periodically, not per update.
	droppedUpdates atomic.Uint64
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a := &Adapter{cfg: cfg}
	a.SetLogger(log)
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
		OnError: func(err error, c tele.Context) {
			a.logger().Warn("telebot handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// SetLogger replaces the logger; call it before Start.
func (a *Adapter) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	a.runMu.Lock()
	a.log = log.With(logx.String("comp", "telegram.adapter"))
	a.runMu.Unlock()
}

func (a *Adapter) logger() logx.Logger {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.log
}

// Supervisor returns the adapter's internal supervisor, nil when stopped.
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the current output channel; Start may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if m := c.Message(); m != nil {
			a.sendUpdate(transport.Update{Kind: transport.UpdateMessage, Message: toMessage(m)})
		}
		return nil
	})
	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		if cb := c.Callback(); cb != nil {
			a.sendUpdate(transport.Update{Kind: transport.UpdateCallback, Callback: toCallback(cb)})
		}
		return nil
	})
	a.bot.Handle(tele.OnAddedToGroup, func(c tele.Context) error {
		if m := c.Message(); m != nil && m.Chat != nil {
			a.sendUpdate(transport.Update{Kind: transport.UpdateMembership, Membership: a.toMembership(m, true)})
		}
		return nil
	})
	a.bot.Handle(tele.OnUserLeft, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil || m.UserLeft == nil || a.bot.Me == nil || m.UserLeft.ID != a.bot.Me.ID {
			return nil
		}
		a.sendUpdate(transport.Update{Kind: transport.UpdateMembership, Membership: a.toMembership(m, false)})
		return nil
	})
}

func toCallback(cb *tele.Callback) *transport.Callback {
	out := &transport.Callback{ID: cb.ID, Data: cb.Data}
	if cb.Sender != nil {
		out.FromID = cb.Sender.ID
	}
	if m := cb.Message; m != nil && m.Chat != nil {
		out.Message = transport.MessageRef{ChatID: m.Chat.ID, MessageID: m.ID}
	}
	return out
}

func (a *Adapter) toMembership(m *tele.Message, joined bool) *transport.Membership {
	ev := &transport.Membership{
		ChatID:       m.Chat.ID,
		ChatTitle:    m.Chat.Title,
		ChatUsername: m.Chat.Username,
		Joined:       joined,
	}
	if u := m.Sender; u != nil {
		ev.ActorID = u.ID
		ev.ActorName = strings.TrimSpace(u.FirstName + " " + u.LastName)
		ev.SelfLeave = !joined && a.bot.Me != nil && u.ID == a.bot.Me.ID
	}
	return ev
}

func toMessage(m *tele.Message) *transport.Message {
	msg := &transport.Message{ID: m.ID, Text: m.Text}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
		msg.ChatTitle = m.Chat.Title
		msg.IsPrivate = m.Chat.Type == tele.ChatPrivate
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	if r := m.ReplyTo; r != nil && r.Chat != nil {
		msg.ReplyTo = &transport.MessageRef{ChatID: r.Chat.ID, MessageID: r.ID}
	}
	return msg
}

func (a *Adapter) sendUpdate(up transport.Update) {
	out, _ := a.out.Load().(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	// Poll loop errors are restarted, not propagated.
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	sup := a.sup
	a.runMu.Unlock()

	report := func() {
		if n := a.droppedUpdates.Swap(0); n > 0 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", cap(out)))
		}
	}
	sup.Go("updates.drop_report", func(c context.Context) error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				report()
				return nil
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go("telebot.stop_on_cancel", func(c context.Context) error {
		<-c.Done()
		a.bot.Stop()
		return nil
	})

	// bot.Start blocks until Stop; if it returns while we are still
	// running, restart it.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Int64("dropped_updates_pending", int64(a.droppedUpdates.Load())))

	// Keep shutdown snappy even if getUpdates is still long-polling.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Stop(wctx); err != nil {
		a.log.Warn("telegram stop incomplete", logx.Err(err))
	}
	return nil
}

func sendOptions(opt *transport.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{}
	if opt == nil {
		return so
	}
	so.ParseMode = tele.ParseMode(opt.ParseMode)
	so.DisableWebPagePreview = opt.DisablePreview
	if opt.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opt.ReplyTo}
	}
	if len(opt.Buttons) > 0 {
		so.ReplyMarkup = &tele.ReplyMarkup{InlineKeyboard: inlineKeyboard(opt.Buttons)}
	}
	return so
}

func inlineKeyboard(rows [][]transport.Button) [][]tele.InlineButton {
	out := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		r := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			r = append(r, tele.InlineButton{Text: b.Text, Data: b.Data, URL: b.URL})
		}
		out = append(out, r)
	}
	return out
}

func stored(ref transport.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

func refOf(m *tele.Message, chatID int64) transport.MessageRef {
	if m == nil {
		return transport.MessageRef{ChatID: chatID}
	}
	return transport.MessageRef{ChatID: chatID, MessageID: m.ID}
}

// SendText splits long texts; the returned ref is the first chunk.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chat := &tele.Chat{ID: chatID}
	var first transport.MessageRef
	for i, chunk := range splitText(text, textLimit, parseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		so := sendOptions(opt)
		if i > 0 {
			so.ReplyTo = nil
		}
		m, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, classify(err)
		}
		if i == 0 {
			first = refOf(m, chatID)
		}
	}
	return first, nil
}

func mediaFile(m transport.Media) tele.File {
	if m.FileID != "" {
		return tele.File{FileID: m.FileID}
	}
	return tele.FromDisk(m.Path)
}

func (a *Adapter) SendAudio(ctx context.Context, chatID int64, m transport.Media, opt *transport.SendOptions) (transport.Delivered, error) {
	if err := ctx.Err(); err != nil {
		return transport.Delivered{}, err
	}
	audio := &tele.Audio{File: mediaFile(m), Title: m.Title, Performer: m.Performer, Duration: int(m.Duration.Seconds()), Caption: m.Caption}
	msg, err := a.bot.Send(&tele.Chat{ID: chatID}, audio, sendOptions(opt))
	if err != nil {
		return transport.Delivered{}, classify(err)
	}
	d := transport.Delivered{Ref: refOf(msg, chatID), FileID: m.FileID}
	if msg != nil && msg.Audio != nil && msg.Audio.FileID != "" {
		d.FileID = msg.Audio.FileID
	}
	return d, nil
}

func (a *Adapter) SendVideo(ctx context.Context, chatID int64, m transport.Media, opt *transport.SendOptions) (transport.Delivered, error) {
	if err := ctx.Err(); err != nil {
		return transport.Delivered{}, err
	}
	video := &tele.Video{File: mediaFile(m), Duration: int(m.Duration.Seconds()), Caption: m.Caption, Streaming: true}
	msg, err := a.bot.Send(&tele.Chat{ID: chatID}, video, sendOptions(opt))
	if err != nil {
		return transport.Delivered{}, classify(err)
	}
	d := transport.Delivered{Ref: refOf(msg, chatID), FileID: m.FileID}
	if msg != nil && msg.Video != nil && msg.Video.FileID != "" {
		d.FileID = msg.Video.FileID
	}
	return d, nil
}

func (a *Adapter) Forward(ctx context.Context, chatID int64, from transport.MessageRef) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	m, err := a.bot.Forward(&tele.Chat{ID: chatID}, stored(from))
	if err != nil {
		return transport.MessageRef{}, classify(err)
	}
	return refOf(m, chatID), nil
}

func (a *Adapter) Copy(ctx context.Context, chatID int64, from transport.MessageRef) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	m, err := a.bot.Copy(&tele.Chat{ID: chatID}, stored(from))
	if err != nil {
		return transport.MessageRef{}, classify(err)
	}
	return refOf(m, chatID), nil
}

func (a *Adapter) Pin(ctx context.Context, ref transport.MessageRef, notify bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var opts []any
	if !notify {
		opts = append(opts, tele.Silent)
	}
	return classify(a.bot.Pin(stored(ref), opts...))
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.Edit(stored(ref), text, sendOptions(opt))
	return classify(err)
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify(a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text}))
}

// SendLog delivers a log line to the log chat. It satisfies logx.TextSender.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, text string) error {
	_, err := a.SendText(ctx, chatID, text, &transport.SendOptions{DisablePreview: true})
	return err
}
