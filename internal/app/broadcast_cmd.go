package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tunebot/internal/notifier/broadcast"
	"tunebot/internal/storage"
	"tunebot/internal/transport"
	"tunebot/pkg/logx"
	"tunebot/pkg/tgui"
)

type broadcastArgs struct {
	chats   bool
	users   bool
	forward bool
	pin     broadcast.PinMode
	text    string
}

// parseBroadcastArgs reads leading flags; everything after the first
// non-flag word is the text, kept verbatim. Without audience flags the
// broadcast goes to chats.
func parseBroadcastArgs(args string) broadcastArgs {
	out := broadcastArgs{chats: true}
	rest := strings.TrimSpace(args)
	for rest != "" {
		word, tail, _ := strings.Cut(rest, " ")
		switch strings.ToLower(word) {
		case "-all":
			out.chats, out.users = true, true
		case "-users", "-user":
			out.users = true
		case "-chats":
			out.chats = true
		case "-nobot":
			out.chats = false
		case "-forward":
			out.forward = true
		case "-pin":
			out.pin = broadcast.PinQuiet
		case "-pinloud":
			out.pin = broadcast.PinLoud
		default:
			out.text = rest
			return out
		}
		rest = strings.TrimSpace(tail)
	}
	return out
}

func (h *Handler) handleBroadcast(ctx context.Context, m transport.Message, args string, log logx.Logger) {
	if h.bc == nil || h.store == nil {
		h.reply(ctx, m, "Broadcast needs storage to be enabled.")
		return
	}
	if h.bc.Busy() {
		h.reply(ctx, m, "A broadcast is already running. Use /bstatus or /bcancel.")
		return
	}
	ba := parseBroadcastArgs(args)
	if !ba.chats && !ba.users {
		h.reply(ctx, m, "-nobot leaves no audience; add -users.")
		return
	}

	var p broadcast.Payload
	switch {
	case m.ReplyTo != nil && ba.forward:
		p = broadcast.Payload{Kind: broadcast.PayloadForward, From: *m.ReplyTo}
	case m.ReplyTo != nil:
		p = broadcast.Payload{Kind: broadcast.PayloadCopy, From: *m.ReplyTo}
	case ba.text != "":
		p = broadcast.Payload{Kind: broadcast.PayloadText, Text: ba.text, Opt: &transport.SendOptions{ParseMode: "HTML"}}
	default:
		h.reply(ctx, m, tgui.Lines(
			tgui.B("Usage:"),
			tgui.Join(" ", tgui.Esc("reply to a message with"), tgui.Code("/broadcast [-all|-users|-nobot] [-pin|-pinloud] [-forward]")),
			tgui.Join(" ", tgui.Esc("or send"), tgui.Code("/broadcast [flags] text")),
		).String())
		return
	}
	p.Pin = ba.pin

	recipients, err := h.snapshotRecipients(ctx, ba.chats, ba.users)
	if err != nil {
		log.Warn("directory snapshot failed", logx.Err(err))
		h.reply(ctx, m, "Could not read the recipient list.")
		return
	}
	job, err := broadcast.NewJob(fmt.Sprintf("broadcast by %d", m.FromID), p, recipients)
	if errors.Is(err, broadcast.ErrEmptyJob) {
		h.reply(ctx, m, "Nobody to broadcast to yet.")
		return
	}
	if err != nil {
		h.reply(ctx, m, "Invalid broadcast: "+err.Error())
		return
	}

	started := time.Now()
	id, err := h.bc.Start(ctx, job, func(rep broadcast.Report) {
		h.finishBroadcast(context.WithoutCancel(ctx), m, rep, started, log)
	})
	if errors.Is(err, broadcast.ErrBusy) {
		h.reply(ctx, m, "A broadcast is already running. Use /bstatus or /bcancel.")
		return
	}
	if err != nil {
		log.Warn("broadcast start failed", logx.Err(err))
		h.reply(ctx, m, "Could not start the broadcast.")
		return
	}
	log.Info("broadcast started", logx.String("job", id), logx.Int("recipients", job.Len()), logx.String("kind", p.Kind.String()))
	h.reply(ctx, m, tgui.Join(" ", tgui.Esc("Broadcast"), tgui.Code(id), tgui.Esc(fmt.Sprintf("started for %d recipients.", job.Len()))).String())
}

func (h *Handler) snapshotRecipients(ctx context.Context, chats, users bool) ([]broadcast.Recipient, error) {
	var out []broadcast.Recipient
	if chats {
		ids, err := h.store.ListServedChats(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out = append(out, broadcast.Recipient{ID: id, Class: broadcast.ClassChat})
		}
	}
	if users {
		ids, err := h.store.ListServedUsers(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out = append(out, broadcast.Recipient{ID: id, Class: broadcast.ClassUser})
		}
	}
	return out, nil
}

func (h *Handler) finishBroadcast(ctx context.Context, m transport.Message, rep broadcast.Report, started time.Time, log logx.Logger) {
	h.reply(ctx, m, reportText(rep))

	meta, _ := json.Marshal(map[string]int{
		"sent_users":   rep.SentUsers,
		"sent_chats":   rep.SentChats,
		"failed_users": rep.FailedUsers,
		"failed_chats": rep.FailedChats,
		"skipped":      rep.Skipped,
		"pinned":       rep.Pinned,
	})
	err := h.store.AppendAudit(ctx, storage.AuditEntry{
		At:       started,
		ActorID:  m.FromID,
		Action:   "broadcast",
		Target:   rep.JobID,
		OK:       rep.Sent(),
		Fail:     rep.Failed(),
		TookMS:   rep.Elapsed.Milliseconds(),
		MetaJSON: string(meta),
	})
	if err != nil {
		log.Warn("broadcast audit failed", logx.String("job", rep.JobID), logx.Err(err))
	}
}

func reportText(rep broadcast.Report) string {
	counts := func(label string, sent, failed int) tgui.H {
		return tgui.H(fmt.Sprintf("%s: %s sent, %s failed", label, tgui.Codef("%d", sent), tgui.Codef("%d", failed)))
	}
	var skipped, pinned tgui.H
	if rep.Skipped > 0 {
		skipped = tgui.H("Skipped: " + tgui.Codef("%d", rep.Skipped))
	}
	if rep.Pinned > 0 {
		pinned = tgui.H("Pinned: " + tgui.Codef("%d", rep.Pinned))
	}
	return tgui.Lines(
		tgui.B("Broadcast "+rep.JobID+" finished"),
		counts("Chats", rep.SentChats, rep.FailedChats),
		counts("Users", rep.SentUsers, rep.FailedUsers),
		skipped,
		pinned,
		tgui.H("Took: "+tgui.Code(rep.Elapsed.Truncate(time.Second).String())),
	).String()
}

func (h *Handler) handleBroadcastStatus(ctx context.Context, m transport.Message) {
	if h.bc == nil {
		h.reply(ctx, m, "No broadcast is running.")
		return
	}
	st, ok := h.bc.Active()
	if !ok {
		h.reply(ctx, m, "No broadcast is running.")
		return
	}
	h.reply(ctx, m, tgui.Join(" ", tgui.Code(st.ID), tgui.Esc(st.Progress())).String())
}

func (h *Handler) handleBroadcastCancel(ctx context.Context, m transport.Message) {
	if h.bc == nil || !h.bc.Cancel() {
		h.reply(ctx, m, "No broadcast is running.")
		return
	}
	h.reply(ctx, m, "Broadcast cancelled; the report follows once in-flight sends settle.")
}
