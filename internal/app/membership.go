package app

import (
	"context"
	"strconv"

	"tunebot/internal/transport"
	"tunebot/pkg/logx"
	"tunebot/pkg/tgui"
)

// HandleMembership records a group the bot joined and reports joins and
// leaves to the log chat. A leave the bot performed itself is unexpected
// and also alerts the owners.
func (h *Handler) HandleMembership(ctx context.Context, ev transport.Membership) {
	log := h.log.With(logx.Int64("chat_id", ev.ChatID), logx.Bool("joined", ev.Joined))
	log.Info("bot membership changed", logx.String("title", ev.ChatTitle), logx.Int64("actor", ev.ActorID))

	if ev.Joined && h.store != nil {
		if err := h.store.AddServedChat(ctx, ev.ChatID); err != nil {
			log.Warn("directory update failed", logx.Err(err))
		}
	}

	h.mu.RLock()
	logChat := h.logChatID
	h.mu.RUnlock()
	if logChat != 0 {
		opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
		if ev.ChatUsername != "" {
			opt.Buttons = [][]transport.Button{{{Text: "Open chat", URL: "https://t.me/" + ev.ChatUsername}}}
		}
		if _, err := h.send.SendText(ctx, logChat, membershipText(ev), opt); err != nil {
			log.Warn("membership log failed", logx.Err(err))
		}
	}

	if ev.SelfLeave {
		alert := securityAlert(ev)
		for _, id := range h.ownerIDs() {
			if _, err := h.send.SendText(ctx, id, alert, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
				log.Warn("security alert failed", logx.Int64("owner", id), logx.Err(err))
			}
		}
	}
}

func membershipText(ev transport.Membership) string {
	var head, cause tgui.H
	switch {
	case ev.Joined:
		head = tgui.B("Bot added")
		cause = field("Added by", actorLink(ev))
	case ev.SelfLeave:
		head = tgui.B("Bot left the chat by itself")
		cause = field("Reason", tgui.Esc("self-leave (actor is the bot)"))
	case ev.ActorID != 0:
		head = tgui.B("Bot removed")
		cause = field("Removed by", actorLink(ev))
	default:
		head = tgui.B("Bot left the chat")
	}
	return tgui.Lines(
		head,
		field("Chat", tgui.Code(ev.ChatTitle)),
		field("Chat ID", tgui.Codef("%d", ev.ChatID)),
		field("Username", usernameOf(ev)),
		cause,
	).String()
}

func securityAlert(ev transport.Membership) string {
	return tgui.Lines(
		tgui.B("Security alert"),
		tgui.Esc("The bot left a chat by itself. Its token may be compromised; revoke it and review recent logs."),
		field("Chat", tgui.Code(ev.ChatTitle)),
		field("Chat ID", tgui.Codef("%d", ev.ChatID)),
	).String()
}

func field(label string, v tgui.H) tgui.H {
	return tgui.Join(" ", tgui.B(label+":"), v)
}

func actorLink(ev transport.Membership) tgui.H {
	if ev.ActorID == 0 {
		return tgui.Esc("unknown")
	}
	name := ev.ActorName
	if name == "" {
		name = "user"
	}
	return tgui.Link(name, "tg://user?id="+strconv.FormatInt(ev.ActorID, 10))
}

func usernameOf(ev transport.Membership) tgui.H {
	if ev.ChatUsername == "" {
		return tgui.Esc("private group")
	}
	return tgui.Esc("@" + ev.ChatUsername)
}
