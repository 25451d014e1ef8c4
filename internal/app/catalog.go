package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tunebot/internal/download"
	"tunebot/internal/transport"
	"tunebot/pkg/logx"
	"tunebot/pkg/tgui"
)

const (
	searchResults  = 5
	playlistTracks = 5
	playlistPause  = time.Second

	pickPrefix = "dl:"
)

// handleSearch replies with one button per search hit. Pressing a button
// comes back as a callback carrying pickData.
func (h *Handler) handleSearch(ctx context.Context, m transport.Message, query string, f download.Format, log logx.Logger) {
	hits, err := h.resolver.Search(ctx, query, searchResults)
	if err != nil {
		log.Warn("search failed", logx.String("query", query), logx.Err(err))
		h.reply(ctx, m, "Search failed. Try again later.")
		return
	}
	if len(hits) == 0 {
		h.reply(ctx, m, "No results found.")
		return
	}
	rows := make([][]transport.Button, 0, len(hits))
	for _, ti := range hits {
		rows = append(rows, []transport.Button{{Text: hitLabel(ti), Data: pickData(f, ti.ID)}})
	}
	opt := &transport.SendOptions{ParseMode: "HTML", ReplyTo: m.ID, Buttons: rows}
	if _, err := h.send.SendText(ctx, m.ChatID, tgui.B("Select a track:").String(), opt); err != nil {
		log.Warn("search reply failed", logx.Err(err))
	}
}

func hitLabel(ti download.TrackInfo) string {
	title := ti.Title
	if title == "" {
		title = ti.ID
	}
	label := tgui.TruncRunes(title, 30)
	if ti.Duration > 0 {
		label += " (" + formatDuration(ti.Duration) + ")"
	}
	return label
}

// pickData encodes a picker choice as "dl:a:<id>" or "dl:v:<id>".
func pickData(f download.Format, id string) string {
	code := "a"
	if f == download.FormatVideo {
		code = "v"
	}
	return pickPrefix + code + ":" + id
}

func parsePick(data string) (download.Format, string, bool) {
	rest, ok := strings.CutPrefix(data, pickPrefix)
	if !ok {
		return "", "", false
	}
	code, id, ok := strings.Cut(rest, ":")
	if !ok || !bareVideoID.MatchString(id) {
		return "", "", false
	}
	switch code {
	case "a":
		return download.FormatAudio, id, true
	case "v":
		return download.FormatVideo, id, true
	}
	return "", "", false
}

// HandleCallback serves a press on a search result button.
func (h *Handler) HandleCallback(ctx context.Context, cb transport.Callback) {
	f, id, ok := parsePick(cb.Data)
	if !ok {
		h.answer(ctx, cb, "")
		return
	}
	log := h.log.With(logx.String("cmd", "pick"), logx.Int64("from", cb.FromID))
	if cb.Message.IsZero() {
		h.answer(ctx, cb, "This button has expired.")
		return
	}
	h.answer(ctx, cb, "Downloading your track...")
	h.edit(ctx, cb.Message, "Getting your track ready...", log)

	if h.deliverTrack(ctx, cb.Message.ChatID, 0, id, f, log) {
		h.edit(ctx, cb.Message, "All done.", log)
	}
}

func (h *Handler) answer(ctx context.Context, cb transport.Callback, text string) {
	if err := h.send.AnswerCallback(ctx, cb.ID, text); err != nil {
		h.log.Debug("callback answer failed", logx.Err(err))
	}
}

func (h *Handler) edit(ctx context.Context, ref transport.MessageRef, text string, log logx.Logger) {
	if err := h.send.EditText(ctx, ref, text, nil); err != nil {
		log.Debug("message edit failed", logx.Int64("chat_id", ref.ChatID), logx.Err(err))
	}
}

// handlePlaylist sends the first playlistTracks entries one by one.
func (h *Handler) handlePlaylist(ctx context.Context, m transport.Message, list string, log logx.Logger) {
	log = log.With(logx.String("playlist", list))
	items, err := h.resolver.Playlist(ctx, playlistURL(list), playlistTracks)
	if err != nil {
		log.Warn("playlist lookup failed", logx.Err(err))
		h.reply(ctx, m, "Could not read the playlist.")
		return
	}
	if len(items) == 0 {
		h.reply(ctx, m, "No videos found in the playlist.")
		return
	}
	h.reply(ctx, m, tgui.Lines(
		tgui.B(fmt.Sprintf("Found %d tracks in the playlist.", len(items))),
		tgui.Esc("Sending them now..."),
	).String())

	sent := 0
	for i, ti := range items {
		if i > 0 {
			if err := h.pause(ctx, playlistPause); err != nil {
				break
			}
		}
		if h.deliverTrack(ctx, m.ChatID, m.ID, ti.ID, download.FormatAudio, log) {
			sent++
		}
	}
	log.Info("playlist delivered", logx.Int("sent", sent), logx.Int("total", len(items)))
}
