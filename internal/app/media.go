package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"tunebot/internal/download"
	"tunebot/internal/storage"
	"tunebot/internal/transport"
	"tunebot/pkg/logx"
	"tunebot/pkg/tgui"
)

func (h *Handler) handleMedia(ctx context.Context, m transport.Message, args string, f download.Format, log logx.Logger) {
	if args == "" {
		h.reply(ctx, m, usage("/"+commandFor(f)+" <YouTube link, id or song name>"))
		return
	}
	if f == download.FormatAudio {
		if list, ok := ExtractPlaylistID(args); ok {
			h.handlePlaylist(ctx, m, list, log)
			return
		}
	}
	id, ok := ExtractVideoID(args)
	if !ok {
		h.handleSearch(ctx, m, args, f, log)
		return
	}
	h.deliverTrack(ctx, m.ChatID, m.ID, id, f, log)
}

// deliverTrack sends track id to chatID, replying to msgID when it is set.
// Failures are reported to the chat. It reports whether the file was sent.
func (h *Handler) deliverTrack(ctx context.Context, chatID int64, msgID int, id string, f download.Format, log logx.Logger) bool {
	log = log.With(logx.String("track", id), logx.String("format", string(f)))

	// A file Telegram already stores is re-sent without downloading.
	prev, known := h.lookupLedger(ctx, id, f, log)
	if known && prev.FileID != "" {
		media := transport.Media{FileID: prev.FileID, Title: prev.Title, Caption: trackCaption(id, prev.Title, 0)}
		_, err := h.sendMedia(ctx, chatID, f, media, msgID)
		if err == nil {
			log.Debug("served from ledger")
			return true
		}
		log.Warn("ledger file id rejected; downloading again", logx.Err(err))
	}

	infoc := make(chan download.TrackInfo, 1)
	go func() {
		ti, err := h.resolver.Info(ctx, watchURL(id))
		if err != nil {
			log.Debug("track info unavailable", logx.Err(err))
		}
		infoc <- ti
	}()

	res, err := h.resolver.Resolve(ctx, download.TrackRequest{ExternalID: id, SourceURL: watchURL(id), Format: f})
	if err != nil {
		log.Warn("download failed", logx.Err(err))
		h.replyTo(ctx, chatID, msgID, failureText(err))
		return false
	}
	log.Info("track resolved", logx.String("tier", res.Tier.String()), logx.String("size", humanize.IBytes(uint64(res.SizeBytes))))

	var ti download.TrackInfo
	select {
	case ti = <-infoc:
	case <-ctx.Done():
	}
	title := ti.Title
	if title == "" {
		title = id
	}
	performer := ti.Uploader
	if performer == "" {
		performer = "tunebot"
	}
	media := transport.Media{Path: res.FilePath, Title: title, Performer: performer, Duration: ti.Duration, Caption: trackCaption(id, ti.Title, ti.Duration)}
	d, err := h.sendMedia(ctx, chatID, f, media, msgID)
	if err != nil {
		log.Warn("media send failed", logx.Err(err))
		h.replyTo(ctx, chatID, msgID, "Could not send the file.")
		return false
	}

	entry := storage.SentTrack{TrackID: id, Format: string(f), FileID: d.FileID, Title: title, Archived: prev.Archived, SentAt: time.Now()}
	entry.Archived = h.archive(ctx, f, media, entry, log)
	if h.store != nil {
		if err := h.store.PutSentTrack(ctx, entry); err != nil {
			log.Warn("ledger update failed", logx.Err(err))
		}
	}

	if _, keepFor := h.settings(); keepFor > 0 && res.Tier != download.TierCache {
		h.removeLater(res.FilePath, keepFor)
	}
	return true
}

func (h *Handler) lookupLedger(ctx context.Context, id string, f download.Format, log logx.Logger) (storage.SentTrack, bool) {
	if h.store == nil {
		return storage.SentTrack{}, false
	}
	t, ok, err := h.store.GetSentTrack(ctx, id, string(f))
	if err != nil {
		log.Warn("ledger lookup failed", logx.Err(err))
		return storage.SentTrack{}, false
	}
	return t, ok
}

// archive posts the track to the save channel once per track. It reports
// whether the track is archived afterwards.
func (h *Handler) archive(ctx context.Context, f download.Format, media transport.Media, entry storage.SentTrack, log logx.Logger) bool {
	channel, _ := h.settings()
	if entry.Archived || channel == 0 {
		return entry.Archived
	}
	key := string(f) + ":" + entry.TrackID
	if _, busy := h.archiving.LoadOrStore(key, struct{}{}); busy {
		return false
	}
	defer h.archiving.Delete(key)

	// Re-check: another request may have archived it meanwhile.
	if prev, ok := h.lookupLedger(ctx, entry.TrackID, f, log); ok && prev.Archived {
		return true
	}
	if entry.FileID != "" {
		media = transport.Media{FileID: entry.FileID, Title: media.Title, Performer: media.Performer, Caption: media.Caption}
	}
	if _, err := h.sendMedia(ctx, channel, f, media, 0); err != nil {
		log.Warn("archive to save channel failed", logx.Int64("channel", channel), logx.Err(err))
		return false
	}
	log.Debug("track archived", logx.Int64("channel", channel))
	return true
}

func (h *Handler) sendMedia(ctx context.Context, chatID int64, f download.Format, media transport.Media, replyTo int) (transport.Delivered, error) {
	opt := &transport.SendOptions{ParseMode: "HTML", ReplyTo: replyTo}
	if f == download.FormatVideo {
		return h.send.SendVideo(ctx, chatID, media, opt)
	}
	return h.send.SendAudio(ctx, chatID, media, opt)
}

func (h *Handler) handleStreamURL(ctx context.Context, m transport.Message, args string, log logx.Logger) {
	id, ok := ExtractVideoID(args)
	if !ok {
		h.reply(ctx, m, usage("/vurl <YouTube link>"))
		return
	}
	u, err := h.resolver.StreamURL(ctx, watchURL(id), download.FormatVideo)
	if err != nil {
		log.Warn("stream url failed", logx.String("track", id), logx.Err(err))
		h.reply(ctx, m, "Could not get a stream link.")
		return
	}
	h.reply(ctx, m, tgui.Link("Stream link", u).String())
}

func (h *Handler) scheduleRemove(path string, after time.Duration) {
	time.AfterFunc(after, func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.log.Warn("file removal failed", logx.String("path", path), logx.Err(err))
			return
		}
		h.log.Debug("file removed", logx.String("path", path))
	})
}

func commandFor(f download.Format) string {
	if f == download.FormatVideo {
		return "video"
	}
	return "song"
}

// trackCaption shows the title and duration when known, then the link.
func trackCaption(id, title string, d time.Duration) string {
	var head, length tgui.H
	if title != "" && title != id {
		head = tgui.B(title)
	}
	if d > 0 {
		length = tgui.Join(" ", tgui.Esc("Duration:"), tgui.Code(formatDuration(d)))
	}
	return tgui.Lines(head, length, tgui.Link("Watch on YouTube", watchURL(id))).String()
}

// formatDuration renders m:ss, or h:mm:ss from one hour up.
func formatDuration(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	h, m, s := secs/3600, secs/60%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func usage(cmd string) string {
	return tgui.Join(" ", tgui.B("Usage:"), tgui.Code(cmd)).String()
}

func failureText(err error) string {
	switch {
	case errors.Is(err, download.ErrRateLimited):
		return "The download service is busy. Try again in a minute."
	case errors.Is(err, context.DeadlineExceeded):
		return "The download took too long. Try again later."
	default:
		return "Could not download this track."
	}
}
