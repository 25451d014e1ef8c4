package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinValidSize is the smallest file accepted as a complete download.
const MinValidSize = 10 * 1024

type Format string

const (
	FormatAudio Format = "audio"
	FormatVideo Format = "video"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "audio", "song", "mp3":
		return FormatAudio, nil
	case "video", "mp4":
		return FormatVideo, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// Tier identifies the source a Result came from.
type Tier int

const (
	TierCache Tier = iota
	TierPrimaryAPI
	TierBackupMirror
	TierLocalExtractor
)

func (t Tier) String() string {
	switch t {
	case TierCache:
		return "cache"
	case TierPrimaryAPI:
		return "primary_api"
	case TierBackupMirror:
		return "backup_mirror"
	case TierLocalExtractor:
		return "local_extractor"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// TrackRequest asks for one track. ExternalID is the source id (a YouTube
// video id); SourceURL is the link handed to the local extractor and may
// be empty.
type TrackRequest struct {
	ExternalID string
	SourceURL  string
	Format     Format
}

func (r TrackRequest) link() string {
	if strings.TrimSpace(r.SourceURL) != "" {
		return r.SourceURL
	}
	return "https://www.youtube.com/watch?v=" + r.ExternalID
}

// TrackInfo is catalog metadata for one track.
type TrackInfo struct {
	ID       string
	Title    string
	Uploader string
	Duration time.Duration
}

// Result is a resolved, size-checked local file.
type Result struct {
	FilePath  string
	Format    Format
	SizeBytes int64
	Tier      Tier
}

var (
	// ErrUnavailable collapses every tier-local failure.
	ErrUnavailable = errors.New("download: unavailable")
	// ErrRateLimited means the primary API answered 429. The whole
	// resolution stops; the caller should back off.
	ErrRateLimited = errors.New("download: rate limited by api")
	// ErrAuthFailure means the primary API rejected the key (401).
	ErrAuthFailure = errors.New("download: api authentication failed")
	// ErrCorrupt means a fetched file was below MinValidSize.
	ErrCorrupt = errors.New("download: file below minimum size")

	ErrAllTiersExhausted = fmt.Errorf("%w: all tiers exhausted", ErrUnavailable)
)

// TierError carries the tier a failure happened in.
type TierError struct {
	Tier Tier
	Err  error
}

func (e *TierError) Error() string { return e.Tier.String() + ": " + e.Err.Error() }
func (e *TierError) Unwrap() error { return e.Err }

// fatal reports whether err must stop the resolution instead of falling
// through to the next tier. Per-call timeouts are tier-local; only the
// resolution's own context ending is fatal.
func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAuthFailure) || ctx.Err() != nil
}

// collapse folds every failure other than a rate limit or an auth
// rejection into ErrUnavailable. The cause stays in the chain.
func collapse(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAuthFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// job is the per-resolution state. It only moves forward through tiers.
type job struct {
	id       string
	tier     Tier
	attempt  int
	deadline time.Time
}

func (j *job) advance(t Tier) {
	if t > j.tier {
		j.tier = t
		j.attempt = 0
	}
}
