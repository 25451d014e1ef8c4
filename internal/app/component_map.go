package app

import (
	"time"

	"tunebot/internal/download"
	"tunebot/internal/janitor"
	"tunebot/internal/notifier/broadcast"
	"tunebot/pkg/logx"
)

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChatID != 0,
			ChatID:     cfg.Telegram.LogChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapDownloadConfig(cfg *Config) (download.Config, error) {
	d := cfg.Download
	var (
		out download.Config
		err error
	)
	out.Dir = d.Dir
	out.APIURL = d.APIURL
	out.APIKey = d.APIKey
	out.Mirrors = d.Mirrors
	out.PollMax = d.PollMax
	out.VideoViaAPI = d.VideoViaAPI
	if out.PollInterval, err = parseDurationField("download.poll_interval", d.PollInterval); err != nil {
		return out, err
	}
	if out.APITimeout, err = parseDurationField("download.api_timeout", d.APITimeout); err != nil {
		return out, err
	}
	if out.MirrorTimeout, err = parseDurationField("download.mirror_timeout", d.MirrorTimeout); err != nil {
		return out, err
	}
	if out.FetchTimeout, err = parseDurationField("download.fetch_timeout", d.FetchTimeout); err != nil {
		return out, err
	}
	if out.ResolveTimeout, err = parseDurationField("download.resolve_timeout", d.ResolveTimeout); err != nil {
		return out, err
	}
	if out.LookupTimeout, err = parseDurationField("download.lookup_timeout", d.LookupTimeout); err != nil {
		return out, err
	}
	return out, nil
}

func mapBroadcastConfig(cfg *Config) (broadcast.Config, error) {
	b := cfg.Broadcast
	out := broadcast.DefaultConfig()
	if b.BatchSize > 0 {
		out.BatchSize = b.BatchSize
	}
	if b.Concurrency > 0 {
		out.Concurrency = b.Concurrency
	}
	if b.RetryBudget > 0 {
		out.RetryBudget = b.RetryBudget
	}
	out.RatePerSec = b.RatePerSec
	out.StatusMax = b.StatusMax

	durs := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"broadcast.batch_pause", b.BatchPause, &out.BatchPause},
		{"broadcast.retry_ceiling", b.RetryCeiling, &out.RetryCeiling},
		{"broadcast.retry_margin", b.RetryMargin, &out.RetryMargin},
		{"broadcast.transient_delay", b.TransientDelay, &out.TransientDelay},
		{"broadcast.status_ttl", b.StatusTTL, &out.StatusTTL},
	}
	for _, d := range durs {
		v, err := parseDurationOrDefault(d.path, d.raw, *d.dst)
		if err != nil {
			return broadcast.Config{}, err
		}
		*d.dst = v
	}
	return out, nil
}

func mapHandlerConfig(cfg *Config) (HandlerConfig, error) {
	// Omitted means ten minutes; an explicit "0s" keeps files.
	keep := 10 * time.Minute
	if cfg.Download.KeepFor != "" {
		var err error
		if keep, err = parseDurationField("download.keep_for", cfg.Download.KeepFor); err != nil {
			return HandlerConfig{}, err
		}
	}
	return HandlerConfig{
		Owners:      cfg.Telegram.OwnerUserIDs,
		SaveChannel: cfg.Telegram.SaveChannel,
		KeepFor:     keep,
		LogChatID:   cfg.Telegram.LogChatID,
	}, nil
}

func mapJanitorConfig(cfg *Config, dir string) (janitor.Config, error) {
	interval, err := parseDurationOrDefault("janitor.interval", cfg.Janitor.Interval, 30*time.Minute)
	if err != nil {
		return janitor.Config{}, err
	}
	maxAge, err := parseDurationOrDefault("janitor.max_age", cfg.Janitor.MaxAge, 24*time.Hour)
	if err != nil {
		return janitor.Config{}, err
	}
	return janitor.Config{Dir: dir, Interval: interval, MaxAge: maxAge}, nil
}
