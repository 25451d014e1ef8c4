package config

import (
	"reflect"
	"slices"
	"strings"

	"tunebot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// attrs for logging. Tokens and API keys are never included; only whether
// they changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 24)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!slices.Equal(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		ot.LogChatID != nt.LogChatID ||
		ot.SaveChannel != nt.SaveChannel {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.save_channel_set", nt.SaveChannel != 0),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.telegram_enabled", l.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	od, nd := oldCfg.Download, newCfg.Download
	keyChanged := od.APIKey != nd.APIKey
	if keyChanged || !downloadEqual(od, nd) {
		changed = append(changed, "download")
		attrs = append(attrs,
			logx.String("download.api_url", nd.APIURL),
			logx.Bool("download.api_key_changed", keyChanged),
			logx.Int("download.mirrors", len(newCfg.Download.Mirrors)),
			logx.Int("download.poll_max", nd.PollMax),
			logx.Bool("download.video_via_api", nd.VideoViaAPI),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		b := newCfg.Broadcast
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.batch_size", b.BatchSize),
			logx.Int("broadcast.concurrency", b.Concurrency),
			logx.String("broadcast.batch_pause", b.BatchPause),
			logx.Int("broadcast.retry_budget", b.RetryBudget),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
			logx.Bool("metrics.pprof", newCfg.Metrics.Pprof),
		)
	}

	if oldCfg.Janitor != newCfg.Janitor {
		changed = append(changed, "janitor")
		attrs = append(attrs,
			logx.Bool("janitor.enabled", newCfg.Janitor.Enabled),
			logx.String("janitor.interval", newCfg.Janitor.Interval),
			logx.String("janitor.max_age", newCfg.Janitor.MaxAge),
		)
	}

	return changed, attrs
}

// downloadEqual compares everything but the API key. A nil mirror list
// (built-in defaults) differs from an empty one (mirrors disabled).
func downloadEqual(a, b DownloadConfig) bool {
	if (a.Mirrors == nil) != (b.Mirrors == nil) || !slices.Equal(a.Mirrors, b.Mirrors) {
		return false
	}
	a.APIKey, b.APIKey = "", ""
	a.Mirrors, b.Mirrors = nil, nil
	return reflect.DeepEqual(a, b)
}

// RestartRequired reports sections whose change only takes effect after
// a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "storage", "metrics", "download":
			out = append(out, s)
		}
	}
	return out
}
