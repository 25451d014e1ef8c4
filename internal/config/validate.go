package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks values that the strict decoder cannot: duration
// strings, driver names and numeric ranges.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "bolt", "bbolt", "sqlite", "sqlite3", "none":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	d := cfg.Download
	dur("download.poll_interval", d.PollInterval)
	dur("download.api_timeout", d.APITimeout)
	dur("download.mirror_timeout", d.MirrorTimeout)
	dur("download.fetch_timeout", d.FetchTimeout)
	dur("download.resolve_timeout", d.ResolveTimeout)
	dur("download.lookup_timeout", d.LookupTimeout)
	dur("download.keep_for", d.KeepFor)
	if d.PollMax < 0 {
		errs = append(errs, errors.New("download.poll_max: must be >= 0"))
	}
	for i, m := range d.Mirrors {
		if !strings.HasPrefix(m, "http://") && !strings.HasPrefix(m, "https://") {
			errs = append(errs, fmt.Errorf("download.mirrors[%d]: expected http(s) URL, got %q", i, m))
		}
	}

	b := cfg.Broadcast
	dur("broadcast.batch_pause", b.BatchPause)
	dur("broadcast.retry_ceiling", b.RetryCeiling)
	dur("broadcast.retry_margin", b.RetryMargin)
	dur("broadcast.transient_delay", b.TransientDelay)
	dur("broadcast.status_ttl", b.StatusTTL)
	if b.BatchSize < 0 || b.Concurrency < 0 || b.RetryBudget < 0 || b.RatePerSec < 0 || b.StatusMax < 0 {
		errs = append(errs, errors.New("broadcast: numeric settings must be >= 0"))
	}
	if b.Concurrency > 100 {
		errs = append(errs, fmt.Errorf("broadcast.concurrency: %d is above the flood-safe maximum of 100", b.Concurrency))
	}

	dur("janitor.interval", cfg.Janitor.Interval)
	dur("janitor.max_age", cfg.Janitor.MaxAge)

	return errors.Join(errs...)
}
