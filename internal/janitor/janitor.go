// Package janitor periodically prunes the download cache: finished media
// older than MaxAge and abandoned .part files older than one Interval.
package janitor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"tunebot/pkg/logx"
)

type Config struct {
	Dir      string
	Interval time.Duration
	MaxAge   time.Duration
}

// Report summarizes one sweep.
type Report struct {
	Removed int
	Parts   int
	Bytes   int64
	Errors  int
}

type Service struct {
	log logx.Logger

	mu  sync.Mutex
	cfg Config
	c   *cron.Cron
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log.With(logx.String("comp", "janitor"))}
}

// Start schedules the sweep every Interval. Calling Start again restarts
// the schedule with the current config.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
	if s.cfg.Interval <= 0 || strings.TrimSpace(s.cfg.Dir) == "" {
		s.log.Info("janitor disabled")
		return
	}
	s.c = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s.c.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(func() { s.Sweep(time.Now()) }))
	s.c.Start()
	s.log.Info("janitor started", logx.String("dir", s.cfg.Dir), logx.Duration("interval", s.cfg.Interval), logx.Duration("max_age", s.cfg.MaxAge))
}

// Apply swaps the config and reschedules. A zero Interval stops the sweep.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.Start(ctx)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.c == nil {
		return
	}
	// Wait for a sweep in progress, but not past ctx.
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
	s.c = nil
}

// Sweep removes expired files under Dir as of now.
func (s *Service) Sweep(now time.Time) Report {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	var rep Report
	err := filepath.WalkDir(cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			rep.Errors++
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			rep.Errors++
			return nil
		}
		age := now.Sub(info.ModTime())
		part := strings.HasSuffix(path, ".part")
		switch {
		case part && age > cfg.Interval:
		case !part && cfg.MaxAge > 0 && age > cfg.MaxAge:
		default:
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			rep.Errors++
			s.log.Warn("cache file removal failed", logx.String("path", path), logx.Err(err))
			return nil
		}
		rep.Removed++
		rep.Bytes += info.Size()
		if part {
			rep.Parts++
		}
		return nil
	})
	if err != nil {
		rep.Errors++
		s.log.Warn("cache sweep failed", logx.String("dir", cfg.Dir), logx.Err(err))
	}

	if rep.Removed > 0 || rep.Errors > 0 {
		s.log.Info("cache sweep done",
			logx.Int("removed", rep.Removed),
			logx.Int("parts", rep.Parts),
			logx.String("freed", humanize.IBytes(uint64(rep.Bytes))),
			logx.Int("errors", rep.Errors))
	} else {
		s.log.Debug("cache sweep found nothing")
	}
	return rep
}
