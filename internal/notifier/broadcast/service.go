package broadcast

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tunebot/internal/telemetry"
	"tunebot/internal/transport"
	"tunebot/pkg/logx"
)

func New(cfg Config, sender transport.Sender, counters *telemetry.Counters, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if counters == nil {
		counters = telemetry.New()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:      cfg,
		sender:   sender,
		counters: counters,
		log:      log.With(logx.String("comp", "broadcast")),
		limiter:  newLimiter(cfg.RatePerSec),
		status:   map[string]*JobStatus{},
		sleep:    sleepCtx,
	}
}

func newLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), rps)
}

// Apply swaps the tuning. A running job keeps the config it started with.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.limiter = newLimiter(cfg.RatePerSec)
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// acquire claims the job slot or fails with ErrBusy.
func (d *Dispatcher) acquire(ctx context.Context, j Job) (context.Context, *activeJob, *JobStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		d.log.Warn("broadcast rejected; job already running", logx.String("active", d.active.id), logx.String("name", j.Name))
		return nil, nil, nil, ErrBusy
	}
	now := time.Now()
	id := "bc-" + uuid.NewString()[:8]
	runCtx, cancel := context.WithCancel(ctx)
	a := &activeJob{id: id, cancel: cancel, done: make(chan struct{})}
	d.active = a

	st := &JobStatus{ID: id, Name: j.Name, Kind: j.Payload.Kind, Total: j.Len(), CreatedAt: now}
	d.statusMu.Lock()
	d.status[id] = st
	d.statusMu.Unlock()
	return runCtx, a, st, nil
}

func (d *Dispatcher) release(a *activeJob) {
	a.cancel()
	d.mu.Lock()
	if d.active == a {
		d.active = nil
	}
	d.mu.Unlock()
	close(a.done)
	d.pruneStatus(time.Now())
}

// Dispatch runs j to completion on the calling goroutine. It fails with
// ErrBusy, without sending anything, if another job holds the slot.
func (d *Dispatcher) Dispatch(ctx context.Context, j Job) (Report, error) {
	runCtx, a, st, err := d.acquire(ctx, j)
	if err != nil {
		return Report{}, err
	}
	defer d.release(a)
	return d.run(runCtx, a.id, st, j), nil
}

// Start claims the slot synchronously and runs j in the background.
// onDone, if set, receives the report once every recipient is settled.
func (d *Dispatcher) Start(ctx context.Context, j Job, onDone func(Report)) (string, error) {
	runCtx, a, st, err := d.acquire(ctx, j)
	if err != nil {
		return "", err
	}
	go func() {
		var rep Report
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("panic in broadcast job", logx.String("job", a.id), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
			d.release(a)
			if onDone != nil {
				onDone(rep)
			}
		}()
		rep = d.run(runCtx, a.id, st, j)
	}()
	return a.id, nil
}

// Cancel stops the running job. Recipients not yet attempted end Skipped.
func (d *Dispatcher) Cancel() bool {
	d.mu.Lock()
	a := d.active
	d.mu.Unlock()
	if a == nil {
		return false
	}
	a.cancel()
	return true
}

// Wait blocks until the running job, if any, has released the slot.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	a := d.active
	d.mu.Unlock()
	if a == nil {
		return nil
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
