package broadcast

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"tunebot/internal/transport"
	"tunebot/pkg/logx"
)

// run delivers every recipient of j. Batches go strictly one after the
// other; inside a batch at most cfg.Concurrency deliveries are in flight.
func (d *Dispatcher) run(ctx context.Context, id string, st *JobStatus, j Job) Report {
	start := time.Now()
	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	d.mu.Unlock()

	recips := j.recipients
	outcomes := make([]Outcome, len(recips))
	for i, r := range recips {
		outcomes[i] = Outcome{RecipientID: r.ID, Class: r.Class, Status: StatusSkipped}
	}
	batches := (len(recips) + cfg.BatchSize - 1) / cfg.BatchSize

	d.statusMu.Lock()
	st.StartedAt = start
	st.Running = true
	st.Batches = batches
	d.statusMu.Unlock()

	log := d.log.With(logx.String("job", id), logx.String("name", j.Name))
	log.Info("broadcast job started",
		logx.String("kind", j.Payload.Kind.String()),
		logx.Int("total", len(recips)),
		logx.Int("batches", batches),
		logx.Int("concurrency", cfg.Concurrency))

	for b := 0; b < batches; b++ {
		if b > 0 {
			// Paced regardless of how the previous batch went.
			if err := d.sleep(ctx, cfg.BatchPause); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		d.statusMu.Lock()
		st.Batch = b + 1
		d.statusMu.Unlock()

		lo := b * cfg.BatchSize
		hi := min(lo+cfg.BatchSize, len(recips))
		d.runBatch(ctx, cfg, lim, j.Payload, recips[lo:hi], outcomes[lo:hi], st, log)
		log.Debug("broadcast batch done", logx.Int("batch", b+1), logx.Int("size", hi-lo))
	}

	rep := Report{JobID: id, Name: j.Name, Outcomes: outcomes, Elapsed: time.Since(start)}
	for _, o := range outcomes {
		switch {
		case o.Status == StatusSent && o.Class == ClassChat:
			rep.SentChats++
		case o.Status == StatusSent:
			rep.SentUsers++
		case o.Status == StatusFailed && o.Class == ClassChat:
			rep.FailedChats++
		case o.Status == StatusFailed:
			rep.FailedUsers++
		default:
			rep.Skipped++
		}
		if o.Pinned {
			rep.Pinned++
		}
	}

	d.statusMu.Lock()
	st.DoneAt = time.Now()
	st.Running = false
	st.Skipped = rep.Skipped
	d.statusMu.Unlock()

	fields := []logx.Field{
		logx.Int("total", rep.Total()),
		logx.Int("sent_users", rep.SentUsers),
		logx.Int("sent_chats", rep.SentChats),
		logx.Int("failed", rep.Failed()),
		logx.Int("skipped", rep.Skipped),
		logx.Int("pinned", rep.Pinned),
		logx.Duration("dur", rep.Elapsed),
	}
	if rep.Failed() > 0 || rep.Skipped > 0 {
		log.Warn("broadcast job finished with failures", fields...)
	} else {
		log.Info("broadcast job finished", fields...)
	}
	return rep
}

func (d *Dispatcher) runBatch(ctx context.Context, cfg Config, lim *rate.Limiter, p Payload, recips []Recipient, out []Outcome, st *JobStatus, log logx.Logger) {
	sem := semaphore.NewWeighted(int64(cfg.Concurrency))
	var wg sync.WaitGroup
	for i := range recips {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled: the rest of the batch stays Skipped.
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					out[i].Status = StatusFailed
					out[i].LastErr = fmt.Sprint(r)
					log.Error("panic in broadcast delivery", logx.Int64("chat_id", recips[i].ID), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
				d.settle(out[i], st)
			}()
			out[i] = d.deliver(ctx, cfg, lim, p, recips[i], log)
		}(i)
	}
	wg.Wait()
}

// settle updates counters and the live status once per recipient.
func (d *Dispatcher) settle(o Outcome, st *JobStatus) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	switch o.Status {
	case StatusSent:
		st.Sent++
		if o.Class == ClassChat {
			d.counters.BroadcastSentChats.Add(1)
		} else {
			d.counters.BroadcastSentUsers.Add(1)
		}
	case StatusFailed:
		st.Failed++
		d.counters.BroadcastFailed.Add(1)
	}
}

// deliver attempts one recipient until it reaches a terminal status. A
// rate limit within the ceiling is slept off and retried while the budget
// lasts; permanent errors are not retried; other errors fail after
// TransientDelay.
func (d *Dispatcher) deliver(ctx context.Context, cfg Config, lim *rate.Limiter, p Payload, r Recipient, log logx.Logger) Outcome {
	out := Outcome{RecipientID: r.ID, Class: r.Class, Status: StatusSkipped}
	budget := cfg.RetryBudget
	for {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return d.abandon(out, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return d.abandon(out, err)
		}

		out.Attempts++
		ref, err := d.send(ctx, p, r.ID)
		if err == nil {
			out.Status = StatusSent
			out.LastErr = ""
			out.Pinned = d.pin(ctx, p.Pin, r, ref, log)
			return out
		}
		out.Status = StatusFailed
		out.LastErr = err.Error()

		if wait, ok := transport.RetryAfter(err); ok {
			if wait > cfg.RetryCeiling {
				log.Warn("rate limit above ceiling; giving up recipient", logx.Int64("chat_id", r.ID), logx.Duration("retry_after", wait), logx.Duration("ceiling", cfg.RetryCeiling))
				return out
			}
			if budget <= 0 {
				log.Warn("retry budget exhausted", logx.Int64("chat_id", r.ID), logx.Int("attempts", out.Attempts))
				return out
			}
			budget--
			delay := wait + cfg.RetryMargin
			log.Debug("rate limited; retry scheduled", logx.Int64("chat_id", r.ID), logx.Int("attempt", out.Attempts+1), logx.Duration("delay", delay))
			if err := d.sleep(ctx, delay); err != nil {
				return out
			}
			continue
		}

		if transport.IsPermanent(err) {
			log.Debug("permanent delivery error", logx.Int64("chat_id", r.ID), logx.Err(err))
			return out
		}
		log.Debug("transient delivery error", logx.Int64("chat_id", r.ID), logx.Err(err))
		_ = d.sleep(ctx, cfg.TransientDelay)
		return out
	}
}

// abandon ends a recipient whose job was cancelled. Unattempted
// recipients are Skipped; attempted ones keep their Failed status.
func (d *Dispatcher) abandon(out Outcome, err error) Outcome {
	if out.Attempts == 0 {
		out.Status = StatusSkipped
		if !errors.Is(err, context.Canceled) {
			out.LastErr = err.Error()
		}
	}
	return out
}

func (d *Dispatcher) send(ctx context.Context, p Payload, chatID int64) (transport.MessageRef, error) {
	switch p.Kind {
	case PayloadText:
		return d.sender.SendText(ctx, chatID, p.Text, p.Opt)
	case PayloadForward:
		return d.sender.Forward(ctx, chatID, p.From)
	case PayloadCopy:
		return d.sender.Copy(ctx, chatID, p.From)
	default:
		return transport.MessageRef{}, fmt.Errorf("broadcast: unknown payload kind %d", int(p.Kind))
	}
}

// pin pins a delivered message in a chat recipient. Failure leaves the
// recipient Sent.
func (d *Dispatcher) pin(ctx context.Context, mode PinMode, r Recipient, ref transport.MessageRef, log logx.Logger) bool {
	if mode == PinNone || r.Class != ClassChat || ref.IsZero() {
		return false
	}
	if err := d.sender.Pin(ctx, ref, mode == PinLoud); err != nil {
		log.Debug("pin failed", logx.Int64("chat_id", r.ID), logx.Err(err))
		return false
	}
	return true
}
