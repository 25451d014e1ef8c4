package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tunebot/internal/telemetry"
	"tunebot/internal/transport"
	"tunebot/pkg/logx"
)

var (
	// ErrBusy is returned when a broadcast is already running.
	ErrBusy = errors.New("broadcast: another job is running")
	// ErrEmptyJob is returned by NewJob when no recipient is left.
	ErrEmptyJob = errors.New("broadcast: no recipients")
)

type Config struct {
	BatchSize   int
	Concurrency int
	// BatchPause is slept between batches, whatever the batch outcome.
	BatchPause time.Duration

	// RetryBudget is how many times one recipient is retried after a rate limit.
	RetryBudget int
	// RetryCeiling: a rate limit asking for longer marks the recipient failed.
	RetryCeiling   time.Duration
	RetryMargin    time.Duration
	TransientDelay time.Duration

	// RatePerSec caps sends across the whole job; <= 0 disables the cap.
	RatePerSec int

	StatusTTL time.Duration
	StatusMax int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	}
	if c.RetryBudget < 0 {
		c.RetryBudget = 0
	}
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = 120 * time.Second
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = defaultStatusTTL
	}
	if c.StatusMax <= 0 {
		c.StatusMax = defaultStatusMax
	}
	return c
}

// DefaultConfig mirrors the values the bot ships with.
func DefaultConfig() Config {
	return Config{
		BatchSize:      100,
		Concurrency:    10,
		BatchPause:     2500 * time.Millisecond,
		RetryBudget:    3,
		RetryCeiling:   120 * time.Second,
		RetryMargin:    time.Second,
		TransientDelay: 1500 * time.Millisecond,
	}
}

type PayloadKind int

const (
	PayloadText PayloadKind = iota
	PayloadForward
	PayloadCopy
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadText:
		return "text"
	case PayloadForward:
		return "forward"
	case PayloadCopy:
		return "copy"
	default:
		return fmt.Sprintf("payload(%d)", int(k))
	}
}

// PinMode says whether a delivered message is pinned in group chats.
type PinMode int

const (
	PinNone PinMode = iota
	// PinQuiet pins without notifying members.
	PinQuiet
	PinLoud
)

// Payload is what every recipient receives: a text, or an existing
// message that is forwarded or copied.
type Payload struct {
	Kind PayloadKind
	Text string
	Opt  *transport.SendOptions
	From transport.MessageRef
	// Pin applies to chat recipients only.
	Pin PinMode
}

type Class int

const (
	ClassUser Class = iota
	ClassChat
)

func (c Class) String() string {
	if c == ClassChat {
		return "chat"
	}
	return "user"
}

type Recipient struct {
	ID    int64
	Class Class
}

// Job is one broadcast. Its recipient set is fixed by NewJob.
type Job struct {
	Name    string
	Payload Payload

	recipients []Recipient
}

// NewJob validates p and dedupes recipients by ID, keeping the first
// occurrence and the input order.
func NewJob(name string, p Payload, recipients []Recipient) (Job, error) {
	switch p.Kind {
	case PayloadText:
		if strings.TrimSpace(p.Text) == "" {
			return Job{}, errors.New("broadcast: empty text")
		}
	case PayloadForward, PayloadCopy:
		if p.From.IsZero() {
			return Job{}, errors.New("broadcast: missing source message")
		}
	default:
		return Job{}, fmt.Errorf("broadcast: unknown payload kind %d", int(p.Kind))
	}

	seen := make(map[int64]struct{}, len(recipients))
	out := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		if r.ID == 0 {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return Job{}, ErrEmptyJob
	}
	return Job{Name: name, Payload: p, recipients: out}, nil
}

// Recipients returns a copy of the job's recipients.
func (j Job) Recipients() []Recipient { return append([]Recipient(nil), j.recipients...) }

func (j Job) Len() int { return len(j.recipients) }

type Status int

const (
	StatusPending Status = iota
	StatusSent
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the terminal state of one recipient.
type Outcome struct {
	RecipientID int64
	Class       Class
	Status      Status
	Attempts    int
	LastErr     string
	// Pinned is set when the delivered message was also pinned.
	Pinned bool
}

// Report summarizes a finished job. Outcomes has one entry per recipient,
// in job order.
type Report struct {
	JobID    string
	Name     string
	Outcomes []Outcome

	SentUsers   int
	SentChats   int
	FailedUsers int
	FailedChats int
	Skipped     int
	Pinned      int

	Elapsed time.Duration
}

func (r Report) Sent() int   { return r.SentUsers + r.SentChats }
func (r Report) Failed() int { return r.FailedUsers + r.FailedChats }
func (r Report) Total() int  { return len(r.Outcomes) }

// JobStatus is the live view of a job, kept for a while after it ends.
type JobStatus struct {
	ID      string
	Name    string
	Kind    PayloadKind
	Total   int
	Sent    int
	Failed  int
	Skipped int

	Batch   int
	Batches int

	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
}

// Dispatcher delivers jobs one at a time.
type Dispatcher struct {
	mu sync.Mutex

	cfg      Config
	sender   transport.Sender
	counters *telemetry.Counters
	log      logx.Logger
	limiter  *rate.Limiter

	// active is the single job slot; nil when idle.
	active *activeJob

	statusMu sync.RWMutex
	status   map[string]*JobStatus

	sleep func(ctx context.Context, d time.Duration) error
}

type activeJob struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}
