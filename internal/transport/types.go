package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdateMessage    UpdateKind = "message"
	UpdateCallback   UpdateKind = "callback"
	UpdateMembership UpdateKind = "membership"
)

// Update carries exactly one of Message, Callback or Membership,
// matching Kind.
type Update struct {
	Kind       UpdateKind
	Message    *Message
	Callback   *Callback
	Membership *Membership
}

// Callback is a press on an inline button the bot sent.
type Callback struct {
	ID     string
	FromID int64
	Data   string
	// Message is the message carrying the button; zero for inline mode.
	Message MessageRef
}

// Membership reports the bot being added to or leaving a group.
type Membership struct {
	ChatID       int64
	ChatTitle    string
	ChatUsername string
	Joined       bool

	ActorID   int64
	ActorName string
	// SelfLeave is set when the bot itself is the actor of a leave.
	SelfLeave bool
}

// Message is a normalized incoming chat message.
type Message struct {
	ID           int
	ChatID       int64
	ChatTitle    string
	FromID       int64
	FromUsername string
	Text         string
	IsPrivate    bool

	// ReplyTo is set when the message replies to another message.
	ReplyTo *MessageRef
}

// MessageRef points at an already delivered message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

// Media is an outgoing audio or video file. Either Path (local upload) or
// FileID (re-send of a file Telegram already stores) must be set.
type Media struct {
	Path      string
	FileID    string
	Title     string
	Performer string
	Duration  time.Duration
	Caption   string
}

// Delivered is the result of a media send.
type Delivered struct {
	Ref    MessageRef
	FileID string
}

// Button is an inline keyboard button. Data makes it a callback button,
// URL a link button.
type Button struct {
	Text string
	Data string
	URL  string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyTo        int
	// Buttons are rows of inline buttons.
	Buttons [][]Button
}

// Sender is the outgoing half of a messaging transport. Every method may
// fail with *RateLimitedError, ErrForbidden, ErrInvalidRecipient, or any
// other (transient) error.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, opt *SendOptions) (MessageRef, error)
	SendAudio(ctx context.Context, chatID int64, m Media, opt *SendOptions) (Delivered, error)
	SendVideo(ctx context.Context, chatID int64, m Media, opt *SendOptions) (Delivered, error)
	Forward(ctx context.Context, chatID int64, from MessageRef) (MessageRef, error)
	Copy(ctx context.Context, chatID int64, from MessageRef) (MessageRef, error)
	// Pin pins ref in its chat; notify alerts the members.
	Pin(ctx context.Context, ref MessageRef, notify bool) error
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	// AnswerCallback acknowledges a button press; text may be empty.
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
