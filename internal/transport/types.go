package transport

import (
	"context"
	"errors"
)

// ErrNotFound is returned by adapter operations when the referenced chat or
// message no longer exists (or the bot lost access to it). Callers treat it
// as authoritative: the external artifact is gone, not temporarily failing.
var ErrNotFound = errors.New("transport: not found")

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the platform boundary. All mutating calls block until the
// platform acknowledged the change (or failed); they respect ctx.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error

	// Chat title operations used for channel label sync.
	SetChatTitle(ctx context.Context, chatID int64, title string) error
	ChatTitle(ctx context.Context, chatID int64) (string, error)

	// ChatExists reports whether the bot can still see the chat.
	ChatExists(ctx context.Context, chatID int64) (bool, error)
}
