package transport

import "context"

type UpdateKind int

const (
	UpdateMessage UpdateKind = iota
	UpdatePhoto
	UpdateCallback
)

// Message is an inbound text or photo message from an operator chat.
// For photos, ImageRef carries the platform file reference and Caption the
// attached caption (empty if absent).
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	ImageRef     string
	Caption      string
}

// Callback is an inline-keyboard button press.
type Callback struct {
	ID        string
	ChatID    int64
	FromID    int64
	MessageID int
	Data      string
}

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type ChatTarget struct {
	ChatID int64
}

// SendOptions carries reply rendering hints. ReplyMarkup is an opaque
// platform markup value (e.g. *tele.ReplyMarkup) so callers outside the
// adapter don't import the platform SDK.
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyMarkup    any
}

// Adapter is the inbound/outbound transport for operator conversations.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string) error
}
