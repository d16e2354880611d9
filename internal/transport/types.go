// Package transport defines the platform-neutral messaging surface the
// bot core talks to. The Telegram implementation lives in the telegram
// subpackage; the rest of the code never imports telebot directly.
package transport

import "context"

// Update is one inbound event from the messaging platform.
type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// ChatTarget identifies where an outbound message goes.
type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the one-way push surface. Delivery is confirmed only by the
// immediate accept/reject of the call itself.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Adapter is a full messaging transport: it pushes inbound updates onto
// out and can send messages.
type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
