// Package messenger defines the narrow surface the bot needs from a chat
// network: inbound messages and a client that can reply or send.
package messenger

import "context"

// Kind classifies the payload of an inbound message.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindOther
)

// Message is an inbound chat message.
type Message interface {
	ID() string
	Sender() string
	Chat() string
	// Text is the message body, or the caption for media messages.
	Text() string
	Kind() Kind
	// Quoted returns the message this one replies to, or nil.
	Quoted() Message
	FromSelf() bool
	// Download fetches the media payload of an image message.
	Download(ctx context.Context) ([]byte, error)
}

// Content is an outbound payload. Image takes precedence over Text, in
// which case Caption is shown under the image.
type Content struct {
	Text    string
	Image   []byte
	Caption string
	// Quote is shown as the quoted message of an image reply.
	Quote Message
}

// Client delivers outbound content.
type Client interface {
	// Reply answers to, quoting it.
	Reply(ctx context.Context, to Message, content Content) error
	// Send posts to a chat without quoting.
	Send(ctx context.Context, chat string, content Content) error
}
