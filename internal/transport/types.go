// Package transport defines the delivery capability supplied by the host
// chat platform. The core never interprets session tokens; it only hands
// them back to the Sender that issued them.
package transport

import "context"

// Sender delivers one text message to the destination described by an
// opaque session token captured at subscribe time.
//
// Implementations must be safe for concurrent use; the notifier calls
// Send from multiple goroutines.
type Sender interface {
	Send(ctx context.Context, session string, text string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, session string, text string) error

func (f SenderFunc) Send(ctx context.Context, session string, text string) error {
	return f(ctx, session, text)
}
