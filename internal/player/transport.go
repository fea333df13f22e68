// ABOUTME: Transport contract consumed by agent sessions.
// ABOUTME: A Dialer authenticates a credential; a Conn streams chat messages and sends replies.

package player

import (
	"context"
	"errors"

	"github.com/2389/wordchain-gateway/internal/game"
)

var (
	// ErrCredentialRejected means the platform refused the credential.
	// It is terminal and must not be retried.
	ErrCredentialRejected = errors.New("credential rejected")

	// ErrConnectionLost means the platform connection failed for a reason
	// other than authentication.
	ErrConnectionLost = errors.New("connection lost")

	// ErrSendFailed marks a single failed send; the turn is missed and the
	// session continues.
	ErrSendFailed = errors.New("send failed")

	// ErrNoDictionary means no word list was loaded, so the agent cannot play.
	ErrNoDictionary = errors.New("dictionary unavailable")
)

// Message is one inbound chat message.
type Message struct {
	ChatID  string
	Sender  string
	Text    string
	EventID string
}

// Conn is an authenticated platform connection.
type Conn interface {
	// Self describes the authenticated account.
	Self(ctx context.Context) (game.Self, error)

	// Listen delivers new messages to deliver, one at a time and in arrival
	// order, until ctx is canceled (returns nil or ctx.Err()) or the
	// connection fails (returns the cause).
	Listen(ctx context.Context, deliver func(Message)) error

	// Send posts text to a chat.
	Send(ctx context.Context, chatID, text string) error

	// Close releases the connection. Safe to call after Listen returned.
	Close() error
}

// Dialer opens connections. Dial wraps ErrCredentialRejected when the
// credential itself is refused.
type Dialer interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}
