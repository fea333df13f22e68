// Package player runs one word-game agent on one platform account.
//
// A Session owns a single connection, a private game.ConstraintState, and a
// words.Selector. It reads inbound messages strictly in arrival order, runs
// them through the game parser, and answers turn prompts after a randomized
// delay. Lifecycle:
//
//	Connecting -> Listening -> (TurnDetected -> Responding -> Listening)* -> Disconnected
//
// Per-message failures (a failed send, no eligible word, an unreadable
// message) are logged and never end the session. Run returns nil when its
// context is canceled, or an error wrapping ErrCredentialRejected or
// ErrConnectionLost when the connection cannot continue.
//
// The transport is abstract: a Dialer authenticates a credential and
// returns a Conn that streams messages and sends text. internal/matrix
// provides the production implementation.
package player
