// ABOUTME: Package matrix binds agent sessions to a Matrix homeserver via mautrix.
// ABOUTME: It implements player.Dialer and player.Conn on top of the client-server sync API.

// Package matrix is the platform transport for agent sessions. A Dialer
// turns an access token into an authenticated Conn, retrying transient
// failures and classifying rejected tokens as player.ErrCredentialRejected.
// A Conn streams new room messages from /sync and sends plain-text replies.
package matrix
