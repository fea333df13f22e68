// Package agent supervises the running agent sessions.
//
// # Overview
//
// The Manager keeps at most one session per identity. Registering an
// identity that is already running stops the old session, waits for it to
// finish tearing down, stores the new credential, and only then starts the
// replacement, so two sessions never answer the same turn.
//
// Key operations:
//
//   - Register(ctx, identity, credential): start or replace a session
//   - Unregister(ctx, identity): stop a session and forget its credential
//   - Resume(ctx): start a session for every stored credential
//   - List(): describe running sessions
//   - Shutdown(ctx): stop everything without touching the store
//
// # Session exits
//
// Sessions stopped by the Manager exit quietly. A session that ends on its
// own is reported to the notification sink; if the cause was a rejected
// credential, the credential is also deleted from the store so it is not
// retried on the next start. The Manager is the only component that writes
// to the credential store.
package agent
