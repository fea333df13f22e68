// Package store persists agent credentials.
//
// # Model
//
// One row per identity: the sealed access token, when the identity was
// first registered, when it was last (re-)registered, and how many times.
// Saving an identity that already exists replaces its token.
//
// # Sealing
//
// Tokens are encrypted at rest with NaCl secretbox under a key derived
// (HKDF-SHA256) from the configured secret. Each value carries a one-byte
// header so plain values written without a secret stay readable, while a
// sealed value read without the key fails with ErrSealed.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//
// # Testing
//
// Use NewMockStore() for unit tests, or NewSQLiteStore on a t.TempDir()
// path for the real thing.
package store
