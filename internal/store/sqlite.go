// ABOUTME: SQLite implementation of CredentialStore using modernc.org/sqlite.
// ABOUTME: Tokens are sealed before they are written and opened after they are read.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps compare as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements CredentialStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	sealer *Sealer
	logger *slog.Logger
	now    func() time.Time
}

var _ CredentialStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
// A nil or disabled sealer stores tokens unsealed.
func NewSQLiteStore(path string, sealer *Sealer) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		sealer: sealer,
		logger: logger,
		now:    time.Now,
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if !sealer.Enabled() {
		logger.Warn("no encryption key configured, credentials are stored unsealed")
	}
	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			identity      TEXT PRIMARY KEY,
			token         BLOB NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			registrations INTEGER NOT NULL DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_credentials_created ON credentials(created_at);
		CREATE INDEX IF NOT EXISTS idx_credentials_updated ON credentials(updated_at);
	`)
	return err
}

// SaveCredential upserts the token; re-registration bumps updated_at and the
// registration count but keeps created_at.
func (s *SQLiteStore) SaveCredential(ctx context.Context, identity, token string) (bool, error) {
	sealed, err := s.sealer.Seal([]byte(token))
	if err != nil {
		return false, fmt.Errorf("sealing credential: %w", err)
	}
	now := s.now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials WHERE identity = ?`, identity).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("checking credential: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (identity, token, created_at, updated_at, registrations)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(identity) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at,
			registrations = credentials.registrations + 1
	`, identity, sealed, now, now)
	if err != nil {
		return false, fmt.Errorf("saving credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing credential: %w", err)
	}
	return existing > 0, nil
}

// GetCredential returns the token for identity or ErrNotFound.
func (s *SQLiteStore) GetCredential(ctx context.Context, identity string) (string, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT token FROM credentials WHERE identity = ?`, identity).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying credential: %w", err)
	}

	token, err := s.sealer.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("opening credential for %s: %w", identity, err)
	}
	return string(token), nil
}

// DeleteCredential removes identity's row or returns ErrNotFound.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, identity string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIdentities returns every stored identity in ascending order.
func (s *SQLiteStore) ListIdentities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identity FROM credentials ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CredentialStats counts totals and activity at or after since.
func (s *SQLiteStore) CredentialStats(ctx context.Context, since time.Time) (Stats, error) {
	cutoff := since.UTC().Format(timeLayout)

	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN registrations > 1 AND updated_at >= ? THEN 1 ELSE 0 END), 0)
		FROM credentials
	`, cutoff, cutoff).Scan(&st.Total, &st.NewSince, &st.ReconnectedSince)
	if err != nil {
		return Stats{}, fmt.Errorf("querying stats: %w", err)
	}
	return st, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
