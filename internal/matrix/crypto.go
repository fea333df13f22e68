// ABOUTME: Optional end-to-end encryption for agent accounts using mautrix cryptohelper.
// ABOUTME: Each account gets its own SQLite crypto store, reset when the device ID changes.

package matrix

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/hkdf"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
)

// EncryptionConfig enables E2EE for game rooms that require it.
type EncryptionConfig struct {
	Enabled bool
	// DataDir holds one crypto database per account.
	DataDir string
}

type cryptoStore struct {
	helper *cryptohelper.CryptoHelper
}

func (c *cryptoStore) Close() error {
	return c.helper.Close()
}

func setupCrypto(ctx context.Context, client *mautrix.Client, cfg EncryptionConfig, logger *slog.Logger) (*cryptoStore, error) {
	dir := cfg.DataDir
	if dir == "" {
		dir = "crypto"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating crypto directory: %w", err)
	}

	userID := client.UserID.String()
	dbPath := filepath.Join(dir, fmt.Sprintf("agent-%s.db", slugify(userID)))

	stale, err := deviceChanged(dbPath, client.DeviceID.String())
	if err != nil {
		logger.Debug("could not read stored device ID", "error", err)
	}
	if stale {
		logger.Warn("device ID changed, resetting crypto store", "db", dbPath)
		for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("removing %s: %w", p, err)
			}
		}
	}

	key, err := pickleKey(userID)
	if err != nil {
		return nil, err
	}
	helper, err := cryptohelper.NewCryptoHelper(client, key, dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}
	client.Crypto = helper

	logger.Info("encryption enabled", "db", dbPath)
	return &cryptoStore{helper: helper}, nil
}

// pickleKey derives a stable per-account key for the crypto store.
func pickleKey(userID string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(userID), []byte("wordchain-gateway"), []byte("crypto-store"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving pickle key: %w", err)
	}
	return key, nil
}

// deviceChanged reports whether dbPath holds keys for a different device.
func deviceChanged(dbPath, deviceID string) (bool, error) {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var stored string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored != deviceID, nil
}

// slugify makes a user ID safe for file names: @ann:example.org -> ann_example.org
func slugify(userID string) string {
	out := make([]rune, 0, len(userID))
	for i, r := range userID {
		switch {
		case i == 0 && r == '@':
		case r == ':':
			out = append(out, '_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			out = append(out, r)
		}
	}
	return string(out)
}
