// ABOUTME: Dialer authenticates Matrix access tokens with backoff on transient failures.
// ABOUTME: Rejected tokens fail fast as player.ErrCredentialRejected and are never retried.

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/2389/wordchain-gateway/internal/player"
)

const (
	defaultConnectBackoff = 500 * time.Millisecond
	maxConnectBackoff     = 10 * time.Second
)

// DialerConfig configures a Dialer.
type DialerConfig struct {
	Homeserver string

	// ConnectRetries is how many times a failed whoami is retried.
	ConnectRetries uint64
	// ConnectBackoff is the first retry interval; later ones grow exponentially.
	ConnectBackoff time.Duration

	Encryption EncryptionConfig
}

// Dialer opens one Matrix client per credential.
type Dialer struct {
	cfg    DialerConfig
	logger *slog.Logger
}

var _ player.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer for a homeserver.
func NewDialer(cfg DialerConfig, logger *slog.Logger) (*Dialer, error) {
	if cfg.Homeserver == "" {
		return nil, errors.New("homeserver is required")
	}
	if cfg.ConnectBackoff <= 0 {
		cfg.ConnectBackoff = defaultConnectBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{cfg: cfg, logger: logger.With("component", "matrix")}, nil
}

// Dial authenticates credential and returns a ready connection.
func (d *Dialer) Dial(ctx context.Context, credential string) (player.Conn, error) {
	client, err := mautrix.NewClient(d.cfg.Homeserver, "", credential)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	var who *mautrix.RespWhoami
	whoami := func() error {
		resp, err := client.Whoami(ctx)
		if err != nil {
			if isAuthError(err) {
				return backoff.Permanent(fmt.Errorf("%w: %w", player.ErrCredentialRejected, err))
			}
			return err
		}
		who = resp
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.ConnectBackoff
	b.MaxInterval = maxConnectBackoff
	b.MaxElapsedTime = 0

	retries := d.cfg.ConnectRetries
	err = backoff.RetryNotify(whoami, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx),
		func(err error, next time.Duration) {
			d.logger.Warn("whoami failed, retrying", "error", err, "retry_in", next)
		})
	if err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}

	client.UserID = who.UserID
	client.DeviceID = who.DeviceID
	logger := d.logger.With("user_id", who.UserID.String())

	self := selfFor(who.UserID, "")
	if name, err := client.GetOwnDisplayName(ctx); err != nil {
		logger.Debug("display name unavailable", "error", err)
	} else {
		self = selfFor(who.UserID, name.DisplayName)
	}

	conn := &Conn{client: client, self: self, logger: logger}

	if d.cfg.Encryption.Enabled {
		crypto, err := setupCrypto(ctx, client, d.cfg.Encryption, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up encryption: %w", err)
		}
		conn.crypto = crypto
	}

	logger.Info("matrix client authenticated", "device_id", who.DeviceID.String())
	return conn, nil
}

// isAuthError reports whether err means the homeserver refused the token.
func isAuthError(err error) bool {
	if errors.Is(err, mautrix.MUnknownToken) || errors.Is(err, mautrix.MMissingToken) {
		return true
	}
	var httpErr mautrix.HTTPError
	if errors.As(err, &httpErr) && httpErr.Response != nil {
		return httpErr.Response.StatusCode == http.StatusUnauthorized
	}
	return false
}

// localpart returns the user part of a Matrix ID, or "" if it does not parse.
func localpart(userID id.UserID) string {
	local, _, err := userID.Parse()
	if err != nil {
		return ""
	}
	return local
}
