// ABOUTME: Manages running agent sessions keyed by identity, at most one per identity.
// ABOUTME: Couples session exits to credential cleanup and operator notifications.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/wordchain-gateway/internal/notify"
	"github.com/2389/wordchain-gateway/internal/player"
	"github.com/2389/wordchain-gateway/internal/store"
)

var (
	// ErrShuttingDown is returned by Register once Shutdown has begun.
	ErrShuttingDown = errors.New("manager is shutting down")

	// ErrStopTimeout means a previous session did not finish tearing down
	// in time, so its replacement was not started.
	ErrStopTimeout = errors.New("timed out waiting for session to stop")

	// ErrInvalidIdentity is returned for an empty identity.
	ErrInvalidIdentity = errors.New("identity is required")

	// ErrInvalidCredential is returned for an empty credential.
	ErrInvalidCredential = errors.New("credential is required")
)

const (
	defaultStopTimeout  = 10 * time.Second
	storeCleanupTimeout = 5 * time.Second
)

// Runner is a playable session. *player.Session implements it.
type Runner interface {
	Run(ctx context.Context) error
	State() player.State
	Stats() player.Stats
}

// Factory builds a session for a credential.
type Factory func(credential string, logger *slog.Logger) Runner

// Config holds Manager dependencies. Store and NewSession are required.
type Config struct {
	Store       store.CredentialStore
	Sink        notify.Sink
	NewSession  Factory
	StopTimeout time.Duration
	Logger      *slog.Logger
}

// Info describes a running session.
type Info struct {
	Identity   string    `json:"identity"`
	RunID      string    `json:"run_id"`
	State      string    `json:"state"`
	Credential string    `json:"credential"`
	StartedAt  time.Time `json:"started_at"`
	WordsSent  int64     `json:"words_sent"`
	Misses     int64     `json:"misses"`
}

type handle struct {
	identity   string
	credential string
	runID      string
	startedAt  time.Time
	runner     Runner
	cancel     context.CancelFunc
	done       chan struct{}

	// stopping is set under Manager.mu when the Manager itself ends the session.
	stopping bool
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// Manager coordinates all running agent sessions.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*handle
	closed   bool

	locksMu sync.Mutex
	locks   map[string]*identityLock
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		logger:     cfg.Logger.With("component", "agents"),
		baseCtx:    ctx,
		baseCancel: cancel,
		sessions:   make(map[string]*handle),
		locks:      make(map[string]*identityLock),
	}
}

// Register stores credential for identity and (re)starts its session. It
// reports whether a credential was already stored. Registering the
// credential an identity is already running with changes nothing.
func (m *Manager) Register(ctx context.Context, identity, credential string) (existed bool, err error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false, ErrInvalidIdentity
	}
	if credential == "" {
		return false, ErrInvalidCredential
	}

	unlock := m.lockIdentity(identity)
	defer unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrShuttingDown
	}
	old := m.sessions[identity]
	if old != nil && old.credential == credential && !old.stopping && old.runner.State() != player.StateDisconnected {
		m.mu.Unlock()
		m.logger.Info("agent already running with this credential", "identity", identity, "run_id", old.runID)
		return true, nil
	}
	m.mu.Unlock()

	saveCtx := ctx
	if old != nil {
		m.logger.Info("replacing running agent", "identity", identity, "run_id", old.runID)
		if err := m.stop(old); err != nil {
			return false, err
		}
		// The old session is gone; a caller hanging up must not strand the identity.
		saveCtx = context.WithoutCancel(ctx)
	}

	existed, err = m.cfg.Store.SaveCredential(saveCtx, identity, credential)
	if err != nil {
		if old != nil {
			m.restore(old)
		}
		return false, fmt.Errorf("saving credential: %w", err)
	}

	h, err := m.start(identity, credential)
	if err != nil {
		return existed, err
	}

	kind := "new"
	if existed {
		kind = "reconnected"
	}
	m.notify(fmt.Sprintf("Agent **%s** started (%s, credential `%s`)", identity, kind, MaskCredential(credential)))
	m.logger.Info("agent registered", "identity", identity, "run_id", h.runID, "existed", existed)
	return existed, nil
}

// Unregister stops identity's session and deletes its credential. It
// reports whether there was anything to remove; absence is not an error.
func (m *Manager) Unregister(ctx context.Context, identity string) (existed bool, err error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false, ErrInvalidIdentity
	}

	unlock := m.lockIdentity(identity)
	defer unlock()

	m.mu.RLock()
	h := m.sessions[identity]
	m.mu.RUnlock()

	if h != nil {
		if err := m.stop(h); err != nil {
			return true, err
		}
	}

	err = m.cfg.Store.DeleteCredential(ctx, identity)
	switch {
	case err == nil:
		existed = true
	case errors.Is(err, store.ErrNotFound):
		existed = h != nil
	default:
		return h != nil, fmt.Errorf("deleting credential: %w", err)
	}

	if existed {
		m.notify(fmt.Sprintf("Agent **%s** stopped by operator", identity))
		m.logger.Info("agent unregistered", "identity", identity)
	} else {
		m.logger.Info("unregister for unknown identity", "identity", identity)
	}
	return existed, nil
}

// restore restarts a superseded session whose replacement could not be saved.
func (m *Manager) restore(old *handle) {
	h, err := m.start(old.identity, old.credential)
	if err != nil {
		m.logger.Error("failed to restore previous agent", "identity", old.identity, "error", err)
		return
	}
	m.logger.Warn("restored previous agent after failed replacement", "identity", old.identity, "run_id", h.runID)
}

// Resume starts a session for every stored credential that is not already
// running and returns how many were started.
func (m *Manager) Resume(ctx context.Context) (int, error) {
	ids, err := m.cfg.Store.ListIdentities(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing identities: %w", err)
	}

	started := 0
	for _, identity := range ids {
		ok, err := m.resumeOne(ctx, identity)
		if err != nil {
			if errors.Is(err, ErrShuttingDown) {
				return started, err
			}
			m.logger.Error("failed to resume agent", "identity", identity, "error", err)
			continue
		}
		if ok {
			started++
		}
	}
	m.logger.Info("resumed agents", "started", started, "stored", len(ids))
	return started, nil
}

func (m *Manager) resumeOne(ctx context.Context, identity string) (bool, error) {
	unlock := m.lockIdentity(identity)
	defer unlock()

	m.mu.RLock()
	_, running := m.sessions[identity]
	m.mu.RUnlock()
	if running {
		return false, nil
	}

	credential, err := m.cfg.Store.GetCredential(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := m.start(identity, credential); err != nil {
		return false, err
	}
	return true, nil
}

// List describes running sessions ordered by identity.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.sessions))
	for _, h := range m.sessions {
		stats := h.runner.Stats()
		out = append(out, Info{
			Identity:   h.identity,
			RunID:      h.runID,
			State:      h.runner.State().String(),
			Credential: MaskCredential(h.credential),
			StartedAt:  h.startedAt,
			WordsSent:  stats.Sent,
			Misses:     stats.Misses,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Running returns the number of live sessions.
func (m *Manager) Running() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops every session and waits until they exit or ctx ends.
// Stored credentials are kept so the next start can resume them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, h := range m.sessions {
		h.stopping = true
	}
	n := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("stopping all agents", "count", n)
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for agents to stop: %w", ctx.Err())
	}
}

func (m *Manager) start(identity, credential string) (*handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShuttingDown
	}

	runID := uuid.New().String()
	logger := m.cfg.Logger.With("identity", identity, "run_id", runID)
	ctx, cancel := context.WithCancel(m.baseCtx)

	h := &handle{
		identity:   identity,
		credential: credential,
		runID:      runID,
		startedAt:  time.Now().UTC(),
		runner:     m.cfg.NewSession(credential, logger),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	m.sessions[identity] = h

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(h.done)
		defer cancel()

		err := h.runner.Run(ctx)
		m.onExit(h, err)
	}()

	m.logger.Info("=== AGENT STARTED ===",
		"identity", identity,
		"run_id", runID,
		"credential", MaskCredential(credential),
		"total_agents", len(m.sessions),
	)
	return h, nil
}

// stop cancels h and waits for it to finish, bounded by StopTimeout.
func (m *Manager) stop(h *handle) error {
	m.mu.Lock()
	h.stopping = true
	m.mu.Unlock()

	h.cancel()

	t := time.NewTimer(m.cfg.StopTimeout)
	defer t.Stop()
	select {
	case <-h.done:
		return nil
	case <-t.C:
		m.logger.Error("agent did not stop in time", "identity", h.identity, "run_id", h.runID)
		return ErrStopTimeout
	}
}

// onExit runs on the session goroutine before h.done closes, so anyone
// waiting on done observes the store cleanup as already finished.
func (m *Manager) onExit(h *handle, err error) {
	m.mu.RLock()
	stopping := h.stopping
	m.mu.RUnlock()

	logger := m.logger.With("identity", h.identity, "run_id", h.runID)

	if !stopping && err != nil {
		switch {
		case errors.Is(err, player.ErrCredentialRejected):
			logger.Warn("credential rejected, removing", "error", err)
			ctx, cancel := context.WithTimeout(context.Background(), storeCleanupTimeout)
			if derr := m.cfg.Store.DeleteCredential(ctx, h.identity); derr != nil && !errors.Is(derr, store.ErrNotFound) {
				logger.Error("failed to delete rejected credential", "error", derr)
			}
			cancel()
			m.notify(fmt.Sprintf("Agent **%s** stopped: credential `%s` was rejected and has been removed",
				h.identity, MaskCredential(h.credential)))
		default:
			logger.Error("agent session ended", "error", err)
			m.notify(fmt.Sprintf("Agent **%s** stopped: %v", h.identity, err))
		}
	}

	m.mu.Lock()
	if m.sessions[h.identity] == h {
		delete(m.sessions, h.identity)
	}
	total := len(m.sessions)
	m.mu.Unlock()

	logger.Info("=== AGENT STOPPED ===", "operator_stop", stopping, "total_agents", total)
}

func (m *Manager) notify(text string) {
	if m.cfg.Sink == nil {
		return
	}
	m.cfg.Sink.Notify(context.Background(), text)
}

// lockIdentity serializes lifecycle operations on one identity.
func (m *Manager) lockIdentity(identity string) (unlock func()) {
	m.locksMu.Lock()
	l, ok := m.locks[identity]
	if !ok {
		l = &identityLock{}
		m.locks[identity] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, identity)
		}
		m.locksMu.Unlock()
	}
}

// MaskCredential hides all but the last four characters of a credential.
func MaskCredential(credential string) string {
	const visible = 4
	r := []rune(credential)
	if len(r) <= visible {
		return "****"
	}
	return "****" + string(r[len(r)-visible:])
}
