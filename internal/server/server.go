// ABOUTME: Server wires the dictionary, parser, credential store, notifier and agent manager
// ABOUTME: behind the admin HTTP API, and owns startup, resume and ordered shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/wordchain-gateway/internal/admin"
	"github.com/2389/wordchain-gateway/internal/agent"
	"github.com/2389/wordchain-gateway/internal/auth"
	"github.com/2389/wordchain-gateway/internal/config"
	"github.com/2389/wordchain-gateway/internal/game"
	"github.com/2389/wordchain-gateway/internal/matrix"
	"github.com/2389/wordchain-gateway/internal/notify"
	"github.com/2389/wordchain-gateway/internal/player"
	"github.com/2389/wordchain-gateway/internal/store"
	"github.com/2389/wordchain-gateway/internal/words"
)

const (
	shutdownTimeout = 5 * time.Second
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
)

// Server owns every long-lived component of the gateway.
type Server struct {
	config     *config.Config
	logger     *slog.Logger
	dictionary *words.Dictionary
	dictErr    error
	parser     *game.Parser
	store      store.CredentialStore
	sink       notify.Sink
	dialer     player.Dialer
	manager    *agent.Manager
	httpServer *http.Server

	// addr is set once the HTTP listener is bound.
	addr chan string
}

// New builds a Server that plays over Matrix.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialer, err := matrix.NewDialer(matrix.DialerConfig{
		Homeserver:     cfg.Matrix.Homeserver,
		ConnectRetries: cfg.Agents.ConnectRetries,
		ConnectBackoff: cfg.Agents.ConnectBackoff,
		Encryption: matrix.EncryptionConfig{
			Enabled: cfg.Matrix.Encryption.Enabled,
			DataDir: cfg.Matrix.Encryption.DataDir,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating matrix dialer: %w", err)
	}
	return newServer(cfg, dialer, logger)
}

func newServer(cfg *config.Config, dialer player.Dialer, logger *slog.Logger) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: logger,
		dialer: dialer,
		addr:   make(chan string, 1),
	}

	// A missing word list keeps the process up; every session then ends
	// with ErrNoDictionary and readiness reports the cause.
	dict, err := words.Load(cfg.Game.Dictionary)
	if err != nil {
		s.dictErr = err
		logger.Error("failed to load dictionary", "path", cfg.Game.Dictionary, "error", err)
	} else {
		s.dictionary = dict
		logger.Info("dictionary loaded", "path", cfg.Game.Dictionary, "words", dict.Len())
	}

	patterns, err := game.LoadPatterns(cfg.Game.PatternsFile)
	if err != nil {
		return nil, fmt.Errorf("loading patterns: %w", err)
	}
	s.parser, err = game.NewParser(patterns, game.ParserOptions{RequireTurnMarker: cfg.Game.RequireTurnMarker})
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	if err := s.initStore(); err != nil {
		return nil, err
	}

	if err := s.initNotifier(); err != nil {
		_ = s.store.Close()
		return nil, err
	}

	s.manager = agent.NewManager(agent.Config{
		Store:       s.store,
		Sink:        s.sink,
		NewSession:  s.newSession,
		StopTimeout: cfg.Agents.StopTimeout,
		Logger:      logger,
	})

	handler := admin.NewHandler(s.manager, s.store, logger)
	handler.Ready = s.ready

	s.httpServer = &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      handler.Routes(s.verifier()),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return s, nil
}

// initStore opens the credential database. WORDCHAIN_DB_PATH overrides the
// configured path.
func (s *Server) initStore() error {
	dbPath := s.config.Database.Path
	if envPath := os.Getenv("WORDCHAIN_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	sealer, err := store.NewSealer(s.config.Database.EncryptionKey)
	if err != nil {
		return fmt.Errorf("creating credential sealer: %w", err)
	}
	st, err := store.NewSQLiteStore(dbPath, sealer)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	s.store = st
	return nil
}

func (s *Server) initNotifier() error {
	if s.config.Notify.RoomID == "" {
		s.logger.Info("no notify room configured, notifications go to the log")
		s.sink = notify.NewLogSink(s.logger)
		return nil
	}
	sink, err := notify.NewMatrixSink(notify.MatrixConfig{
		Homeserver:  s.config.Notify.Homeserver,
		AccessToken: s.config.Notify.AccessToken,
		RoomID:      s.config.Notify.RoomID,
		QueueSize:   s.config.Notify.QueueSize,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}
	s.sink = sink
	return nil
}

// verifier returns nil (auth disabled) when no secret is configured.
func (s *Server) verifier() auth.TokenVerifier {
	if s.config.Auth.JWTSecret == "" {
		s.logger.Warn("auth.jwt_secret is empty, admin API is unauthenticated")
		return nil
	}
	return auth.NewJWTVerifier([]byte(s.config.Auth.JWTSecret))
}

func (s *Server) newSession(credential string, logger *slog.Logger) agent.Runner {
	g := s.config.Game
	return player.New(player.Config{
		Credential:       credential,
		Dialer:           s.dialer,
		Dictionary:       s.dictionary,
		Parser:           s.parser,
		Chats:            g.Chats,
		HostSenders:      g.HostSenders,
		DefaultMinLength: g.MinLength,
		ReplyDelayMin:    g.ReplyDelayMin,
		ReplyDelayMax:    g.ReplyDelayMax,
		SkipCooldown:     g.SkipCooldown,
		Logger:           logger,
	})
}

func (s *Server) ready(ctx context.Context) error {
	if s.dictionary == nil {
		return fmt.Errorf("dictionary: %w", s.dictErr)
	}
	return nil
}

// Addr blocks until the HTTP listener is bound and returns its address.
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case a := <-s.addr:
		s.addr <- a
		return a, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run serves the admin API, resumes stored agents and blocks until ctx is
// canceled or the HTTP server fails. It always shuts down before returning.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting wordchain gateway", "http_addr", s.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		s.shutdown()
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	s.addr <- ln.Addr().String()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	if s.config.Agents.Resume() {
		n, err := s.manager.Resume(ctx)
		if err != nil {
			s.logger.Error("failed to resume agents", "error", err)
		} else {
			s.logger.Info("resume complete", "started", n)
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case runErr = <-errCh:
		s.logger.Error("server error", "error", runErr)
	}

	if err := s.shutdown(); err != nil {
		s.logger.Error("shutdown error", "error", err)
	}
	return runErr
}

// shutdown stops the HTTP server, then every agent, then the notifier,
// and closes the store last. Stored credentials survive for the next start.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down gateway")

	var errs []error

	httpCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(httpCtx))
	cancel()

	agentCtx, cancel := context.WithTimeout(context.Background(), s.config.Agents.StopTimeout)
	errs = appendCloseError(errs, "agent shutdown", s.manager.Shutdown(agentCtx))
	cancel()

	if c, ok := s.sink.(interface{ Close(context.Context) error }); ok {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = appendCloseError(errs, "notifier close", c.Close(flushCtx))
		cancel()
	}

	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}
