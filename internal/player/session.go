// ABOUTME: Agent session: one connection, one ConstraintState, strictly ordered message handling.
// ABOUTME: Answers turn prompts after a human-paced delay; stays silent when no word fits.

package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/2389/wordchain-gateway/internal/dedupe"
	"github.com/2389/wordchain-gateway/internal/game"
	"github.com/2389/wordchain-gateway/internal/words"
)

// State is a session's lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateListening
	StateTurnDetected
	StateResponding
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateTurnDetected:
		return "turn_detected"
	case StateResponding:
		return "responding"
	default:
		return "disconnected"
	}
}

const (
	defaultReplyDelayMin = 1800 * time.Millisecond
	defaultReplyDelayMax = 3500 * time.Millisecond
	defaultSkipCooldown  = 5 * time.Second
	defaultSendTimeout   = 30 * time.Second
	defaultCloseTimeout  = 5 * time.Second

	inboxSize      = 64
	dedupeTTL      = 10 * time.Minute
	dedupeCapacity = 1024
)

// Config holds everything a Session needs. Dialer, Dictionary and Parser
// are required; zero durations take defaults.
type Config struct {
	Credential string
	Dialer     Dialer
	Dictionary *words.Dictionary
	Parser     *game.Parser

	// Chats limits which chats are observed; empty means all.
	Chats []string
	// HostSenders limits whose messages are parsed; empty means anyone.
	HostSenders []string

	DefaultMinLength int
	ReplyDelayMin    time.Duration
	ReplyDelayMax    time.Duration
	SkipCooldown     time.Duration
	SendTimeout      time.Duration
	CloseTimeout     time.Duration

	// Rand seeds pacing and word choice. Nil gets a fresh source.
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Stats counts a session's turn outcomes.
type Stats struct {
	Sent   int64
	Misses int64
}

// Session plays for one account. Run may be called once.
type Session struct {
	cfg    Config
	logger *slog.Logger
	rng    *rand.Rand
	seen   *dedupe.Window
	chats  map[string]bool
	hosts  map[string]bool

	state  atomic.Int32
	sent   atomic.Int64
	misses atomic.Int64
}

// New creates a Session in StateConnecting.
func New(cfg Config) *Session {
	if cfg.ReplyDelayMin <= 0 && cfg.ReplyDelayMax <= 0 {
		cfg.ReplyDelayMin, cfg.ReplyDelayMax = defaultReplyDelayMin, defaultReplyDelayMax
	}
	if cfg.ReplyDelayMax < cfg.ReplyDelayMin {
		cfg.ReplyDelayMax = cfg.ReplyDelayMin
	}
	if cfg.SkipCooldown <= 0 {
		cfg.SkipCooldown = defaultSkipCooldown
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Session{
		cfg:    cfg,
		logger: cfg.Logger,
		rng:    cfg.Rand,
		seen:   dedupe.New(dedupeTTL, dedupeCapacity),
		chats:  toSet(cfg.Chats),
		hosts:  toSet(cfg.HostSenders),
	}
}

// State returns the current lifecycle state. Safe for concurrent use.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns turn counters. Safe for concurrent use.
func (s *Session) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Misses: s.misses.Load()}
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run connects and plays until ctx is canceled or the connection fails.
// It returns nil on cancellation.
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateConnecting)
	defer s.setState(StateDisconnected)

	if s.cfg.Dictionary == nil {
		return ErrNoDictionary
	}

	conn, err := s.cfg.Dialer.Dial(ctx, s.cfg.Credential)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return classify(err)
	}
	defer s.close(conn)

	self, err := conn.Self(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return classify(err)
	}
	s.logger.Info("playing as", "user_id", self.ID, "names", self.Names)

	return s.listen(ctx, conn, self)
}

func (s *Session) listen(ctx context.Context, conn Conn, self game.Self) error {
	listenCtx, stopListen := context.WithCancel(ctx)
	inbox := make(chan Message, inboxSize)
	listenErr := make(chan error, 1)

	go func() {
		listenErr <- conn.Listen(listenCtx, func(m Message) {
			select {
			case inbox <- m:
			case <-listenCtx.Done():
			}
		})
	}()

	listening := true
	defer func() {
		stopListen()
		if !listening {
			return
		}
		select {
		case <-listenErr:
		case <-time.After(s.cfg.CloseTimeout):
			s.logger.Warn("listener did not stop within grace period")
		}
	}()

	state := game.NewConstraintState(s.cfg.DefaultMinLength)
	selector := words.NewSelector(s.cfg.Dictionary, s.rng)

	var cooldown *time.Timer
	var cooldownC <-chan time.Time
	defer func() {
		if cooldown != nil {
			cooldown.Stop()
		}
	}()

	s.setState(StateListening)
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-listenErr:
			listening = false
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errors.New("message stream ended")
			}
			return classify(err)

		case <-cooldownC:
			cooldownC = nil
			state.ClearCooldown()
			s.logger.Info("skip cooldown cleared", "round", state.Round)

		case msg := <-inbox:
			switch s.handle(ctx, conn, self, state, selector, msg) {
			case game.EventSkipNotice:
				if cooldown != nil {
					cooldown.Stop()
				}
				cooldown = time.NewTimer(s.cfg.SkipCooldown)
				cooldownC = cooldown.C
			case game.EventNewRound:
				if cooldown != nil {
					cooldown.Stop()
				}
				cooldownC = nil
			}
		}
	}
}

// handle processes one message and returns the event kind it produced.
func (s *Session) handle(ctx context.Context, conn Conn, self game.Self, state *game.ConstraintState, selector *words.Selector, msg Message) game.EventKind {
	if s.seen.Mark(msg.EventID) {
		s.logger.Debug("duplicate delivery dropped", "event_id", msg.EventID, "window", s.seen.Len())
		return game.EventUnrelated
	}
	if msg.Sender == self.ID {
		return game.EventUnrelated
	}
	if len(s.chats) > 0 && !s.chats[msg.ChatID] {
		return game.EventUnrelated
	}
	if len(s.hosts) > 0 && !s.hosts[msg.Sender] {
		return game.EventUnrelated
	}

	ev := s.cfg.Parser.Parse(msg.Text, self, state)
	switch ev.Kind {
	case game.EventNewRound:
		s.logger.Info("new round started", "round", state.Round, "chat", msg.ChatID)
	case game.EventSkipNotice:
		s.logger.Info("AFK skip detected, pausing", "cooldown", s.cfg.SkipCooldown)
	case game.EventUnrelated:
		s.logger.Debug("message ignored", "reason", ev.Reason, "chat", msg.ChatID)
	case game.EventTurnPrompt:
		s.respond(ctx, conn, state, selector, msg.ChatID, ev.Prompt)
	}
	return ev.Kind
}

// respond waits, picks a word against the live state, and sends it.
// Misses are logged; nothing is ever sent in place of a valid word.
func (s *Session) respond(ctx context.Context, conn Conn, state *game.ConstraintState, selector *words.Selector, chatID string, p *game.TurnPrompt) {
	s.setState(StateTurnDetected)
	defer func() {
		if ctx.Err() == nil {
			s.setState(StateListening)
		}
	}()

	s.logger.Info("turn detected",
		"chat", chatID,
		"round", p.Round,
		"prefix", p.StartPrefix,
		"include", p.Include,
		"banned", state.Banned,
		"min_length", state.MinLength,
	)

	s.setState(StateResponding)
	if !sleep(ctx, s.replyDelay()) {
		return
	}

	c := state.Constraints(p)
	word, ok := selector.Pick(c)
	if !ok {
		s.misses.Add(1)
		s.logger.Info("no valid word",
			"prefix", c.StartPrefix,
			"include", c.Include,
			"banned", c.Banned,
			"min_length", c.MinLength,
		)
		return
	}

	// An in-flight send is allowed to finish; its outcome is dropped if
	// the session was stopped meanwhile.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SendTimeout)
	err := conn.Send(sendCtx, chatID, word)
	cancel()

	if ctx.Err() != nil {
		s.logger.Debug("stopped during send, result discarded", "word", word)
		return
	}
	if err != nil {
		s.misses.Add(1)
		s.logger.Warn("failed to send word", "word", word, "error", fmt.Errorf("%w: %w", ErrSendFailed, err))
		return
	}

	state.RecordPlayed(word)
	s.sent.Add(1)
	s.logger.Info("sent word", "word", word, "chat", chatID)
}

func (s *Session) replyDelay() time.Duration {
	lo, hi := s.cfg.ReplyDelayMin, s.cfg.ReplyDelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int64N(int64(hi-lo)+1))
}

func (s *Session) close(conn Conn) {
	done := make(chan error, 1)
	go func() { done <- conn.Close() }()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("closing connection", "error", err)
		}
	case <-time.After(s.cfg.CloseTimeout):
		s.logger.Warn("connection close timed out")
	}
}

// classify maps a transport error onto the session's terminal causes.
func classify(err error) error {
	if errors.Is(err, ErrCredentialRejected) || errors.Is(err, ErrConnectionLost) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectionLost, err)
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func toSet(list []string) map[string]bool {
	if len(list) == 0 {
		return nil
	}
	m := make(map[string]bool, len(list))
	for _, v := range list {
		m[v] = true
	}
	return m
}
