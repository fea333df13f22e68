// ABOUTME: MatrixSink posts Markdown notices to an operator room through one long-lived client.
// ABOUTME: A bounded queue and a single worker keep callers from waiting on the homeserver.

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

const (
	defaultQueueSize   = 128
	defaultSendTimeout = 10 * time.Second
)

// Sender posts a message event to a room. *mautrix.Client satisfies it.
type Sender interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
}

// MatrixConfig configures a MatrixSink.
type MatrixConfig struct {
	Homeserver  string
	AccessToken string
	RoomID      string
	QueueSize   int
	SendTimeout time.Duration
}

// MatrixSink delivers notices to a Matrix room.
type MatrixSink struct {
	sender  Sender
	roomID  id.RoomID
	md      goldmark.Markdown
	timeout time.Duration
	logger  *slog.Logger

	queue  chan string
	mu     sync.RWMutex
	done   chan struct{}
	closed bool
}

// NewMatrixSink logs in with cfg.AccessToken and starts the delivery worker.
func NewMatrixSink(cfg MatrixConfig, logger *slog.Logger) (*MatrixSink, error) {
	if cfg.RoomID == "" {
		return nil, errors.New("notify room_id is required")
	}
	client, err := mautrix.NewClient(cfg.Homeserver, "", cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating notify client: %w", err)
	}
	return newMatrixSink(client, cfg, logger), nil
}

func newMatrixSink(sender Sender, cfg MatrixConfig, logger *slog.Logger) *MatrixSink {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &MatrixSink{
		sender:  sender,
		roomID:  id.RoomID(cfg.RoomID),
		md:      goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify)),
		timeout: cfg.SendTimeout,
		logger:  logger.With("component", "notify", "room", cfg.RoomID),
		queue:   make(chan string, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Notify queues text. When the queue is full the notice is dropped.
func (s *MatrixSink) Notify(ctx context.Context, text string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- text:
	default:
		s.logger.Warn("notification queue full, dropping", "text", truncate(text, 80))
	}
}

// Close flushes queued notices and stops the worker. ctx bounds the flush.
func (s *MatrixSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MatrixSink) run() {
	defer close(s.done)
	for text := range s.queue {
		if err := s.send(text); err != nil {
			s.logger.Warn("failed to deliver notification", "error", err)
		}
	}
}

func (s *MatrixSink) send(text string) error {
	content := &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    text,
	}
	var html bytes.Buffer
	if err := s.md.Convert([]byte(text), &html); err == nil {
		content.Format = event.FormatHTML
		content.FormattedBody = strings.TrimSpace(html.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.sender.SendMessageEvent(ctx, s.roomID, event.EventMessage, content)
	return err
}

// truncate shortens s to maxLen runes, adding "..." if cut.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
