// ABOUTME: Tests for Server wiring and lifecycle with an in-memory transport
// ABOUTME: Covers register-to-reply, resume from the store, readiness and shutdown

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/wordchain-gateway/internal/config"
	"github.com/2389/wordchain-gateway/internal/game"
	"github.com/2389/wordchain-gateway/internal/player"
	"github.com/2389/wordchain-gateway/internal/store"
)

const testCredential = "syt_YW5u_abcdefghijklmnopqrst_WXYZ"

type sent struct {
	chat string
	text string
}

type fakeConn struct {
	in    chan player.Message
	sends chan sent

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Self(ctx context.Context) (game.Self, error) {
	return game.Self{ID: "@ann:example.org", Names: []string{"Ann", "ann"}}, nil
}

func (c *fakeConn) Listen(ctx context.Context, deliver func(player.Message)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-c.in:
			deliver(m)
		}
	}
}

func (c *fakeConn) Send(ctx context.Context, chatID, text string) error {
	c.sends <- sent{chat: chatID, text: text}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type dial struct {
	credential string
	conn       *fakeConn
}

// fakeDialer hands out a fresh fakeConn per Dial and reports each one.
type fakeDialer struct {
	dials chan dial
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dials: make(chan dial, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, credential string) (player.Conn, error) {
	c := &fakeConn{in: make(chan player.Message, 8), sends: make(chan sent, 8)}
	d.dials <- dial{credential: credential, conn: c}
	return c, nil
}

func (d *fakeDialer) expectDial(t *testing.T) dial {
	t.Helper()
	select {
	case got := <-d.dials:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("expected a dial")
		return dial{}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig writes a word list into a temp dir and returns a parsed config
// pointing at it. extra is appended to the YAML.
func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	dictPath := filepath.Join(dir, "words.txt")
	require.NoError(t, os.WriteFile(dictPath, []byte("apple\ndog\n"), 0o600))

	yaml := fmt.Sprintf(`
server:
  http_addr: "127.0.0.1:0"
database:
  path: %q
matrix:
  homeserver: "http://127.0.0.1:1"
game:
  dictionary: %q
  reply_delay_min: 1ms
  reply_delay_max: 2ms
agents:
  stop_timeout: 2s
%s`, filepath.Join(dir, "wordchain.db"), dictPath, extra)

	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

// run starts s and returns its base URL and a stop function yielding Run's result.
func run(t *testing.T, s *Server) (string, func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer addrCancel()
	addr, err := s.Addr(addrCtx)
	require.NoError(t, err)

	return "http://" + addr, func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
			return nil
		}
	}
}

type agentJSON struct {
	Identity   string `json:"identity"`
	Credential string `json:"credential"`
	WordsSent  int64  `json:"words_sent"`
}

func listAgents(t *testing.T, base string) []agentJSON {
	t.Helper()
	resp, err := http.Get(base + "/api/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list struct {
		Agents []agentJSON `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	return list.Agents
}

func TestServer_RegisterAndPlay(t *testing.T) {
	cfg := testConfig(t, "")
	dialer := newFakeDialer()
	s, err := newServer(cfg, dialer, testLogger())
	require.NoError(t, err)
	base, stop := run(t, s)

	body := fmt.Sprintf(`{"identity":"ann","credential":%q}`, testCredential)
	resp, err := http.Post(base+"/api/agents", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	d := dialer.expectDial(t)
	assert.Equal(t, testCredential, d.credential)

	d.conn.in <- player.Message{ChatID: "!game", Sender: "@host:example.org", Text: "Turn: Ann\nstart with a", EventID: "$1"}
	select {
	case got := <-d.conn.sends:
		assert.Equal(t, sent{chat: "!game", text: "apple"}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reply")
	}

	var agents []agentJSON
	require.Eventually(t, func() bool {
		agents = listAgents(t, base)
		return len(agents) == 1 && agents[0].WordsSent == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ann", agents[0].Identity)
	assert.Equal(t, "****WXYZ", agents[0].Credential)

	require.NoError(t, stop())
	assert.True(t, d.conn.isClosed())
}

func TestServer_ResumesStoredCredentials(t *testing.T) {
	cfg := testConfig(t, "")

	st, err := store.NewSQLiteStore(cfg.Database.Path, nil)
	require.NoError(t, err)
	_, err = st.SaveCredential(context.Background(), "ann", testCredential)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	dialer := newFakeDialer()
	s, err := newServer(cfg, dialer, testLogger())
	require.NoError(t, err)
	_, stop := run(t, s)

	assert.Equal(t, testCredential, dialer.expectDial(t).credential)
	require.NoError(t, stop())

	// Shutdown keeps the credential for the next start.
	st, err = store.NewSQLiteStore(cfg.Database.Path, nil)
	require.NoError(t, err)
	defer st.Close()
	got, err := st.GetCredential(context.Background(), "ann")
	require.NoError(t, err)
	assert.Equal(t, testCredential, got)
}

func TestServer_ResumeDisabled(t *testing.T) {
	cfg := testConfig(t, "  resume_on_start: false\n")

	st, err := store.NewSQLiteStore(cfg.Database.Path, nil)
	require.NoError(t, err)
	_, err = st.SaveCredential(context.Background(), "ann", testCredential)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	dialer := newFakeDialer()
	s, err := newServer(cfg, dialer, testLogger())
	require.NoError(t, err)
	_, stop := run(t, s)

	select {
	case d := <-dialer.dials:
		t.Fatalf("unexpected dial with %q", d.credential)
	case <-time.After(100 * time.Millisecond):
	}
	require.NoError(t, stop())
}

func TestServer_MissingDictionaryIsNotReady(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Game.Dictionary = filepath.Join(t.TempDir(), "missing.txt")

	s, err := newServer(cfg, newFakeDialer(), testLogger())
	require.NoError(t, err)
	base, stop := run(t, s)
	defer stop()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/health/ready")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(b), "dictionary")
}

func TestServer_InvalidPatternsFile(t *testing.T) {
	cfg := testConfig(t, "")
	path := filepath.Join(t.TempDir(), "patterns.toml")
	require.NoError(t, os.WriteFile(path, []byte(`turn = "(unclosed"`), 0o600))
	cfg.Game.PatternsFile = path

	_, err := newServer(cfg, newFakeDialer(), testLogger())
	assert.ErrorContains(t, err, "compiling patterns")
}

func TestServer_AuthRequiredWithSecret(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Auth.JWTSecret = strings.Repeat("s", 32)

	s, err := newServer(cfg, newFakeDialer(), testLogger())
	require.NoError(t, err)
	base, stop := run(t, s)
	defer stop()

	resp, err := http.Get(base + "/api/agents")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNew_UsesMatrixDialer(t *testing.T) {
	cfg := testConfig(t, "")
	s, err := New(cfg, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, s.dialer)

	_, stop := run(t, s)
	require.NoError(t, stop())
}
