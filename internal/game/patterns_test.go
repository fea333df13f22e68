// ABOUTME: Tests for pattern defaults, TOML overrides, and validation.

package game

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPatterns_EmptyPathUsesDefaults(t *testing.T) {
	p, err := LoadPatterns("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPatterns(), p)
}

func TestLoadPatterns_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.toml")
	content := `
turn = '(?i)now playing:[ \t]*([^\n]+)'
new_round = '(?i)round over'
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p, err := LoadPatterns(path)
	require.NoError(t, err)
	assert.Equal(t, `(?i)now playing:[ \t]*([^\n]+)`, p.Turn)
	assert.Equal(t, `(?i)round over`, p.NewRound)
	assert.Equal(t, DefaultPatterns().StartWith, p.StartWith)

	parser, err := NewParser(p, ParserOptions{})
	require.NoError(t, err)

	st := NewConstraintState(3)
	ev := parser.Parse("Now playing: Ann\nstart with m", ann, st)
	assert.Equal(t, EventTurnPrompt, ev.Kind)

	ev = parser.Parse("Round over", ann, st)
	assert.Equal(t, EventNewRound, ev.Kind)
}

func TestLoadPatterns_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.toml")
	require.NoError(t, os.WriteFile(path, []byte("turn = "), 0644))

	_, err := LoadPatterns(path)
	assert.Error(t, err)
}

func TestNewParser_Validation(t *testing.T) {
	t.Run("invalid regex", func(t *testing.T) {
		p := DefaultPatterns()
		p.Skip = "(unclosed"
		_, err := NewParser(p, ParserOptions{})
		assert.ErrorContains(t, err, "skip")
	})

	t.Run("missing capture group", func(t *testing.T) {
		p := DefaultPatterns()
		p.Turn = "turn:"
		_, err := NewParser(p, ParserOptions{})
		assert.ErrorContains(t, err, "capture group")
	})

	t.Run("empty pattern", func(t *testing.T) {
		p := DefaultPatterns()
		p.Banned = ""
		_, err := NewParser(p, ParserOptions{})
		assert.ErrorContains(t, err, "banned")
	})
}
