// ABOUTME: Tests for chat-text classification and ConstraintState updates.
// ABOUTME: Covers turn ownership, round reset, AFK cooldown, and constraint extraction.

package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ann = Self{ID: "123456", Names: []string{"Ann", "Ann Lee"}}

func newTestParser(t *testing.T, opts ParserOptions) *Parser {
	t.Helper()
	p, err := NewParser(DefaultPatterns(), opts)
	require.NoError(t, err)
	return p
}

func TestParse_TurnOwnership(t *testing.T) {
	p := newTestParser(t, ParserOptions{})

	tests := []struct {
		name   string
		text   string
		kind   EventKind
		reason string
	}{
		{"own display name", "Turn: Ann Lee\nYour word must start with B.", EventTurnPrompt, ""},
		{"own name with punctuation", "Turn: *Ann Lee!*\nStart with B", EventTurnPrompt, ""},
		{"numeric id", "Turn: player 123456\nstart with b", EventTurnPrompt, ""},
		{"someone else", "Turn: Bob\nYour word must start with B.", EventUnrelated, ReasonNotOurTurn},
		{"unparseable owner", "Turn: !!!\nstart with b", EventUnrelated, ReasonAmbiguousTurn},
		{"empty owner", "Turn:\nStart with b", EventUnrelated, ReasonAmbiguousTurn},
		{"blank owner", "Turn:   \nstart with b", EventUnrelated, ReasonAmbiguousTurn},
		{"turn marker without prompt", "Turn: Ann Lee", EventUnrelated, ReasonNoStartPrefix},
		{"plain chat", "good game everyone", EventUnrelated, ReasonNoMatch},
		{"empty", "   ", EventUnrelated, ReasonEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewConstraintState(3)
			ev := p.Parse(tt.text, ann, st)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.reason, ev.Reason)
		})
	}
}

func TestParse_OwnershipUsesTurnLineOnly(t *testing.T) {
	p := newTestParser(t, ParserOptions{})
	st := NewConstraintState(3)

	ev := p.Parse("Ann Lee played apple\nTurn: Bob\nStart with e", ann, st)
	assert.Equal(t, EventUnrelated, ev.Kind)
	assert.Equal(t, ReasonNotOurTurn, ev.Reason)
}

func TestParse_NoMarkerFallback(t *testing.T) {
	t.Run("permissive by default", func(t *testing.T) {
		p := newTestParser(t, ParserOptions{})
		ev := p.Parse("Your word must start with Q", ann, NewConstraintState(3))
		require.Equal(t, EventTurnPrompt, ev.Kind)
		assert.Equal(t, "q", ev.Prompt.StartPrefix)
		assert.Empty(t, ev.Prompt.Owner)
	})

	t.Run("strict when marker required", func(t *testing.T) {
		p := newTestParser(t, ParserOptions{RequireTurnMarker: true})
		ev := p.Parse("Your word must start with Q", ann, NewConstraintState(3))
		assert.Equal(t, EventUnrelated, ev.Kind)
		assert.Equal(t, ReasonNoTurnMarker, ev.Reason)
	})
}

func TestParse_ExtractsConstraints(t *testing.T) {
	p := newTestParser(t, ParserOptions{})
	st := NewConstraintState(3)

	text := "Turn: Ann Lee (Next: Bob)\n" +
		"Your word must start with *E*, include the letter R and contain at least 5 letters.\n" +
		"Banned letters: A, O"
	ev := p.Parse(text, ann, st)

	require.Equal(t, EventTurnPrompt, ev.Kind)
	assert.Equal(t, "e", ev.Prompt.StartPrefix)
	assert.Equal(t, "r", ev.Prompt.Include)
	assert.Equal(t, []string{"a", "o"}, ev.Prompt.BannedDelta)
	assert.Equal(t, 5, ev.Prompt.MinLengthOverride)

	assert.Equal(t, []string{"a", "o"}, st.Banned)
	assert.Equal(t, 5, st.MinLength)

	c := st.Constraints(ev.Prompt)
	assert.Equal(t, "e", c.StartPrefix)
	assert.Equal(t, "r", c.Include)
	assert.Equal(t, 5, c.MinLength)
}

func TestParse_AtLeastIsNotAnIncludeLetter(t *testing.T) {
	p := newTestParser(t, ParserOptions{})

	ev := p.Parse("Turn: Ann\nStart with T and include at least 4 letters", ann, NewConstraintState(3))
	require.Equal(t, EventTurnPrompt, ev.Kind)
	assert.Empty(t, ev.Prompt.Include)
	assert.Equal(t, 4, ev.Prompt.MinLengthOverride)
}

func TestParse_BannedReplacesWithinRound(t *testing.T) {
	p := newTestParser(t, ParserOptions{})
	st := NewConstraintState(3)

	p.Parse("Turn: Ann\nstart with a\nBanned letters: x, y", ann, st)
	assert.Equal(t, []string{"x", "y"}, st.Banned)

	p.Parse("Turn: Ann\nstart with b\nBanned letters: z", ann, st)
	assert.Equal(t, []string{"z"}, st.Banned)

	p.Parse("Turn: Ann\nstart with c\nBanned letters: none", ann, st)
	assert.Empty(t, st.Banned)
}

func TestParse_BannedPersistsUntilReplaced(t *testing.T) {
	p := newTestParser(t, ParserOptions{})
	st := NewConstraintState(3)

	p.Parse("Turn: Ann\nstart with a\nBanned letters: q", ann, st)
	ev := p.Parse("Turn: Ann\nstart with b", ann, st)

	require.Equal(t, EventTurnPrompt, ev.Kind)
	assert.Nil(t, ev.Prompt.BannedDelta)
	assert.Equal(t, []string{"q"}, st.Constraints(ev.Prompt).Banned)
}

func TestParse_NewRoundResets(t *testing.T) {
	p := newTestParser(t, ParserOptions{})
	st := NewConstraintState(3)

	p.Parse("Turn: Ann\nstart with a, at least 6 letters\nBanned letters: e", ann, st)
	st.RecordPlayed("abcdef")
	st.StartCooldown()
	before := st.Round

	ev := p.Parse("Carol won the game! Starting a new game...", ann, st)

	assert.Equal(t, EventNewRound, ev.Kind)
	assert.Greater(t, st.Round, before)
	assert.Empty(t, st.Banned)
	assert.False(t, st.Cooldown)
	assert.Equal(t, 3, st.MinLength)
	assert.Empty(t, st.Constraints(&TurnPrompt{StartPrefix: "a"}).Exclude)
}

func TestParse_SkipCooldownBlocksPrompts(t *testing.T) {
	p := newTestParser(t, ParserOptions{})
	st := NewConstraintState(3)

	ev := p.Parse("Dave skipped due to AFK", ann, st)
	assert.Equal(t, EventSkipNotice, ev.Kind)
	assert.True(t, st.Cooldown)

	for range 3 {
		ev = p.Parse("Turn: Ann\nstart with b", ann, st)
		assert.Equal(t, EventUnrelated, ev.Kind)
		assert.Equal(t, ReasonCooldown, ev.Reason)
	}

	st.ClearCooldown()
	ev = p.Parse("Turn: Ann\nstart with b", ann, st)
	assert.Equal(t, EventTurnPrompt, ev.Kind)
}

func TestParse_RoundWinsOverSkip(t *testing.T) {
	p := newTestParser(t, ParserOptions{})
	st := NewConstraintState(3)

	ev := p.Parse("No word given. New round!", ann, st)
	assert.Equal(t, EventNewRound, ev.Kind)
	assert.False(t, st.Cooldown)
}

func TestParse_PromptCarriesCurrentRound(t *testing.T) {
	p := newTestParser(t, ParserOptions{})
	st := NewConstraintState(3)

	p.Parse("new round", ann, st)
	p.Parse("new round", ann, st)
	ev := p.Parse("Turn: Ann\nstart with k", ann, st)

	require.Equal(t, EventTurnPrompt, ev.Kind)
	assert.Equal(t, uint64(2), ev.Prompt.Round)
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "ann lee", cleanName("  *Ann   Lee!* "))
	assert.Equal(t, "zoë 42", cleanName("Zoë 42"))
	assert.Equal(t, "", cleanName("!!! ??"))
}
