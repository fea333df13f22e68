// ABOUTME: Classifies inbound chat text into game events and applies rule changes to ConstraintState.
// ABOUTME: Best-effort: anything it cannot read with confidence is Unrelated, never guessed.

package game

import (
	"strconv"
	"strings"
	"unicode"
)

// Self describes the agent's own account as the game host might name it.
type Self struct {
	// ID is the platform's stable account ID.
	ID string
	// Names holds display-name variants (display name, localpart, ...).
	Names []string
}

// variants returns every cleaned, non-empty name form for ownership checks.
func (s Self) variants() []string {
	out := make([]string, 0, len(s.Names)+1)
	for _, n := range append([]string{s.ID}, s.Names...) {
		if c := cleanName(n); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Owns reports whether the cleaned turn-owner token names this account.
func (s Self) Owns(owner string) bool {
	for _, v := range s.variants() {
		if strings.Contains(owner, v) {
			return true
		}
	}
	return false
}

// ParserOptions tunes classification.
type ParserOptions struct {
	// RequireTurnMarker disables the fallback that treats a bare
	// "start with" prompt (no "turn:" line) as addressed to us.
	RequireTurnMarker bool
}

// Parser is immutable after construction and safe to share between sessions;
// the ConstraintState passed to Parse is not.
type Parser struct {
	re   *compiledPatterns
	opts ParserOptions
}

// NewParser compiles patterns into a Parser.
func NewParser(p Patterns, opts ParserOptions) (*Parser, error) {
	re, err := p.compile()
	if err != nil {
		return nil, err
	}
	return &Parser{re: re, opts: opts}, nil
}

// Parse classifies text and mutates st for round, cooldown, banned and
// minimum-length changes. The first matching rule wins.
func (p *Parser) Parse(text string, self Self, st *ConstraintState) Event {
	if strings.TrimSpace(text) == "" {
		return unrelated(ReasonEmpty)
	}

	if p.re.newRound.MatchString(text) {
		st.ResetRound()
		return Event{Kind: EventNewRound}
	}

	if p.re.skip.MatchString(text) {
		st.StartCooldown()
		return Event{Kind: EventSkipNotice}
	}

	if st.Cooldown {
		return unrelated(ReasonCooldown)
	}

	var owner string
	if m := p.re.turn.FindStringSubmatch(text); m != nil {
		owner = cleanName(m[1])
		if owner == "" {
			return unrelated(ReasonAmbiguousTurn)
		}
		if !self.Owns(owner) {
			return unrelated(ReasonNotOurTurn)
		}
	} else if p.opts.RequireTurnMarker {
		return unrelated(ReasonNoTurnMarker)
	}

	start := p.re.startWith.FindStringSubmatch(text)
	if start == nil {
		// Without a start requirement, a "turn:" line alone is not something
		// we can answer. Only a full prompt may touch the round's rules.
		if owner == "" {
			return unrelated(ReasonNoMatch)
		}
		return unrelated(ReasonNoStartPrefix)
	}

	prompt := &TurnPrompt{
		StartPrefix: strings.ToLower(start[1]),
		Owner:       owner,
	}

	if m := p.re.banned.FindStringSubmatch(text); m != nil {
		prompt.BannedDelta = splitBanned(m[1])
		st.SetBanned(prompt.BannedDelta)
	}

	if m := p.re.minLength.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			prompt.MinLengthOverride = n
			st.MinLength = n
		}
	}

	if m := p.re.include.FindStringSubmatch(text); m != nil {
		prompt.Include = strings.ToLower(m[1])
	}

	prompt.Round = st.Round
	return Event{Kind: EventTurnPrompt, Prompt: prompt}
}

// cleanName lowercases s and keeps only letters, digits and single spaces.
func cleanName(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// splitBanned turns the text after "Banned letters:" into lowercase tokens.
// Tokens may be longer than one letter; they are matched as substrings.
func splitBanned(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(fields) == 1 && fields[0] == "none" {
		return []string{}
	}
	return fields
}
