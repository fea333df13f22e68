// ABOUTME: Per-agent mutable game rules (banned substrings, minimum length, round, cooldown).
// ABOUTME: Owned by exactly one agent session and mutated in place by the parser.

package game

import (
	"github.com/2389/wordchain-gateway/internal/words"
)

// ConstraintState holds the current round's word-selection rules.
//
// A ConstraintState is confined to the goroutine of the session that owns it.
// It carries no lock; sharing one between goroutines is a bug.
type ConstraintState struct {
	Banned    []string
	MinLength int
	Round     uint64
	Cooldown  bool

	played           map[string]struct{}
	defaultMinLength int
}

// NewConstraintState returns a state for round zero. A non-positive
// defaultMinLength falls back to words.DefaultMinLength.
func NewConstraintState(defaultMinLength int) *ConstraintState {
	if defaultMinLength <= 0 {
		defaultMinLength = words.DefaultMinLength
	}
	return &ConstraintState{
		MinLength:        defaultMinLength,
		played:           make(map[string]struct{}),
		defaultMinLength: defaultMinLength,
	}
}

// ResetRound starts a new round: banned substrings, cooldown, played words
// and the minimum length are cleared and the round counter advances.
func (s *ConstraintState) ResetRound() {
	s.Banned = nil
	s.Cooldown = false
	s.MinLength = s.defaultMinLength
	s.played = make(map[string]struct{})
	s.Round++
}

// StartCooldown suppresses turn prompts until ClearCooldown is called.
func (s *ConstraintState) StartCooldown() { s.Cooldown = true }

// ClearCooldown re-enables turn prompts.
func (s *ConstraintState) ClearCooldown() { s.Cooldown = false }

// SetBanned replaces the banned set for this round.
func (s *ConstraintState) SetBanned(banned []string) {
	s.Banned = append([]string(nil), banned...)
}

// RecordPlayed remembers a word this agent sent so it is not repeated within the round.
func (s *ConstraintState) RecordPlayed(word string) {
	s.played[word] = struct{}{}
}

// Constraints combines a turn prompt with the live state into a selection request.
func (s *ConstraintState) Constraints(p *TurnPrompt) words.Constraints {
	return words.Constraints{
		StartPrefix: p.StartPrefix,
		Include:     p.Include,
		Banned:      s.Banned,
		MinLength:   s.MinLength,
		Exclude:     s.played,
	}
}
