// ABOUTME: Game events derived from a single inbound chat message.
// ABOUTME: Events are ephemeral and exist only while one message is being handled.

package game

// EventKind classifies an inbound chat message.
type EventKind int

const (
	EventUnrelated EventKind = iota
	EventNewRound
	EventSkipNotice
	EventTurnPrompt
)

func (k EventKind) String() string {
	switch k {
	case EventNewRound:
		return "new_round"
	case EventSkipNotice:
		return "skip_notice"
	case EventTurnPrompt:
		return "turn_prompt"
	default:
		return "unrelated"
	}
}

// Reasons attached to EventUnrelated.
const (
	ReasonEmpty         = "empty"
	ReasonNoMatch       = "no_match"
	ReasonCooldown      = "cooldown"
	ReasonNotOurTurn    = "not_our_turn"
	ReasonAmbiguousTurn = "ambiguous_turn"
	ReasonNoTurnMarker  = "no_turn_marker"
	ReasonNoStartPrefix = "no_start_prefix"
)

// Event is the parser's verdict on one message.
type Event struct {
	Kind   EventKind
	Reason string      // set for EventUnrelated
	Prompt *TurnPrompt // set for EventTurnPrompt
}

// TurnPrompt carries the requirements extracted from a prompt addressed to us.
type TurnPrompt struct {
	StartPrefix string
	Include     string
	// BannedDelta is the banned list announced in this message, nil if none was.
	BannedDelta []string
	// MinLengthOverride is the minimum announced in this message, 0 if none was.
	MinLengthOverride int
	// Owner is the cleaned turn-owner token, empty under the no-marker fallback.
	Owner string
	Round uint64
}

func unrelated(reason string) Event {
	return Event{Kind: EventUnrelated, Reason: reason}
}
