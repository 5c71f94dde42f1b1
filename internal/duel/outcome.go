package duel

type EventKind string

const (
	EventRoundStart   EventKind = "round_start"
	EventReload       EventKind = "reload"
	EventItemsGranted EventKind = "items_granted"
	EventShot         EventKind = "shot"
	EventExtraTurn    EventKind = "extra_turn"
	EventTurnKept     EventKind = "turn_kept"
	EventTurnSwitch   EventKind = "turn_switch"
	EventNullified    EventKind = "nullified"
	EventUnusable     EventKind = "unusable"
	EventEject        EventKind = "eject"
	EventPeek         EventKind = "peek"
	EventOracle       EventKind = "oracle"
	EventTeaser       EventKind = "teaser"
	EventHeal         EventKind = "heal"
	EventHarm         EventKind = "harm"
	EventKnifeReady   EventKind = "knife_ready"
	EventRestrained   EventKind = "restrained"
	EventJammed       EventKind = "jammed"
	EventStolen       EventKind = "stolen"
	EventInverted     EventKind = "inverted"
	EventRoundWon     EventKind = "round_won"
	EventMatchEnd     EventKind = "match_end"
	EventAccepted     EventKind = "accepted"
	EventDeclined     EventKind = "declined"
)

// Event is one step of narrative produced by an operation. Fields not relevant to Kind stay zero.
type Event struct {
	Kind   EventKind `json:"kind"`
	Actor  string    `json:"actor,omitempty"`
	Target string    `json:"target,omitempty"`
	Item   Item      `json:"item,omitempty"`
	Bullet Bullet    `json:"bullet,omitempty"`
	Amount int       `json:"amount,omitempty"`
	HP     int       `json:"hp,omitempty"`
	Live   int       `json:"live,omitempty"`
	Blank  int       `json:"blank,omitempty"`
	Round  int       `json:"round,omitempty"`
	Items  []Item    `json:"items,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Prize  int64     `json:"prize,omitempty"`
}

// Unusable reasons.
const (
	ReasonEmptyChamber  = "empty_chamber"
	ReasonFullHP        = "full_hp"
	ReasonLockedOut     = "locked_out"
	ReasonTooFew        = "too_few_bullets"
	ReasonNothingToTake = "nothing_to_steal"
)

type Outcome struct {
	Events        []Event `json:"events"`
	TurnContinues bool    `json:"turnContinues"`
	Reloaded      bool    `json:"reloaded"`
	RoundOver     bool    `json:"roundOver"`
	RoundWinner   string  `json:"roundWinner,omitempty"`
	MatchOver     bool    `json:"matchOver"`
	Winner        string  `json:"winner,omitempty"`
	Prize         int64   `json:"prize"`
}

func (o *Outcome) add(ev Event) { o.Events = append(o.Events, ev) }

// Has reports whether an event of kind was emitted.
func (o *Outcome) Has(kind EventKind) bool {
	if o == nil {
		return false
	}
	for _, ev := range o.Events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}
