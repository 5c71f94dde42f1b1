package duel

import (
	"fmt"
	"strings"
	"time"
)

// Engine applies duel operations to a *Duel in place. It holds no per-duel state;
// callers serialize access to a given duel.
type Engine struct {
	rules Rules
	rng   RNG
	now   func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(rules Rules, rng RNG, opts ...Option) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	if rng == nil {
		rng = NewRNG(NewSeed())
	}
	e := &Engine{rules: rules, rng: rng, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Rules() Rules { return e.rules }

// NewDuel creates a pending invite from challenger a to b.
func (e *Engine) NewDuel(id, room, a, nameA, b, nameB string, doubleOrNothing bool) (*Duel, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return nil, fmt.Errorf("%w: challenger=%q target=%q", ErrInvalidTarget, a, b)
	}
	now := e.now()
	maxHP := e.rules.MaxHPFor(1)
	d := &Duel{
		ID:              id,
		Room:            room,
		PlayerA:         a,
		PlayerB:         b,
		NameA:           nameA,
		NameB:           nameB,
		Round:           1,
		MaxHP:           maxHP,
		HP:              map[string]int{a: maxHP, b: maxHP},
		Inventory:       map[string][]Item{a: {}, b: {}},
		Effects:         map[string]*Effects{a: {}, b: {}},
		CurrentTurn:     a,
		Scores:          map[string]int{a: 0, b: 0},
		Usage:           map[string]map[Item]int{a: {}, b: {}},
		Status:          StatusPending,
		DoubleOrNothing: doubleOrNothing,
		CreatedAt:       now,
	}
	e.touch(d)
	return d, nil
}

// Accept activates a pending invite. Only the invited player may accept.
func (e *Engine) Accept(d *Duel, responder string) (*Outcome, error) {
	if d.Status != StatusPending {
		return nil, ErrDuelNotActive
	}
	if responder != d.PlayerB {
		return nil, ErrNotParticipant
	}
	out := &Outcome{}
	d.Status = StatusActive
	out.add(Event{Kind: EventAccepted, Actor: responder, Target: d.PlayerA})
	e.startRound(d, 1, out)
	out.TurnContinues = true
	e.touch(d)
	return out, nil
}

// Decline ends a pending invite. Either participant may decline (the challenger cancels).
func (e *Engine) Decline(d *Duel, responder string) (*Outcome, error) {
	if d.Status != StatusPending {
		return nil, ErrDuelNotActive
	}
	if !d.IsParticipant(responder) {
		return nil, ErrNotParticipant
	}
	out := &Outcome{}
	out.add(Event{Kind: EventDeclined, Actor: responder})
	e.finish(d, "", EndDeclined, out)
	e.touch(d)
	return out, nil
}

func (e *Engine) checkTurn(d *Duel, player string) error {
	if d.Status != StatusActive {
		return ErrDuelNotActive
	}
	if !d.IsParticipant(player) {
		return ErrNotParticipant
	}
	if d.CurrentTurn != player {
		return ErrNotYourTurn
	}
	return nil
}

// Shoot fires the front bullet at target (the shooter or the opponent).
func (e *Engine) Shoot(d *Duel, shooter, target string) (*Outcome, error) {
	if err := e.checkTurn(d, shooter); err != nil {
		return nil, err
	}
	if !d.IsParticipant(target) {
		return nil, fmt.Errorf("%w: %q is not in this duel", ErrInvalidTarget, target)
	}
	out := &Outcome{}

	// Empty chamber: reload only, the shooter acts again.
	if len(d.Chamber) == 0 {
		e.reload(d, out)
		out.TurnContinues = true
		e.touch(d)
		return out, nil
	}

	bullet := d.Chamber[0]
	d.Chamber = d.Chamber[1:]

	eff := d.effects(shooter)
	damage := 1
	if eff.Knife {
		damage = 2
	}
	eff.Knife = false
	cuffed := eff.Cuffed
	eff.Cuffed = false

	shot := Event{Kind: EventShot, Actor: shooter, Target: target, Bullet: bullet, HP: d.HP[target]}
	extraTurn := false
	if bullet == Live {
		before := d.HP[target]
		after := before - damage
		if d.Round >= e.rules.MaxRounds && before <= 2 {
			after = 0
		}
		if after < 0 {
			after = 0
		}
		d.HP[target] = after
		shot.Amount = before - after
		shot.HP = after
	} else if target == shooter {
		extraTurn = true
	}
	out.add(shot)

	if d.HP[target] == 0 {
		if err := e.endRound(d, d.Opponent(target), out); err != nil {
			return nil, err
		}
		e.touch(d)
		return out, nil
	}

	if e.needsReload(d) {
		e.reload(d, out)
	}

	switch {
	case extraTurn:
		out.TurnContinues = true
		out.add(Event{Kind: EventExtraTurn, Actor: shooter})
	case cuffed && target != shooter && e.rules.RestraintMode == RestraintKeepTurn:
		out.TurnContinues = true
		out.add(Event{Kind: EventTurnKept, Actor: shooter, Item: ItemRestraint})
	default:
		out.TurnContinues = e.passTurn(d, shooter, out)
	}
	e.touch(d)
	return out, nil
}

// passTurn hands the turn to the opponent unless the opponent holds skip stacks.
// Returns true when the shooter keeps the turn.
func (e *Engine) passTurn(d *Duel, from string, out *Outcome) bool {
	opp := d.Opponent(from)
	if e.rules.RestraintMode == RestraintSkipStacks {
		if oe := d.effects(opp); oe.CuffStacks > 0 {
			oe.CuffStacks--
			out.add(Event{Kind: EventTurnKept, Actor: from, Target: opp, Item: ItemRestraint, Amount: oe.CuffStacks})
			return true
		}
	}
	d.CurrentTurn = opp
	out.add(Event{Kind: EventTurnSwitch, Actor: opp})
	return false
}

// UseItem consumes one held item. steal names the opponent's item when item is the extractor.
func (e *Engine) UseItem(d *Duel, user string, item Item, target string, steal Item) (*Outcome, error) {
	if err := e.checkTurn(d, user); err != nil {
		return nil, err
	}
	if !item.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownItem, item)
	}
	if !d.Holds(user, item) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotHeld, item)
	}
	opp := d.Opponent(user)
	if item.Targeted() {
		if target == "" {
			target = opp
		}
		if target != opp {
			return nil, fmt.Errorf("%w: %s must target the opponent", ErrInvalidTarget, item)
		}
	}
	out := &Outcome{TurnContinues: true}

	if eff := d.effects(user); eff.Jammed {
		eff.Jammed = false
		d.removeItem(user, item)
		out.add(Event{Kind: EventNullified, Actor: user, Item: item})
		e.touch(d)
		return out, nil
	}

	// The item leaves the inventory before it acts so a reload it triggers can re-grant the kind.
	idx := d.takeItem(user, item)
	used, err := e.resolve(d, user, opp, item, steal, out)
	if err != nil {
		d.restoreItem(user, item, idx)
		return nil, err
	}
	if !used {
		d.restoreItem(user, item, idx)
		e.touch(d)
		return out, nil
	}
	d.recordUsage(user, item)

	if d.HP[user] == 0 {
		out.TurnContinues = false
		if err := e.endRound(d, opp, out); err != nil {
			return nil, err
		}
	}
	e.touch(d)
	return out, nil
}

// Forfeit ends an active duel in the opponent's favour.
func (e *Engine) Forfeit(d *Duel, player string) (*Outcome, error) {
	if d.Status != StatusActive {
		return nil, ErrDuelNotActive
	}
	if !d.IsParticipant(player) {
		return nil, ErrNotParticipant
	}
	out := &Outcome{}
	e.finish(d, d.Opponent(player), EndForfeit, out)
	e.touch(d)
	return out, nil
}

// Expire ends an idle duel without a winner.
func (e *Engine) Expire(d *Duel) *Outcome { return e.abort(d, EndTimeout) }

// Reset ends a duel on operator request without a winner.
func (e *Engine) Reset(d *Duel) *Outcome { return e.abort(d, EndReset) }

// Abort ends a duel whose state can no longer be trusted.
func (e *Engine) Abort(d *Duel) *Outcome { return e.abort(d, EndCorrupt) }

func (e *Engine) abort(d *Duel, reason EndReason) *Outcome {
	out := &Outcome{}
	if d.Status == StatusEnded {
		return out
	}
	e.finish(d, "", reason, out)
	e.touch(d)
	return out
}

// StartNewRound advances to the next round. Returns false when the round cap is reached.
func (e *Engine) StartNewRound(d *Duel) ([]Event, bool) {
	events, ok := e.nextRound(d)
	if ok {
		e.touch(d)
	}
	return events, ok
}

func (e *Engine) nextRound(d *Duel) ([]Event, bool) {
	if d.Round+1 > e.rules.MaxRounds {
		return nil, false
	}
	out := &Outcome{}
	e.startRound(d, d.Round+1, out)
	return out.Events, true
}

func (e *Engine) startRound(d *Duel, round int, out *Outcome) {
	d.Round = round
	d.MaxHP = e.rules.MaxHPFor(round)
	d.Chamber = nil
	for _, p := range d.Players() {
		d.HP[p] = d.MaxHP
		d.Inventory[p] = []Item{}
		d.Effects[p] = &Effects{}
	}
	// Odd rounds open with the challenger.
	if round%2 == 1 {
		d.CurrentTurn = d.PlayerA
	} else {
		d.CurrentTurn = d.PlayerB
	}
	out.add(Event{Kind: EventRoundStart, Round: round, Amount: d.MaxHP, Actor: d.CurrentTurn})
	e.reload(d, out)
}

// endRound awards the round and either finishes the match or opens the next round.
func (e *Engine) endRound(d *Duel, winner string, out *Outcome) error {
	if d.Scores == nil {
		d.Scores = map[string]int{}
	}
	d.Scores[winner]++
	out.RoundOver = true
	out.RoundWinner = winner
	out.TurnContinues = false
	out.add(Event{Kind: EventRoundWon, Actor: winner, Round: d.Round, Amount: d.Scores[winner]})

	if e.checkGameEnd(d, out) {
		return nil
	}
	events, ok := e.nextRound(d)
	if !ok {
		return fmt.Errorf("%w: round=%d max=%d", ErrRoundCapExceeded, d.Round, e.rules.MaxRounds)
	}
	out.Events = append(out.Events, events...)
	return nil
}

// checkGameEnd finishes the match on a majority or at the round cap. A tied cap is a draw.
func (e *Engine) checkGameEnd(d *Duel, out *Outcome) bool {
	a, b := d.Scores[d.PlayerA], d.Scores[d.PlayerB]
	majority := e.rules.Majority()
	switch {
	case a >= majority:
		e.finish(d, d.PlayerA, EndMajority, out)
	case b >= majority:
		e.finish(d, d.PlayerB, EndMajority, out)
	case d.Round >= e.rules.MaxRounds:
		winner := ""
		if a > b {
			winner = d.PlayerA
		} else if b > a {
			winner = d.PlayerB
		}
		e.finish(d, winner, EndRoundCap, out)
	default:
		return false
	}
	return true
}

func (e *Engine) finish(d *Duel, winner string, reason EndReason, out *Outcome) {
	d.Status = StatusEnded
	d.Winner = winner
	d.EndReason = reason
	out.MatchOver = true
	out.Winner = winner
	out.TurnContinues = false
	if winner != "" {
		out.Prize = e.CalculatePrize(d, winner)
	}
	out.add(Event{Kind: EventMatchEnd, Actor: winner, Reason: string(reason), Prize: out.Prize})
}

func (e *Engine) touch(d *Duel) {
	d.Version++
	d.UpdatedAt = e.now()
}

// HidesHP reports whether a player's hp is concealed from the opponent (final round, hp at 2 or less).
func (e *Engine) HidesHP(d *Duel, player string) bool {
	return d.Status == StatusActive && d.Round >= e.rules.MaxRounds && d.HP[player] <= 2
}
