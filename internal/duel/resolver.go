package duel

import "fmt"

// resolve applies one item effect. It returns false when a precondition fails, in which
// case the item stays in the user's inventory. The caller removes the item on success.
func (e *Engine) resolve(d *Duel, user, opp string, item Item, steal Item, out *Outcome) (bool, error) {
	unusable := func(reason string) (bool, error) {
		out.add(Event{Kind: EventUnusable, Actor: user, Item: item, Reason: reason})
		return false, nil
	}

	if reason := e.blocked(d, user, opp, item); reason != "" {
		return unusable(reason)
	}

	switch item {
	case ItemDrink:
		b := d.Chamber[0]
		d.Chamber = d.Chamber[1:]
		out.add(Event{Kind: EventEject, Actor: user, Item: item, Bullet: b})
		if e.needsReload(d) {
			e.reload(d, out)
		}

	case ItemMagnifier:
		out.add(Event{Kind: EventPeek, Actor: user, Item: item, Bullet: d.Chamber[0]})

	case ItemStimulant:
		hp := d.HP[user]
		d.HP[user] = hp + 1
		out.add(Event{Kind: EventHeal, Actor: user, Item: item, Amount: 1, HP: d.HP[user]})

	case ItemBlade:
		d.effects(user).Knife = true
		out.add(Event{Kind: EventKnifeReady, Actor: user, Item: item})

	case ItemRestraint:
		ev := Event{Kind: EventRestrained, Actor: user, Target: opp, Item: item}
		if e.rules.RestraintMode == RestraintSkipStacks {
			oe := d.effects(opp)
			oe.CuffStacks++
			ev.Amount = oe.CuffStacks
		} else {
			d.effects(user).Cuffed = true
		}
		out.add(ev)

	case ItemExtractor:
		if steal == "" || !steal.Stealable() {
			return false, fmt.Errorf("%w: choose an item to steal", ErrInvalidTarget)
		}
		if !d.Holds(opp, steal) {
			return false, fmt.Errorf("%w: opponent has no %s", ErrItemNotHeld, steal)
		}
		// A stolen item that could not act stays with its owner and the extractor is kept.
		if reason := e.blocked(d, user, opp, steal); reason != "" {
			out.add(Event{Kind: EventUnusable, Actor: user, Item: steal, Reason: reason})
			return false, nil
		}
		d.removeItem(opp, steal)
		out.add(Event{Kind: EventStolen, Actor: user, Target: opp, Item: steal})
		// The stolen item acts for the thief against its former owner.
		if used, err := e.resolve(d, user, opp, steal, "", out); err != nil {
			return false, err
		} else if used {
			d.recordUsage(user, steal)
		}

	case ItemOracle:
		n := len(d.Chamber)
		switch {
		case n >= 3:
			out.add(Event{Kind: EventOracle, Actor: user, Item: item, Bullet: d.Chamber[n-1], Amount: n})
		default:
			out.add(Event{Kind: EventTeaser, Actor: user, Item: item})
		}

	case ItemInverter:
		if d.Chamber[0] == Live {
			d.Chamber[0] = Blank
		} else {
			d.Chamber[0] = Live
		}
		out.add(Event{Kind: EventInverted, Actor: user, Item: item})

	case ItemRiskyTonic:
		hp := d.HP[user]
		if e.rng.Float64() < e.rules.TonicHealChance {
			d.HP[user] = min(d.MaxHP, hp+2)
			out.add(Event{Kind: EventHeal, Actor: user, Item: item, Amount: d.HP[user] - hp, HP: d.HP[user]})
		} else {
			d.HP[user] = max(0, hp-1)
			out.add(Event{Kind: EventHarm, Actor: user, Item: item, Amount: hp - d.HP[user], HP: d.HP[user]})
		}

	case ItemJammer:
		d.effects(opp).Jammed = true
		out.add(Event{Kind: EventJammed, Actor: user, Target: opp, Item: item})

	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownItem, item)
	}
	return true, nil
}

// blocked reports why item cannot act right now, or "" when it can.
func (e *Engine) blocked(d *Duel, user, opp string, item Item) string {
	switch item {
	case ItemDrink, ItemMagnifier, ItemInverter:
		if len(d.Chamber) == 0 {
			return ReasonEmptyChamber
		}
	case ItemStimulant:
		hp := d.HP[user]
		if hp >= d.MaxHP {
			return ReasonFullHP
		}
		if d.Round >= e.rules.MaxRounds && hp <= 2 {
			return ReasonLockedOut
		}
	case ItemExtractor:
		if !hasStealable(d, opp) {
			return ReasonNothingToTake
		}
	case ItemOracle:
		if len(d.Chamber) < 2 {
			return ReasonTooFew
		}
	}
	return ""
}

func hasStealable(d *Duel, player string) bool {
	for _, it := range d.Inventory[player] {
		if it.Stealable() {
			return true
		}
	}
	return false
}
