package duel

// NewChamber loads a shuffled sequence for round. Round 1 holds 1-3 live and two blanks;
// later rounds hold 2-8 bullets with at least one of each kind and at most four live.
func NewChamber(rng RNG, round int) []Bullet {
	var live, blank int
	if round <= 1 {
		live = between(rng, 1, 3)
		blank = 2
	} else {
		total := between(rng, 2, 8)
		live = between(rng, 1, min(4, total-1))
		blank = total - live
	}

	chamber := make([]Bullet, 0, live+blank)
	for i := 0; i < live; i++ {
		chamber = append(chamber, Live)
	}
	for i := 0; i < blank; i++ {
		chamber = append(chamber, Blank)
	}
	rng.Shuffle(len(chamber), func(i, j int) { chamber[i], chamber[j] = chamber[j], chamber[i] })
	return chamber
}

// needsReload applies the configured policy after a bullet leaves the chamber.
func (e *Engine) needsReload(d *Duel) bool {
	if len(d.Chamber) == 0 {
		return true
	}
	if e.rules.ReloadPolicy != ReloadOnThreshold {
		return false
	}
	live, blank := d.Remaining()
	return live >= e.rules.ReloadThreshold || blank >= e.rules.ReloadThreshold
}

// reload replaces the chamber and grants the round's item batch to both players.
func (e *Engine) reload(d *Duel, out *Outcome) {
	d.Chamber = NewChamber(e.rng, d.Round)
	live, blank := d.Remaining()
	out.Reloaded = true
	out.add(Event{Kind: EventReload, Live: live, Blank: blank, Round: d.Round})

	count := e.rules.ItemsFor(d.Round)
	for _, p := range d.Players() {
		granted := e.assignItems(d, p, count)
		out.add(Event{Kind: EventItemsGranted, Actor: p, Items: granted, Amount: len(granted)})
	}
}
