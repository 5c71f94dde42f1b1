package duel

// assignItems grants up to count distinct kinds the player does not already hold,
// stopping at inventory capacity. Returns what was granted.
func (e *Engine) assignItems(d *Duel, player string, count int) []Item {
	if d.Inventory == nil {
		d.Inventory = map[string][]Item{}
	}
	room := e.rules.Capacity - len(d.Inventory[player])
	if count > room {
		count = room
	}
	if count <= 0 {
		return nil
	}

	eligible := make([]Item, 0, len(basePool)+1)
	for _, it := range Pool(d.DoubleOrNothing) {
		if !d.Holds(player, it) {
			eligible = append(eligible, it)
		}
	}
	e.rng.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	if count > len(eligible) {
		count = len(eligible)
	}

	granted := append([]Item(nil), eligible[:count]...)
	d.Inventory[player] = append(d.Inventory[player], granted...)
	return granted
}
