package duel

import "time"

type Status string

const (
	StatusPending Status = "PENDING_INVITE"
	StatusActive  Status = "ACTIVE"
	StatusEnded   Status = "ENDED"
)

type Bullet string

const (
	Live  Bullet = "LIVE"
	Blank Bullet = "BLANK"
)

// EndReason records why a duel reached StatusEnded.
type EndReason string

const (
	EndMajority EndReason = "majority"
	EndRoundCap EndReason = "round_cap"
	EndForfeit  EndReason = "forfeit"
	EndTimeout  EndReason = "timeout"
	EndDeclined EndReason = "declined"
	EndReset    EndReason = "reset"
	EndCorrupt  EndReason = "corrupt"
)

// Effects holds the latent modifiers of one player.
type Effects struct {
	Knife      bool `json:"knife"`
	Cuffed     bool `json:"cuffed"`
	CuffStacks int  `json:"cuffStacks"`
	Jammed     bool `json:"jammed"`
}

type Duel struct {
	ID              string                  `json:"id"`
	Room            string                  `json:"room"`
	PlayerA         string                  `json:"playerA"`
	PlayerB         string                  `json:"playerB"`
	NameA           string                  `json:"nameA"`
	NameB           string                  `json:"nameB"`
	Round           int                     `json:"round"`
	MaxHP           int                     `json:"maxHp"`
	HP              map[string]int          `json:"hp"`
	Chamber         []Bullet                `json:"chamber"`
	Inventory       map[string][]Item       `json:"inventory"`
	Effects         map[string]*Effects     `json:"effects"`
	CurrentTurn     string                  `json:"currentTurn"`
	Scores          map[string]int          `json:"scores"`
	Usage           map[string]map[Item]int `json:"usage"`
	Status          Status                  `json:"status"`
	DoubleOrNothing bool                    `json:"doubleOrNothing"`
	Winner          string                  `json:"winner,omitempty"`
	EndReason       EndReason               `json:"endReason,omitempty"`
	Version         int64                   `json:"version"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

// Opponent returns the other participant, or "" when player is not in the duel.
func (d *Duel) Opponent(player string) string {
	switch player {
	case d.PlayerA:
		return d.PlayerB
	case d.PlayerB:
		return d.PlayerA
	default:
		return ""
	}
}

func (d *Duel) IsParticipant(player string) bool {
	return player != "" && (player == d.PlayerA || player == d.PlayerB)
}

func (d *Duel) Name(player string) string {
	switch player {
	case d.PlayerA:
		if d.NameA != "" {
			return d.NameA
		}
	case d.PlayerB:
		if d.NameB != "" {
			return d.NameB
		}
	}
	return player
}

func (d *Duel) Players() [2]string { return [2]string{d.PlayerA, d.PlayerB} }

// Remaining counts live and blank bullets left in the chamber.
func (d *Duel) Remaining() (live, blank int) {
	for _, b := range d.Chamber {
		if b == Live {
			live++
		} else {
			blank++
		}
	}
	return live, blank
}

func (d *Duel) effects(player string) *Effects {
	if d.Effects == nil {
		d.Effects = map[string]*Effects{}
	}
	e, ok := d.Effects[player]
	if !ok || e == nil {
		e = &Effects{}
		d.Effects[player] = e
	}
	return e
}

// EffectsOf returns a copy of the player's modifiers.
func (d *Duel) EffectsOf(player string) Effects {
	if e, ok := d.Effects[player]; ok && e != nil {
		return *e
	}
	return Effects{}
}

func (d *Duel) Holds(player string, item Item) bool {
	for _, it := range d.Inventory[player] {
		if it == item {
			return true
		}
	}
	return false
}

func (d *Duel) removeItem(player string, item Item) bool {
	return d.takeItem(player, item) >= 0
}

// takeItem removes the first occurrence of item and returns its index, or -1.
func (d *Duel) takeItem(player string, item Item) int {
	inv := d.Inventory[player]
	for i, it := range inv {
		if it == item {
			d.Inventory[player] = append(inv[:i:i], inv[i+1:]...)
			return i
		}
	}
	return -1
}

func (d *Duel) restoreItem(player string, item Item, idx int) {
	inv := d.Inventory[player]
	if idx < 0 || idx > len(inv) {
		idx = len(inv)
	}
	out := make([]Item, 0, len(inv)+1)
	out = append(out, inv[:idx]...)
	out = append(out, item)
	d.Inventory[player] = append(out, inv[idx:]...)
}

func (d *Duel) recordUsage(player string, item Item) {
	if !item.HasEconomyCost() {
		return
	}
	if d.Usage == nil {
		d.Usage = map[string]map[Item]int{}
	}
	if d.Usage[player] == nil {
		d.Usage[player] = map[Item]int{}
	}
	d.Usage[player][item]++
}

// Clone deep-copies the aggregate so a mutation can be discarded on persist failure.
func (d *Duel) Clone() *Duel {
	if d == nil {
		return nil
	}
	c := *d
	c.HP = copyIntMap(d.HP)
	c.Scores = copyIntMap(d.Scores)
	c.Chamber = append([]Bullet(nil), d.Chamber...)
	c.Inventory = make(map[string][]Item, len(d.Inventory))
	for p, inv := range d.Inventory {
		c.Inventory[p] = append([]Item(nil), inv...)
	}
	c.Effects = make(map[string]*Effects, len(d.Effects))
	for p, e := range d.Effects {
		if e == nil {
			continue
		}
		ce := *e
		c.Effects[p] = &ce
	}
	c.Usage = make(map[string]map[Item]int, len(d.Usage))
	for p, u := range d.Usage {
		cu := make(map[Item]int, len(u))
		for k, v := range u {
			cu[k] = v
		}
		c.Usage[p] = cu
	}
	return &c
}

func copyIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
