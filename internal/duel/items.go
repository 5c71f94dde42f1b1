package duel

import "strings"

type Item string

const (
	ItemDrink      Item = "drink"
	ItemMagnifier  Item = "magnifier"
	ItemStimulant  Item = "stimulant"
	ItemBlade      Item = "blade"
	ItemRestraint  Item = "restraint"
	ItemExtractor  Item = "extractor"
	ItemOracle     Item = "oracle"
	ItemInverter   Item = "inverter"
	ItemRiskyTonic Item = "risky_tonic"
	ItemJammer     Item = "jammer"
)

// basePool is the draw pool in display order. Risky tonic joins only in double-or-nothing.
var basePool = []Item{
	ItemDrink,
	ItemMagnifier,
	ItemStimulant,
	ItemBlade,
	ItemRestraint,
	ItemExtractor,
	ItemOracle,
	ItemInverter,
	ItemJammer,
}

func Pool(doubleOrNothing bool) []Item {
	pool := append([]Item(nil), basePool...)
	if doubleOrNothing {
		pool = append(pool, ItemRiskyTonic)
	}
	return pool
}

// Stealable reports whether an extractor may take the item. Extractor itself is never stealable,
// which bounds theft to a single nested resolution.
func (i Item) Stealable() bool { return i != ItemExtractor && i.Valid() }

// HasEconomyCost marks items whose use is deducted from the prize.
func (i Item) HasEconomyCost() bool {
	switch i {
	case ItemStimulant, ItemDrink, ItemExtractor:
		return true
	default:
		return false
	}
}

// Targeted items act on the opponent.
func (i Item) Targeted() bool {
	switch i {
	case ItemRestraint, ItemJammer, ItemExtractor:
		return true
	default:
		return false
	}
}

func (i Item) Valid() bool {
	if i == ItemRiskyTonic {
		return true
	}
	for _, it := range basePool {
		if it == i {
			return true
		}
	}
	return false
}

var itemAliases = map[string]Item{
	"맥주":        ItemDrink,
	"beer":      ItemDrink,
	"돋보기":       ItemMagnifier,
	"담배":        ItemStimulant,
	"cigarette": ItemStimulant,
	"칼":         ItemBlade,
	"knife":     ItemBlade,
	"수갑":        ItemRestraint,
	"handcuff":  ItemRestraint,
	"주사기":       ItemExtractor,
	"syringe":   ItemExtractor,
	"버너폰":       ItemOracle,
	"phone":     ItemOracle,
	"인버터":       ItemInverter,
	"상한약":       ItemRiskyTonic,
	"tonic":     ItemRiskyTonic,
	"재머":        ItemJammer,
}

// ParseItem accepts canonical names and the chat aliases ("맥주", "수갑", ...).
func ParseItem(s string) (Item, bool) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if key == "" {
		return "", false
	}
	if it := Item(key); it.Valid() {
		return it, true
	}
	it, ok := itemAliases[key]
	return it, ok
}
