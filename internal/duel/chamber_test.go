package duel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewChamberComposition(t *testing.T) {
	rng := NewRNG(42)
	for i := 0; i < 300; i++ {
		c := NewChamber(rng, 1)
		d := &Duel{Chamber: c}
		live, blank := d.Remaining()
		require.Equal(t, 2, blank)
		require.GreaterOrEqual(t, live, 1)
		require.LessOrEqual(t, live, 3)
	}
	for _, round := range []int{2, 3} {
		for i := 0; i < 300; i++ {
			c := NewChamber(rng, round)
			d := &Duel{Chamber: c}
			live, blank := d.Remaining()
			require.GreaterOrEqual(t, len(c), 2)
			require.LessOrEqual(t, len(c), 8)
			require.GreaterOrEqual(t, live, 1)
			require.LessOrEqual(t, live, 4)
			require.GreaterOrEqual(t, blank, 1)
		}
	}
}

func TestAssignItemsDistinctAndCapped(t *testing.T) {
	e := newTestEngine(t, DefaultRules(), NewRNG(3))
	d := &Duel{PlayerA: alice, PlayerB: bob, Inventory: map[string][]Item{}}

	for i := 0; i < 50; i++ {
		d.Inventory[alice] = []Item{ItemDrink}
		granted := e.assignItems(d, alice, 4)
		require.Len(t, granted, 4)
		seen := map[Item]bool{}
		for _, it := range granted {
			require.False(t, seen[it], "duplicate %s", it)
			require.NotEqual(t, ItemDrink, it)
			require.NotEqual(t, ItemRiskyTonic, it)
			seen[it] = true
		}
	}

	d.Inventory[alice] = []Item{ItemDrink, ItemDrink, ItemBlade, ItemBlade, ItemJammer, ItemJammer, ItemOracle}
	granted := e.assignItems(d, alice, 4)
	require.Len(t, granted, 1)
	require.Len(t, d.Inventory[alice], 8)
	require.Empty(t, e.assignItems(d, alice, 2))
}

func TestAssignItemsGrantsAllEligible(t *testing.T) {
	e := newTestEngine(t, DefaultRules(), &scriptRNG{})
	d := &Duel{PlayerA: alice, PlayerB: bob, DoubleOrNothing: true, Inventory: map[string][]Item{
		alice: {ItemDrink, ItemMagnifier, ItemStimulant, ItemBlade, ItemRestraint, ItemExtractor, ItemOracle},
	}}
	granted := e.assignItems(d, alice, 4)
	require.Equal(t, []Item{ItemInverter}, granted)

	d.Inventory[bob] = nil
	granted = e.assignItems(d, bob, 10)
	require.Len(t, granted, 8)
	require.Contains(t, Pool(true), ItemRiskyTonic)
	require.NotContains(t, Pool(false), ItemRiskyTonic)
}

func TestParseItemAliases(t *testing.T) {
	tests := map[string]Item{
		"맥주":          ItemDrink,
		"drink":       ItemDrink,
		" 수갑 ":        ItemRestraint,
		"상한 약":        ItemRiskyTonic,
		"RISKY_TONIC": ItemRiskyTonic,
		"버너폰":         ItemOracle,
	}
	for in, want := range tests {
		got, ok := ParseItem(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	_, ok := ParseItem("banana")
	require.False(t, ok)
}
