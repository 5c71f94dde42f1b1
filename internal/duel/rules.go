package duel

import (
	"fmt"
	"time"
)

type ReloadPolicy string

const (
	// ReloadWhenEmpty regenerates the chamber only after the last bullet is gone.
	ReloadWhenEmpty ReloadPolicy = "empty"
	// ReloadOnThreshold also regenerates once ReloadThreshold bullets of one kind remain.
	ReloadOnThreshold ReloadPolicy = "threshold"
)

type RestraintMode string

const (
	// RestraintKeepTurn lets the user's next shot at the opponent keep the turn.
	RestraintKeepTurn RestraintMode = "keep_turn"
	// RestraintSkipStacks gives the opponent skip stacks consumed on each turn switch.
	RestraintSkipStacks RestraintMode = "skip_stacks"
)

type Rules struct {
	MaxRounds       int
	Capacity        int
	MaxHPByRound    []int
	ItemsByRound    []int
	ReloadPolicy    ReloadPolicy
	ReloadThreshold int
	RestraintMode   RestraintMode
	TonicHealChance float64

	BasePrize                 int64
	Penalties                 map[Item]int64
	DoubleOrNothingMultiplier int64

	IdleTimeout time.Duration
}

func DefaultRules() Rules {
	return Rules{
		MaxRounds:       3,
		Capacity:        8,
		MaxHPByRound:    []int{2, 4, 6},
		ItemsByRound:    []int{2, 2, 4},
		ReloadPolicy:    ReloadWhenEmpty,
		ReloadThreshold: 2,
		RestraintMode:   RestraintKeepTurn,
		TonicHealChance: 0.5,
		BasePrize:       70000,
		Penalties: map[Item]int64{
			ItemStimulant: 220,
			ItemDrink:     495,
			ItemExtractor: 3000,
		},
		DoubleOrNothingMultiplier: 2,
		IdleTimeout:               300 * time.Second,
	}
}

func (r Rules) Validate() error {
	if r.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be positive: %d", r.MaxRounds)
	}
	if r.Capacity < 1 {
		return fmt.Errorf("inventory capacity must be positive: %d", r.Capacity)
	}
	if len(r.MaxHPByRound) == 0 || len(r.ItemsByRound) == 0 {
		return fmt.Errorf("per-round hp and item tables are required")
	}
	for _, hp := range r.MaxHPByRound {
		if hp < 1 {
			return fmt.Errorf("max hp must be positive: %v", r.MaxHPByRound)
		}
	}
	switch r.ReloadPolicy {
	case ReloadWhenEmpty:
	case ReloadOnThreshold:
		if r.ReloadThreshold < 1 {
			return fmt.Errorf("reload threshold must be positive: %d", r.ReloadThreshold)
		}
	default:
		return fmt.Errorf("unknown reload policy %q", r.ReloadPolicy)
	}
	switch r.RestraintMode {
	case RestraintKeepTurn, RestraintSkipStacks:
	default:
		return fmt.Errorf("unknown restraint mode %q", r.RestraintMode)
	}
	if r.TonicHealChance < 0 || r.TonicHealChance > 1 {
		return fmt.Errorf("tonic heal chance out of range: %v", r.TonicHealChance)
	}
	if r.BasePrize < 0 || r.DoubleOrNothingMultiplier < 1 {
		return fmt.Errorf("invalid prize settings base=%d multiplier=%d", r.BasePrize, r.DoubleOrNothingMultiplier)
	}
	return nil
}

// Majority is the number of round wins that ends the match early.
func (r Rules) Majority() int { return r.MaxRounds/2 + 1 }

func (r Rules) MaxHPFor(round int) int { return perRound(r.MaxHPByRound, round) }

func (r Rules) ItemsFor(round int) int { return perRound(r.ItemsByRound, round) }

// perRound indexes a 1-based table, repeating the last entry past its end.
func perRound(table []int, round int) int {
	if len(table) == 0 {
		return 0
	}
	idx := round - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(table) {
		idx = len(table) - 1
	}
	return table[idx]
}
