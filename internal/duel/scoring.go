package duel

import (
	"context"
	"fmt"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/domain"
)

// Ledger is the economy sink written once per settled duel.
type Ledger interface {
	GetTotals(ctx context.Context, playerID string) (*domain.Wallet, error)
	ApplySettlement(ctx context.Context, playerID string, prizeDelta int64, usageDelta map[string]int) error
}

// ResultRecorder is implemented by ledgers that also archive duel results.
type ResultRecorder interface {
	SaveResult(ctx context.Context, rec domain.DuelRecord) error
}

// CalculatePrize is the base reward minus the winner's own usage penalties, floored at zero.
func (e *Engine) CalculatePrize(d *Duel, winner string) int64 {
	prize := e.rules.BasePrize
	if d.DoubleOrNothing {
		prize *= e.rules.DoubleOrNothingMultiplier
	}
	for item, n := range d.Usage[winner] {
		prize -= e.rules.Penalties[item] * int64(n)
	}
	if prize < 0 {
		return 0
	}
	return prize
}

type SettlementEntry struct {
	PlayerID   string
	PrizeDelta int64
	Usage      map[string]int
	applied    bool
}

// Settlement is the ledger write-set of an ended duel. Apply is resumable: entries already
// written are skipped when it is retried after a partial failure.
type Settlement struct {
	Entries  []SettlementEntry
	Record   domain.DuelRecord
	recorded bool
}

// Settle builds the settlement for an ended duel. Timeouts, declines and resets carry no
// settlement and return nil.
func (e *Engine) Settle(d *Duel) (*Settlement, error) {
	if d.Status != StatusEnded {
		return nil, fmt.Errorf("%w: settle before end", ErrDuelNotActive)
	}
	switch d.EndReason {
	case EndMajority, EndRoundCap, EndForfeit:
	default:
		return nil, nil
	}

	var prize int64
	if d.Winner != "" {
		prize = e.CalculatePrize(d, d.Winner)
	}
	s := &Settlement{Record: RecordOf(d, prize)}
	for _, p := range d.Players() {
		entry := SettlementEntry{PlayerID: p, Usage: map[string]int{}}
		if p == d.Winner {
			entry.PrizeDelta = prize
		}
		for item, n := range d.Usage[p] {
			if n > 0 {
				entry.Usage[string(item)] = n
			}
		}
		s.Entries = append(s.Entries, entry)
	}
	return s, nil
}

// Done reports whether every entry and the result record have been written.
func (s *Settlement) Done() bool {
	if s == nil {
		return true
	}
	for _, en := range s.Entries {
		if !en.applied {
			return false
		}
	}
	return s.recorded
}

func (s *Settlement) Apply(ctx context.Context, l Ledger) error {
	if s == nil || l == nil {
		return nil
	}
	for i := range s.Entries {
		en := &s.Entries[i]
		if en.applied {
			continue
		}
		if err := l.ApplySettlement(ctx, en.PlayerID, en.PrizeDelta, en.Usage); err != nil {
			return fmt.Errorf("apply settlement for %s: %w", en.PlayerID, err)
		}
		en.applied = true
	}
	if s.recorded {
		return nil
	}
	if rec, ok := l.(ResultRecorder); ok {
		if err := rec.SaveResult(ctx, s.Record); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
	}
	s.recorded = true
	return nil
}

// RecordOf builds the archived result row of d.
func RecordOf(d *Duel, prize int64) domain.DuelRecord {
	return domain.DuelRecord{
		DuelID:          d.ID,
		Room:            d.Room,
		PlayerA:         d.PlayerA,
		NameA:           d.NameA,
		PlayerB:         d.PlayerB,
		NameB:           d.NameB,
		Winner:          d.Winner,
		ScoreA:          d.Scores[d.PlayerA],
		ScoreB:          d.Scores[d.PlayerB],
		Rounds:          d.Round,
		Prize:           prize,
		DoubleOrNothing: d.DoubleOrNothing,
		EndReason:       string(d.EndReason),
		StartedAt:       d.CreatedAt,
		EndedAt:         d.UpdatedAt,
	}
}
