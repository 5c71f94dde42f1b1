package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/domain"
)

type backend interface {
	GetTotals(ctx context.Context, playerID string) (*domain.Wallet, error)
	ApplySettlement(ctx context.Context, playerID string, prizeDelta int64, usageDelta map[string]int) error
	SaveResult(ctx context.Context, r domain.DuelRecord) error
	RecentResults(ctx context.Context, playerID string, limit int) ([]domain.DuelRecord, error)
	Close() error
}

func backends(t *testing.T) map[string]backend {
	t.Helper()
	sq, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]backend{
		"sqlite": sq,
		"memory": NewMemory(),
	}
}

func TestApplySettlementAccumulates(t *testing.T) {
	ctx := context.Background()
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			w, err := l.GetTotals(ctx, "alice")
			require.NoError(t, err)
			require.Zero(t, w.Total)
			require.Empty(t, w.Usage)

			require.NoError(t, l.ApplySettlement(ctx, "alice", 69010, map[string]int{"drink": 2}))
			require.NoError(t, l.ApplySettlement(ctx, "alice", 0, map[string]int{"drink": 1, "extractor": 1}))

			w, err = l.GetTotals(ctx, "alice")
			require.NoError(t, err)
			require.Equal(t, int64(69010), w.Total)
			require.Equal(t, map[string]int{"drink": 3, "extractor": 1}, w.Usage)
			require.False(t, w.UpdatedAt.IsZero())

			require.ErrorIs(t, l.ApplySettlement(ctx, " ", 1, nil), ErrInvalidPlayer)
		})
	}
}

func TestResultsNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"d1", "d2", "d3"} {
				rec := domain.DuelRecord{
					DuelID: id, Room: "room", PlayerA: "alice", PlayerB: "bob", Winner: "alice",
					ScoreA: 2, ScoreB: i % 2, Rounds: 2 + i%2, Prize: 70000, DoubleOrNothing: i == 2,
					EndReason: "majority", StartedAt: base, EndedAt: base.Add(time.Duration(i) * time.Minute),
				}
				require.NoError(t, l.SaveResult(ctx, rec))
			}
			// replay is ignored
			require.NoError(t, l.SaveResult(ctx, domain.DuelRecord{DuelID: "d1", Room: "room", PlayerA: "alice", PlayerB: "bob", EndReason: "majority"}))

			got, err := l.RecentResults(ctx, "bob", 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			require.Equal(t, "d3", got[0].DuelID)
			require.True(t, got[0].DoubleOrNothing)
			require.Equal(t, "d2", got[1].DuelID)
			require.Equal(t, base.Add(time.Minute).UnixMilli(), got[1].EndedAt.UnixMilli())

			none, err := l.RecentResults(ctx, "carol", 5)
			require.NoError(t, err)
			require.Empty(t, none)
		})
	}
}

func TestRebindPostgres(t *testing.T) {
	l := &SQLLedger{dialect: dialectPostgres}
	require.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", l.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	sq := &SQLLedger{dialect: dialectSQLite}
	require.Equal(t, "x = ?", sq.rebind("x = ?"))
}
