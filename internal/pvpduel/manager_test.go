package pvpduel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duelstore"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/ledger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyStore fails Put while failPut is set.
type flakyStore struct {
	*duelstore.MemoryStore
	failPut atomic.Bool
	puts    atomic.Int32
}

func (s *flakyStore) Put(ctx context.Context, d *duel.Duel) error {
	s.puts.Add(1)
	if s.failPut.Load() {
		return errors.New("connection refused")
	}
	return s.MemoryStore.Put(ctx, d)
}

// stickyStore fails Delete while failDelete is set.
type stickyStore struct {
	*duelstore.MemoryStore
	failDelete atomic.Bool
}

func (s *stickyStore) Delete(ctx context.Context, id string) error {
	if s.failDelete.Load() {
		return errors.New("connection reset")
	}
	return s.MemoryStore.Delete(ctx, id)
}

// flakyLedger fails ApplySettlement while failures remain.
type flakyLedger struct {
	*ledger.Memory
	failures atomic.Int32
}

func (l *flakyLedger) ApplySettlement(ctx context.Context, playerID string, prize int64, usage map[string]int) error {
	if l.failures.Load() > 0 {
		l.failures.Add(-1)
		return errors.New("ledger down")
	}
	return l.Memory.ApplySettlement(ctx, playerID, prize, usage)
}

type harness struct {
	m      *Manager
	store  Store
	ledger Ledger
	clock  *fakeClock
}

func newHarness(t *testing.T, store Store, led Ledger, seed int64) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	engine, err := duel.NewEngine(duel.DefaultRules(), duel.NewRNG(seed), duel.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	seq := 0
	m, err := NewManager(engine, store, led, Config{
		MaxRetries:   2,
		RetryInitial: time.Millisecond,
		RetryMax:     2 * time.Millisecond,
		Now:          clock.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("duel-%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return &harness{m: m, store: store, ledger: led, clock: clock}
}

func newRedisHarness(t *testing.T, seed int64) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return newHarness(t, duelstore.NewRedisStore(rdb, time.Hour), ledger.NewMemory(), seed)
}

func (h *harness) start(t *testing.T, room, a, b string) *duel.Duel {
	t.Helper()
	ctx := context.Background()
	if _, err := h.m.Invite(ctx, InviteRequest{Room: room, ChallengerID: a, ChallengerName: a, TargetID: b, TargetName: b}); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	res, err := h.m.Accept(ctx, ActionRequest{Room: room, PlayerID: b})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if res.Duel.Status != duel.StatusActive {
		t.Fatalf("status=%s, want ACTIVE", res.Duel.Status)
	}
	return res.Duel
}

func TestInviteAcceptFlow(t *testing.T) {
	h := newRedisHarness(t, 1)
	ctx := context.Background()

	inv, err := h.m.Invite(ctx, InviteRequest{Room: "room1", ChallengerID: "u1", TargetID: "u2", DoubleOrNothing: true})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if inv.Duel.Status != duel.StatusPending || inv.Duel.Version != 1 {
		t.Fatalf("invite status=%s version=%d", inv.Duel.Status, inv.Duel.Version)
	}
	if _, err := h.m.Accept(ctx, ActionRequest{Room: "room1", PlayerID: "u1"}); !errors.Is(err, duel.ErrNotParticipant) {
		t.Fatalf("challenger accept: got %v, want ErrNotParticipant", err)
	}

	res, err := h.m.Accept(ctx, ActionRequest{Room: "room1", PlayerID: "u2"})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if res.Duel.Version != 2 {
		t.Fatalf("version=%d, want 2", res.Duel.Version)
	}
	if !res.Outcome.Has(duel.EventRoundStart) || !res.Outcome.Has(duel.EventReload) {
		t.Fatalf("accept outcome missing round start/reload: %+v", res.Outcome.Events)
	}

	snap, err := h.m.Snapshot(ctx, "room1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Version != 2 || !snap.DoubleOrNothing || len(snap.Chamber) == 0 {
		t.Fatalf("snapshot version=%d dn=%v chamber=%d", snap.Version, snap.DoubleOrNothing, len(snap.Chamber))
	}
	stored, err := h.store.Get(ctx, snap.ID)
	if err != nil || stored == nil {
		t.Fatalf("store Get: %v", err)
	}
	if stored.Version != 2 {
		t.Fatalf("stored version=%d, want 2", stored.Version)
	}

	if _, err := h.m.Invite(ctx, InviteRequest{Room: "room1", ChallengerID: "u3", TargetID: "u4"}); !errors.Is(err, duel.ErrDuelExists) {
		t.Fatalf("second invite in room: got %v, want ErrDuelExists", err)
	}
}

func TestInviteRejectsBusyPlayers(t *testing.T) {
	h := newHarness(t, duelstore.NewMemoryStore(), ledger.NewMemory(), 1)
	ctx := context.Background()

	if _, err := h.m.Invite(ctx, InviteRequest{Room: "roomA", ChallengerID: "u1", TargetID: "u2"}); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := h.m.Invite(ctx, InviteRequest{Room: "roomB", ChallengerID: "u3", TargetID: "u2"}); !errors.Is(err, ErrAlreadyPending) {
		t.Fatalf("pending target: got %v, want ErrAlreadyPending", err)
	}
	if _, err := h.m.Invite(ctx, InviteRequest{Room: "roomC", ChallengerID: "u2", TargetID: "u4"}); !errors.Is(err, ErrPlayerBusy) {
		t.Fatalf("busy challenger: got %v, want ErrPlayerBusy", err)
	}
	if _, err := h.m.Invite(ctx, InviteRequest{Room: "roomD", ChallengerID: "u5", TargetID: "u5"}); !errors.Is(err, duel.ErrInvalidTarget) {
		t.Fatalf("self invite: got %v, want ErrInvalidTarget", err)
	}
}

func TestDeclineFreesRoom(t *testing.T) {
	h := newRedisHarness(t, 1)
	ctx := context.Background()

	inv, err := h.m.Invite(ctx, InviteRequest{Room: "room1", ChallengerID: "u1", TargetID: "u2"})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	res, err := h.m.Decline(ctx, ActionRequest{Room: "room1", PlayerID: "u2"})
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if res.Duel.EndReason != duel.EndDeclined {
		t.Fatalf("reason=%s", res.Duel.EndReason)
	}

	if d, _ := h.store.Get(ctx, inv.Duel.ID); d != nil {
		t.Fatalf("declined duel still stored")
	}
	if _, err := h.m.Snapshot(ctx, "room1"); !errors.Is(err, duel.ErrDuelNotFound) {
		t.Fatalf("snapshot after decline: got %v", err)
	}
	if _, err := h.m.Invite(ctx, InviteRequest{Room: "room1", ChallengerID: "u2", TargetID: "u1"}); err != nil {
		t.Fatalf("re-invite after decline: %v", err)
	}
	w, err := h.m.Wallet(ctx, "u1")
	if err != nil {
		t.Fatalf("Wallet: %v", err)
	}
	if w.Total != 0 {
		t.Fatalf("declined duel settled: total=%d", w.Total)
	}
}

func TestStaleExpectedVersion(t *testing.T) {
	h := newRedisHarness(t, 3)
	ctx := context.Background()
	d := h.start(t, "room1", "u1", "u2")

	_, err := h.m.Shoot(ctx, ShootRequest{ActionRequest: ActionRequest{Room: "room1", PlayerID: d.CurrentTurn, ExpectedVersion: d.Version - 1}, Target: TargetOpponent})
	if !errors.Is(err, duel.ErrStaleAction) {
		t.Fatalf("got %v, want ErrStaleAction", err)
	}

	snap, _ := h.m.Snapshot(ctx, "room1")
	if snap.Version != d.Version || len(snap.Chamber) != len(d.Chamber) {
		t.Fatalf("stale action mutated duel: version %d->%d", d.Version, snap.Version)
	}
}

func TestRejectedActionLeavesDuelUntouched(t *testing.T) {
	h := newRedisHarness(t, 4)
	ctx := context.Background()
	d := h.start(t, "room1", "u1", "u2")
	other := d.Opponent(d.CurrentTurn)

	if _, err := h.m.Shoot(ctx, ShootRequest{ActionRequest: ActionRequest{Room: "room1", PlayerID: other}}); !errors.Is(err, duel.ErrNotYourTurn) {
		t.Fatalf("wrong turn: got %v", err)
	}
	var missing duel.Item
	for _, it := range duel.Pool(false) {
		if !d.Holds(d.CurrentTurn, it) {
			missing = it
			break
		}
	}
	if _, err := h.m.UseItem(ctx, ItemRequest{ActionRequest: ActionRequest{Room: "room1", PlayerID: d.CurrentTurn}, Item: missing}); !errors.Is(err, duel.ErrItemNotHeld) {
		t.Fatalf("unheld item: got %v", err)
	}
	if _, err := h.m.Shoot(ctx, ShootRequest{ActionRequest: ActionRequest{Room: "room1", PlayerID: "stranger"}}); !errors.Is(err, duel.ErrNotParticipant) {
		t.Fatalf("stranger: got %v", err)
	}
	snap, _ := h.m.Snapshot(ctx, "room1")
	if snap.Version != d.Version {
		t.Fatalf("version moved %d -> %d", d.Version, snap.Version)
	}
}

func TestStoreFailureRollsBack(t *testing.T) {
	store := &flakyStore{MemoryStore: duelstore.NewMemoryStore()}
	h := newHarness(t, store, ledger.NewMemory(), 5)
	ctx := context.Background()
	d := h.start(t, "room1", "u1", "u2")

	store.failPut.Store(true)
	before := store.puts.Load()
	_, err := h.m.Shoot(ctx, ShootRequest{ActionRequest: ActionRequest{Room: "room1", PlayerID: d.CurrentTurn}, Target: TargetOpponent})
	if !errors.Is(err, duel.ErrStoreUnavailable) {
		t.Fatalf("got %v, want ErrStoreUnavailable", err)
	}
	if got := store.puts.Load() - before; got != 2 {
		t.Fatalf("put attempts=%d, want 2", got)
	}

	snap, err := h.m.Snapshot(ctx, "room1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Version != d.Version || len(snap.Chamber) != len(d.Chamber) || snap.HP[d.PlayerA] != d.HP[d.PlayerA] || snap.HP[d.PlayerB] != d.HP[d.PlayerB] {
		t.Fatalf("failed persist leaked state: %+v", snap)
	}

	store.failPut.Store(false)
	res, err := h.m.Shoot(ctx, ShootRequest{ActionRequest: ActionRequest{Room: "room1", PlayerID: d.CurrentTurn}, Target: TargetOpponent})
	if err != nil {
		t.Fatalf("Shoot after recovery: %v", err)
	}
	if res.Duel.Version != d.Version+1 {
		t.Fatalf("version=%d, want %d", res.Duel.Version, d.Version+1)
	}
}

func TestConcurrentActionsSerialize(t *testing.T) {
	h := newRedisHarness(t, 6)
	ctx := context.Background()
	d := h.start(t, "room1", "u1", "u2")

	const n = 8
	var wg sync.WaitGroup
	var ok, stale atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.m.Shoot(ctx, ShootRequest{
				ActionRequest: ActionRequest{Room: "room1", PlayerID: d.CurrentTurn, ExpectedVersion: d.Version},
				Target:        TargetOpponent,
			})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, duel.ErrStaleAction), errors.Is(err, duel.ErrDuelNotFound):
				stale.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || stale.Load() != n-1 {
		t.Fatalf("ok=%d stale=%d, want 1/%d", ok.Load(), stale.Load(), n-1)
	}
}

func TestSecondProcessConflictIsStale(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := duelstore.NewRedisStore(rdb, time.Hour)
	led := ledger.NewMemory()

	h1 := newHarness(t, store, led, 7)
	h2 := newHarness(t, store, led, 7)
	ctx := context.Background()
	d := h1.start(t, "room1", "u1", "u2")

	// both processes cache the same version
	if _, err := h2.m.Snapshot(ctx, "room1"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, err := h2.m.Shoot(ctx, ShootRequest{ActionRequest: ActionRequest{Room: "room1", PlayerID: d.CurrentTurn}, Target: TargetOpponent}); err != nil {
		t.Fatalf("h2 Shoot: %v", err)
	}
	_, err = h1.m.Shoot(ctx, ShootRequest{ActionRequest: ActionRequest{Room: "room1", PlayerID: d.CurrentTurn}, Target: TargetOpponent})
	if !errors.Is(err, duel.ErrStaleAction) {
		t.Fatalf("h1 Shoot: got %v, want ErrStaleAction", err)
	}

	// cache was invalidated; the next read sees h2's write
	snap, err := h1.m.Snapshot(ctx, "room1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Version != d.Version+1 {
		t.Fatalf("version=%d, want %d", snap.Version, d.Version+1)
	}
}

func TestSweepExpiresIdleDuels(t *testing.T) {
	h := newRedisHarness(t, 8)
	ctx := context.Background()
	var notified []string
	h.m.cfg.OnExpire = func(_ context.Context, d *duel.Duel, out *duel.Outcome) {
		if d.EndReason != duel.EndTimeout || !out.MatchOver {
			t.Errorf("expire callback got reason=%s matchOver=%v", d.EndReason, out.MatchOver)
		}
		notified = append(notified, d.Room)
	}

	active := h.start(t, "room1", "u1", "u2")
	if _, err := h.m.Invite(ctx, InviteRequest{Room: "room2", ChallengerID: "u3", TargetID: "u4"}); err != nil {
		t.Fatalf("Invite: %v", err)
	}

	h.clock.Advance(4 * time.Minute)
	n, err := h.m.Sweep(ctx)
	if err != nil || n != 0 {
		t.Fatalf("early sweep n=%d err=%v", n, err)
	}

	h.clock.Advance(2 * time.Minute)
	n, err = h.m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 || len(notified) != 2 {
		t.Fatalf("expired=%d notified=%v, want 2", n, notified)
	}
	if d, _ := h.store.Get(ctx, active.ID); d != nil {
		t.Fatalf("expired duel still stored")
	}
	for _, p := range []string{"u1", "u2"} {
		w, _ := h.m.Wallet(ctx, p)
		if w.Total != 0 {
			t.Fatalf("timeout settled %s: %d", p, w.Total)
		}
	}
}

func TestForfeitSettlesPrize(t *testing.T) {
	h := newRedisHarness(t, 9)
	ctx := context.Background()
	d := h.start(t, "room1", "u1", "u2")

	res, err := h.m.Forfeit(ctx, ActionRequest{Room: "room1", PlayerID: "u1"})
	if err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	if res.Duel.Winner != "u2" || res.Outcome.Prize != 70000 {
		t.Fatalf("winner=%s prize=%d", res.Duel.Winner, res.Outcome.Prize)
	}
	w, err := h.m.Wallet(ctx, "u2")
	if err != nil {
		t.Fatalf("Wallet: %v", err)
	}
	if w.Total != 70000 {
		t.Fatalf("u2 total=%d, want 70000", w.Total)
	}
	hist, err := h.m.History(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].DuelID != d.ID || hist[0].EndReason != string(duel.EndForfeit) {
		t.Fatalf("history=%+v", hist)
	}
	if got, _ := h.store.Get(ctx, d.ID); got != nil {
		t.Fatalf("settled duel still stored")
	}
}

func TestFailedSettlementIsRetriedOnce(t *testing.T) {
	led := &flakyLedger{Memory: ledger.NewMemory()}
	h := newHarness(t, duelstore.NewMemoryStore(), led, 10)
	ctx := context.Background()
	d := h.start(t, "room1", "u1", "u2")

	led.failures.Store(5)
	if _, err := h.m.Forfeit(ctx, ActionRequest{Room: "room1", PlayerID: "u2"}); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	kept, _ := h.store.Get(ctx, d.ID)
	if kept == nil || kept.Status != duel.StatusEnded {
		t.Fatalf("unsettled duel should stay stored as ENDED: %+v", kept)
	}

	led.failures.Store(0)
	if _, err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if got, _ := h.store.Get(ctx, d.ID); got != nil {
		t.Fatalf("duel not cleaned after settlement")
	}
	if _, err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}

	w, _ := h.m.Wallet(ctx, "u1")
	if w.Total != 70000 {
		t.Fatalf("u1 total=%d, want exactly one prize", w.Total)
	}
}

func TestFailedDeleteDoesNotPayTwice(t *testing.T) {
	store := &stickyStore{MemoryStore: duelstore.NewMemoryStore()}
	h := newHarness(t, store, ledger.NewMemory(), 12)
	ctx := context.Background()
	d := h.start(t, "room1", "u1", "u2")

	store.failDelete.Store(true)
	if _, err := h.m.Forfeit(ctx, ActionRequest{Room: "room1", PlayerID: "u1"}); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	w, _ := h.m.Wallet(ctx, "u2")
	if w.Total != 70000 {
		t.Fatalf("after forfeit u2 total=%d, want 70000", w.Total)
	}
	if kept, _ := h.store.Get(ctx, d.ID); kept == nil {
		t.Fatalf("duel should stay stored while delete fails")
	}

	if _, err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	store.failDelete.Store(false)
	if _, err := h.m.Sweep(ctx); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if got, _ := h.store.Get(ctx, d.ID); got != nil {
		t.Fatalf("duel not cleaned after delete recovered")
	}

	w, _ = h.m.Wallet(ctx, "u2")
	if w.Total != 70000 {
		t.Fatalf("after sweep u2 total=%d, want 70000", w.Total)
	}
	hist, _ := h.m.History(ctx, "u2", 0)
	if len(hist) != 1 {
		t.Fatalf("history rows=%d, want 1", len(hist))
	}
}

func TestResetClearsEndedDuel(t *testing.T) {
	led := &flakyLedger{Memory: ledger.NewMemory()}
	h := newHarness(t, duelstore.NewMemoryStore(), led, 13)
	ctx := context.Background()
	d := h.start(t, "room1", "u1", "u2")

	led.failures.Store(5)
	if _, err := h.m.Forfeit(ctx, ActionRequest{Room: "room1", PlayerID: "u1"}); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	kept, _ := h.store.Get(ctx, d.ID)
	if kept == nil || kept.Status != duel.StatusEnded {
		t.Fatalf("unsettled duel should stay stored as ENDED: %+v", kept)
	}

	led.failures.Store(0)
	res, err := h.m.Reset(ctx, "room1")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if res.Duel.Version != kept.Version {
		t.Fatalf("reset rewrote ended duel: version %d -> %d", kept.Version, res.Duel.Version)
	}
	if got, _ := h.store.Get(ctx, d.ID); got != nil {
		t.Fatalf("ended duel still stored after reset")
	}
	if _, err := h.m.Snapshot(ctx, "room1"); !errors.Is(err, duel.ErrDuelNotFound) {
		t.Fatalf("room still blocked: %v", err)
	}
	w, _ := h.m.Wallet(ctx, "u2")
	if w.Total != 70000 {
		t.Fatalf("u2 total=%d, want owed prize 70000", w.Total)
	}
}

func TestPlayToCompletion(t *testing.T) {
	h := newRedisHarness(t, 11)
	ctx := context.Background()
	h.start(t, "room1", "u1", "u2")

	var last *Result
	for i := 0; i < 500; i++ {
		snap, err := h.m.Snapshot(ctx, "room1")
		if errors.Is(err, duel.ErrDuelNotFound) {
			break
		}
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		res, err := h.m.Shoot(ctx, ShootRequest{ActionRequest: ActionRequest{Room: "room1", PlayerID: snap.CurrentTurn, ExpectedVersion: snap.Version}, Target: TargetOpponent})
		if err != nil {
			t.Fatalf("Shoot #%d: %v", i, err)
		}
		for _, p := range res.Duel.Players() {
			if hp := res.Duel.HP[p]; hp < 0 || hp > res.Duel.MaxHP {
				t.Fatalf("hp out of range: %s=%d max=%d", p, hp, res.Duel.MaxHP)
			}
		}
		last = res
	}
	if last == nil || last.Duel.Status != duel.StatusEnded || last.Duel.EndReason != duel.EndMajority {
		t.Fatalf("match did not finish by majority: %+v", last)
	}
	w, _ := h.m.Wallet(ctx, last.Duel.Winner)
	if w.Total != 70000 {
		t.Fatalf("winner total=%d, want 70000", w.Total)
	}
}
