package pvpduel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/domain"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/obslog"
)

// Manager serializes actions per duel and keeps the session store and ledger in step with
// the engine. Actions on different duels run in parallel.
type Manager struct {
	engine *duel.Engine
	store  Store
	ledger Ledger
	cfg    Config

	mu      sync.Mutex
	entries map[string]*entry
	loads   singleflight.Group

	pendingMu sync.Mutex
	pending   map[string]*duel.Settlement
}

type entry struct {
	mu   sync.Mutex
	duel *duel.Duel
}

func NewManager(engine *duel.Engine, store Store, ledger Ledger, cfg Config) (*Manager, error) {
	if engine == nil || store == nil || ledger == nil {
		return nil, fmt.Errorf("pvpduel: engine, store and ledger are required")
	}
	if err := cfg.withDefaults(engine.Rules()); err != nil {
		return nil, err
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	return &Manager{
		engine:  engine,
		store:   store,
		ledger:  ledger,
		cfg:     cfg,
		entries: make(map[string]*entry),
		pending: make(map[string]*duel.Settlement),
	}, nil
}

func (m *Manager) Engine() *duel.Engine { return m.engine }

// Invite opens a pending duel in the room. A room holds at most one live duel and a
// player may have only one pending invite addressed to them.
func (m *Manager) Invite(ctx context.Context, req InviteRequest) (*Result, error) {
	room, from, to := strings.TrimSpace(req.Room), strings.TrimSpace(req.ChallengerID), strings.TrimSpace(req.TargetID)
	if room == "" || from == "" || to == "" {
		return nil, ErrInvalidArgs
	}
	id, err := m.store.ActiveByRoom(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", duel.ErrStoreUnavailable, err)
	}
	if id != "" {
		// An index entry whose session expired does not block the room.
		if cur, err := m.peek(ctx, id); err != nil {
			return nil, err
		} else if cur != nil {
			return nil, duel.ErrDuelExists
		}
	}
	if err := m.checkFree(ctx, from, false); err != nil {
		return nil, err
	}
	if err := m.checkFree(ctx, to, true); err != nil {
		return nil, err
	}

	d, err := m.engine.NewDuel(m.cfg.NewID(), room, from, req.ChallengerName, to, req.TargetName, req.DoubleOrNothing)
	if err != nil {
		return nil, err
	}
	e := m.entry(d.ID)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := m.persist(ctx, d); err != nil {
		m.drop(d.ID)
		return nil, err
	}
	e.duel = d
	obslog.L().Info("duel_invite",
		zap.String("duel_id", d.ID),
		zap.String("room", room),
		zap.String("challenger_id", from),
		zap.String("target_id", to),
		zap.Bool("double_or_nothing", d.DoubleOrNothing),
	)
	return &Result{Duel: d.Clone(), Outcome: &duel.Outcome{}}, nil
}

// checkFree fails when player is already tied up in another duel. A pending invite
// addressed to the player is reported as ErrAlreadyPending.
func (m *Manager) checkFree(ctx context.Context, player string, invited bool) error {
	ids, err := m.store.ActiveByUser(ctx, player)
	if err != nil {
		return fmt.Errorf("%w: %v", duel.ErrStoreUnavailable, err)
	}
	for _, id := range ids {
		d, err := m.peek(ctx, id)
		if err != nil {
			return err
		}
		if d == nil || d.Status == duel.StatusEnded {
			continue
		}
		if d.Status == duel.StatusPending && invited && d.PlayerB == player {
			return ErrAlreadyPending
		}
		return ErrPlayerBusy
	}
	return nil
}

func (m *Manager) Accept(ctx context.Context, req ActionRequest) (*Result, error) {
	return m.act(ctx, req, "duel_accept", func(d *duel.Duel) (*duel.Outcome, error) {
		return m.engine.Accept(d, req.PlayerID)
	})
}

func (m *Manager) Decline(ctx context.Context, req ActionRequest) (*Result, error) {
	return m.act(ctx, req, "duel_decline", func(d *duel.Duel) (*duel.Outcome, error) {
		return m.engine.Decline(d, req.PlayerID)
	})
}

func (m *Manager) Shoot(ctx context.Context, req ShootRequest) (*Result, error) {
	return m.act(ctx, req.ActionRequest, "duel_shoot", func(d *duel.Duel) (*duel.Outcome, error) {
		target := d.Opponent(req.PlayerID)
		if req.Target == TargetSelf {
			target = req.PlayerID
		}
		return m.engine.Shoot(d, req.PlayerID, target)
	})
}

func (m *Manager) UseItem(ctx context.Context, req ItemRequest) (*Result, error) {
	return m.act(ctx, req.ActionRequest, "duel_item", func(d *duel.Duel) (*duel.Outcome, error) {
		return m.engine.UseItem(d, req.PlayerID, req.Item, "", req.Steal)
	})
}

func (m *Manager) Forfeit(ctx context.Context, req ActionRequest) (*Result, error) {
	return m.act(ctx, req, "duel_forfeit", func(d *duel.Duel) (*duel.Outcome, error) {
		return m.engine.Forfeit(d, req.PlayerID)
	})
}

// Reset ends the room's duel without settlement. It is an operator action and bypasses
// the participant check.
func (m *Manager) Reset(ctx context.Context, room string) (*Result, error) {
	id, err := m.DuelIDForRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	return m.mutate(ctx, id, 0, "duel_reset", func(d *duel.Duel) (*duel.Outcome, error) {
		return m.engine.Reset(d), nil
	})
}

// Snapshot returns a detached copy of the room's duel.
func (m *Manager) Snapshot(ctx context.Context, room string) (*duel.Duel, error) {
	id, err := m.DuelIDForRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	d, err := m.peek(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, duel.ErrDuelNotFound
	}
	return d, nil
}

func (m *Manager) DuelIDForRoom(ctx context.Context, room string) (string, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return "", ErrInvalidArgs
	}
	id, err := m.store.ActiveByRoom(ctx, room)
	if err != nil {
		return "", fmt.Errorf("%w: %v", duel.ErrStoreUnavailable, err)
	}
	if id == "" {
		return "", duel.ErrDuelNotFound
	}
	return id, nil
}

func (m *Manager) Wallet(ctx context.Context, playerID string) (*domain.Wallet, error) {
	return m.ledger.GetTotals(ctx, playerID)
}

func (m *Manager) History(ctx context.Context, playerID string, limit int) ([]domain.DuelRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	return m.ledger.RecentResults(ctx, playerID, limit)
}

func (m *Manager) act(ctx context.Context, req ActionRequest, event string, fn func(*duel.Duel) (*duel.Outcome, error)) (*Result, error) {
	if strings.TrimSpace(req.PlayerID) == "" {
		return nil, ErrInvalidArgs
	}
	id, err := m.DuelIDForRoom(ctx, req.Room)
	if err != nil {
		return nil, err
	}
	res, err := m.mutate(ctx, id, req.ExpectedVersion, event, fn)
	if err != nil {
		obslog.L().Debug(event+"_rejected", zap.String("duel_id", id), zap.String("user_id", req.PlayerID), zap.Error(err))
	}
	return res, err
}

// mutate runs fn against a clone of the duel under the duel's lock. The clone replaces
// the cached copy only after the store accepted it.
func (m *Manager) mutate(ctx context.Context, id string, expected int64, event string, fn func(*duel.Duel) (*duel.Outcome, error)) (*Result, error) {
	e := m.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := m.load(ctx, id, e)
	if err != nil {
		return nil, err
	}
	if expected > 0 && cur.Version != expected {
		return nil, fmt.Errorf("%w: expected version %d, have %d", duel.ErrStaleAction, expected, cur.Version)
	}

	next := cur.Clone()
	out, ferr := fn(next)
	if ferr != nil && !errors.Is(ferr, duel.ErrRoundCapExceeded) {
		return nil, ferr
	}
	if ferr != nil {
		obslog.L().Error("duel_round_cap", zap.String("duel_id", id), zap.Int("round", cur.Round), zap.Error(ferr))
		next = cur.Clone()
		out = m.engine.Abort(next)
	}

	// An unchanged duel, such as a reset of one that already ended, has nothing to write.
	if next.Version == cur.Version {
		if next.Status == duel.StatusEnded {
			m.finalize(ctx, next)
		}
		return &Result{Duel: next.Clone(), Outcome: out}, nil
	}

	if err := m.persist(ctx, next); err != nil {
		if errors.Is(err, duel.ErrStaleAction) {
			e.duel = nil
		}
		return nil, err
	}
	e.duel = next
	obslog.L().Info(event,
		zap.String("duel_id", id),
		zap.String("room", next.Room),
		zap.Int64("version", next.Version),
		zap.String("status", string(next.Status)),
		zap.Int("round", next.Round),
	)

	if next.Status == duel.StatusEnded {
		m.finalize(ctx, next)
	}
	if ferr != nil {
		return nil, ferr
	}
	return &Result{Duel: next.Clone(), Outcome: out}, nil
}

// finalize settles an ended duel and removes it from the store. A settlement that fails
// stays pending with the session kept, and the reaper retries it later. The applied
// settlement is held until the delete succeeds so a retried finalize never pays twice.
func (m *Manager) finalize(ctx context.Context, d *duel.Duel) {
	if err := m.settle(ctx, d); err != nil {
		obslog.L().Error("duel_settle_error", zap.String("duel_id", d.ID), zap.Error(err))
		return
	}
	if err := m.store.Delete(ctx, d.ID); err != nil {
		obslog.L().Warn("duel_delete_error", zap.String("duel_id", d.ID), zap.Error(err))
		return
	}
	m.pendingMu.Lock()
	delete(m.pending, d.ID)
	m.pendingMu.Unlock()
	m.drop(d.ID)
}

func (m *Manager) settle(ctx context.Context, d *duel.Duel) error {
	m.pendingMu.Lock()
	s, ok := m.pending[d.ID]
	m.pendingMu.Unlock()
	if !ok {
		var err error
		s, err = m.engine.Settle(d)
		if err != nil {
			return err
		}
		if s == nil {
			return nil
		}
		m.pendingMu.Lock()
		m.pending[d.ID] = s
		m.pendingMu.Unlock()
	}

	if s.Done() {
		return nil
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.Apply(ctx, m.ledger)
	}, backoff.WithBackOff(m.backoff()), backoff.WithMaxTries(m.cfg.MaxRetries))
	if err != nil {
		return err
	}
	obslog.L().Info("duel_settle",
		zap.String("duel_id", d.ID),
		zap.String("winner", d.Winner),
		zap.Int64("prize", s.Record.Prize),
		zap.String("reason", string(d.EndReason)),
	)
	return nil
}

// persist writes d with bounded retry. Version conflicts and room conflicts are not retried.
func (m *Manager) persist(ctx context.Context, d *duel.Duel) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := m.store.Put(ctx, d)
		if errors.Is(err, duel.ErrStaleAction) || errors.Is(err, duel.ErrDuelExists) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(m.backoff()), backoff.WithMaxTries(m.cfg.MaxRetries))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, duel.ErrStaleAction), errors.Is(err, duel.ErrDuelExists):
		return err
	default:
		obslog.L().Error("duel_persist_error", zap.String("duel_id", d.ID), zap.Int64("version", d.Version), zap.Error(err))
		return fmt.Errorf("%w: %v", duel.ErrStoreUnavailable, err)
	}
}

func (m *Manager) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.RetryInitial
	b.MaxInterval = m.cfg.RetryMax
	return b
}

// load returns the cached duel or reads it from the store. Callers hold e.mu.
func (m *Manager) load(ctx context.Context, id string, e *entry) (*duel.Duel, error) {
	if e.duel != nil {
		return e.duel, nil
	}
	d, err := m.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, duel.ErrDuelNotFound
	}
	e.duel = d
	return d, nil
}

// peek reads a duel without taking its lock. The returned copy is detached.
func (m *Manager) peek(ctx context.Context, id string) (*duel.Duel, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if ok && e.mu.TryLock() {
		d := e.duel.Clone()
		e.mu.Unlock()
		if d != nil {
			return d, nil
		}
	}
	return m.fetch(ctx, id)
}

// fetch deduplicates concurrent store reads of the same duel.
func (m *Manager) fetch(ctx context.Context, id string) (*duel.Duel, error) {
	v, err, _ := m.loads.Do(id, func() (any, error) {
		return m.store.Get(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", duel.ErrStoreUnavailable, err)
	}
	d, _ := v.(*duel.Duel)
	return d.Clone(), nil
}

func (m *Manager) entry(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		e = &entry{}
		m.entries[id] = e
	}
	return e
}

func (m *Manager) drop(id string) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
}
