package pvpduel

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/obslog"
)

// Run sweeps idle duels every SweepInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	t := time.NewTicker(m.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := m.Sweep(ctx); err != nil {
				obslog.L().Warn("duel_sweep_error", zap.Error(err))
			}
		}
	}
}

// Sweep expires duels idle longer than IdleTimeout, pending invites included, and retries
// the finalization of ended duels whose settlement failed earlier. It returns the number
// of duels expired.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	ids, err := m.store.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	now := m.cfg.Now()
	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		ok, err := m.sweepOne(ctx, id, now)
		if err != nil {
			obslog.L().Warn("duel_sweep_item_error", zap.String("duel_id", id), zap.Error(err))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (m *Manager) sweepOne(ctx context.Context, id string, now time.Time) (bool, error) {
	e := m.entry(id)
	e.mu.Lock()
	cur, err := m.load(ctx, id, e)
	if errors.Is(err, duel.ErrDuelNotFound) {
		e.mu.Unlock()
		m.drop(id)
		return false, nil
	}
	if err != nil {
		e.mu.Unlock()
		return false, err
	}

	if cur.Status == duel.StatusEnded {
		m.finalize(ctx, cur)
		e.mu.Unlock()
		return false, nil
	}
	if now.Sub(cur.UpdatedAt) <= m.cfg.IdleTimeout {
		e.mu.Unlock()
		return false, nil
	}

	next := cur.Clone()
	out := m.engine.Expire(next)
	if err := m.persist(ctx, next); err != nil {
		if errors.Is(err, duel.ErrStaleAction) {
			e.duel = nil
		}
		e.mu.Unlock()
		return false, err
	}
	e.duel = next
	obslog.L().Info("duel_expire",
		zap.String("duel_id", id),
		zap.String("room", next.Room),
		zap.Duration("idle", now.Sub(cur.UpdatedAt)),
		zap.String("prev_status", string(cur.Status)),
	)
	m.finalize(ctx, next)
	e.mu.Unlock()

	if m.cfg.OnExpire != nil {
		m.cfg.OnExpire(ctx, next.Clone(), out)
	}
	return true, nil
}
