package duelbuilder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/config"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duelstore"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/ledger"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/pvpduel"
	"go.uber.org/zap"
)

type Deps struct {
	Engine  *duel.Engine
	Store   pvpduel.Store
	Ledger  pvpduel.Ledger
	Manager *pvpduel.Manager
	Seed    int64

	closers []io.Closer
}

// New wires engine, session store, ledger and manager from cfg. onExpire may be nil.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, onExpire pvpduel.ExpiredFunc) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	seed := cfg.Duel.Seed
	if seed == 0 {
		seed = duel.NewSeed()
	}
	engine, err := duel.NewEngine(rules, duel.NewRNG(seed))
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}

	deps := &Deps{Engine: engine, Seed: seed}

	// Sessions: Redis when configured, otherwise in process.
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := duelstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init session store: %w", err)
		}
		rs := duelstore.NewRedisStore(rdb, cfg.SessionTTL)
		deps.Store = rs
		deps.closers = append(deps.closers, rs)
	} else {
		logger.Warn("session_store_memory", zap.String("reason", "REDIS_URL not set"))
		deps.Store = duelstore.NewMemoryStore()
	}

	led, err := openLedger(ctx, cfg)
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	deps.Ledger = led
	if c, ok := led.(io.Closer); ok {
		deps.closers = append(deps.closers, c)
	}

	mgr, err := pvpduel.NewManager(engine, deps.Store, deps.Ledger, pvpduel.Config{
		IdleTimeout:   rules.IdleTimeout,
		SweepInterval: cfg.SweepInterval,
		MaxRetries:    cfg.PersistRetries,
		RetryInitial:  cfg.RetryInitial,
		RetryMax:      cfg.RetryMax,
		OnExpire:      onExpire,
	})
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.Manager = mgr

	logger.Info("duel_deps_ready",
		zap.String("ledger", cfg.LedgerBackend),
		zap.Bool("redis", strings.TrimSpace(cfg.RedisURL) != ""),
		zap.String("reload_policy", string(rules.ReloadPolicy)),
		zap.String("restraint_mode", string(rules.RestraintMode)),
		zap.Int64("seed", seed),
	)
	return deps, nil
}

func openLedger(ctx context.Context, cfg *config.AppConfig) (pvpduel.Ledger, error) {
	switch cfg.LedgerBackend {
	case "postgres":
		return ledger.OpenPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return ledger.OpenSQLite(ctx, cfg.SQLitePath)
	case "memory":
		return ledger.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

// Close releases the store and ledger connections in reverse order of opening.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
