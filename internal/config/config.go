package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/obslog"
)

type AppConfig struct {
	IrisBaseURL string `env:"IRIS_BASE_URL"`
	IrisWSURL   string `env:"IRIS_WS_URL"`
	// http | ws | auto
	IrisEgress string `env:"IRIS_EGRESS" envDefault:"auto"`

	BotPrefix string `env:"BOT_PREFIX" envDefault:"!"`

	XUserID    string `env:"X_USER_ID"`
	XUserEmail string `env:"X_USER_EMAIL"`
	XSessionID string `env:"X_SESSION_ID"`

	// Empty RedisURL selects the in-process session store.
	RedisURL       string        `env:"REDIS_URL"`
	SessionTTL     time.Duration `env:"DUEL_SESSION_TTL" envDefault:"24h"`
	LedgerBackend  string        `env:"LEDGER_BACKEND" envDefault:"sqlite"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"data/ledger.db"`
	AllowedRooms   []string      `env:"ALLOWED_ROOMS" envSeparator:","`
	AdminUsers     []string      `env:"ADMIN_USERS" envSeparator:","`
	MsgCatalogDir  string        `env:"MSGCAT_DIR"`
	HistoryLimit   int           `env:"DUEL_HISTORY_LIMIT" envDefault:"5"`
	SweepInterval  time.Duration `env:"DUEL_SWEEP_INTERVAL" envDefault:"30s"`
	PersistRetries uint          `env:"DUEL_PERSIST_RETRIES" envDefault:"3"`
	RetryInitial   time.Duration `env:"DUEL_RETRY_INITIAL" envDefault:"50ms"`
	RetryMax       time.Duration `env:"DUEL_RETRY_MAX" envDefault:"1s"`

	Duel DuelConfig
	Log  LogConfig
}

// DuelConfig overrides the engine rules. Zero values keep the defaults.
type DuelConfig struct {
	ReloadPolicy    string        `env:"DUEL_RELOAD_POLICY" envDefault:"empty"`
	ReloadThreshold int           `env:"DUEL_RELOAD_THRESHOLD"`
	RestraintMode   string        `env:"DUEL_RESTRAINT_MODE" envDefault:"keep_turn"`
	IdleTimeout     time.Duration `env:"DUEL_IDLE_TIMEOUT" envDefault:"300s"`
	BasePrize       int64         `env:"DUEL_BASE_PRIZE"`
	TonicHealChance float64       `env:"DUEL_TONIC_HEAL_CHANCE"`
	Seed            int64         `env:"DUEL_RNG_SEED"`
}

type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"legacy"`
	ToConsole  bool   `env:"LOG_TO_CONSOLE" envDefault:"true"`
	ToFile     bool   `env:"LOG_TO_FILE" envDefault:"false"`
	Caller     bool   `env:"LOG_CALLER" envDefault:"false"`
	File       string `env:"LOG_FILE" envDefault:"logs/duel-bot.log"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`
}

func Load() (*AppConfig, error) {
	return load(env.Options{})
}

// LoadFrom parses the given environment map instead of the process environment.
func LoadFrom(environ map[string]string) (*AppConfig, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.AllowedRooms = compact(cfg.AllowedRooms)
	cfg.AdminUsers = compact(cfg.AdminUsers)
	cfg.LedgerBackend = strings.ToLower(strings.TrimSpace(cfg.LedgerBackend))
	cfg.IrisEgress = strings.ToLower(strings.TrimSpace(cfg.IrisEgress))

	if strings.TrimSpace(cfg.IrisBaseURL) == "" {
		return nil, errors.New("IRIS_BASE_URL is required")
	}
	if strings.TrimSpace(cfg.IrisWSURL) == "" {
		return nil, errors.New("IRIS_WS_URL is required")
	}
	if strings.TrimSpace(cfg.BotPrefix) == "" {
		return nil, errors.New("BOT_PREFIX is required")
	}
	switch cfg.IrisEgress {
	case "http", "ws", "auto":
	default:
		return nil, fmt.Errorf("IRIS_EGRESS must be http, ws or auto: %q", cfg.IrisEgress)
	}
	switch cfg.LedgerBackend {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, errors.New("DATABASE_URL is required for LEDGER_BACKEND=postgres")
		}
	case "sqlite":
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, errors.New("SQLITE_PATH is required for LEDGER_BACKEND=sqlite")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("LEDGER_BACKEND must be postgres, sqlite or memory: %q", cfg.LedgerBackend)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 5
	}
	if _, err := cfg.Rules(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Rules builds the engine rules from the defaults and the DUEL_* overrides.
func (c *AppConfig) Rules() (duel.Rules, error) {
	r := duel.DefaultRules()
	switch p := duel.ReloadPolicy(strings.ToLower(strings.TrimSpace(c.Duel.ReloadPolicy))); p {
	case "":
	case duel.ReloadWhenEmpty, duel.ReloadOnThreshold:
		r.ReloadPolicy = p
	default:
		return r, fmt.Errorf("DUEL_RELOAD_POLICY must be empty or threshold: %q", c.Duel.ReloadPolicy)
	}
	switch m := duel.RestraintMode(strings.ToLower(strings.TrimSpace(c.Duel.RestraintMode))); m {
	case "":
	case duel.RestraintKeepTurn, duel.RestraintSkipStacks:
		r.RestraintMode = m
	default:
		return r, fmt.Errorf("DUEL_RESTRAINT_MODE must be keep_turn or skip_stacks: %q", c.Duel.RestraintMode)
	}
	if c.Duel.ReloadThreshold > 0 {
		r.ReloadThreshold = c.Duel.ReloadThreshold
	}
	if c.Duel.IdleTimeout > 0 {
		r.IdleTimeout = c.Duel.IdleTimeout
	}
	if c.Duel.BasePrize > 0 {
		r.BasePrize = c.Duel.BasePrize
	}
	if c.Duel.TonicHealChance > 0 {
		r.TonicHealChance = c.Duel.TonicHealChance
	}
	if err := r.Validate(); err != nil {
		return r, fmt.Errorf("duel rules: %w", err)
	}
	return r, nil
}

func (c *AppConfig) LogOptions() obslog.Options {
	return obslog.Options{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		ToConsole:  c.Log.ToConsole,
		ToFile:     c.Log.ToFile,
		Caller:     c.Log.Caller,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

func (c *AppConfig) IsAdmin(userID string) bool {
	for _, u := range c.AdminUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// RoomAllowed reports whether the bot answers in room. An empty allow list admits every room.
func (c *AppConfig) RoomAllowed(room string) bool {
	if len(c.AllowedRooms) == 0 {
		return true
	}
	for _, r := range c.AllowedRooms {
		if r == room {
			return true
		}
	}
	return false
}

func compact(in []string) []string {
	var out []string
	for _, p := range in {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
