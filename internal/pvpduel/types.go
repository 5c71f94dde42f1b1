package pvpduel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/domain"
	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
)

var (
	ErrInvalidArgs    = errors.New("invalid arguments")
	ErrAlreadyPending = errors.New("target already has a pending invite")
	ErrPlayerBusy     = errors.New("player already in a duel")
)

// Store persists duel sessions. Put must reject a write whose Version is not exactly one
// past the stored version with duel.ErrStaleAction.
type Store interface {
	Get(ctx context.Context, id string) (*duel.Duel, error)
	Put(ctx context.Context, d *duel.Duel) error
	Delete(ctx context.Context, id string) error
	ActiveByRoom(ctx context.Context, room string) (string, error)
	ActiveByUser(ctx context.Context, user string) ([]string, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// Ledger is the economy sink plus result history.
type Ledger interface {
	duel.Ledger
	RecentResults(ctx context.Context, playerID string, limit int) ([]domain.DuelRecord, error)
}

// Target selects who a shot is fired at, relative to the shooter.
type Target string

const (
	TargetSelf     Target = "self"
	TargetOpponent Target = "opponent"
)

// ParseTarget maps chat words to a Target.
func ParseTarget(s string) (Target, bool) {
	switch s {
	case "나", "자신", "self", "me":
		return TargetSelf, true
	case "상대", "상대방", "opponent", "them", "":
		return TargetOpponent, true
	default:
		return "", false
	}
}

type InviteRequest struct {
	Room            string
	ChallengerID    string
	ChallengerName  string
	TargetID        string
	TargetName      string
	DoubleOrNothing bool
}

// ActionRequest addresses the duel in Room on behalf of PlayerID. ExpectedVersion is
// optional; when set the action is rejected if the duel has moved on.
type ActionRequest struct {
	Room            string
	PlayerID        string
	ExpectedVersion int64
}

type ShootRequest struct {
	ActionRequest
	Target Target
}

type ItemRequest struct {
	ActionRequest
	Item  duel.Item
	Steal duel.Item
}

// Result is what every action hands back to the host: a detached snapshot plus the outcome.
type Result struct {
	Duel    *duel.Duel
	Outcome *duel.Outcome
}

// ExpiredFunc is invoked after an idle duel was ended by the reaper.
type ExpiredFunc func(ctx context.Context, d *duel.Duel, out *duel.Outcome)

type Config struct {
	// IdleTimeout defaults to the engine rules' IdleTimeout.
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxRetries    uint
	RetryInitial  time.Duration
	RetryMax      time.Duration
	Now           func() time.Time
	NewID         func() string
	OnExpire      ExpiredFunc
}

func (c *Config) withDefaults(rules duel.Rules) error {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = rules.IdleTimeout
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("pvpduel: idle timeout must be positive")
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 50 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = time.Second
	}
	if c.RetryMax < c.RetryInitial {
		return fmt.Errorf("pvpduel: retry max %s below initial %s", c.RetryMax, c.RetryInitial)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}
