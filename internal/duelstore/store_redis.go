package duelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/duel"
)

const DefaultTTL = 24 * time.Hour

// RedisStore keeps one JSON document per duel plus room/user indexes.
// Put is version-checked under WATCH so two writers cannot both apply the same turn.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func keySession(id string) string { return "duel:session:" + strings.TrimSpace(id) }
func keyRoom(room string) string  { return "duel:idx:room:" + strings.TrimSpace(room) }
func keyUser(user string) string  { return "duel:idx:user:" + strings.TrimSpace(user) }
func keyActive() string           { return "duel:active" }

func (s *RedisStore) Get(ctx context.Context, id string) (*duel.Duel, error) {
	raw, err := s.rdb.Get(ctx, keySession(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (s *RedisStore) Put(ctx context.Context, d *duel.Duel) error {
	if d == nil || strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("duelstore: duel id required")
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode duel: %w", err)
	}

	sessK, roomK := keySession(d.ID), keyRoom(d.Room)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, sessK).Bytes()
		switch {
		case err == redis.Nil:
			if d.Version != 1 {
				return duel.ErrStaleAction
			}
		case err != nil:
			return err
		default:
			prev, derr := decode(cur)
			if derr != nil {
				return derr
			}
			if prev.Version != d.Version-1 {
				return duel.ErrStaleAction
			}
		}

		// A room holds one live duel at a time.
		owner, err := tx.Get(ctx, roomK).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if owner != "" && owner != d.ID {
			n, err := tx.Exists(ctx, keySession(owner)).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return duel.ErrDuelExists
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessK, raw, s.ttl)
			pipe.Set(ctx, roomK, d.ID, s.ttl)
			for _, p := range d.Players() {
				pipe.SAdd(ctx, keyUser(p), d.ID)
				pipe.Expire(ctx, keyUser(p), s.ttl)
			}
			pipe.SAdd(ctx, keyActive(), d.ID)
			return nil
		})
		return err
	}, sessK, roomK)
	if errors.Is(err, redis.TxFailedErr) {
		return duel.ErrStaleAction
	}
	return err
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keySession(id))
	pipe.SRem(ctx, keyActive(), id)
	if d != nil {
		for _, p := range d.Players() {
			pipe.SRem(ctx, keyUser(p), id)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if d != nil {
		// only drop the room index while it still points at this duel
		roomK := keyRoom(d.Room)
		if owner, err := s.rdb.Get(ctx, roomK).Result(); err == nil && owner == id {
			_ = s.rdb.Del(ctx, roomK).Err()
		}
	}
	return nil
}

func (s *RedisStore) ActiveByRoom(ctx context.Context, room string) (string, error) {
	if strings.TrimSpace(room) == "" {
		return "", nil
	}
	id, err := s.rdb.Get(ctx, keyRoom(room)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return id, err
}

func (s *RedisStore) ActiveByUser(ctx context.Context, user string) ([]string, error) {
	if strings.TrimSpace(user) == "" {
		return nil, nil
	}
	return s.rdb.SMembers(ctx, keyUser(user)).Result()
}

// ListIDs returns every duel id still registered; expired sessions are pruned from the set.
func (s *RedisStore) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, keyActive()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := s.rdb.Exists(ctx, keySession(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			_ = s.rdb.SRem(ctx, keyActive(), id).Err()
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func decode(raw []byte) (*duel.Duel, error) {
	var d duel.Duel
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode duel: %w", err)
	}
	return &d, nil
}

// ParseRedisURL accepts redis:// and rediss:// URLs with an optional /db path.
func ParseRedisURL(raw string) (*redis.Options, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "redis://") && !strings.HasPrefix(raw, "rediss://") {
		return nil, fmt.Errorf("unsupported redis url %q", raw)
	}
	return redis.ParseURL(raw)
}

// Connect parses redisURL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
