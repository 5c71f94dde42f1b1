package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Buckshot-KakaoTalk-bot/internal/domain"
)

var ErrInvalidPlayer = errors.New("ledger: player id required")

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLLedger implements the economy ledger over database/sql for both Postgres and SQLite.
type SQLLedger struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func (l *SQLLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (l *SQLLedger) rebind(q string) string {
	if l.dialect != dialectPostgres {
		return q
	}
	var sb strings.Builder
	sb.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (l *SQLLedger) migrate(ctx context.Context) error {
	boolType := "INTEGER"
	if l.dialect == dialectPostgres {
		boolType = "BOOLEAN"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_wallets (
			player_id  TEXT PRIMARY KEY,
			total      BIGINT NOT NULL DEFAULT 0,
			updated_ms BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_usage (
			player_id TEXT NOT NULL,
			item      TEXT NOT NULL,
			count     BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (player_id, item)
		)`,
		`CREATE TABLE IF NOT EXISTS duel_results (
			duel_id           TEXT PRIMARY KEY,
			room              TEXT NOT NULL,
			player_a          TEXT NOT NULL,
			name_a            TEXT NOT NULL DEFAULT '',
			player_b          TEXT NOT NULL,
			name_b            TEXT NOT NULL DEFAULT '',
			winner            TEXT NOT NULL DEFAULT '',
			score_a           INTEGER NOT NULL,
			score_b           INTEGER NOT NULL,
			rounds            INTEGER NOT NULL,
			prize             BIGINT NOT NULL,
			double_or_nothing ` + boolType + ` NOT NULL,
			end_reason        TEXT NOT NULL,
			started_ms        BIGINT NOT NULL,
			ended_ms          BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_duel_results_a ON duel_results (player_a, ended_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_duel_results_b ON duel_results (player_b, ended_ms)`,
	}
	for _, s := range stmts {
		if _, err := l.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (l *SQLLedger) GetTotals(ctx context.Context, playerID string) (*domain.Wallet, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, ErrInvalidPlayer
	}
	w := &domain.Wallet{PlayerID: playerID, Usage: map[string]int{}}

	var updated int64
	err := l.db.QueryRowContext(ctx, l.rebind(`SELECT total, updated_ms FROM ledger_wallets WHERE player_id = ?`), playerID).
		Scan(&w.Total, &updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load wallet: %w", err)
	default:
		w.UpdatedAt = time.UnixMilli(updated)
	}

	rows, err := l.db.QueryContext(ctx, l.rebind(`SELECT item, count FROM ledger_usage WHERE player_id = ?`), playerID)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item string
		var n int
		if err := rows.Scan(&item, &n); err != nil {
			return nil, err
		}
		w.Usage[item] = n
	}
	return w, rows.Err()
}

func (l *SQLLedger) ApplySettlement(ctx context.Context, playerID string, prizeDelta int64, usageDelta map[string]int) error {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return ErrInvalidPlayer
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, l.rebind(`INSERT INTO ledger_wallets (player_id, total, updated_ms) VALUES (?, ?, ?)
		ON CONFLICT (player_id) DO UPDATE SET
			total = ledger_wallets.total + excluded.total,
			updated_ms = excluded.updated_ms`),
		playerID, prizeDelta, l.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	for item, n := range usageDelta {
		if n == 0 {
			continue
		}
		_, err = tx.ExecContext(ctx, l.rebind(`INSERT INTO ledger_usage (player_id, item, count) VALUES (?, ?, ?)
			ON CONFLICT (player_id, item) DO UPDATE SET count = ledger_usage.count + excluded.count`),
			playerID, item, n)
		if err != nil {
			return fmt.Errorf("upsert usage: %w", err)
		}
	}
	return tx.Commit()
}

// SaveResult archives a finished duel. Replays of the same duel id are ignored.
func (l *SQLLedger) SaveResult(ctx context.Context, r domain.DuelRecord) error {
	_, err := l.db.ExecContext(ctx, l.rebind(`INSERT INTO duel_results (
			duel_id, room, player_a, name_a, player_b, name_b, winner,
			score_a, score_b, rounds, prize, double_or_nothing, end_reason, started_ms, ended_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (duel_id) DO NOTHING`),
		r.DuelID, r.Room, r.PlayerA, r.NameA, r.PlayerB, r.NameB, r.Winner,
		r.ScoreA, r.ScoreB, r.Rounds, r.Prize, r.DoubleOrNothing, r.EndReason,
		r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// RecentResults lists the player's latest duels, newest first.
func (l *SQLLedger) RecentResults(ctx context.Context, playerID string, limit int) ([]domain.DuelRecord, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx, l.rebind(`SELECT duel_id, room, player_a, name_a, player_b, name_b, winner,
			score_a, score_b, rounds, prize, double_or_nothing, end_reason, started_ms, ended_ms
		FROM duel_results WHERE player_a = ? OR player_b = ?
		ORDER BY ended_ms DESC LIMIT ?`), playerID, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []domain.DuelRecord
	for rows.Next() {
		var r domain.DuelRecord
		var started, ended int64
		if err := rows.Scan(&r.DuelID, &r.Room, &r.PlayerA, &r.NameA, &r.PlayerB, &r.NameB, &r.Winner,
			&r.ScoreA, &r.ScoreB, &r.Rounds, &r.Prize, &r.DoubleOrNothing, &r.EndReason, &started, &ended); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.EndedAt = time.UnixMilli(ended)
		out = append(out, r)
	}
	return out, rows.Err()
}
