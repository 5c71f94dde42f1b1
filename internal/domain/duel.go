package domain

import "time"

// Wallet is a player's lifetime ledger row.
type Wallet struct {
	PlayerID  string
	Total     int64
	Usage     map[string]int
	UpdatedAt time.Time
}

// DuelRecord is the archived result of a finished duel.
type DuelRecord struct {
	DuelID          string
	Room            string
	PlayerA         string
	NameA           string
	PlayerB         string
	NameB           string
	Winner          string
	ScoreA          int
	ScoreB          int
	Rounds          int
	Prize           int64
	DoubleOrNothing bool
	EndReason       string
	StartedAt       time.Time
	EndedAt         time.Time
}
