package dueldto

import "time"

type Wallet struct {
	PlayerID string
	Name     string
	Total    int64
	Usage    map[string]int
}

type Record struct {
	DuelID    string
	NameA     string
	NameB     string
	ScoreA    int
	ScoreB    int
	Winner    string
	Won       bool
	Draw      bool
	Prize     int64
	EndReason string
	EndedAt   time.Time
}
