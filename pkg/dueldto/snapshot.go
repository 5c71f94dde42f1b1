package dueldto

import "time"

type PlayerView struct {
	ID       string
	Name     string
	HP       int
	HPHidden bool
	Score    int
	Items    []string
	Knife    bool
	Cuffed   bool
	Stacks   int
	Jammed   bool
}

// Snapshot is the viewer-independent picture of a duel. HPHidden marks hp the table
// must not reveal.
type Snapshot struct {
	DuelID          string
	Room            string
	Status          string
	Round           int
	MaxRounds       int
	MaxHP           int
	Turn            string
	TurnName        string
	Live            int
	Blank           int
	DoubleOrNothing bool
	Version         int64
	Players         [2]PlayerView
	Winner          string
	EndReason       string
	UpdatedAt       time.Time
}
