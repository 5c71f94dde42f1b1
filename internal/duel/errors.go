package duel

import "errors"

var (
	ErrNotYourTurn      = errors.New("duel: not your turn")
	ErrDuelNotActive    = errors.New("duel: not active")
	ErrItemNotHeld      = errors.New("duel: item not held")
	ErrInvalidTarget    = errors.New("duel: invalid target")
	ErrRoundCapExceeded = errors.New("duel: round cap exceeded")
	ErrStoreUnavailable = errors.New("duel: session store unavailable")
	ErrStaleAction      = errors.New("duel: stale action")
	ErrNotParticipant   = errors.New("duel: not a participant")
	ErrDuelExists       = errors.New("duel: already in progress")
	ErrDuelNotFound     = errors.New("duel: not found")
	ErrUnknownItem      = errors.New("duel: unknown item")
)
