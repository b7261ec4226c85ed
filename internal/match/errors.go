package match

import "errors"

// User errors. Entry points return them before touching any state.
var (
	ErrNotInMatch     = errors.New("you are not in this match")
	ErrWrongRoom      = errors.New("your match is not running in this room")
	ErrNotHost        = errors.New("only the host can do that")
	ErrAlreadyStarted = errors.New("match already started")
	ErrNotStarted     = errors.New("match has not started")
	ErrMatchOver      = errors.New("match is over")
	ErrPlayerCap      = errors.New("player cap reached")
	ErrInvalidConfig  = errors.New("invalid configuration value")
	ErrAlreadyInMatch = errors.New("already in a match")
	ErrGroupBusy      = errors.New("a match is already running in this room")
	ErrForceRequired  = errors.New("leaving a started match requires force")
	ErrEliminated     = errors.New("you have been eliminated")
	ErrTooFewPlayers  = errors.New("not enough players")
	ErrUnknownGame    = errors.New("unknown game")
)
