package gallery

import "errors"

var (
	// ErrPlayerNotFound is returned for operations on a profile that
	// does not exist, when create-on-write was not requested.
	ErrPlayerNotFound = errors.New("player profile not found")

	// ErrDuplicatePlayer is returned when adding a player whose name
	// is already registered.
	ErrDuplicatePlayer = errors.New("player name already registered")

	// ErrCorruptCheckpoint marks a checkpoint file that failed to
	// decode or verify.
	ErrCorruptCheckpoint = errors.New("corrupt gallery checkpoint")
)
