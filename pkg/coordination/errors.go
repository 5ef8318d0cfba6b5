package coordination

import (
	"errors"
)

var (
	ErrClosed          = errors.New("closed")
	ErrUnavailable     = errors.New("store unavailable")
	ErrSessionNotFound = errors.New("session not found")
	ErrCheckNotFound   = errors.New("check not found")
	ErrLockConflict    = errors.New("existing key does not match lock use")
	ErrLockLost        = errors.New("lock lost")
	ErrNotInteger      = errors.New("value is not an integer")
)
