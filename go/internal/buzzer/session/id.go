package session

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidID is returned when a session identifier cannot be parsed
var ErrInvalidID = errors.New("invalid session id")

// ID identifies a live session. Zero is never handed out.
type ID uint64

// String renders the id as a fixed-width lowercase hex token
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseID reads a hex token produced by String. Shorter tokens are accepted.
func ParseID(s string) (ID, error) {
	if s == "" || len(s) > 16 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: zero", ErrInvalidID)
	}
	return ID(v), nil
}
