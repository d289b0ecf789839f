package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation names a record that does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a move or rename would overwrite an existing record.
	ErrConflict = errors.New("record already exists")
	// ErrInvalidMove is returned when a record would be moved below itself.
	ErrInvalidMove = errors.New("cannot move a record into its own subtree")
	// ErrRemote wraps replication failures. Local state has already been applied.
	ErrRemote = errors.New("remote replication failed")
	// ErrNoSession is returned when a remote call is attempted without credentials.
	ErrNoSession = errors.New("no active session")
)

// ConflictError names the record a move would collide with.
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("an item named %q already exists", e.ID)
}

// Is lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
