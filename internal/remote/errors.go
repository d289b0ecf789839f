// Package remote implements the backends the store replicates to: an HTTP
// client for a neurapath server, and SQLite, Postgres and git backed stores
// that can either be used directly or sit behind the server.
package remote

import "errors"

var (
	// ErrUnauthorized is returned for missing or wrong credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserExists is returned when registering a taken user name.
	ErrUserExists = errors.New("user already exists")
	// ErrUnknownUser is returned for operations on a user that does not exist.
	ErrUnknownUser = errors.New("unknown user")
	// ErrForbidden is returned when reading another user's private database.
	ErrForbidden = errors.New("database is private")
)
