package model

import "github.com/oklog/ulid/v2"

// NewID returns a fresh ULID string. Both request scopes and the tasks
// registered within them use these, so a completion log always references an
// id minted at request time.
func NewID() string {
	return ulid.Make().String()
}
