package model

import "github.com/oklog/ulid/v2"

// NewID returns a new ULID. ULIDs sort by creation time, so build listings
// ordered by ID are also ordered by submission.
func NewID() string {
	return ulid.Make().String()
}
