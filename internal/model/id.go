package model

import "github.com/oklog/ulid/v2"

// NewID returns a fresh ULID for use as a job identifier. ULIDs sort by
// creation time, which keeps job listings and Redis keys roughly ordered.
func NewID() string {
	return ulid.Make().String()
}
