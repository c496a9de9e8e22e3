package idgen

import "github.com/google/uuid"

// NewFunc returns a new case identifier. Tests replace it to get predictable
// identifiers.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier as string.
func New() string { return NewFunc() }
