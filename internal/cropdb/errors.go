package cropdb

import (
	"errors"
	"fmt"
)

// ErrStageCount indicates a crop whose stage lengths are not exactly four.
var ErrStageCount = fmt.Errorf("growth stages must list exactly %d lengths", stageCount)

// ErrDuplicateCrop indicates two table entries resolving to the same crop
// name or key.
var ErrDuplicateCrop = errors.New("defined more than once")

// LoadError reports a crop database that could not be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load crop database %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
