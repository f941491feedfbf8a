package directory

import (
	"errors"
	"fmt"
)

var (
	ErrNoSource = errors.New("directory: source is required")
	ErrNoCache  = errors.New("directory: cache is required")
)

// FetchError is the single failure class of a form listing: transport,
// decoding or remote-side errors returned by the Source. It never reaches
// callers of Forms; it is what gets logged when a fetch degrades.
type FetchError struct {
	Limit int
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("directory: list forms (limit %d): %v", e.Limit, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
