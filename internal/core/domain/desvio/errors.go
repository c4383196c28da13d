package desvio

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedKey is returned for keys that cannot identify a dataset.
	ErrMalformedKey = errors.New("malformed cache key")
	ErrNotFound     = errors.New("item not found")
)

// FetchError is a failed call to the remote list store.
type FetchError struct {
	Dataset    string
	Op         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.Dataset, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Dataset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
