package ai

import (
	"errors"
	"fmt"
)

// ErrConfiguration means the backend cannot be called at all, e.g. no credential.
var ErrConfiguration = errors.New("completion backend not configured")

// UpstreamError reports a failed call to the completion backend.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
	return e.Provider + " request failed"
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
