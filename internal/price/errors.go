package price

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigError means a price source cannot be built. It is fatal at startup
// and must never be retried.
type ConfigError struct {
	Provider string
	Field    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s price source is not configured: missing %s", e.Provider, e.Field)
}

// FetchError wraps a transient provider failure. The caller decides whether
// to retry, the monitor simply waits for the next tick.
type FetchError struct {
	Provider string
	err      error
}

func newFetchError(provider string, err error) *FetchError {
	return &FetchError{Provider: provider, err: err}
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch prices from %s: %v", e.Provider, e.err)
}

func (e *FetchError) Cause() error  { return e.err }
func (e *FetchError) Unwrap() error { return e.err }

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
