package watcher

import (
	"errors"
	"fmt"
)

// ErrWatchInvalid is returned once the watched directory can no longer be
// watched, for example because it was deleted or moved away.
var ErrWatchInvalid = errors.New("watch is no longer valid")

// ConfigurationError reports a watched path that cannot be used.
type ConfigurationError struct {
	Path    string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("watch %s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("watch %s: %s", e.Path, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
