package events

import "time"

type Kind string

const (
	Created  Kind = "CREATED"
	Overflow Kind = "OVERFLOW"
)

// FileEvent is a single change observed in the watched directory. Name is
// relative to that directory and is empty for Overflow events.
type FileEvent struct {
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}
