package capacity

import "fmt"

// Error reports an over-committed allocation write. It carries the computed
// totals so callers can render "would be X%, capacity Y%" without
// recomputation.
type Error struct {
	Usage
}

func (e *Error) Error() string {
	return fmt.Sprintf("over-allocation detected: resource would be allocated %.0f%% (capacity %.0f%%)", e.TotalAllocated, e.Capacity)
}

// NewError wraps a usage result in a capacity error.
func NewError(u Usage) *Error {
	return &Error{Usage: u}
}
