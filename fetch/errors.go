package fetch

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a fetch for the same event identifier is still
// in flight. Callers should skip the cycle and try again later.
var ErrBusy = errors.New("fetch already in flight")

// ConsistencyError marks an assembled result that disagrees with the
// server-reported totals. It is fatal to the fetch cycle; no partial
// result is surfaced.
type ConsistencyError struct {
	EventID int64
	Stage   int
	Reason  string
}

func (e *ConsistencyError) Error() string {
	if e.Stage > 0 {
		return fmt.Sprintf("event %d stage %d: %s", e.EventID, e.Stage, e.Reason)
	}
	return fmt.Sprintf("event %d: %s", e.EventID, e.Reason)
}

// IsConsistency reports whether err is (or wraps) a ConsistencyError.
func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
