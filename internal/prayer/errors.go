package prayer

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing location or day. Callers skip the location.
var ErrNotFound = errors.New("prayer: not found")

// DataFormatError reports a malformed yearly table for one location.
type DataFormatError struct {
	LocationID int
	Err        error
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("prayer: location %d: malformed data: %v", e.LocationID, e.Err)
}

func (e *DataFormatError) Unwrap() error { return e.Err }
