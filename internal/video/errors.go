package video

import (
	"errors"
	"fmt"
)

// ErrSourceUnreadable indicates the source container could not be parsed
// or holds zero frames. Raised before any output is created.
var ErrSourceUnreadable = errors.New("video source unreadable")

// ErrNoCodecAvailable indicates every candidate encoder failed to
// initialize. No partial output file is left behind.
var ErrNoCodecAvailable = errors.New("no codec available")

// ProcessingError is a fatal mid-run failure. The partial output has been
// deleted by the time it is returned.
type ProcessingError struct {
	Frame int    // Frame index at which the run failed
	Stage string // "decode", "write", "finalize" or "cancel"
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed at frame %d (%s): %v", e.Frame, e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
