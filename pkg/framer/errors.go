package framer

import "fmt"

// FrameError reports a CRC mismatch on a single frame (frames with an
// unrecognised message id are dropped without one). It is always local:
// the reader absorbs it and resumes scanning for the next marker.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame: %s", e.Reason)
}
