package upload

import (
	"errors"
	"fmt"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/remote"
)

var (
	// ErrNoPayload is returned when a recording has nothing left to upload.
	ErrNoPayload = errors.New("recording has no resident payload")
	// ErrInFlight is returned when another upload of the recording is running.
	ErrInFlight = errors.New("upload already in flight")
)

// UploadError records a failed upload attempt. The recording is left failed
// and keeps its payload, so the error is recoverable.
type UploadError struct {
	RecordingID string
	Err         error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.RecordingID, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ErrorKind classifies the failure.
func (e *UploadError) ErrorKind() string {
	var se *remote.StatusError
	if errors.As(e.Err, &se) {
		return se.ErrorKind()
	}
	if errors.Is(e.Err, ErrNoPayload) {
		return "validation"
	}
	return "transient"
}
