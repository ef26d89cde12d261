// Package capture opens audio input devices for the recorder.
package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// Reason classifies why a device could not be opened.
type Reason string

const (
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonNoDevice         Reason = "no_device"
	ReasonUnknown          Reason = "unknown"
)

var (
	ErrPermissionDenied = errors.New("audio input permission denied")
	ErrNoDevice         = errors.New("no audio input device")
)

// Device is an audio input. Open starts capturing; the returned stream yields
// audio until closed. After Close, Read drains what the device already
// produced and then returns io.EOF.
type Device interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Classify maps an Open error to a Reason.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, os.ErrPermission):
		return ReasonPermissionDenied
	case errors.Is(err, ErrNoDevice), errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return ReasonNoDevice
	default:
		return ReasonUnknown
	}
}

// IsEndOfStream reports whether a read error just means the stream was
// stopped.
func IsEndOfStream(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
