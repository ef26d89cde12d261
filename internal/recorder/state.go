package recorder

import (
	"errors"
	"fmt"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/capture"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
	"github.com/heyfeelings-official/little-microphones-sub001/internal/store"
)

// State is a recorder state.
type State string

const (
	StateIdle                 State = "idle"
	StateRequestingCapability State = "requesting_capability"
	StateCapturing            State = "capturing"
	StateFinalizing           State = "finalizing"
	StateError                State = "error"
)

var (
	// ErrPromptBusy is returned when another capture holds the prompt.
	ErrPromptBusy = errors.New("a capture for this prompt is already in progress")
	// ErrAlreadyCapturing is returned by Start when the machine is not idle.
	ErrAlreadyCapturing = errors.New("recorder is not idle")
	// ErrNotCapturing is returned by Stop when nothing is being captured.
	ErrNotCapturing = errors.New("recorder is not capturing")
	// ErrEmptyCapture is returned when the device produced no audio.
	ErrEmptyCapture = errors.New("no audio captured")
)

// CapacityError is returned when the prompt already holds the maximum number
// of recordings. No recording is created.
type CapacityError struct {
	Prompt model.PromptScope
	Limit  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s already has %d recordings", e.Prompt, e.Limit)
}

func (e *CapacityError) Unwrap() error { return store.ErrCapacity }

func (e *CapacityError) ErrorKind() string { return "validation" }

// CapabilityError is returned when the audio input could not be acquired.
type CapabilityError struct {
	Device string
	Reason capture.Reason
	Err    error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("audio input %s unavailable (%s): %v", e.Device, e.Reason, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

func (e *CapabilityError) ErrorKind() string { return "configuration" }
