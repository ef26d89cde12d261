// Package model defines the core recording and program-plan data types.
package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// UploadStatus is the durability state of a recording.
type UploadStatus string

const (
	StatusPending   UploadStatus = "pending"
	StatusUploading UploadStatus = "uploading"
	StatusUploaded  UploadStatus = "uploaded"
	StatusFailed    UploadStatus = "failed"
)

var allStatuses = []UploadStatus{
	StatusPending,
	StatusUploading,
	StatusUploaded,
	StatusFailed,
}

// AllStatuses returns the known statuses in lifecycle order.
func AllStatuses() []UploadStatus {
	cp := make([]UploadStatus, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseUploadStatus converts a string into a known UploadStatus.
func ParseUploadStatus(value string) (UploadStatus, bool) {
	normalized := UploadStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// InFlight reports whether the status means an upload has not settled yet.
func (s UploadStatus) InFlight() bool {
	return s == StatusPending || s == StatusUploading
}

var slugRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)

// Scope identifies the program and instance a set of recordings belongs to.
type Scope struct {
	Program  string `json:"program"`
	Instance string `json:"instance"`
}

// Validate checks that both parts are usable inside a recording ID.
func (s Scope) Validate() error {
	if !slugRegex.MatchString(s.Program) {
		return fmt.Errorf("invalid program %q (letters, digits and '-' only)", s.Program)
	}
	if !slugRegex.MatchString(s.Instance) {
		return fmt.Errorf("invalid instance %q (letters, digits and '-' only)", s.Instance)
	}
	return nil
}

func (s Scope) String() string {
	return s.Program + "/" + s.Instance
}

// PromptScope narrows a Scope to one prompt.
type PromptScope struct {
	Scope
	PromptOrder int `json:"prompt_order"`
}

// Validate checks the scope and the prompt order.
func (p PromptScope) Validate() error {
	if err := p.Scope.Validate(); err != nil {
		return err
	}
	if p.PromptOrder <= 0 {
		return fmt.Errorf("invalid prompt order %d", p.PromptOrder)
	}
	return nil
}

// Key identifies the prompt across programs and instances.
func (p PromptScope) Key() string {
	return PromptPrefix(p)
}

func (p PromptScope) String() string {
	return fmt.Sprintf("%s/%s#%d", p.Program, p.Instance, p.PromptOrder)
}

var promptDigits = regexp.MustCompile(`\d+`)

// NormalizePromptID strips prefixes such as "QID" or "question_" and returns
// the numeric prompt order. The last run of digits wins.
func NormalizePromptID(raw string) (int, error) {
	matches := promptDigits.FindAllString(strings.TrimSpace(raw), -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("prompt id %q has no numeric order", raw)
	}
	n, err := strconv.Atoi(matches[len(matches)-1])
	if err != nil {
		return 0, fmt.Errorf("prompt id %q: %w", raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("prompt id %q: order must be positive", raw)
	}
	return n, nil
}

// Recording is one captured answer to one prompt.
type Recording struct {
	ID           string       `json:"id"`
	Program      string       `json:"program"`
	Instance     string       `json:"instance"`
	PromptOrder  int          `json:"prompt_order"`
	CreatedAt    time.Time    `json:"created_at"`
	Payload      []byte       `json:"-"`
	PayloadBytes int64        `json:"payload_bytes"`
	RemoteRef    string       `json:"remote_ref,omitempty"`
	UploadStatus UploadStatus `json:"upload_status"`
	SizeBytes    int64        `json:"size_bytes"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Scope returns the program/instance pair of the recording.
func (r Recording) Scope() Scope {
	return Scope{Program: r.Program, Instance: r.Instance}
}

// PromptScope returns the prompt the recording answers.
func (r Recording) PromptScope() PromptScope {
	return PromptScope{Scope: r.Scope(), PromptOrder: r.PromptOrder}
}

// HasPayload reports whether the captured bytes are still resident. Listings
// that skip payload columns fill PayloadBytes instead of Payload.
func (r Recording) HasPayload() bool {
	return len(r.Payload) > 0 || r.PayloadBytes > 0
}

// IsDurable reports whether the recording is claimed to live in the remote store.
func (r Recording) IsDurable() bool {
	return r.UploadStatus == StatusUploaded && r.RemoteRef != ""
}

// IsOrphaned reports whether the recording has no viable local or remote source.
func (r Recording) IsOrphaned() bool {
	return r.UploadStatus == StatusFailed && !r.HasPayload() && r.RemoteRef == ""
}

// Validate checks the status/source invariant: an uploaded recording holds
// exactly one of payload and remote reference.
func (r Recording) Validate() error {
	if _, ok := ParseUploadStatus(string(r.UploadStatus)); !ok {
		return fmt.Errorf("recording %s: unknown status %q", r.ID, r.UploadStatus)
	}
	if r.UploadStatus == StatusUploaded && r.HasPayload() == (r.RemoteRef != "") {
		return fmt.Errorf("recording %s: uploaded requires exactly one of payload or remote ref", r.ID)
	}
	return nil
}
