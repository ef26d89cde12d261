// Package remote provides the client for the remote backing store that holds
// uploaded recordings.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when the remote store no longer holds an object.
var ErrNotFound = errors.New("remote object not found")

// Object is one entry of a remote listing.
type Object struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Client is the remote backing store.
type Client interface {
	// Put stores data under name and returns its retrievable reference.
	Put(ctx context.Context, name string, data []byte) (string, error)

	// Delete removes the object stored under name.
	Delete(ctx context.Context, name string) error

	// Head checks that ref is still retrievable. Returns ErrNotFound when the
	// object is gone.
	Head(ctx context.Context, ref string) error

	// List returns every object whose name starts with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Op     string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("remote %s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("remote %s: status %d: %s", e.Op, e.Code, e.Detail)
}

// ErrorKind classifies the failure for status mapping.
func (e *StatusError) ErrorKind() string {
	if e.Code >= 500 || e.Code == 429 {
		return "transient"
	}
	return "external"
}

// ObjectName is the remote name for a recording. The recording ID is kept
// verbatim so the name is stable across retries.
func ObjectName(id, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return id
	}
	return id + "." + ext
}

// IDFromObjectName strips the extension added by ObjectName.
func IDFromObjectName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("remote store not configured")

// Disabled is the client used when no remote store is configured. Every
// call fails with ErrNotConfigured.
type Disabled struct{}

func (Disabled) Put(context.Context, string, []byte) (string, error) { return "", ErrNotConfigured }
func (Disabled) Delete(context.Context, string) error                { return ErrNotConfigured }
func (Disabled) Head(context.Context, string) error                  { return ErrNotConfigured }
func (Disabled) List(context.Context, string) ([]Object, error)      { return nil, ErrNotConfigured }
