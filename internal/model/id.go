package model

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Recording IDs have the form {program}_{instance}_q{order}_{ULID}. The ULID
// timestamp is the creation time in epoch milliseconds, so IDs of one prompt
// sort chronologically.
const idSeparator = "_"

// NewID builds a recording ID for the prompt at the given creation time.
// A nil entropy source uses the ulid default.
func NewID(p PromptScope, createdAt time.Time, entropy io.Reader) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if entropy == nil {
		entropy = ulid.DefaultEntropy()
	}
	u, err := ulid.New(ulid.Timestamp(createdAt), entropy)
	if err != nil {
		return "", fmt.Errorf("new ulid: %w", err)
	}
	return PromptPrefix(p) + u.String(), nil
}

// ParsedID is the decoded form of a recording ID.
type ParsedID struct {
	PromptScope
	CreatedAt time.Time
}

// ParseID decodes a recording ID.
func ParseID(id string) (ParsedID, error) {
	parts := strings.Split(id, idSeparator)
	if len(parts) != 4 {
		return ParsedID{}, fmt.Errorf("recording id %q: expected 4 parts", id)
	}
	if !strings.HasPrefix(parts[2], "q") {
		return ParsedID{}, fmt.Errorf("recording id %q: missing prompt part", id)
	}
	order, err := strconv.Atoi(parts[2][1:])
	if err != nil {
		return ParsedID{}, fmt.Errorf("recording id %q: prompt order: %w", id, err)
	}
	u, err := ulid.ParseStrict(parts[3])
	if err != nil {
		return ParsedID{}, fmt.Errorf("recording id %q: %w", id, err)
	}
	p := PromptScope{
		Scope:       Scope{Program: parts[0], Instance: parts[1]},
		PromptOrder: order,
	}
	if err := p.Validate(); err != nil {
		return ParsedID{}, fmt.Errorf("recording id %q: %w", id, err)
	}
	return ParsedID{PromptScope: p, CreatedAt: ulid.Time(u.Time()).UTC()}, nil
}

// ScopePrefix is the ID prefix shared by every recording of the scope.
func ScopePrefix(s Scope) string {
	return s.Program + idSeparator + s.Instance + idSeparator
}

// PromptPrefix is the ID prefix shared by every recording of the prompt.
func PromptPrefix(p PromptScope) string {
	return ScopePrefix(p.Scope) + "q" + strconv.Itoa(p.PromptOrder) + idSeparator
}
