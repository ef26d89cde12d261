// Package gateway submits program plans to the external audio-processing
// service that renders them.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/heyfeelings-official/little-microphones-sub001/internal/model"
)

// ErrNotConfigured is returned when no gateway URL is set.
var ErrNotConfigured = errors.New("audio gateway url not configured")

// Result is a successful submission.
type Result struct {
	ResultRef string `json:"resultRef"`
}

// SubmitError is a rejected submission. MissingRefs lists plan references the
// gateway could not fetch.
type SubmitError struct {
	Status      int
	Message     string
	MissingRefs []string
}

func (e *SubmitError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "submission rejected"
	}
	if len(e.MissingRefs) > 0 {
		msg = fmt.Sprintf("%s (%d missing refs)", msg, len(e.MissingRefs))
	}
	if e.Status != 0 {
		return fmt.Sprintf("gateway: status %d: %s", e.Status, msg)
	}
	return "gateway: " + msg
}

func (e *SubmitError) ErrorKind() string {
	if len(e.MissingRefs) > 0 {
		return "not_found"
	}
	if e.Status >= 500 {
		return "transient"
	}
	return "external"
}

// HTTPDoer describes the HTTP client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts plans as JSON.
type Client struct {
	url    string
	client HTTPDoer
}

func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return NewWithDoer(url, &http.Client{Timeout: timeout})
}

func NewWithDoer(url string, doer HTTPDoer) *Client {
	return &Client{url: strings.TrimSpace(url), client: doer}
}

type response struct {
	OK          bool     `json:"ok"`
	ResultRef   string   `json:"resultRef"`
	Error       string   `json:"error"`
	MissingRefs []string `json:"missingRefs"`
}

// Submit sends the plan and waits for the gateway's verdict.
func (c *Client) Submit(ctx context.Context, plan model.Plan) (Result, error) {
	if c.url == "" {
		return Result{}, ErrNotConfigured
	}
	body, err := json.Marshal(plan)
	if err != nil {
		return Result{}, fmt.Errorf("encode plan: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read gateway response: %w", err)
	}
	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return Result{}, &SubmitError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return Result{}, fmt.Errorf("decode gateway response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices || !out.OK {
		return Result{}, &SubmitError{Status: resp.StatusCode, Message: out.Error, MissingRefs: out.MissingRefs}
	}
	if out.ResultRef == "" {
		return Result{}, errors.New("gateway response carried no resultRef")
	}
	return Result{ResultRef: out.ResultRef}, nil
}
