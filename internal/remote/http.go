package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPDoer describes the HTTP client used by HTTPClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient talks to a REST object store:
//
//	PUT    {base}/{name}      body = audio, response {"url": "..."}
//	DELETE {base}/{name}
//	HEAD   {ref}
//	GET    {base}?prefix=...  response [{"name","url","modified_at"}]
type HTTPClient struct {
	baseURL string
	token   string
	client  HTTPDoer
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the store rooted at baseURL. A zero
// timeout means 30 seconds.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewHTTPClientWithDoer(baseURL, token, &http.Client{Timeout: timeout})
}

// NewHTTPClientWithDoer creates a client with a caller-supplied transport.
func NewHTTPClientWithDoer(baseURL, token string, doer HTTPDoer) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  doer,
	}
}

type putResponse struct {
	URL string `json:"url"`
}

func (c *HTTPClient) Put(ctx context.Context, name string, data []byte) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPut, c.objectURL(name), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote put %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", statusError("put", resp)
	}

	var out putResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode put response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("remote put %s: response carried no url", name)
	}
	return out.URL, nil
}

func (c *HTTPClient) Delete(ctx context.Context, name string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.objectURL(name), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote delete %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return statusError("delete", resp)
	}
	return nil
}

func (c *HTTPClient) Head(ctx context.Context, ref string) error {
	req, err := c.newRequest(ctx, http.MethodHead, ref, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote head: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return statusError("head", resp)
	}
	return nil
}

func (c *HTTPClient) List(ctx context.Context, prefix string) ([]Object, error) {
	u := c.baseURL + "?prefix=" + url.QueryEscape(prefix)
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError("list", resp)
	}

	var objects []Object
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return objects, nil
}

func (c *HTTPClient) objectURL(name string) string {
	return c.baseURL + "/" + url.PathEscape(name)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build remote %s request: %w", strings.ToLower(method), err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, Code: resp.StatusCode, Detail: strings.TrimSpace(string(b))}
}
