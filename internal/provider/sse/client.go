// Package sse is a minimal client for JSON-over-server-sent-events APIs. The
// vendor adapters that speak raw wire protocols share it for request plumbing
// and event framing.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxLineSize bounds a single SSE line. Some vendors put whole documents in
// one data line.
const maxLineSize = 4 * 1024 * 1024

// Client posts JSON requests and decodes SSE responses.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a client with the given request timeout in seconds.
func NewClient(timeoutSeconds int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

// PostJSON sends a non-streaming request and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	resp, err := c.post(ctx, url, headers, body, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Stream sends a streaming request and returns a scanner over the SSE events.
// The caller must Close the scanner.
func (c *Client) Stream(ctx context.Context, url string, headers map[string]string, body any) (*Scanner, error) {
	resp, err := c.post(ctx, url, headers, body, true)
	if err != nil {
		return nil, err
	}
	return newScanner(resp.Body), nil
}

func (c *Client) post(ctx context.Context, url string, headers map[string]string, body any, stream bool) (*http.Response, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return resp, nil
}

// Event is one server-sent event. Type is empty for bare data events.
type Event struct {
	Type string
	Data string
}

// Scanner iterates over the events of an SSE response body.
type Scanner struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	current Event
	err     error
}

func newScanner(body io.ReadCloser) *Scanner {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Scanner{body: body, scanner: sc}
}

// Next advances to the next event. It returns false at end of stream or on
// error; check Err afterwards.
func (s *Scanner) Next() bool {
	var eventType string
	var data []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if len(data) == 0 {
				continue
			}
			s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
			return true
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.err = err
	}

	// Flush a trailing event not terminated by a blank line.
	if len(data) > 0 {
		s.current = Event{Type: eventType, Data: strings.Join(data, "\n")}
		return true
	}

	return false
}

// Event returns the event read by the last call to Next.
func (s *Scanner) Event() Event {
	return s.current
}

// Err returns the first error encountered while reading the stream.
func (s *Scanner) Err() error {
	return s.err
}

// Close releases the underlying response body.
func (s *Scanner) Close() error {
	return s.body.Close()
}
