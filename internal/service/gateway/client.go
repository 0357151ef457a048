package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// ErrEmptyResponse is returned when the gateway answers 200 without any text.
var ErrEmptyResponse = errors.New("gateway returned an empty response")

const maxResponseBytes = 4 << 20

// Client calls a remote completion gateway over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a client for the given endpoint, e.g. http://localhost:8080/api/message.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Complete posts the request and returns the assistant text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if req.History == nil {
		req.History = []HistoryItem{}
	}

	body, err := sonic.ConfigStd.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read gateway response: %w", err)
	}

	var payload Response
	decodeErr := sonic.ConfigStd.Unmarshal(raw, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := payload.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode gateway response: %w", decodeErr)
	}
	if payload.Response == "" {
		return "", ErrEmptyResponse
	}
	return payload.Response, nil
}
