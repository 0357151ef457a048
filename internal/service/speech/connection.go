package speech

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var jsonAPI = sonic.ConfigStd

// DialOptions 连接参数
type DialOptions struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxRetries       int
}

func defaultDialOptions(timeout time.Duration) DialOptions {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return DialOptions{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      timeout,
		PingInterval:     15 * time.Second,
		MaxRetries:       3,
	}
}

// volcengineHeaders builds the auth headers shared by ASR and TTS. The connect id
// is returned so it can be logged next to server errors.
func volcengineHeaders(appID, token, resourceID string) (http.Header, string) {
	connectID := uuid.NewString()
	h := http.Header{}
	h.Set("X-Api-App-Key", appID)
	h.Set("X-Api-Access-Key", token)
	h.Set("X-Api-Resource-Id", resourceID)
	h.Set("X-Api-Connect-Id", connectID)
	return h, connectID
}

// dialWithRetry 带重试的连接建立。Handshake rejections (4xx) are not retried.
func dialWithRetry(ctx context.Context, url string, header http.Header, opts DialOptions) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	attempts := max(opts.MaxRetries, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, nil
		}
		lastErr = describeDialError(err, resp)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, lastErr
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", attempts, lastErr)
}

// HandshakeError carries the HTTP response of a rejected upgrade.
type HandshakeError struct {
	StatusCode int
	LogID      string
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.LogID != "" {
		return fmt.Sprintf("websocket handshake failed (status %d, logid %s): %v", e.StatusCode, e.LogID, e.Err)
	}
	return fmt.Sprintf("websocket handshake failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

func describeDialError(err error, resp *http.Response) error {
	if resp == nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer resp.Body.Close()
	return &HandshakeError{
		StatusCode: resp.StatusCode,
		LogID:      resp.Header.Get("X-Tt-Logid"),
		Err:        err,
	}
}

// keepAlive pings until ctx ends. WriteControl is safe next to the data writer,
// so no lock is needed. Pongs push the read deadline forward.
func keepAlive(ctx context.Context, conn *websocket.Conn, opts DialOptions) {
	if opts.PingInterval <= 0 {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	})

	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// IsRetryableError 判断错误是否可重试
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseGoingAway) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var hs *HandshakeError
	if errors.As(err, &hs) {
		return hs.StatusCode >= 500
	}
	return false
}
