package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/askislamically/backend/internal/model/chat"
	"github.com/askislamically/backend/internal/service/speech"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var errConnClosed = errors.New("connection closed")

// client owns the write side of one browser connection. It is the session's
// Listener and, when synthesis is enabled, its AudioSink.
type client struct {
	conn *websocket.Conn
	log  *log.Logger
	done chan struct{}

	mu        sync.Mutex
	sessionID string
	closed    bool
	played    map[string]chan struct{}
}

func newClient(conn *websocket.Conn, logger *log.Logger) *client {
	return &client{
		conn:   conn,
		log:    logger,
		done:   make(chan struct{}),
		played: make(map[string]chan struct{}),
	}
}

func (c *client) bind(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

// send serializes writes; gorilla allows one concurrent writer.
func (c *client) send(typ string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}

	payload, err := encodeOutbound(c.sessionID, typ, data)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Debug("write failed", "type", typ, "err", err)
		return err
	}
	return nil
}

func (c *client) sendError(command string, err error) {
	_ = c.send(TypeError, ErrorData{Command: command, Message: err.Error()})
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// pingLoop 定期发送ping消息
func (c *client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *client) StateChanged(snapshot chat.Snapshot) { _ = c.send(TypeState, snapshot) }
func (c *client) Notify(n chat.Notification)          { _ = c.send(TypeNotice, n) }
func (c *client) ScrollToLatest()                     { _ = c.send(TypeScroll, nil) }
func (c *client) FocusInput()                         { _ = c.send(TypeFocus, nil) }

// Play sends the audio to the browser and waits for its "played" ack. A cancelled
// utterance tells the browser to stop.
func (c *client) Play(ctx context.Context, utteranceID string, audio *speech.Audio) error {
	ack := make(chan struct{})
	c.mu.Lock()
	c.played[utteranceID] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		// A replay of the same message may have registered its own ack since.
		if c.played[utteranceID] == ack {
			delete(c.played, utteranceID)
		}
		c.mu.Unlock()
	}()

	err := c.send(TypeAudio, AudioData{
		UtteranceID: utteranceID,
		Format:      audio.Format,
		Audio:       audio.Data,
		DurationMs:  audio.Duration.Milliseconds(),
	})
	if err != nil {
		return err
	}

	select {
	case <-ack:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		_ = c.send(TypeAudioStop, map[string]string{"utteranceId": utteranceID})
		return ctx.Err()
	}
}

func (c *client) ackPlayed(utteranceID string) {
	c.mu.Lock()
	ack, ok := c.played[utteranceID]
	if ok {
		delete(c.played, utteranceID)
	}
	c.mu.Unlock()
	if ok {
		close(ack)
	}
}
