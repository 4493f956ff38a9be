package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
)

const (
	writeWait      = 4 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1024
)

// conn is one participant's websocket. It is the notify.Port for that participant.
type conn struct {
	id          string
	participant string
	ws          *websocket.Conn

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

func newConn(participant string, ws *websocket.Conn) *conn {
	return &conn{
		id:          uuid.NewString(),
		participant: participant,
		ws:          ws,
		stop:        make(chan struct{}),
	}
}

func (c *conn) send(env models.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("conn %s: closed: %w", c.id, notify.ErrUnavailable)
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("conn %s: %v: %w", c.id, err, notify.ErrUnavailable)
	}
	if err := c.ws.WriteJSON(env); err != nil {
		return fmt.Errorf("conn %s: %v: %w", c.id, err, notify.ErrUnavailable)
	}
	return nil
}

func (c *conn) Render(_ context.Context, _ string, view models.View) (notify.ViewHandle, error) {
	v := view
	if err := c.send(models.Envelope{Type: models.EnvelopeView, View: &v}); err != nil {
		return "", err
	}
	return notify.ViewHandle(c.id + "/" + view.SessionID), nil
}

func (c *conn) Prompt(_ context.Context, _ string, prompt models.Prompt) error {
	p := prompt
	return c.send(models.Envelope{Type: models.EnvelopePrompt, Prompt: &p})
}

func (c *conn) Dismiss(_ context.Context, _ string, promptID string) error {
	return c.send(models.Envelope{Type: models.EnvelopeDismiss, Dismiss: promptID})
}

func (c *conn) Notify(_ context.Context, _ string, notice models.Notice) error {
	n := notice
	return c.send(models.Envelope{Type: models.EnvelopeNotice, Notice: &n})
}

func (c *conn) sendError(err error) {
	if serr := c.send(models.Envelope{Type: models.EnvelopeError, Error: err.Error()}); serr != nil {
		log.Debug("server [sendError]", "participant", c.participant, "err", serr)
	}
}

// keepAlive pings the client until the connection is closed.
func (c *conn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				log.Debug("server [keepAlive]", "participant", c.participant, "err", err)
				c.close()
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.stop)
	c.ws.Close()
}
