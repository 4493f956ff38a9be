package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/wojtekolesinski/fleetduel/models"
)

type Client struct {
	client  http.Client
	dialer  websocket.Dialer
	baseUrl string

	Participant string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(baseUrl string, timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client.NewClient: %w", err)
	}
	return &Client{
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		client: http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		dialer: websocket.Dialer{
			Jar:              jar,
			HandshakeTimeout: timeout,
		},
	}, nil
}

// Dial registers with the server and opens the game connection.
func Dial(ctx context.Context, baseUrl string, timeout time.Duration) (*Client, error) {
	c, err := NewClient(baseUrl, timeout)
	if err != nil {
		return nil, err
	}
	if _, err = c.Register(); err != nil {
		return nil, err
	}
	if err = c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) get(path string, v any) error {
	path, err := url.JoinPath(c.baseUrl, path)
	if err != nil {
		return err
	}

	res, err := c.client.Get(path)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	log.Debug("client [get]", "path", path, "statusCode", res.StatusCode)
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// Register obtains a participant identity; the cookie is kept for the websocket handshake.
func (c *Client) Register() (participant string, err error) {
	var payload struct {
		Participant string `json:"participant"`
	}
	if err = c.get("/session", &payload); err != nil {
		return "", fmt.Errorf("client.Register: %w", err)
	}
	c.Participant = payload.Participant
	log.Info("client [Register]", "participant", c.Participant)
	return c.Participant, nil
}

func (c *Client) Lobbies() (rooms []models.Room, err error) {
	if err = c.get("/lobbies", &rooms); err != nil {
		return nil, fmt.Errorf("client.Lobbies: %w", err)
	}
	log.Info("client [Lobbies]", "count", len(rooms))
	return
}

func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.baseUrl)
	if err != nil {
		return fmt.Errorf("client.Connect: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u = u.JoinPath("/ws")

	conn, res, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if res != nil {
			return fmt.Errorf("client.Connect: status %d: %w", res.StatusCode, err)
		}
		return fmt.Errorf("client.Connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	log.Info("client [Connect]", "url", u.String())
	return nil
}

func (c *Client) Send(a models.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("client.Send: not connected")
	}
	log.Debug("client [Send]", "action", a)
	if err := c.conn.WriteJSON(a); err != nil {
		return fmt.Errorf("client.Send: %w", err)
	}
	return nil
}

// Next blocks until the server sends the next envelope. It must be called from a single goroutine.
func (c *Client) Next() (env models.Envelope, err error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return env, fmt.Errorf("client.Next: not connected")
	}
	if err = conn.ReadJSON(&env); err != nil {
		return env, fmt.Errorf("client.Next: %w", err)
	}
	log.Debug("client [Next]", "type", env.Type)
	return env, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}
