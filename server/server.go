// Package server exposes game sessions over websockets. Each participant is identified by a
// signed cookie and receives views, prompts and notices as JSON envelopes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/websocket"

	"github.com/wojtekolesinski/fleetduel/battleship"
	"github.com/wojtekolesinski/fleetduel/lobby"
	"github.com/wojtekolesinski/fleetduel/mastermind"
	"github.com/wojtekolesinski/fleetduel/minesweeper"
	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
	"github.com/wojtekolesinski/fleetduel/registry"
	"github.com/wojtekolesinski/fleetduel/tictactoe"
)

const cookieName = "participant"

type Config struct {
	// Origin is the allowed websocket Origin; "*" allows any.
	Origin   string
	HashKey  []byte
	BlockKey []byte

	Battleship  battleship.Config
	TurnTimeout time.Duration
	LobbyTTL    time.Duration
	// ReconnectGrace is how long a dropped participant may take to come back before their game
	// is forfeited.
	ReconnectGrace time.Duration
	Rand           *rand.Rand
}

type game interface {
	ID() string
	Start(ctx context.Context)
	Close(ctx context.Context)
	Resync(ctx context.Context, participant string) error
	Abandon(ctx context.Context, participant string) error
}

type Server struct {
	cfg      Config
	sc       *securecookie.SecureCookie
	upgrader websocket.Upgrader
	reg      *registry.Registry
	lobby    *lobby.Lobby
	port     *notify.Mux
	routes   *http.ServeMux

	mu    sync.Mutex
	rng   *rand.Rand
	conns map[string]*conn
	games map[string]game
	grace map[string]*time.Timer
}

func New(cfg Config) *Server {
	if len(cfg.HashKey) == 0 {
		log.Debug("server [New]", "msg", "generating hash key")
		cfg.HashKey = securecookie.GenerateRandomKey(32)
	}
	switch len(cfg.BlockKey) {
	case 16, 24, 32:
	case 0:
		log.Debug("server [New]", "msg", "cookie encryption disabled")
		cfg.BlockKey = nil
	default:
		log.Warn("server [New]", "msg", "invalid block key size, generating one")
		cfg.BlockKey = securecookie.GenerateRandomKey(32)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.ReconnectGrace <= 0 {
		cfg.ReconnectGrace = 60 * time.Second
	}

	reg := registry.New()
	s := &Server{
		cfg:   cfg,
		sc:    securecookie.New(cfg.HashKey, cfg.BlockKey),
		reg:   reg,
		lobby: lobby.New(reg, rand.New(rand.NewSource(cfg.Rand.Int63())), cfg.LobbyTTL),
		port:  notify.NewMux(),
		rng:   cfg.Rand,
		conns: make(map[string]*conn),
		games: make(map[string]game),
		grace: make(map[string]*time.Timer),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.routes = http.NewServeMux()
	s.routes.HandleFunc("/session", s.handleSession)
	s.routes.HandleFunc("/lobbies", s.handleLobbies)
	s.routes.HandleFunc("/ws", s.handleWebsocket)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.routes.ServeHTTP(w, r)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.Origin == "" || s.cfg.Origin == "*" {
		return true
	}
	return s.cfg.Origin == r.Header.Get("Origin")
}

// participant returns the identity stored in the request cookie, issuing a new one when it is
// missing or invalid. The bool reports whether the cookie was already valid.
func (s *Server) participant(w http.ResponseWriter, r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(cookieName); err == nil {
		var id string
		if err = s.sc.Decode(cookieName, cookie.Value, &id); err == nil {
			return id, true
		}
	}
	id := uuid.NewString()
	encoded, err := s.sc.Encode(cookieName, id)
	if err != nil {
		log.Error("server [participant]", "err", err)
		return "", false
	}
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: encoded, Path: "/", HttpOnly: true})
	return id, false
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, _ := s.participant(w, r)
	if id == "" {
		http.Error(w, "could not issue identity", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"participant": id})
}

func (s *Server) handleLobbies(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.lobby.Rooms())
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	id, valid := s.participant(w, r)
	if !valid {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("server [handleWebsocket]", "err", err)
		return
	}
	ws.SetReadLimit(maxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Error("server [handleWebsocket]", "err", err)
		ws.Close()
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := newConn(id, ws)
	s.attach(context.Background(), c)
	go c.keepAlive()
	s.readLoop(c)
}

// attach makes c the display of its participant. A participant who is still in a game gets
// their view and live prompt again.
func (s *Server) attach(ctx context.Context, c *conn) {
	s.mu.Lock()
	old := s.conns[c.participant]
	s.conns[c.participant] = c
	if t, ok := s.grace[c.participant]; ok {
		t.Stop()
		delete(s.grace, c.participant)
	}
	s.mu.Unlock()
	s.port.Attach(c.participant, c)
	if old != nil {
		old.close()
	}
	log.Info("server [attach]", "participant", c.participant, "conn", c.id)

	if g, ok := s.gameOf(c.participant); ok {
		if err := g.Resync(ctx, c.participant); err != nil {
			log.Warn("server [attach]", "participant", c.participant, "err", err)
		}
	}
}

func (s *Server) gameOf(participant string) (game, bool) {
	sess, ok := s.reg.Lookup(participant)
	if !ok {
		return nil, false
	}
	g, ok := sess.(game)
	return g, ok
}

func (s *Server) detach(c *conn) {
	s.mu.Lock()
	current := s.conns[c.participant] == c
	if current {
		delete(s.conns, c.participant)
	}
	s.mu.Unlock()
	if current {
		s.port.Detach(c.participant)
		s.lobby.Close(c.participant)
		if _, ok := s.gameOf(c.participant); ok {
			s.startGrace(c.participant)
		}
	}
	c.close()
	log.Info("server [detach]", "participant", c.participant, "conn", c.id)
}

// startGrace forfeits the participant's game unless they reconnect within ReconnectGrace.
func (s *Server) startGrace(participant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.grace[participant]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(s.cfg.ReconnectGrace, func() {
		s.mu.Lock()
		_, back := s.conns[participant]
		stale := s.grace[participant] != t
		if !stale {
			delete(s.grace, participant)
		}
		s.mu.Unlock()
		if back || stale {
			return
		}
		g, ok := s.gameOf(participant)
		if !ok {
			return
		}
		log.Info("server [grace]", "participant", participant, "session", g.ID())
		if err := g.Abandon(context.Background(), participant); err != nil {
			log.Debug("server [grace]", "participant", participant, "err", err)
		}
	})
	s.grace[participant] = t
}

func (s *Server) readLoop(c *conn) {
	defer s.detach(c)
	for {
		var a models.Action
		if err := c.ws.ReadJSON(&a); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("server [readLoop]", "participant", c.participant, "err", err)
			}
			return
		}
		log.Debug("server [readLoop]", "participant", c.participant, "action", a.Type)
		if err := s.dispatch(context.Background(), c, a); err != nil {
			log.Debug("server [dispatch]", "participant", c.participant, "action", a.Type, "err", err)
			c.sendError(err)
		}
	}
}

var errNoSession = errors.New("not in a game")

func (s *Server) dispatch(ctx context.Context, c *conn, a models.Action) error {
	switch a.Type {
	case models.ActionOpen:
		if models.Solo(a.Game) {
			return s.startSolo(ctx, c.participant, a)
		}
		room, err := s.lobby.Open(c.participant, a.Game)
		if err != nil {
			return err
		}
		return c.send(models.Envelope{Type: models.EnvelopeLobby, Lobby: &room})
	case models.ActionJoin:
		m, err := s.lobby.Join(a.Lobby, c.participant)
		if err != nil {
			return err
		}
		return s.startGame(ctx, m)
	}

	sess, ok := s.reg.Lookup(c.participant)
	if !ok {
		return fmt.Errorf("server.dispatch %s: %w", a.Type, errNoSession)
	}
	switch g := sess.(type) {
	case *battleship.Session:
		ev, err := battleship.EventFromAction(a)
		if err != nil {
			return err
		}
		return g.Submit(ctx, c.participant, ev)
	case *tictactoe.Session:
		switch a.Type {
		case models.ActionPlace:
			return g.Play(ctx, c.participant, a.Row, a.Col)
		case models.ActionResign:
			return g.Resign(ctx, c.participant)
		}
		return fmt.Errorf("server.dispatch: %q is not a tictactoe action", a.Type)
	case *minesweeper.Session:
		switch a.Type {
		case models.ActionReveal:
			return g.Reveal(ctx, c.participant, a.Row, a.Col)
		case models.ActionFlag:
			return g.ToggleFlag(ctx, c.participant, a.Row, a.Col)
		case models.ActionResign:
			return g.Resign(ctx, c.participant)
		}
		return fmt.Errorf("server.dispatch: %q is not a minesweeper action", a.Type)
	case *mastermind.Session:
		switch a.Type {
		case models.ActionPick:
			return g.Pick(ctx, c.participant, a.Value)
		case models.ActionUndo:
			return g.Undo(ctx, c.participant)
		case models.ActionSubmit:
			return g.Submit(ctx, c.participant)
		case models.ActionResign:
			return g.Resign(ctx, c.participant)
		}
		return fmt.Errorf("server.dispatch: %q is not a mastermind action", a.Type)
	}
	return fmt.Errorf("server.dispatch: unsupported session %T", sess)
}

func (s *Server) startGame(ctx context.Context, m lobby.Match) error {
	p1, p2 := m.Players[0], m.Players[1]
	var g game
	var err error

	s.mu.Lock()
	switch m.Game {
	case models.GameBattleship:
		cfg := s.cfg.Battleship
		cfg.Rand = rand.New(rand.NewSource(s.rng.Int63()))
		cfg.OnEnd = s.ended
		g, err = battleship.New(m.RoomID, p1, p2, m.Starting, cfg, s.port, s.reg)
	case models.GameTicTacToe:
		g, err = tictactoe.New(m.RoomID, p1, p2, m.Starting, tictactoe.Config{TurnTimeout: s.cfg.TurnTimeout, OnEnd: s.ended}, s.port, s.reg)
	default:
		err = fmt.Errorf("server.startGame %q: %w", m.Game, lobby.ErrUnknownGame)
	}
	if err == nil {
		s.games[g.ID()] = g
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	g.Start(ctx)
	return nil
}

// startSolo starts a single-player game without going through the lobby. For minesweeper the
// action value is the bomb count.
func (s *Server) startSolo(ctx context.Context, player string, a models.Action) error {
	var g game
	var err error

	s.mu.Lock()
	rng := rand.New(rand.NewSource(s.rng.Int63()))
	switch a.Game {
	case models.GameMinesweeper:
		cfg := minesweeper.DefaultConfig()
		if a.Value != 0 {
			cfg.Bombs = a.Value
		}
		cfg.Rand, cfg.OnEnd = rng, s.ended
		g, err = minesweeper.New("", player, cfg, s.port, s.reg)
	case models.GameMastermind:
		cfg := mastermind.DefaultConfig()
		cfg.Rand, cfg.OnEnd = rng, s.ended
		g, err = mastermind.New("", player, cfg, s.port, s.reg)
	default:
		err = fmt.Errorf("server.startSolo %q: %w", a.Game, lobby.ErrUnknownGame)
	}
	if err == nil {
		s.games[g.ID()] = g
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.lobby.Close(player)
	g.Start(ctx)
	return nil
}

// ended runs inside the session; it must not call back into it.
func (s *Server) ended(e models.GameEnded) {
	s.mu.Lock()
	delete(s.games, e.SessionID)
	var targets []*conn
	for _, p := range e.Players {
		if c, ok := s.conns[p]; ok {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		ev := e
		if err := c.send(models.Envelope{Type: models.EnvelopeEnded, Ended: &ev}); err != nil {
			log.Warn("server [ended]", "participant", c.participant, "err", err)
		}
	}
}

// Shutdown stops every running game and closes all connections.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	games := make([]game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	for p, t := range s.grace {
		t.Stop()
		delete(s.grace, p)
	}
	s.mu.Unlock()

	for _, g := range games {
		g.Close(ctx)
	}
	for _, c := range conns {
		c.close()
	}
	log.Info("server [Shutdown]", "games", len(games), "connections", len(conns))
}
