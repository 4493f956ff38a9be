// Package lobby pairs participants and picks who starts.
package lobby

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/registry"
)

const DefaultTTL = 300 * time.Second

var (
	ErrRoomNotFound   = errors.New("lobby not found or no longer open")
	ErrOwnRoom        = errors.New("cannot join your own lobby")
	ErrAlreadyHosting = errors.New("participant already hosts a lobby")
	ErrUnknownGame    = errors.New("unknown game")
)

// Match is a pair of participants ready to play.
type Match struct {
	RoomID   string
	Game     string
	Players  [2]string
	Starting string
}

type Lobby struct {
	reg *registry.Registry
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	rooms   map[string]*room
	hosting map[string]string
}

type room struct {
	models.Room
	created time.Time
}

// New returns a lobby that checks reg before pairing and draws the starting player from rng.
func New(reg *registry.Registry, rng *rand.Rand, ttl time.Duration) *Lobby {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lobby{
		reg:     reg,
		ttl:     ttl,
		now:     time.Now,
		rng:     rng,
		rooms:   make(map[string]*room),
		hosting: make(map[string]string),
	}
}

// Open creates a waiting room for host.
func (l *Lobby) Open(host, game string) (models.Room, error) {
	if game != models.GameBattleship && game != models.GameTicTacToe {
		return models.Room{}, fmt.Errorf("lobby.Open %q: %w", game, ErrUnknownGame)
	}
	if _, busy := l.reg.Lookup(host); busy {
		return models.Room{}, fmt.Errorf("lobby.Open %s: %w", host, registry.ErrAlreadyInSession)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
	if id, ok := l.hosting[host]; ok {
		return models.Room{}, fmt.Errorf("lobby.Open %s (lobby %s): %w", host, id, ErrAlreadyHosting)
	}
	r := &room{Room: models.Room{ID: uuid.NewString(), Game: game, Host: host}, created: l.now()}
	l.rooms[r.ID] = r
	l.hosting[host] = r.ID
	log.Info("lobby [Open]", "lobby", r.ID, "host", host, "game", game)
	return r.Room, nil
}

// Join pairs guest with the room's host and closes the room. A rejected join leaves the room
// open.
func (l *Lobby) Join(roomID, guest string) (Match, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
	r, ok := l.rooms[roomID]
	if !ok {
		return Match{}, fmt.Errorf("lobby.Join %s: %w", roomID, ErrRoomNotFound)
	}
	if r.Host == guest {
		return Match{}, fmt.Errorf("lobby.Join %s: %w", roomID, ErrOwnRoom)
	}
	if err := l.checkFree(r.Host, guest); err != nil {
		return Match{}, fmt.Errorf("lobby.Join %s: %w", roomID, err)
	}

	delete(l.rooms, roomID)
	delete(l.hosting, r.Host)
	starting := l.pickLocked(r.Host, guest)
	log.Info("lobby [Join]", "lobby", roomID, "host", r.Host, "guest", guest, "starting", starting)
	return Match{RoomID: roomID, Game: r.Game, Players: [2]string{r.Host, guest}, Starting: starting}, nil
}

// Create checks that neither participant is playing and picks the starting player uniformly.
func (l *Lobby) Create(p1, p2 string) (string, error) {
	if err := l.checkFree(p1, p2); err != nil {
		return "", fmt.Errorf("lobby.Create: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pickLocked(p1, p2), nil
}

func (l *Lobby) checkFree(participants ...string) error {
	for _, p := range participants {
		if s, busy := l.reg.Lookup(p); busy {
			return fmt.Errorf("%s (session %s): %w", p, s.ID(), registry.ErrAlreadyInSession)
		}
	}
	return nil
}

func (l *Lobby) pickLocked(p1, p2 string) string {
	if l.rng.Intn(2) == 0 {
		return p1
	}
	return p2
}

// Close drops the room hosted by host, if any.
func (l *Lobby) Close(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.hosting[host]; ok {
		delete(l.rooms, id)
		delete(l.hosting, host)
	}
}

func (l *Lobby) Rooms() []models.Room {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
	out := make([]models.Room, 0, len(l.rooms))
	for _, r := range l.rooms {
		out = append(out, r.Room)
	}
	return out
}

func (l *Lobby) pruneLocked() {
	now := l.now()
	for id, r := range l.rooms {
		if now.Sub(r.created) > l.ttl {
			delete(l.rooms, id)
			delete(l.hosting, r.Host)
			log.Debug("lobby [prune]", "lobby", id, "host", r.Host)
		}
	}
}
