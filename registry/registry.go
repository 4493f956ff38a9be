// Package registry tracks which participant is currently playing which session.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

var ErrAlreadyInSession = errors.New("participant is already in a session")

// Session is anything a participant can be bound to.
type Session interface {
	ID() string
}

// Registry maps participants to their active session and allows at most one per participant.
// It is safe for concurrent use by independent sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func New() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

func (r *Registry) Bind(participant string, s Session) error {
	return r.BindAll(s, participant)
}

// BindAll binds every participant to s, or none of them if any is already bound.
func (r *Registry) BindAll(s Session, participants ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range participants {
		if existing, ok := r.sessions[p]; ok {
			return fmt.Errorf("registry.Bind %s (session %s): %w", p, existing.ID(), ErrAlreadyInSession)
		}
	}
	for _, p := range participants {
		r.sessions[p] = s
	}
	log.Debug("registry [BindAll]", "session", s.ID(), "participants", participants)
	return nil
}

func (r *Registry) Lookup(participant string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[participant]
	return s, ok
}

// Unbind is a no-op for a participant that is not bound.
func (r *Registry) Unbind(participant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, participant)
}

// Release unbinds the participants that are still bound to s; bindings to other sessions stay.
func (r *Registry) Release(s Session, participants ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range participants {
		if cur, ok := r.sessions[p]; ok && cur.ID() == s.ID() {
			delete(r.sessions, p)
		}
	}
	log.Debug("registry [Release]", "session", s.ID(), "participants", participants)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
