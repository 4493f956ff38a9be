// Package notify defines how game sessions reach their participants' displays.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wojtekolesinski/fleetduel/models"
)

// ErrUnavailable reports that a participant's display surface is gone.
var ErrUnavailable = errors.New("presentation unavailable")

// ViewHandle identifies a rendered view; its meaning is up to the Port.
type ViewHandle string

// Port delivers private, per-participant output. Every method may return an error wrapping
// ErrUnavailable; sessions treat that as non-fatal.
type Port interface {
	// Render creates or updates the participant's view.
	Render(ctx context.Context, participant string, view models.View) (ViewHandle, error)
	// Prompt shows a prompt, replacing any previous one. The answer comes back to the session
	// as an event.
	Prompt(ctx context.Context, participant string, prompt models.Prompt) error
	// Dismiss removes a prompt that is no longer live.
	Dismiss(ctx context.Context, participant string, promptID string) error
	Notify(ctx context.Context, participant string, notice models.Notice) error
}

// Mux routes each participant to its own Port.
type Mux struct {
	mu    sync.RWMutex
	ports map[string]Port
}

func NewMux() *Mux {
	return &Mux{ports: make(map[string]Port)}
}

func (m *Mux) Attach(participant string, p Port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ports[participant] = p
}

func (m *Mux) Detach(participant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ports, participant)
}

func (m *Mux) port(participant string) (Port, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.ports[participant]
	if !ok {
		return nil, fmt.Errorf("notify: no display for %s: %w", participant, ErrUnavailable)
	}
	return p, nil
}

func (m *Mux) Render(ctx context.Context, participant string, view models.View) (ViewHandle, error) {
	p, err := m.port(participant)
	if err != nil {
		return "", err
	}
	return p.Render(ctx, participant, view)
}

func (m *Mux) Prompt(ctx context.Context, participant string, prompt models.Prompt) error {
	p, err := m.port(participant)
	if err != nil {
		return err
	}
	return p.Prompt(ctx, participant, prompt)
}

func (m *Mux) Dismiss(ctx context.Context, participant string, promptID string) error {
	p, err := m.port(participant)
	if err != nil {
		return err
	}
	return p.Dismiss(ctx, participant, promptID)
}

func (m *Mux) Notify(ctx context.Context, participant string, notice models.Notice) error {
	p, err := m.port(participant)
	if err != nil {
		return err
	}
	return p.Notify(ctx, participant, notice)
}
