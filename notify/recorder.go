package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/wojtekolesinski/fleetduel/models"
)

// Recorder is an in-memory Port for tests. It keeps everything it is sent; participants listed
// in Unavailable get ErrUnavailable instead.
type Recorder struct {
	mu          sync.Mutex
	Views       map[string][]models.View
	Prompts     map[string][]models.Prompt
	Dismissed   map[string][]string
	Notices     map[string][]models.Notice
	Unavailable map[string]bool
	failPrompts map[string]int
	// OnPrompt, when set, is called after a prompt is recorded, outside the recorder's lock.
	OnPrompt func(participant string, prompt models.Prompt)
}

func NewRecorder() *Recorder {
	return &Recorder{
		Views:       map[string][]models.View{},
		Prompts:     map[string][]models.Prompt{},
		Dismissed:   map[string][]string{},
		Notices:     map[string][]models.Notice{},
		Unavailable: map[string]bool{},
		failPrompts: map[string]int{},
	}
}

func (r *Recorder) SetUnavailable(participant string, gone bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Unavailable[participant] = gone
}

// FailPrompts makes the next n prompts to participant fail with ErrUnavailable.
func (r *Recorder) FailPrompts(participant string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failPrompts[participant] = n
}

func (r *Recorder) Render(_ context.Context, participant string, view models.View) (ViewHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Unavailable[participant] {
		return "", ErrUnavailable
	}
	r.Views[participant] = append(r.Views[participant], view)
	return ViewHandle(fmt.Sprintf("%s/%s", view.SessionID, participant)), nil
}

func (r *Recorder) Prompt(_ context.Context, participant string, prompt models.Prompt) error {
	r.mu.Lock()
	if r.Unavailable[participant] {
		r.mu.Unlock()
		return ErrUnavailable
	}
	if r.failPrompts[participant] > 0 {
		r.failPrompts[participant]--
		r.mu.Unlock()
		return ErrUnavailable
	}
	r.Prompts[participant] = append(r.Prompts[participant], prompt)
	hook := r.OnPrompt
	r.mu.Unlock()

	if hook != nil {
		hook(participant, prompt)
	}
	return nil
}

func (r *Recorder) Dismiss(_ context.Context, participant string, promptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Dismissed[participant] = append(r.Dismissed[participant], promptID)
	return nil
}

func (r *Recorder) Notify(_ context.Context, participant string, notice models.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Unavailable[participant] {
		return ErrUnavailable
	}
	r.Notices[participant] = append(r.Notices[participant], notice)
	return nil
}

func (r *Recorder) LastView(participant string) (models.View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs := r.Views[participant]
	if len(vs) == 0 {
		return models.View{}, false
	}
	return vs[len(vs)-1], true
}

func (r *Recorder) LastPrompt(participant string) (models.Prompt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.Prompts[participant]
	if len(ps) == 0 {
		return models.Prompt{}, false
	}
	return ps[len(ps)-1], true
}

func (r *Recorder) LastNotice(participant string) (models.Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns := r.Notices[participant]
	if len(ns) == 0 {
		return models.Notice{}, false
	}
	return ns[len(ns)-1], true
}

func (r *Recorder) Count(participant string) (views, prompts, notices int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Views[participant]), len(r.Prompts[participant]), len(r.Notices[participant])
}
