// Package mastermind is a single-player code breaking game. The player builds a guess one color
// at a time and gets exact and color-only match counts back for each submitted guess.
package mastermind

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
	"github.com/wojtekolesinski/fleetduel/registry"
)

// Colors are the pegs a code is made of.
var Colors = []string{"R", "B", "G", "Y", "P", "O"}

var (
	ErrGuessIncomplete = errors.New("guess is incomplete")
	ErrGuessFull       = errors.New("guess is already full")
	ErrNothingToRemove = errors.New("no colors to remove")
	ErrUnknownColor    = errors.New("unknown color")
	ErrGameOver        = errors.New("game is over")
	ErrNotPlayer       = errors.New("not the player of this game")
)

type Config struct {
	CodeLength  int
	MaxAttempts int
	Rand        *rand.Rand
	OnEnd       func(models.GameEnded)
}

func DefaultConfig() Config {
	return Config{CodeLength: 4, MaxAttempts: 10}
}

// Feedback scores one guess.
type Feedback struct {
	Exact int
	Color int
}

type attempt struct {
	guess    []string
	feedback Feedback
}

type Session struct {
	id     string
	player string
	cfg    Config
	port   notify.Port
	reg    *registry.Registry

	mu       sync.Mutex
	secret   []string
	current  []string
	attempts []attempt
	over     bool
	solved   bool
	reason   string
	ended    *models.GameEnded
	promptID string
	live     models.Prompt
	done     chan struct{}
}

func New(id, player string, cfg Config, port notify.Port, reg *registry.Registry) (*Session, error) {
	def := DefaultConfig()
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = def.CodeLength
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{id: id, player: player, cfg: cfg, port: port, reg: reg, done: make(chan struct{})}
	s.secret = make([]string, cfg.CodeLength)
	for i := range s.secret {
		s.secret[i] = Colors[cfg.Rand.Intn(len(Colors))]
	}
	if err := reg.Bind(player, s); err != nil {
		return nil, fmt.Errorf("mastermind.New: %w", err)
	}
	log.Info("mastermind [New]", "session", id, "player", player)
	return s, nil
}

func (s *Session) ID() string            { return s.id }
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Ended() (models.GameEnded, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended == nil {
		return models.GameEnded{}, false
	}
	return *s.ended, true
}

func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.over || len(s.attempts) > 0 {
		return
	}
	s.render(ctx)
	s.prompt(ctx)
}

// Pick appends Colors[color] to the guess being built.
func (s *Session) Pick(ctx context.Context, from string, color int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(from); err != nil {
		return fmt.Errorf("mastermind.Pick: %w", err)
	}
	if color < 0 || color >= len(Colors) {
		return fmt.Errorf("mastermind.Pick %d: %w", color, ErrUnknownColor)
	}
	if len(s.current) >= s.cfg.CodeLength {
		return fmt.Errorf("mastermind.Pick: %w", ErrGuessFull)
	}
	s.current = append(s.current, Colors[color])
	s.render(ctx)
	s.prompt(ctx)
	return nil
}

// Undo drops the last picked color.
func (s *Session) Undo(ctx context.Context, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(from); err != nil {
		return fmt.Errorf("mastermind.Undo: %w", err)
	}
	if len(s.current) == 0 {
		return fmt.Errorf("mastermind.Undo: %w", ErrNothingToRemove)
	}
	s.current = s.current[:len(s.current)-1]
	s.render(ctx)
	s.prompt(ctx)
	return nil
}

// Submit scores the guess built with Pick.
func (s *Session) Submit(ctx context.Context, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(from); err != nil {
		return fmt.Errorf("mastermind.Submit: %w", err)
	}
	if len(s.current) < s.cfg.CodeLength {
		return fmt.Errorf("mastermind.Submit %d of %d: %w", len(s.current), s.cfg.CodeLength, ErrGuessIncomplete)
	}
	s.score(ctx, s.current)
	return nil
}

// Guess submits a whole code at once, e.g. "RGBY".
func (s *Session) Guess(ctx context.Context, from, code string) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(from); err != nil {
		return Feedback{}, fmt.Errorf("mastermind.Guess: %w", err)
	}
	code = strings.ToUpper(code)
	if len(code) != s.cfg.CodeLength {
		return Feedback{}, fmt.Errorf("mastermind.Guess %q: %w", code, ErrGuessIncomplete)
	}
	guess := make([]string, len(code))
	for i, r := range code {
		if indexOf(string(r)) < 0 {
			return Feedback{}, fmt.Errorf("mastermind.Guess %q: %w", string(r), ErrUnknownColor)
		}
		guess[i] = string(r)
	}
	return s.score(ctx, guess), nil
}

func (s *Session) Resign(ctx context.Context, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(from); err != nil {
		return fmt.Errorf("mastermind.Resign: %w", err)
	}
	s.forfeit(ctx, models.ReasonResigned)
	return nil
}

// Resync repeats the board and the live prompt.
func (s *Session) Resync(ctx context.Context, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if participant != s.player {
		return fmt.Errorf("mastermind.Resync %s: %w", participant, ErrNotPlayer)
	}
	if _, err := s.port.Render(ctx, s.player, s.view()); err != nil {
		return fmt.Errorf("mastermind.Resync: %w", err)
	}
	if s.over || s.promptID == "" {
		return nil
	}
	if err := s.port.Prompt(ctx, s.player, s.live); err != nil {
		return fmt.Errorf("mastermind.Resync: %w", err)
	}
	return nil
}

func (s *Session) Abandon(ctx context.Context, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(participant); err != nil {
		return fmt.Errorf("mastermind.Abandon: %w", err)
	}
	s.forfeit(ctx, models.ReasonUnavailable)
	return nil
}

func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.over {
		return
	}
	s.over, s.reason = true, models.ReasonShuttingDown
	s.finish(ctx, models.GameEnded{Reason: models.ReasonShuttingDown})
}

func (s *Session) check(from string) error {
	if from != s.player {
		return fmt.Errorf("%s: %w", from, ErrNotPlayer)
	}
	if s.over {
		return ErrGameOver
	}
	return nil
}

func (s *Session) score(ctx context.Context, guess []string) Feedback {
	fb := Score(s.secret, guess)
	s.attempts = append(s.attempts, attempt{guess: append([]string(nil), guess...), feedback: fb})
	s.current = nil
	log.Debug("mastermind [score]", "session", s.id, "attempt", len(s.attempts), "exact", fb.Exact, "color", fb.Color)

	switch {
	case fb.Exact == s.cfg.CodeLength:
		s.over, s.solved, s.reason = true, true, models.ReasonWin
		s.render(ctx)
		s.finish(ctx, models.GameEnded{Winner: s.player, Reason: models.ReasonWin})
	case len(s.attempts) >= s.cfg.MaxAttempts:
		s.over, s.reason = true, models.ReasonExhausted
		s.render(ctx)
		s.finish(ctx, models.GameEnded{Reason: models.ReasonExhausted})
	default:
		s.render(ctx)
		s.prompt(ctx)
	}
	return fb
}

// Score counts exact matches first, then colors present elsewhere in secret. Each secret peg
// is matched at most once.
func Score(secret, guess []string) Feedback {
	var fb Feedback
	left := map[string]int{}
	var rest []string
	for i := range secret {
		if i < len(guess) && guess[i] == secret[i] {
			fb.Exact++
			continue
		}
		left[secret[i]]++
		if i < len(guess) {
			rest = append(rest, guess[i])
		}
	}
	for _, g := range rest {
		if left[g] > 0 {
			left[g]--
			fb.Color++
		}
	}
	return fb
}

func indexOf(color string) int {
	for i, c := range Colors {
		if c == color {
			return i
		}
	}
	return -1
}

func (s *Session) prompt(ctx context.Context) {
	p := models.Prompt{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Step:      models.StepColor,
		Text:      fmt.Sprintf("Pick color %d of %d", len(s.current)+1, s.cfg.CodeLength),
	}
	if len(s.current) == s.cfg.CodeLength {
		p.Text = "Submit your guess or undo a color"
	} else {
		for i, c := range Colors {
			p.Choices = append(p.Choices, models.Choice{Label: c, Value: i})
		}
	}
	s.live, s.promptID = p, p.ID
	if err := s.port.Prompt(ctx, s.player, p); err != nil {
		log.Warn("mastermind [prompt]", "session", s.id, "err", err)
	}
}

func (s *Session) forfeit(ctx context.Context, reason string) {
	s.over, s.reason = true, reason
	s.render(ctx)
	s.finish(ctx, models.GameEnded{ForfeitedBy: s.player, Reason: reason})
}

func (s *Session) finish(ctx context.Context, ended models.GameEnded) {
	if s.promptID != "" {
		if err := s.port.Dismiss(ctx, s.player, s.promptID); err != nil {
			log.Warn("mastermind [finish]", "session", s.id, "err", err)
		}
		s.promptID = ""
	}
	ended.SessionID = s.id
	ended.Game = models.GameMastermind
	ended.Players = []string{s.player}
	s.ended = &ended
	s.reg.Release(s, s.player)

	text := "Game over. The game was stopped."
	switch {
	case s.solved:
		text = fmt.Sprintf("You cracked the code in %d attempts!", len(s.attempts))
	case ended.Reason == models.ReasonExhausted:
		text = "Out of attempts. The code was " + strings.Join(s.secret, " ")
	case ended.ForfeitedBy != "":
		text = "Game over. You forfeited. The code was " + strings.Join(s.secret, " ")
	}
	if err := s.port.Notify(ctx, s.player, models.Notice{SessionID: s.id, Kind: models.NoticeGameOver, Text: text}); err != nil {
		log.Warn("mastermind [finish]", "session", s.id, "err", err)
	}
	log.Info("mastermind [finish]", "session", s.id, "solved", s.solved, "attempts", len(s.attempts), "reason", ended.Reason)
	if s.cfg.OnEnd != nil {
		s.cfg.OnEnd(ended)
	}
	close(s.done)
}

func (s *Session) render(ctx context.Context) {
	if _, err := s.port.Render(ctx, s.player, s.view()); err != nil {
		log.Warn("mastermind [render]", "session", s.id, "err", err)
	}
}

// view lists one row per attempt: the guess followed by its exact and color counts. The guess in
// progress is the last row while the game runs.
func (s *Session) view() models.View {
	v := models.View{
		SessionID:   s.id,
		Game:        models.GameMastermind,
		Participant: s.player,
		YourTurn:    !s.over,
		Status:      models.StatusInProgress,
		Log:         []string{fmt.Sprintf("Attempt %d of %d", len(s.attempts), s.cfg.MaxAttempts)},
	}
	for _, a := range s.attempts {
		row := append(append([]string(nil), a.guess...), fmt.Sprint(a.feedback.Exact), fmt.Sprint(a.feedback.Color))
		v.Board = append(v.Board, row)
	}
	if !s.over {
		v.Board = append(v.Board, append([]string(nil), s.current...))
	}
	switch {
	case !s.over:
	case s.solved:
		v.Status = models.StatusWon
	case s.reason == models.ReasonExhausted:
		v.Status = models.StatusLost
	default:
		v.Status = models.StatusForfeited
	}
	return v
}
