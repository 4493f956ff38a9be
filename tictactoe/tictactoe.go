// Package tictactoe is a two-player 3×3 game that shares the session lifecycle of battleship:
// registry binding, private views through a notify.Port and one GameEnded event.
package tictactoe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
	"github.com/wojtekolesinski/fleetduel/registry"
)

const size = 3

var (
	ErrNotYourTurn     = errors.New("not your turn")
	ErrCellTaken       = errors.New("cell already taken")
	ErrOutOfRange      = errors.New("cell outside the board")
	ErrGameOver        = errors.New("game is over")
	ErrNotParticipant  = errors.New("not a participant of this session")
	ErrSameParticipant = errors.New("cannot play against yourself")
)

type Config struct {
	// TurnTimeout forfeits the game for a player who does not move in time. Zero disables it.
	TurnTimeout time.Duration
	OnEnd       func(models.GameEnded)
}

type Session struct {
	id   string
	cfg  Config
	port notify.Port
	reg  *registry.Registry

	mu          sync.Mutex
	players     [2]string
	marks       [2]string
	cells       [size][size]string
	current     int
	moves       int
	log         []string
	over        bool
	winner      string
	forfeitedBy string
	ended       *models.GameEnded
	promptID    string
	live        models.Prompt
	timer       *time.Timer
	timerSeq    uint64
	done        chan struct{}
}

// New binds both participants; the starting player plays X.
func New(id, p1, p2, starting string, cfg Config, port notify.Port, reg *registry.Registry) (*Session, error) {
	if p1 == p2 {
		return nil, fmt.Errorf("tictactoe.New: %w", ErrSameParticipant)
	}
	if starting != p1 && starting != p2 {
		return nil, fmt.Errorf("tictactoe.New: starting player %s: %w", starting, ErrNotParticipant)
	}
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{id: id, cfg: cfg, port: port, reg: reg, done: make(chan struct{})}
	s.players = [2]string{p1, p2}
	s.marks = [2]string{"X", "O"}
	if starting == p2 {
		s.players = [2]string{p2, p1}
	}
	if err := reg.BindAll(s, p1, p2); err != nil {
		return nil, fmt.Errorf("tictactoe.New: %w", err)
	}
	log.Info("tictactoe [New]", "session", id, "x", s.players[0], "o", s.players[1])
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

// Current returns whose turn it is.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[s.current]
}

func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.over || s.moves > 0 {
		return
	}
	s.renderAll(ctx)
	s.prompt(ctx)
}

func (s *Session) Play(ctx context.Context, from string, row, col int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(from)
	if idx < 0 {
		return fmt.Errorf("tictactoe.Play %s: %w", from, ErrNotParticipant)
	}
	if s.over {
		return fmt.Errorf("tictactoe.Play: %w", ErrGameOver)
	}
	if idx != s.current {
		s.notify(ctx, from, models.NoticeRejection, "It's not your turn.")
		return fmt.Errorf("tictactoe.Play: %w", ErrNotYourTurn)
	}
	if row < 0 || row >= size || col < 0 || col >= size {
		return fmt.Errorf("tictactoe.Play (%d,%d): %w", row, col, ErrOutOfRange)
	}
	if s.cells[row][col] != "" {
		s.notify(ctx, from, models.NoticeRejection, "That cell is already taken.")
		return fmt.Errorf("tictactoe.Play (%d,%d): %w", row, col, ErrCellTaken)
	}

	s.stopTimer()
	s.dismiss(ctx)
	mark := s.marks[idx]
	s.cells[row][col] = mark
	s.moves++
	s.log = append(s.log, fmt.Sprintf("%s played %c%d", mark, 'A'+col, row+1))

	switch {
	case winningLine(s.cells) != nil:
		s.over, s.winner = true, from
		s.renderAll(ctx)
		s.finish(ctx, models.GameEnded{Winner: from, Reason: models.ReasonWin})
	case s.moves == size*size:
		s.over = true
		s.renderAll(ctx)
		s.finish(ctx, models.GameEnded{Tie: true, Reason: models.ReasonTie})
	default:
		s.current = 1 - s.current
		s.renderAll(ctx)
		s.prompt(ctx)
	}
	return nil
}

func (s *Session) Resign(ctx context.Context, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(from) < 0 {
		return fmt.Errorf("tictactoe.Resign %s: %w", from, ErrNotParticipant)
	}
	if s.over {
		return fmt.Errorf("tictactoe.Resign: %w", ErrGameOver)
	}
	s.forfeit(ctx, from, models.ReasonResigned)
	return nil
}

// Resync repeats participant's view and, on their turn, the live prompt.
func (s *Session) Resync(ctx context.Context, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(participant)
	if i < 0 {
		return fmt.Errorf("tictactoe.Resync %s: %w", participant, ErrNotParticipant)
	}
	if _, err := s.port.Render(ctx, participant, s.view(i)); err != nil {
		return fmt.Errorf("tictactoe.Resync: %w", err)
	}
	if s.over || i != s.current || s.promptID == "" {
		return nil
	}
	if err := s.port.Prompt(ctx, participant, s.live); err != nil {
		return fmt.Errorf("tictactoe.Resync: %w", err)
	}
	return nil
}

// Abandon forfeits the game for a participant whose display is gone.
func (s *Session) Abandon(ctx context.Context, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(participant) < 0 {
		return fmt.Errorf("tictactoe.Abandon %s: %w", participant, ErrNotParticipant)
	}
	if s.over {
		return fmt.Errorf("tictactoe.Abandon: %w", ErrGameOver)
	}
	s.forfeit(ctx, participant, models.ReasonUnavailable)
	return nil
}

func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.over {
		return
	}
	s.over = true
	s.renderAll(ctx)
	s.finish(ctx, models.GameEnded{Reason: models.ReasonShuttingDown})
}

// winningLine returns the three cells of a completed row, column or diagonal.
func winningLine(b [size][size]string) [][2]int {
	lines := [][][2]int{}
	for i := 0; i < size; i++ {
		lines = append(lines,
			[][2]int{{i, 0}, {i, 1}, {i, 2}},
			[][2]int{{0, i}, {1, i}, {2, i}},
		)
	}
	lines = append(lines,
		[][2]int{{0, 0}, {1, 1}, {2, 2}},
		[][2]int{{0, 2}, {1, 1}, {2, 0}},
	)
	for _, l := range lines {
		a := b[l[0][0]][l[0][1]]
		if a != "" && a == b[l[1][0]][l[1][1]] && a == b[l[2][0]][l[2][1]] {
			return l
		}
	}
	return nil
}

func (s *Session) indexOf(participant string) int {
	for i, p := range s.players {
		if p == participant {
			return i
		}
	}
	return -1
}

func (s *Session) prompt(ctx context.Context) {
	p := models.Prompt{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Step:      models.StepCell,
		Text:      fmt.Sprintf("Place your %s", s.marks[s.current]),
	}
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			if s.cells[r][c] == "" {
				p.Choices = append(p.Choices, models.Choice{Label: string(rune('A'+c)) + strconv.Itoa(r+1), Value: r*size + c})
			}
		}
	}
	current := s.players[s.current]
	s.live, s.promptID = p, p.ID
	if err := s.port.Prompt(ctx, current, p); err != nil {
		log.Warn("tictactoe [prompt]", "session", s.id, "participant", current, "err", err)
	}
	if s.cfg.TurnTimeout > 0 {
		seq := s.timerSeq
		s.timer = time.AfterFunc(s.cfg.TurnTimeout, func() { s.expire(seq) })
	}
}

func (s *Session) dismiss(ctx context.Context) {
	if s.promptID == "" {
		return
	}
	if err := s.port.Dismiss(ctx, s.players[s.current], s.promptID); err != nil {
		log.Warn("tictactoe [dismiss]", "session", s.id, "err", err)
	}
	s.promptID = ""
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
}

func (s *Session) expire(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.timerSeq || s.over {
		return
	}
	s.forfeit(context.Background(), s.players[s.current], models.ReasonTimeout)
}

func (s *Session) forfeit(ctx context.Context, by, reason string) {
	s.over = true
	s.forfeitedBy = by
	s.renderAll(ctx)
	s.finish(ctx, models.GameEnded{ForfeitedBy: by, Reason: reason})
}

func (s *Session) finish(ctx context.Context, ended models.GameEnded) {
	s.stopTimer()
	s.dismiss(ctx)
	ended.SessionID = s.id
	ended.Game = models.GameTicTacToe
	ended.Players = []string{s.players[0], s.players[1]}
	s.ended = &ended
	s.reg.Release(s, s.players[0], s.players[1])

	var text string
	switch {
	case ended.Winner != "":
		text = fmt.Sprintf("Game over! %s wins.", ended.Winner)
	case ended.Tie:
		text = "Game over. It's a tie."
	case ended.ForfeitedBy != "":
		text = fmt.Sprintf("Game over. %s forfeited.", ended.ForfeitedBy)
	default:
		text = "Game over. The game was stopped."
	}
	for _, p := range s.players {
		s.notify(ctx, p, models.NoticeGameOver, text)
	}
	log.Info("tictactoe [finish]", "session", s.id, "winner", ended.Winner, "tie", ended.Tie, "reason", ended.Reason)
	if s.cfg.OnEnd != nil {
		s.cfg.OnEnd(ended)
	}
	close(s.done)
}

func (s *Session) renderAll(ctx context.Context) {
	for i, p := range s.players {
		if _, err := s.port.Render(ctx, p, s.view(i)); err != nil {
			log.Warn("tictactoe [render]", "session", s.id, "participant", p, "err", err)
		}
	}
}

func (s *Session) view(i int) models.View {
	me, other := s.players[i], s.players[1-i]
	v := models.View{
		SessionID:   s.id,
		Game:        models.GameTicTacToe,
		Participant: me,
		Opponent:    other,
		YourTurn:    !s.over && s.current == i,
		Status:      models.StatusInProgress,
		Log:         append([]string(nil), s.log...),
		Board:       make([][]string, size),
	}
	for r := range s.cells {
		v.Board[r] = append([]string(nil), s.cells[r][:]...)
	}
	if s.over {
		switch {
		case s.winner == me:
			v.Status = models.StatusWon
		case s.winner == other:
			v.Status = models.StatusLost
		case s.forfeitedBy == me:
			v.Status = models.StatusForfeited
		case s.forfeitedBy == other:
			v.Status = models.StatusOpponentForfeited
		default:
			v.Status = models.StatusTie
		}
	}
	return v
}

func (s *Session) notify(ctx context.Context, participant, kind, text string) {
	if err := s.port.Notify(ctx, participant, models.Notice{SessionID: s.id, Kind: kind, Text: text}); err != nil {
		log.Warn("tictactoe [notify]", "session", s.id, "participant", participant, "err", err)
	}
}
