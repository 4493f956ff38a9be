// Package minesweeper is a single-player game on a small grid. Bombs are placed on the first
// reveal so that it never hits one.
package minesweeper

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
	"github.com/wojtekolesinski/fleetduel/registry"
)

const (
	CellHidden = "hidden"
	CellFlag   = "flag"
	CellBomb   = "bomb"

	MinBombs = 4
	MaxBombs = 9
)

var (
	ErrAlreadyRevealed = errors.New("cell already revealed")
	ErrFlagged         = errors.New("cell is flagged")
	ErrOutOfRange      = errors.New("cell outside the board")
	ErrGameOver        = errors.New("game is over")
	ErrNotPlayer       = errors.New("not the player of this game")
	ErrBombCount       = errors.New("bomb count out of range")
)

type Config struct {
	Rows  int
	Cols  int
	Bombs int
	// IdleTimeout forfeits a game that sees no input for this long. Zero disables it.
	IdleTimeout time.Duration
	Rand        *rand.Rand
	OnEnd       func(models.GameEnded)
}

func DefaultConfig() Config {
	return Config{Rows: 5, Cols: 4, Bombs: 6, IdleTimeout: 300 * time.Second}
}

type cell struct {
	bomb     bool
	revealed bool
	flagged  bool
	count    int
}

type Session struct {
	id     string
	player string
	cfg    Config
	port   notify.Port
	reg    *registry.Registry

	mu       sync.Mutex
	cells    [][]cell
	placed   bool
	log      []string
	over     bool
	won      bool
	reason   string
	ended    *models.GameEnded
	promptID string
	live     models.Prompt
	timer    *time.Timer
	timerSeq uint64
	done     chan struct{}
}

func New(id, player string, cfg Config, port notify.Port, reg *registry.Registry) (*Session, error) {
	def := DefaultConfig()
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		cfg.Rows, cfg.Cols = def.Rows, def.Cols
	}
	if cfg.Bombs == 0 {
		cfg.Bombs = def.Bombs
	}
	if cfg.Bombs < MinBombs || cfg.Bombs > MaxBombs || cfg.Bombs >= cfg.Rows*cfg.Cols {
		return nil, fmt.Errorf("minesweeper.New %d: %w", cfg.Bombs, ErrBombCount)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{id: id, player: player, cfg: cfg, port: port, reg: reg, done: make(chan struct{})}
	s.cells = make([][]cell, cfg.Rows)
	for r := range s.cells {
		s.cells[r] = make([]cell, cfg.Cols)
	}
	if err := reg.Bind(player, s); err != nil {
		return nil, fmt.Errorf("minesweeper.New: %w", err)
	}
	log.Info("minesweeper [New]", "session", id, "player", player, "bombs", cfg.Bombs)
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
	if s.over || s.placed {
		return
	}
	s.render(ctx)
	s.prompt(ctx)
}

// Reveal opens a cell. A zero opens its neighbourhood, stopping at flags.
func (s *Session) Reveal(ctx context.Context, from string, row, col int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(from, row, col); err != nil {
		return fmt.Errorf("minesweeper.Reveal: %w", err)
	}
	c := &s.cells[row][col]
	if c.revealed {
		return fmt.Errorf("minesweeper.Reveal %s: %w", label(row, col), ErrAlreadyRevealed)
	}
	if c.flagged {
		return fmt.Errorf("minesweeper.Reveal %s: %w", label(row, col), ErrFlagged)
	}
	if !s.placed {
		s.place(row, col)
	}

	c.revealed = true
	if c.bomb {
		s.log = append(s.log, "Boom at "+label(row, col))
		s.over, s.reason = true, models.ReasonMine
		s.render(ctx)
		s.finish(ctx, models.GameEnded{Reason: models.ReasonMine})
		return nil
	}
	if c.count == 0 {
		s.flood(row, col)
	}
	s.log = append(s.log, "Revealed "+label(row, col))

	if s.cleared() {
		s.over, s.won, s.reason = true, true, models.ReasonWin
		s.render(ctx)
		s.finish(ctx, models.GameEnded{Winner: s.player, Reason: models.ReasonWin})
		return nil
	}
	s.render(ctx)
	s.prompt(ctx)
	return nil
}

// ToggleFlag marks or unmarks a hidden cell.
func (s *Session) ToggleFlag(ctx context.Context, from string, row, col int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(from, row, col); err != nil {
		return fmt.Errorf("minesweeper.ToggleFlag: %w", err)
	}
	c := &s.cells[row][col]
	if c.revealed {
		return fmt.Errorf("minesweeper.ToggleFlag %s: %w", label(row, col), ErrAlreadyRevealed)
	}
	c.flagged = !c.flagged
	s.render(ctx)
	s.prompt(ctx)
	return nil
}

func (s *Session) Resign(ctx context.Context, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from != s.player {
		return fmt.Errorf("minesweeper.Resign %s: %w", from, ErrNotPlayer)
	}
	if s.over {
		return fmt.Errorf("minesweeper.Resign: %w", ErrGameOver)
	}
	s.forfeit(ctx, models.ReasonResigned)
	return nil
}

// Resync repeats the board and the live prompt.
func (s *Session) Resync(ctx context.Context, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if participant != s.player {
		return fmt.Errorf("minesweeper.Resync %s: %w", participant, ErrNotPlayer)
	}
	if _, err := s.port.Render(ctx, s.player, s.view()); err != nil {
		return fmt.Errorf("minesweeper.Resync: %w", err)
	}
	if s.over || s.promptID == "" {
		return nil
	}
	if err := s.port.Prompt(ctx, s.player, s.live); err != nil {
		return fmt.Errorf("minesweeper.Resync: %w", err)
	}
	return nil
}

func (s *Session) Abandon(ctx context.Context, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if participant != s.player {
		return fmt.Errorf("minesweeper.Abandon %s: %w", participant, ErrNotPlayer)
	}
	if s.over {
		return fmt.Errorf("minesweeper.Abandon: %w", ErrGameOver)
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

func (s *Session) check(from string, row, col int) error {
	if from != s.player {
		return fmt.Errorf("%s: %w", from, ErrNotPlayer)
	}
	if s.over {
		return ErrGameOver
	}
	if row < 0 || row >= s.cfg.Rows || col < 0 || col >= s.cfg.Cols {
		return fmt.Errorf("%d,%d: %w", row, col, ErrOutOfRange)
	}
	return nil
}

// place scatters the bombs anywhere except (row, col) and counts neighbours.
func (s *Session) place(row, col int) {
	free := make([][2]int, 0, s.cfg.Rows*s.cfg.Cols-1)
	for r := 0; r < s.cfg.Rows; r++ {
		for c := 0; c < s.cfg.Cols; c++ {
			if r != row || c != col {
				free = append(free, [2]int{r, c})
			}
		}
	}
	s.cfg.Rand.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	for _, p := range free[:s.cfg.Bombs] {
		s.cells[p[0]][p[1]].bomb = true
	}
	for r := range s.cells {
		for c := range s.cells[r] {
			s.neighbours(r, c, func(nr, nc int) {
				if s.cells[nr][nc].bomb {
					s.cells[r][c].count++
				}
			})
		}
	}
	s.placed = true
}

func (s *Session) neighbours(row, col int, fn func(r, c int)) {
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			r, c := row+dr, col+dc
			if (dr == 0 && dc == 0) || r < 0 || r >= s.cfg.Rows || c < 0 || c >= s.cfg.Cols {
				continue
			}
			fn(r, c)
		}
	}
}

func (s *Session) flood(row, col int) {
	queue := [][2]int{{row, col}}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		s.neighbours(p[0], p[1], func(r, c int) {
			n := &s.cells[r][c]
			if n.revealed || n.flagged {
				return
			}
			n.revealed = true
			if n.count == 0 {
				queue = append(queue, [2]int{r, c})
			}
		})
	}
}

func (s *Session) cleared() bool {
	for _, row := range s.cells {
		for _, c := range row {
			if !c.bomb && !c.revealed {
				return false
			}
		}
	}
	return true
}

func (s *Session) prompt(ctx context.Context) {
	s.stopTimer()
	p := models.Prompt{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Step:      models.StepCell,
		Text:      "Reveal a cell or flag a bomb",
	}
	for r, row := range s.cells {
		for c, cl := range row {
			if !cl.revealed {
				p.Choices = append(p.Choices, models.Choice{Label: label(r, c), Value: r*s.cfg.Cols + c})
			}
		}
	}
	s.live, s.promptID = p, p.ID
	if err := s.port.Prompt(ctx, s.player, p); err != nil {
		log.Warn("minesweeper [prompt]", "session", s.id, "err", err)
	}
	if s.cfg.IdleTimeout > 0 {
		seq := s.timerSeq
		s.timer = time.AfterFunc(s.cfg.IdleTimeout, func() { s.expire(seq) })
	}
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
	s.forfeit(context.Background(), models.ReasonTimeout)
}

func (s *Session) forfeit(ctx context.Context, reason string) {
	s.over, s.reason = true, reason
	s.render(ctx)
	s.finish(ctx, models.GameEnded{ForfeitedBy: s.player, Reason: reason})
}

func (s *Session) finish(ctx context.Context, ended models.GameEnded) {
	s.stopTimer()
	if s.promptID != "" {
		if err := s.port.Dismiss(ctx, s.player, s.promptID); err != nil {
			log.Warn("minesweeper [finish]", "session", s.id, "err", err)
		}
		s.promptID = ""
	}
	ended.SessionID = s.id
	ended.Game = models.GameMinesweeper
	ended.Players = []string{s.player}
	s.ended = &ended
	s.reg.Release(s, s.player)

	text := "Game over. The game was stopped."
	switch {
	case ended.Winner != "":
		text = "You cleared the board!"
	case ended.Reason == models.ReasonMine:
		text = "Game over. You hit a bomb."
	case ended.ForfeitedBy != "":
		text = "Game over. You forfeited."
	}
	if err := s.port.Notify(ctx, s.player, models.Notice{SessionID: s.id, Kind: models.NoticeGameOver, Text: text}); err != nil {
		log.Warn("minesweeper [finish]", "session", s.id, "err", err)
	}
	log.Info("minesweeper [finish]", "session", s.id, "won", s.won, "reason", ended.Reason)
	if s.cfg.OnEnd != nil {
		s.cfg.OnEnd(ended)
	}
	close(s.done)
}

func (s *Session) render(ctx context.Context) {
	if _, err := s.port.Render(ctx, s.player, s.view()); err != nil {
		log.Warn("minesweeper [render]", "session", s.id, "err", err)
	}
}

// view shows bombs only once the game is over.
func (s *Session) view() models.View {
	v := models.View{
		SessionID:   s.id,
		Game:        models.GameMinesweeper,
		Participant: s.player,
		YourTurn:    !s.over,
		Status:      models.StatusInProgress,
		Log:         append([]string(nil), s.log...),
		Board:       make([][]string, len(s.cells)),
	}
	for r, row := range s.cells {
		v.Board[r] = make([]string, len(row))
		for c, cl := range row {
			switch {
			case cl.revealed && cl.bomb, s.over && cl.bomb:
				v.Board[r][c] = CellBomb
			case cl.revealed:
				v.Board[r][c] = strconv.Itoa(cl.count)
			case cl.flagged:
				v.Board[r][c] = CellFlag
			default:
				v.Board[r][c] = CellHidden
			}
		}
	}
	switch {
	case !s.over:
	case s.won:
		v.Status = models.StatusWon
	case s.reason == models.ReasonMine:
		v.Status = models.StatusLost
	default:
		v.Status = models.StatusForfeited
	}
	return v
}

func label(row, col int) string {
	return string(rune('A'+col)) + strconv.Itoa(row+1)
}
