// Package battleship runs two-player Battleship sessions: board setup, turn arbitration, attack
// resolution and the column/row/confirm input workflow of the current attacker.
package battleship

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wojtekolesinski/fleetduel/board"
	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
	"github.com/wojtekolesinski/fleetduel/registry"
)

type Phase int

const (
	AwaitingMove Phase = iota
	GameOver
)

func (p Phase) String() string {
	if p == GameOver {
		return "game_over"
	}
	return "awaiting_move"
}

// State is a snapshot of a session.
type State struct {
	Phase       Phase
	Current     string
	Winner      string
	ForfeitedBy string
	Step        Step
	Pending     PendingAttack
}

// Result describes one resolved attack.
type Result struct {
	Coord    board.Coord
	Hit      bool
	Sunk     string
	GameOver bool
	// Next is the participant whose turn it is after the attack.
	Next string
}

type player struct {
	id      string
	board   *board.Board
	attacks board.Grid
	log     []string
	last    *models.AttackResult
	view    notify.ViewHandle
}

// Session is one game between two participants. All methods are safe for concurrent use;
// inputs are applied one at a time.
type Session struct {
	id   string
	cfg  Config
	port notify.Port
	reg  *registry.Registry

	mu          sync.Mutex
	players     [2]*player
	current     int
	phase       Phase
	started     bool
	winner      string
	forfeitedBy string
	ended       *models.GameEnded
	flow        *Workflow
	promptID    string
	live        models.Prompt
	timer       *time.Timer
	timerSeq    uint64
	done        chan struct{}
}

// New generates both boards and binds both participants in reg. It fails with
// ErrAlreadyInSession when either participant is already playing.
func New(id, p1, p2, starting string, cfg Config, port notify.Port, reg *registry.Registry) (*Session, error) {
	if p1 == p2 {
		return nil, fmt.Errorf("battleship.New: %w", ErrSameParticipant)
	}
	if starting != p1 && starting != p2 {
		return nil, fmt.Errorf("battleship.New: starting player %s: %w", starting, ErrNotParticipant)
	}
	if id == "" {
		id = uuid.NewString()
	}
	cfg = cfg.withDefaults()

	s := &Session{
		id:   id,
		cfg:  cfg,
		port: port,
		reg:  reg,
		done: make(chan struct{}),
	}
	for i, p := range []string{p1, p2} {
		b, err := board.Generate(cfg.Size, cfg.Fleet, cfg.Rand)
		if err != nil {
			return nil, fmt.Errorf("battleship.New: %w", err)
		}
		s.players[i] = &player{id: p, board: b, attacks: board.NewGrid(cfg.Size)}
	}
	if starting == p2 {
		s.current = 1
	}

	if err := reg.BindAll(s, p1, p2); err != nil {
		return nil, fmt.Errorf("battleship.New: %w", err)
	}
	log.Info("battleship [New]", "session", id, "p1", p1, "p2", p2, "starting", starting)
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Done is closed once the game has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Ended returns the terminal event once the game is over.
func (s *Session) Ended() (models.GameEnded, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended == nil {
		return models.GameEnded{}, false
	}
	return *s.ended, true
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Phase:       s.phase,
		Current:     s.players[s.current].id,
		Winner:      s.winner,
		ForfeitedBy: s.forfeitedBy,
	}
	if s.flow != nil {
		st.Step = s.flow.Step()
		st.Pending = s.flow.Pending()
	}
	return st
}

// Start renders the initial views and prompts the starting player. Calling it again is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.phase == GameOver {
		return
	}
	s.started = true
	s.renderAll(ctx)
	s.beginTurn(ctx)
}

// Submit applies one input from a participant. Input from the participant who is not on turn
// is rejected with ErrNotYourTurn and changes nothing.
func (s *Session) Submit(ctx context.Context, from string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(from)
	if idx < 0 {
		return fmt.Errorf("battleship.Submit %s: %w", from, ErrNotParticipant)
	}
	if s.phase == GameOver {
		return fmt.Errorf("battleship.Submit: %w", ErrGameOver)
	}
	if ev.Kind == Resign {
		log.Info("battleship [Submit]", "session", s.id, "resigned", from)
		s.forfeit(ctx, from, models.ReasonResigned)
		return nil
	}
	if idx != s.current {
		s.notify(ctx, from, models.NoticeRejection, "It's not your turn.")
		return fmt.Errorf("battleship.Submit: %w", ErrNotYourTurn)
	}
	if s.flow == nil {
		s.beginTurn(ctx)
	}

	outcome, err := s.flow.Handle(ev)
	if err != nil {
		s.notify(ctx, from, models.NoticeRejection, err.Error())
		return fmt.Errorf("battleship.Submit: %w", err)
	}
	switch outcome {
	case Advance:
		s.prompt(ctx)
	case Restart:
		s.notify(ctx, from, models.NoticeInfo, "Attack cancelled.")
		s.beginTurn(ctx)
	case Fire:
		if _, err := s.resolveAttack(ctx, from, s.flow.Target()); err != nil {
			return fmt.Errorf("battleship.Submit: %w", err)
		}
	}
	return nil
}

// ResolveAttack fires at (col, row) of the attacker's opponent, bypassing the input workflow.
func (s *Session) ResolveAttack(ctx context.Context, attacker string, col, row int) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == GameOver {
		return Result{}, fmt.Errorf("battleship.ResolveAttack: %w", ErrGameOver)
	}
	res, err := s.resolveAttack(ctx, attacker, board.Coord{Col: col, Row: row})
	if err != nil {
		return Result{}, fmt.Errorf("battleship.ResolveAttack: %w", err)
	}
	return res, nil
}

// Resync sends participant their current view again and, when they are on turn, the live
// prompt. Used after a participant's display comes back.
func (s *Session) Resync(ctx context.Context, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(participant)
	if i < 0 {
		return fmt.Errorf("battleship.Resync %s: %w", participant, ErrNotParticipant)
	}
	h, err := s.port.Render(ctx, participant, s.view(i))
	if err != nil {
		return fmt.Errorf("battleship.Resync: %w", err)
	}
	s.players[i].view = h
	if s.phase == GameOver || i != s.current || s.promptID == "" {
		return nil
	}
	if err := s.port.Prompt(ctx, participant, s.live); err != nil {
		return fmt.Errorf("battleship.Resync: %w", err)
	}
	log.Debug("battleship [Resync]", "session", s.id, "participant", participant, "step", s.flow.Step())
	return nil
}

// Abandon forfeits the game for a participant whose display is gone for good.
func (s *Session) Abandon(ctx context.Context, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(participant) < 0 {
		return fmt.Errorf("battleship.Abandon %s: %w", participant, ErrNotParticipant)
	}
	if s.phase == GameOver {
		return fmt.Errorf("battleship.Abandon: %w", ErrGameOver)
	}
	s.forfeit(ctx, participant, models.ReasonUnavailable)
	return nil
}

// Close ends a running game without a winner.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == GameOver {
		return
	}
	s.phase = GameOver
	s.renderAll(ctx)
	s.finish(ctx, models.GameEnded{Reason: models.ReasonShuttingDown})
}

func (s *Session) resolveAttack(ctx context.Context, attacker string, c board.Coord) (Result, error) {
	ai := s.indexOf(attacker)
	if ai < 0 {
		return Result{}, fmt.Errorf("%s: %w", attacker, ErrNotParticipant)
	}
	if ai != s.current {
		return Result{}, ErrNotYourTurn
	}
	att, def := s.players[ai], s.players[1-ai]
	if !def.board.Grid.Contains(c) {
		return Result{}, fmt.Errorf("attack %v: %w", c, board.ErrOutOfBounds)
	}
	if att.attacks.At(c) != board.Empty {
		s.notify(ctx, attacker, models.NoticeRejection, fmt.Sprintf("You already attacked %s.", c))
		s.beginTurn(ctx)
		return Result{}, fmt.Errorf("%s: %w", c, ErrCellAlreadyAttacked)
	}

	// Work out the whole outcome before touching any board.
	res := Result{Coord: c}
	if ship := def.board.ShipAt(c); ship != nil {
		res.Hit = true
		if ship.Hits()+1 == len(ship.Cells) {
			res.Sunk = ship.Name
			res.GameOver = def.board.ShipsLeft() == 1
		}
	}
	entry := logEntry(res)
	mark := board.Miss
	if res.Hit {
		mark = board.Hit
	}

	if _, err := def.board.Strike(c); err != nil {
		return Result{}, err
	}
	att.attacks.Mark(c, mark)
	att.log = append(att.log, entry)
	att.last = &models.AttackResult{Coord: c.String(), Hit: res.Hit, Sunk: res.Sunk}

	s.stopTimer()
	s.dismiss(ctx)
	s.notify(ctx, attacker, models.NoticeResult, entry)

	if res.GameOver {
		s.phase = GameOver
		s.winner = attacker
	} else if !res.Hit {
		s.current = 1 - ai
	}
	res.Next = s.players[s.current].id
	log.Info("battleship [resolveAttack]", "session", s.id, "attacker", attacker, "coord", c, "hit", res.Hit, "sunk", res.Sunk, "next", res.Next)

	s.renderAll(ctx)
	if res.GameOver {
		s.finish(ctx, models.GameEnded{Winner: attacker, Reason: models.ReasonWin})
	} else {
		s.beginTurn(ctx)
	}
	return res, nil
}

func logEntry(res Result) string {
	switch {
	case res.Sunk != "":
		return fmt.Sprintf("Hit at %s and sunk %s", res.Coord, res.Sunk)
	case res.Hit:
		return fmt.Sprintf("Hit at %s", res.Coord)
	default:
		return fmt.Sprintf("Miss at %s", res.Coord)
	}
}

func (s *Session) indexOf(participant string) int {
	for i, p := range s.players {
		if p.id == participant {
			return i
		}
	}
	return -1
}

// beginTurn discards any pending attack and prompts the current player for a column.
func (s *Session) beginTurn(ctx context.Context) {
	s.flow = NewWorkflow(s.players[s.current].id, s.cfg.Size)
	s.prompt(ctx)
}

// prompt replaces the live prompt with the one for the workflow's current step and arms the
// step's deadline.
func (s *Session) prompt(ctx context.Context) {
	s.stopTimer()
	s.dismiss(ctx)

	attacker := s.flow.Attacker()
	step := s.flow.Step()
	p := s.buildPrompt()
	s.live, s.promptID = p, p.ID
	err := s.port.Prompt(ctx, attacker, p)
	if err != nil && step == ConfirmPending && errors.Is(err, notify.ErrUnavailable) {
		log.Warn("battleship [prompt]", "session", s.id, "participant", attacker, "step", step, "err", err, "retry", true)
		err = s.port.Prompt(ctx, attacker, p)
		if errors.Is(err, notify.ErrUnavailable) {
			s.forfeit(ctx, attacker, models.ReasonUnavailable)
			return
		}
	}
	if err != nil {
		log.Warn("battleship [prompt]", "session", s.id, "participant", attacker, "step", step, "err", err)
	}
	s.arm(step)
}

func (s *Session) buildPrompt() models.Prompt {
	step := s.flow.Step()
	p := models.Prompt{ID: uuid.NewString(), SessionID: s.id, Step: step.Model()}
	switch step {
	case ColumnPending:
		p.Text = "Select a column to attack"
		for i := 0; i < s.cfg.Size; i++ {
			p.Choices = append(p.Choices, models.Choice{Label: string(rune('A' + i)), Value: i})
		}
	case RowPending:
		p.Text = fmt.Sprintf("Select a row in column %c", 'A'+s.flow.Pending().Column)
		for i := 0; i < s.cfg.Size; i++ {
			p.Choices = append(p.Choices, models.Choice{Label: strconv.Itoa(i + 1), Value: i})
		}
	case ConfirmPending:
		p.Text = fmt.Sprintf("Attack %s?", s.flow.Target())
		p.Choices = []models.Choice{{Label: "Confirm", Value: 1}, {Label: "Cancel", Value: 0}}
	}
	return p
}

func (s *Session) dismiss(ctx context.Context) {
	if s.promptID == "" {
		return
	}
	id := s.promptID
	s.promptID = ""
	if err := s.port.Dismiss(ctx, s.players[s.current].id, id); err != nil {
		log.Warn("battleship [dismiss]", "session", s.id, "prompt", id, "err", err)
	}
}

func (s *Session) arm(step Step) {
	d := s.cfg.SelectTimeout
	if step == ConfirmPending {
		d = s.cfg.ConfirmTimeout
	}
	if d <= 0 {
		return
	}
	seq := s.timerSeq
	s.timer = time.AfterFunc(d, func() { s.expire(seq) })
}

// stopTimer is the single cancellation point for step deadlines.
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
	if seq != s.timerSeq || s.phase == GameOver {
		return
	}
	s.timer = nil
	attacker := s.flow.Attacker()
	log.Info("battleship [expire]", "session", s.id, "participant", attacker, "step", s.flow.Step())
	s.forfeit(context.Background(), attacker, models.ReasonTimeout)
}

func (s *Session) forfeit(ctx context.Context, by, reason string) {
	s.phase = GameOver
	s.forfeitedBy = by
	s.renderAll(ctx)
	s.finish(ctx, models.GameEnded{ForfeitedBy: by, Reason: reason})
}

// finish releases both participants, announces the end and emits GameEnded. Callers have
// already moved the session to GameOver, so it runs once.
func (s *Session) finish(ctx context.Context, ended models.GameEnded) {
	s.phase = GameOver
	s.stopTimer()
	s.dismiss(ctx)

	p1, p2 := s.players[0].id, s.players[1].id
	ended.SessionID = s.id
	ended.Game = models.GameBattleship
	ended.Players = []string{p1, p2}
	s.ended = &ended
	s.reg.Release(s, p1, p2)

	text := announcement(ended)
	s.notify(ctx, p1, models.NoticeGameOver, text)
	s.notify(ctx, p2, models.NoticeGameOver, text)
	log.Info("battleship [finish]", "session", s.id, "winner", ended.Winner, "forfeitedBy", ended.ForfeitedBy, "reason", ended.Reason)

	if s.cfg.OnEnd != nil {
		s.cfg.OnEnd(ended)
	}
	close(s.done)
}

func announcement(e models.GameEnded) string {
	switch {
	case e.Winner != "":
		return fmt.Sprintf("Game over! %s wins.", e.Winner)
	case e.ForfeitedBy != "" && e.Reason == models.ReasonResigned:
		return fmt.Sprintf("Game over. %s resigned.", e.ForfeitedBy)
	case e.ForfeitedBy != "":
		return fmt.Sprintf("Game over. %s did not finish the attack in time.", e.ForfeitedBy)
	default:
		return "Game over. The game was stopped."
	}
}

func (s *Session) renderAll(ctx context.Context) {
	for i, p := range s.players {
		h, err := s.port.Render(ctx, p.id, s.view(i))
		if err != nil {
			log.Warn("battleship [render]", "session", s.id, "participant", p.id, "err", err)
			continue
		}
		p.view = h
	}
}

func (s *Session) view(i int) models.View {
	p, o := s.players[i], s.players[1-i]
	v := models.View{
		SessionID:   s.id,
		Game:        models.GameBattleship,
		Participant: p.id,
		Opponent:    o.id,
		YourTurn:    s.phase == AwaitingMove && s.current == i,
		Status:      models.StatusInProgress,
		ShipsLeft:   o.board.ShipsLeft(),
		Log:         tail(p.log, s.cfg.LogLength),
		Board:       p.board.Grid.Strings(),
		AttackBoard: p.attacks.Strings(),
	}
	if p.last != nil {
		last := *p.last
		v.LastAttack = &last
	}
	if s.phase == GameOver {
		switch {
		case s.winner == p.id:
			v.Status = models.StatusWon
		case s.winner == o.id:
			v.Status = models.StatusLost
		case s.forfeitedBy == p.id:
			v.Status = models.StatusForfeited
		case s.forfeitedBy == o.id:
			v.Status = models.StatusOpponentForfeited
		default:
			v.Status = models.StatusTie
		}
	}
	return v
}

func (s *Session) notify(ctx context.Context, participant, kind, text string) {
	err := s.port.Notify(ctx, participant, models.Notice{SessionID: s.id, Kind: kind, Text: text})
	if err != nil {
		log.Warn("battleship [notify]", "session", s.id, "participant", participant, "kind", kind, "err", err)
	}
}

func tail(entries []string, n int) []string {
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]string, len(entries))
	copy(out, entries)
	return out
}
