package app

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/wojtekolesinski/fleetduel/battleship"
	"github.com/wojtekolesinski/fleetduel/board"
	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
)

// Submitter accepts workflow input on behalf of a participant.
type Submitter interface {
	Submit(ctx context.Context, from string, ev battleship.Event) error
}

// Bot is a computer opponent. It plays through the same prompts as a human.
type Bot struct {
	id   string
	size int

	mu       sync.Mutex
	game     Submitter
	attacks  [][]string
	fleet    []board.ShipSpec
	targets  []board.Coord
	lastSeen string
	plan     board.Coord
	wg       sync.WaitGroup
}

func NewBot(id string, size int, fleet []board.ShipSpec) *Bot {
	b := &Bot{
		id:    id,
		size:  size,
		fleet: append([]board.ShipSpec(nil), fleet...),
	}
	b.attacks = board.NewGrid(size).Strings()
	return b
}

func (b *Bot) ID() string { return b.id }

// Play binds the bot to a session. It must be called before the session starts.
func (b *Bot) Play(game Submitter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.game = game
}

// Wait blocks until all pending moves have been submitted.
func (b *Bot) Wait() { b.wg.Wait() }

func (b *Bot) Render(_ context.Context, _ string, view models.View) (notify.ViewHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if view.AttackBoard != nil {
		b.attacks = view.AttackBoard
	}
	if last := view.LastAttack; last != nil && last.Coord != b.lastSeen {
		b.lastSeen = last.Coord
		c, err := board.ParseCoord(last.Coord)
		if err == nil && last.Hit {
			b.hit(c)
		}
		if last.Sunk != "" {
			b.sunk(last.Sunk)
		}
	}
	return notify.ViewHandle("bot/" + b.id), nil
}

// Prompt answers asynchronously; the session is still locked while it prompts.
func (b *Bot) Prompt(_ context.Context, _ string, prompt models.Prompt) error {
	b.mu.Lock()
	game := b.game
	var ev battleship.Event
	switch prompt.Step {
	case models.StepColumn:
		b.plan = b.recommend()
		ev = battleship.ChooseColumn(b.plan.Col)
	case models.StepRow:
		ev = battleship.ChooseRow(b.plan.Row)
	case models.StepConfirm:
		ev = battleship.ConfirmAttack()
	default:
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if game == nil {
		return notify.ErrUnavailable
	}
	log.Debug("app [Bot.Prompt]", "bot", b.id, "step", prompt.Step, "event", ev.Kind)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := game.Submit(context.Background(), b.id, ev); err != nil {
			log.Warn("app [Bot.Prompt]", "bot", b.id, "err", err)
		}
	}()
	return nil
}

func (b *Bot) Dismiss(context.Context, string, string) error { return nil }

func (b *Bot) Notify(_ context.Context, _ string, notice models.Notice) error {
	log.Debug("app [Bot.Notify]", "bot", b.id, "kind", notice.Kind, "text", notice.Text)
	return nil
}

func (b *Bot) empty(c board.Coord) bool {
	return c.Row >= 0 && c.Row < b.size && c.Col >= 0 && c.Col < b.size &&
		b.attacks[c.Row][c.Col] == board.Empty.String()
}

func (b *Bot) recommend() board.Coord {
	for _, t := range b.targets {
		if b.empty(t) {
			return t
		}
	}

	probs := b.generateProbs()
	var max int
	best := board.Coord{Col: -1}
	for r := range probs {
		for c := range probs[r] {
			cell := board.Coord{Col: c, Row: r}
			if !b.empty(cell) {
				continue
			}
			if best.Col < 0 || probs[r][c] > max {
				max = probs[r][c]
				best = cell
			}
		}
	}
	return best
}

func (b *Bot) hit(c board.Coord) {
	neighbours := []board.Coord{
		{Col: 0, Row: 1},
		{Col: 1, Row: 0},
		{Col: 0, Row: -1},
		{Col: -1, Row: 0},
	}
	for _, offset := range neighbours {
		n := board.Coord{Col: c.Col + offset.Col, Row: c.Row + offset.Row}
		if b.empty(n) {
			b.targets = append(b.targets, n)
		}
	}
}

func (b *Bot) sunk(name string) {
	b.targets = nil
	for i, s := range b.fleet {
		if s.Name == name {
			b.fleet = append(b.fleet[:i], b.fleet[i+1:]...)
			return
		}
	}
}

// generateProbs counts, for every cell, how many placements of the remaining ships cover it.
func (b *Bot) generateProbs() [][]int {
	probs := make([][]int, b.size)
	for r := range probs {
		probs[r] = make([]int, b.size)
	}

	for _, ship := range b.fleet {
		for _, shape := range lineShapes(ship.Size) {
			for r := 0; r < b.size; r++ {
				for c := 0; c < b.size; c++ {
					if !b.fits(shape, c, r) {
						continue
					}
					for _, p := range shape {
						probs[r+p.Row][c+p.Col]++
					}
				}
			}
		}
	}
	return probs
}

func (b *Bot) fits(shape []board.Coord, col, row int) bool {
	for _, p := range shape {
		if !b.empty(board.Coord{Col: col + p.Col, Row: row + p.Row}) {
			return false
		}
	}
	return true
}

func lineShapes(length int) [][]board.Coord {
	horizontal := make([]board.Coord, length)
	vertical := make([]board.Coord, length)
	for i := 0; i < length; i++ {
		horizontal[i] = board.Coord{Col: i}
		vertical[i] = board.Coord{Row: i}
	}
	if length == 1 {
		return [][]board.Coord{horizontal}
	}
	return [][]board.Coord{horizontal, vertical}
}
