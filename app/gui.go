package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	gui "github.com/grupawp/warships-gui/v2"
	"github.com/mitchellh/go-wordwrap"

	"github.com/wojtekolesinski/fleetduel/board"
	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
)

const logLines = 10

// ui is the terminal display of one human participant. Clicks on the opponent board become
// actions passed to submit.
type ui struct {
	gui        *gui.GUI
	board1     *gui.Board
	board2     *gui.Board
	infoText   *gui.Text
	exitText   *gui.Text
	promptText *gui.Text
	shipsInfo  *gui.Text
	logText    []*gui.Text

	submit func(models.Action) error

	mu       sync.Mutex
	prompt   *models.Prompt
	selected board.Coord
	over     bool
}

func newUi(submit func(models.Action) error) *ui {
	g := gui.NewGUI(true)
	board1 := gui.NewBoard(2, 6, nil)
	board2 := gui.NewBoard(60, 6, nil)
	exitText := gui.NewText(2, 2, "Press Ctrl+C to exit", nil)
	infoText := gui.NewText(2, 4, "", nil)
	promptText := gui.NewText(60, 4, "", &gui.TextConfig{
		FgColor: gui.NewColor(10, 10, 10),
		BgColor: gui.NewColor(255, 0, 255),
	})
	shipsInfo := gui.NewText(50, 20, "", &gui.TextConfig{FgColor: gui.White, BgColor: gui.Black})

	g.Draw(board1)
	g.Draw(board2)
	g.Draw(exitText)
	g.Draw(infoText)
	g.Draw(promptText)
	g.Draw(shipsInfo)
	g.Draw(gui.NewText(48, 19, "Ships left:", nil))
	g.Draw(gui.NewText(2, 28, "Your attacks:", nil))

	logText := make([]*gui.Text, logLines)
	for i := range logText {
		logText[i] = gui.NewText(2, 29+i, "", nil)
		g.Draw(logText[i])
	}

	return &ui{
		gui:        g,
		board1:     board1,
		board2:     board2,
		infoText:   infoText,
		exitText:   exitText,
		promptText: promptText,
		shipsInfo:  shipsInfo,
		logText:    logText,
		submit:     submit,
	}
}

// toStates converts a [row][col] grid into the column-major layout the boards draw.
func toStates(grid [][]string) [10][10]gui.State {
	var states [10][10]gui.State
	for r, row := range grid {
		for c, cell := range row {
			if r >= 10 || c >= 10 {
				continue
			}
			switch cell {
			case board.ShipOccupied.String():
				states[c][r] = gui.Ship
			case board.Hit.String():
				states[c][r] = gui.Hit
			case board.Miss.String():
				states[c][r] = gui.Miss
			default:
				states[c][r] = gui.Empty
			}
		}
	}
	return states
}

func (u *ui) Render(_ context.Context, _ string, view models.View) (notify.ViewHandle, error) {
	u.board1.SetStates(toStates(view.Board))
	u.board2.SetStates(toStates(view.AttackBoard))
	u.shipsInfo.SetText(fmt.Sprintf(" %d ", view.ShipsLeft))
	u.renderLog(view.Log)

	if view.Status != models.StatusInProgress {
		u.renderGameResult(view.Status)
	} else if view.YourTurn {
		u.setInfoText("Your turn")
	} else {
		u.setInfoText("Opponent's turn")
	}
	return notify.ViewHandle(view.SessionID), nil
}

func (u *ui) Prompt(_ context.Context, _ string, prompt models.Prompt) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.over {
		return nil
	}
	p := prompt
	u.prompt = &p
	text := prompt.Text
	if prompt.Step == models.StepConfirm {
		text += " Click it again to fire, or another cell to change target."
	}
	u.promptText.SetText(text)
	return nil
}

func (u *ui) Dismiss(_ context.Context, _ string, promptID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.prompt != nil && u.prompt.ID == promptID {
		u.prompt = nil
		u.promptText.SetText("")
	}
	return nil
}

func (u *ui) Notify(_ context.Context, _ string, notice models.Notice) error {
	if notice.Kind == models.NoticeGameOver {
		u.exitText.SetText(notice.Text + " Press Ctrl+C to exit")
		return nil
	}
	u.setInfoText(notice.Text)
	return nil
}

func (u *ui) renderLog(entries []string) {
	var lines []string
	for _, e := range entries {
		lines = append(lines, strings.Split(wordwrap.WrapString(e, 40), "\n")...)
	}
	if len(lines) > len(u.logText) {
		lines = lines[len(lines)-len(u.logText):]
	}
	for i, t := range u.logText {
		if i < len(lines) {
			t.SetText(lines[i])
		} else {
			t.SetText("")
		}
	}
}

func (u *ui) setInfoText(text string) {
	u.infoText.SetText(text)
}

func (u *ui) renderGameResult(status string) {
	u.mu.Lock()
	u.over = true
	u.prompt = nil
	u.mu.Unlock()
	u.promptText.SetText("")

	switch status {
	case models.StatusWon, models.StatusOpponentForfeited:
		u.infoText.SetBgColor(gui.Green)
		u.infoText.SetFgColor(gui.White)
		u.setInfoText("You win")
	case models.StatusLost, models.StatusForfeited:
		u.infoText.SetBgColor(gui.Red)
		u.infoText.SetFgColor(gui.White)
		u.setInfoText("You lose")
	default:
		u.setInfoText("Game over")
	}
}

func (u *ui) showEnded(e models.GameEnded) {
	u.exitText.SetText(announce(e) + " Press Ctrl+C to exit")
}

func announce(e models.GameEnded) string {
	switch {
	case e.Winner != "":
		return "Game over, " + e.Winner + " won."
	case e.ForfeitedBy != "":
		return fmt.Sprintf("Game over, %s forfeited (%s).", e.ForfeitedBy, e.Reason)
	}
	return "Game over."
}

// actionsFor maps a click on the opponent board to workflow input.
func (u *ui) actionsFor(c board.Coord) []models.Action {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.prompt == nil || u.over {
		return nil
	}
	column := models.Action{Type: models.ActionColumn, Value: c.Col}
	row := models.Action{Type: models.ActionRow, Value: c.Row}

	switch u.prompt.Step {
	case models.StepColumn:
		u.selected = c
		return []models.Action{column, row}
	case models.StepRow:
		u.selected = board.Coord{Col: u.selected.Col, Row: c.Row}
		return []models.Action{row}
	case models.StepConfirm:
		if c == u.selected {
			return []models.Action{{Type: models.ActionConfirm}}
		}
		u.selected = c
		return []models.Action{{Type: models.ActionCancel}, column, row}
	}
	return nil
}

func (u *ui) click(coord string) {
	c, err := board.ParseCoord(coord)
	if err != nil {
		log.Error("app [click]", "coord", coord, "err", err)
		return
	}
	for _, a := range u.actionsFor(c) {
		if err := u.submit(a); err != nil {
			log.Warn("app [click]", "action", a.Type, "err", err)
			u.setInfoText(err.Error())
			return
		}
	}
}

func (u *ui) listen(ctx context.Context) {
	for {
		coord := u.board2.Listen(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Debug("app [listen]", "coord", coord)
		u.click(coord)
	}
}

// handle applies one server envelope to the display.
func (u *ui) handle(ctx context.Context, env models.Envelope) {
	switch env.Type {
	case models.EnvelopeView:
		if env.View != nil {
			u.Render(ctx, "", *env.View)
		}
	case models.EnvelopePrompt:
		if env.Prompt != nil {
			u.Prompt(ctx, "", *env.Prompt)
		}
	case models.EnvelopeDismiss:
		u.Dismiss(ctx, "", env.Dismiss)
	case models.EnvelopeNotice:
		if env.Notice != nil {
			u.Notify(ctx, "", *env.Notice)
		}
	case models.EnvelopeEnded:
		if env.Ended != nil {
			u.showEnded(*env.Ended)
		}
	case models.EnvelopeLobby:
		if env.Lobby != nil {
			u.setInfoText("Waiting for an opponent in lobby " + env.Lobby.ID)
		}
	case models.EnvelopeError:
		u.setInfoText(env.Error)
	}
}
