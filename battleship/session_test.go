package battleship

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wojtekolesinski/fleetduel/board"
	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
	"github.com/wojtekolesinski/fleetduel/registry"
)

// fixedBoard lays the standard fleet out in known rows; the Destroyer covers (row 2, col 3..4).
func fixedBoard() *board.Board {
	b := board.New(board.Size)
	layout := []struct {
		name string
		size int
		at   board.Coord
	}{
		{"Carrier", 5, board.Coord{Col: 0, Row: 0}},
		{"Battleship", 4, board.Coord{Col: 0, Row: 4}},
		{"Cruiser", 3, board.Coord{Col: 0, Row: 6}},
		{"Submarine", 3, board.Coord{Col: 0, Row: 8}},
		{"Destroyer", 2, board.Coord{Col: 3, Row: 2}},
	}
	for _, l := range layout {
		if _, err := b.Place(l.name, l.size, l.at, board.Horizontal); err != nil {
			panic(err)
		}
	}
	return b
}

type fixture struct {
	s     *Session
	rec   *notify.Recorder
	reg   *registry.Registry
	ended []models.GameEnded
}

func newFixture(cfg Config) *fixture {
	f := &fixture{rec: notify.NewRecorder(), reg: registry.New()}
	cfg.Rand = rand.New(rand.NewSource(7))
	cfg.OnEnd = func(e models.GameEnded) { f.ended = append(f.ended, e) }
	s, err := New("s1", "alice", "bob", "alice", cfg, f.rec, f.reg)
	if err != nil {
		panic(err)
	}
	s.players[0].board = fixedBoard()
	s.players[1].board = fixedBoard()
	f.s = s
	return f
}

func (f *fixture) attack(who string, col, row int) error {
	ctx := context.Background()
	if err := f.s.Submit(ctx, who, ChooseColumn(col)); err != nil {
		return err
	}
	if err := f.s.Submit(ctx, who, ChooseRow(row)); err != nil {
		return err
	}
	return f.s.Submit(ctx, who, ConfirmAttack())
}

func (f *fixture) bobGrid() board.Grid {
	return f.s.players[1].board.Grid
}

func marks(g board.Grid) int {
	return g.Count(board.Hit) + g.Count(board.Miss)
}

func waitDone(s *Session) bool {
	select {
	case <-s.Done():
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestSession(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started session where alice opens", t, func() {
		f := newFixture(DefaultConfig())
		f.s.Start(ctx)

		Convey("both participants get their initial view", func() {
			av, ok := f.rec.LastView("alice")
			So(ok, ShouldBeTrue)
			bv, ok := f.rec.LastView("bob")
			So(ok, ShouldBeTrue)
			So(av.YourTurn, ShouldBeTrue)
			So(bv.YourTurn, ShouldBeFalse)
			So(av.ShipsLeft, ShouldEqual, 5)
			So(av.Board[2][3], ShouldEqual, "ship")
		})

		Convey("alice is prompted for a column and both are bound", func() {
			p, ok := f.rec.LastPrompt("alice")
			So(ok, ShouldBeTrue)
			So(p.Step, ShouldEqual, models.StepColumn)
			So(len(p.Choices), ShouldEqual, board.Size)
			_, ok = f.rec.LastPrompt("bob")
			So(ok, ShouldBeFalse)

			got, ok := f.reg.Lookup("bob")
			So(ok, ShouldBeTrue)
			So(got.ID(), ShouldEqual, "s1")
		})

		Convey("input from bob is rejected without changing anything", func() {
			err := f.s.Submit(ctx, "bob", ChooseColumn(1))
			So(errors.Is(err, ErrNotYourTurn), ShouldBeTrue)
			n, _ := f.rec.LastNotice("bob")
			So(n.Kind, ShouldEqual, models.NoticeRejection)
			st := f.s.State()
			So(st.Current, ShouldEqual, "alice")
			So(st.Step, ShouldEqual, ColumnPending)
		})

		Convey("a stranger cannot play", func() {
			err := f.s.Submit(ctx, "mallory", ChooseColumn(1))
			So(errors.Is(err, ErrNotParticipant), ShouldBeTrue)
		})

		Convey("each step replaces the previous prompt", func() {
			So(f.s.Submit(ctx, "alice", ChooseColumn(3)), ShouldBeNil)
			first := f.rec.Prompts["alice"][0]
			So(f.rec.Dismissed["alice"], ShouldContain, first.ID)
			p, _ := f.rec.LastPrompt("alice")
			So(p.Step, ShouldEqual, models.StepRow)
			So(p.Text, ShouldContainSubstring, "column D")
		})

		Convey("hitting the Destroyer at (row 2, col 3)", func() {
			So(f.attack("alice", 3, 2), ShouldBeNil)

			destroyer := f.s.players[1].board.ShipAt(board.Coord{Col: 3, Row: 2})
			So(f.bobGrid().At(board.Coord{Col: 3, Row: 2}), ShouldEqual, board.Hit)
			So(destroyer.Hits(), ShouldEqual, 1)
			So(destroyer.Sunk(), ShouldBeFalse)
			So(f.s.State().Current, ShouldEqual, "alice")

			n, _ := f.rec.LastNotice("alice")
			So(n.Text, ShouldEqual, "Hit at D3")

			av, _ := f.rec.LastView("alice")
			So(av.AttackBoard[2][3], ShouldEqual, "hit")
			So(av.YourTurn, ShouldBeTrue)
			bv, _ := f.rec.LastView("bob")
			So(bv.Board[2][3], ShouldEqual, "hit")

			Convey("then at (row 2, col 4) sinks it and keeps the turn", func() {
				So(f.attack("alice", 4, 2), ShouldBeNil)
				So(destroyer.Sunk(), ShouldBeTrue)
				n, _ := f.rec.LastNotice("alice")
				So(n.Text, ShouldEqual, "Hit at E3 and sunk Destroyer")
				So(f.s.State().Current, ShouldEqual, "alice")
				av, _ := f.rec.LastView("alice")
				So(av.ShipsLeft, ShouldEqual, 4)
				So(av.LastAttack.Sunk, ShouldEqual, "Destroyer")
			})

			Convey("attacking it again is rejected and alice is prompted again", func() {
				before := marks(f.bobGrid())
				err := f.attack("alice", 3, 2)
				So(errors.Is(err, ErrCellAlreadyAttacked), ShouldBeTrue)
				So(marks(f.bobGrid()), ShouldEqual, before)
				So(destroyer.Hits(), ShouldEqual, 1)
				st := f.s.State()
				So(st.Current, ShouldEqual, "alice")
				So(st.Step, ShouldEqual, ColumnPending)
				p, _ := f.rec.LastPrompt("alice")
				So(p.Step, ShouldEqual, models.StepColumn)
			})
		})

		Convey("a miss passes the turn to bob", func() {
			So(f.attack("alice", 9, 9), ShouldBeNil)
			So(f.bobGrid().At(board.Coord{Col: 9, Row: 9}), ShouldEqual, board.Miss)
			So(f.s.State().Current, ShouldEqual, "bob")
			n, _ := f.rec.LastNotice("alice")
			So(n.Text, ShouldEqual, "Miss at J10")
			p, _ := f.rec.LastPrompt("bob")
			So(p.Step, ShouldEqual, models.StepColumn)
			bv, _ := f.rec.LastView("bob")
			So(bv.YourTurn, ShouldBeTrue)
		})

		Convey("cancelling at the confirmation step starts over for alice", func() {
			So(f.s.Submit(ctx, "alice", ChooseColumn(3)), ShouldBeNil)
			So(f.s.Submit(ctx, "alice", ChooseRow(2)), ShouldBeNil)
			So(f.s.Submit(ctx, "alice", CancelAttack()), ShouldBeNil)

			st := f.s.State()
			So(st.Current, ShouldEqual, "alice")
			So(st.Step, ShouldEqual, ColumnPending)
			So(st.Pending.HasColumn, ShouldBeFalse)
			So(marks(f.bobGrid()), ShouldEqual, 0)
			n, _ := f.rec.LastNotice("alice")
			So(n.Text, ShouldEqual, "Attack cancelled.")
		})

		Convey("resigning ends the game for both", func() {
			So(f.s.Submit(ctx, "bob", ResignGame()), ShouldBeNil)
			So(waitDone(f.s), ShouldBeTrue)
			So(f.ended, ShouldHaveLength, 1)
			So(f.ended[0].ForfeitedBy, ShouldEqual, "bob")
			So(f.ended[0].Reason, ShouldEqual, models.ReasonResigned)
			So(f.reg.Len(), ShouldEqual, 0)
			bv, _ := f.rec.LastView("bob")
			So(bv.Status, ShouldEqual, models.StatusForfeited)
		})

		Convey("sinking every ship wins the game", func() {
			for _, sh := range f.s.players[1].board.Ships {
				for _, c := range sh.Cells {
					_, err := f.s.ResolveAttack(ctx, "alice", c.Col, c.Row)
					So(err, ShouldBeNil)
				}
			}
			st := f.s.State()
			So(st.Phase, ShouldEqual, GameOver)
			So(st.Winner, ShouldEqual, "alice")
			So(f.bobGrid().Count(board.Hit), ShouldEqual, 17)
			So(f.ended, ShouldHaveLength, 1)
			So(f.ended[0].Winner, ShouldEqual, "alice")
			So(f.ended[0].Reason, ShouldEqual, models.ReasonWin)
			So(f.reg.Len(), ShouldEqual, 0)

			n, _ := f.rec.LastNotice("bob")
			So(n.Kind, ShouldEqual, models.NoticeGameOver)
			av, _ := f.rec.LastView("alice")
			So(av.Status, ShouldEqual, models.StatusWon)
			bv, _ := f.rec.LastView("bob")
			So(bv.Status, ShouldEqual, models.StatusLost)

			Convey("and accepts no further input", func() {
				err := f.s.Submit(ctx, "alice", ChooseColumn(0))
				So(errors.Is(err, ErrGameOver), ShouldBeTrue)
				f.s.Close(ctx)
				So(f.ended, ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given a short confirmation deadline", t, func() {
		cfg := DefaultConfig()
		cfg.ConfirmTimeout = 20 * time.Millisecond
		f := newFixture(cfg)
		f.s.Start(ctx)

		Convey("column and row selection are not bounded", func() {
			So(f.s.Submit(ctx, "alice", ChooseColumn(3)), ShouldBeNil)
			time.Sleep(60 * time.Millisecond)
			So(f.s.State().Phase, ShouldEqual, AwaitingMove)
		})

		Convey("letting the confirmation expire forfeits the game", func() {
			So(f.s.Submit(ctx, "alice", ChooseColumn(3)), ShouldBeNil)
			So(f.s.Submit(ctx, "alice", ChooseRow(2)), ShouldBeNil)
			So(waitDone(f.s), ShouldBeTrue)

			e, ok := f.s.Ended()
			So(ok, ShouldBeTrue)
			So(e.ForfeitedBy, ShouldEqual, "alice")
			So(e.Reason, ShouldEqual, models.ReasonTimeout)
			_, bound := f.reg.Lookup("alice")
			So(bound, ShouldBeFalse)
			_, bound = f.reg.Lookup("bob")
			So(bound, ShouldBeFalse)
			So(marks(f.bobGrid()), ShouldEqual, 0)
			n, _ := f.rec.LastNotice("bob")
			So(n.Kind, ShouldEqual, models.NoticeGameOver)
		})

		Convey("confirming in time cancels the deadline", func() {
			So(f.attack("alice", 9, 9), ShouldBeNil)
			time.Sleep(60 * time.Millisecond)
			So(f.s.State().Phase, ShouldEqual, AwaitingMove)
			So(f.ended, ShouldBeEmpty)
		})
	})

	Convey("Given a uniform deadline on every step", t, func() {
		cfg := DefaultConfig()
		cfg.SelectTimeout = 20 * time.Millisecond
		f := newFixture(cfg)
		f.s.Start(ctx)

		Convey("an idle attacker forfeits at the column step", func() {
			So(waitDone(f.s), ShouldBeTrue)
			e, _ := f.s.Ended()
			So(e.ForfeitedBy, ShouldEqual, "alice")
		})
	})

	Convey("Given alice's display is gone at the confirmation step", t, func() {
		f := newFixture(DefaultConfig())
		f.s.Start(ctx)
		So(f.s.Submit(ctx, "alice", ChooseColumn(3)), ShouldBeNil)
		f.rec.SetUnavailable("alice", true)
		So(f.s.Submit(ctx, "alice", ChooseRow(2)), ShouldBeNil)

		Convey("the game is forfeited instead of getting stuck", func() {
			So(waitDone(f.s), ShouldBeTrue)
			e, _ := f.s.Ended()
			So(e.ForfeitedBy, ShouldEqual, "alice")
			So(e.Reason, ShouldEqual, models.ReasonUnavailable)
		})
	})
}

func TestSessionReconnect(t *testing.T) {
	ctx := context.Background()

	Convey("Given alice's confirmation prompt fails once", t, func() {
		f := newFixture(DefaultConfig())
		f.s.Start(ctx)
		So(f.s.Submit(ctx, "alice", ChooseColumn(3)), ShouldBeNil)
		f.rec.FailPrompts("alice", 1)
		So(f.s.Submit(ctx, "alice", ChooseRow(2)), ShouldBeNil)

		Convey("the prompt is sent again and the game goes on", func() {
			So(f.s.State().Phase, ShouldEqual, AwaitingMove)
			p, _ := f.rec.LastPrompt("alice")
			So(p.Step, ShouldEqual, models.StepConfirm)
			So(f.s.Submit(ctx, "alice", ConfirmAttack()), ShouldBeNil)
			So(f.bobGrid().At(board.Coord{Col: 3, Row: 2}), ShouldEqual, board.Hit)
		})
	})

	Convey("Given alice is choosing a row", t, func() {
		f := newFixture(DefaultConfig())
		f.s.Start(ctx)
		So(f.s.Submit(ctx, "alice", ChooseColumn(3)), ShouldBeNil)
		live, _ := f.rec.LastPrompt("alice")
		views, prompts, _ := f.rec.Count("alice")

		Convey("a resync repeats her view and the live prompt unchanged", func() {
			So(f.s.Resync(ctx, "alice"), ShouldBeNil)
			v, p, _ := f.rec.Count("alice")
			So(v, ShouldEqual, views+1)
			So(p, ShouldEqual, prompts+1)
			again, _ := f.rec.LastPrompt("alice")
			So(again, ShouldResemble, live)
			So(f.s.State().Step, ShouldEqual, RowPending)
		})

		Convey("a resync of bob only repeats his view", func() {
			bobViews, bobPrompts, _ := f.rec.Count("bob")
			So(f.s.Resync(ctx, "bob"), ShouldBeNil)
			v, p, _ := f.rec.Count("bob")
			So(v, ShouldEqual, bobViews+1)
			So(p, ShouldEqual, bobPrompts)
		})

		Convey("a stranger cannot resync", func() {
			So(errors.Is(f.s.Resync(ctx, "carol"), ErrNotParticipant), ShouldBeTrue)
		})

		Convey("abandoning forfeits the game for alice", func() {
			So(f.s.Abandon(ctx, "alice"), ShouldBeNil)
			So(waitDone(f.s), ShouldBeTrue)
			e, _ := f.s.Ended()
			So(e.ForfeitedBy, ShouldEqual, "alice")
			So(e.Reason, ShouldEqual, models.ReasonUnavailable)
			So(f.reg.Len(), ShouldEqual, 0)
			So(errors.Is(f.s.Abandon(ctx, "alice"), ErrGameOver), ShouldBeTrue)
		})
	})
}

func TestNewRejectsBusyParticipant(t *testing.T) {
	Convey("A participant already in a game cannot start another", t, func() {
		reg := registry.New()
		rec := notify.NewRecorder()
		_, err := New("g1", "alice", "bob", "alice", DefaultConfig(), rec, reg)
		So(err, ShouldBeNil)

		_, err = New("g2", "carol", "bob", "carol", DefaultConfig(), rec, reg)
		So(errors.Is(err, ErrAlreadyInSession), ShouldBeTrue)
		_, bound := reg.Lookup("carol")
		So(bound, ShouldBeFalse)
	})

	Convey("A participant cannot play against themselves", t, func() {
		_, err := New("g1", "alice", "alice", "alice", DefaultConfig(), notify.NewRecorder(), registry.New())
		So(errors.Is(err, ErrSameParticipant), ShouldBeTrue)
	})
}
