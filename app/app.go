package app

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wojtekolesinski/fleetduel/battleship"
	"github.com/wojtekolesinski/fleetduel/board"
	"github.com/wojtekolesinski/fleetduel/client"
	"github.com/wojtekolesinski/fleetduel/models"
	"github.com/wojtekolesinski/fleetduel/notify"
	"github.com/wojtekolesinski/fleetduel/registry"
)

const (
	humanID = "you"
	botID   = "computer"
)

type App struct {
	cfg       battleship.Config
	serverURL string
	timeout   time.Duration
	client    *client.Client
	rng       *rand.Rand
	con       *console
}

func New(cfg battleship.Config, serverURL string, timeout time.Duration) *App {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &App{
		cfg:       cfg,
		serverURL: serverURL,
		timeout:   timeout,
		rng:       rng,
		con:       newConsole(os.Stdin, os.Stdout),
	}
}

// Run shows the main menu until the player quits.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if a.client != nil {
			a.client.Close()
		}
	}()

	for {
		choice, err := a.displayMenu()
		if err != nil {
			return err
		}
		switch choice {
		case choiceComputer:
			err = a.RunLocal(ctx)
		case choiceHost:
			err = a.RunOnline(ctx, true)
		case choiceJoin:
			err = a.RunOnline(ctx, false)
		case choiceQuit:
			return nil
		}
		if err != nil {
			log.Error("app [Run]", "err", err)
			fmt.Fprintf(a.con.out, "\n%s\n\n", err)
		}
		if ctx.Err() != nil {
			return err
		}
		if again, cerr := a.con.confirm("Back to the menu?"); cerr != nil || !again {
			return err
		}
	}
}

// RunLocal plays one game against the computer in the terminal.
func (a *App) RunLocal(ctx context.Context) error {
	cfg := a.cfg
	cfg.Size = board.Size
	cfg.Rand = rand.New(rand.NewSource(a.rng.Int63()))
	if cfg.Fleet == nil {
		cfg.Fleet = board.Fleet
	}
	cfg.OnEnd = func(e models.GameEnded) {
		log.Info("app [RunLocal]", "winner", e.Winner, "forfeitedBy", e.ForfeitedBy, "reason", e.Reason)
	}

	starting := humanID
	if a.rng.Intn(2) == 1 {
		starting = botID
	}

	bot := NewBot(botID, cfg.Size, cfg.Fleet)
	var sess *battleship.Session
	u := newUi(func(act models.Action) error {
		ev, err := battleship.EventFromAction(act)
		if err != nil {
			return err
		}
		return sess.Submit(ctx, humanID, ev)
	})

	mux := notify.NewMux()
	mux.Attach(humanID, u)
	mux.Attach(bot.ID(), bot)

	sess, err := battleship.New(uuid.NewString(), humanID, botID, starting, cfg, mux, registry.New())
	if err != nil {
		return fmt.Errorf("app.RunLocal: %w", err)
	}
	bot.Play(sess)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go u.listen(ctx)

	sess.Start(ctx)
	u.gui.Start(ctx, nil)

	cancel()
	sess.Close(context.Background())
	bot.Wait()
	return nil
}

// RunOnline hosts or joins a battleship game on the server.
func (a *App) RunOnline(ctx context.Context, host bool) error {
	if a.client == nil {
		c, err := client.Dial(ctx, a.serverURL, a.timeout)
		if err != nil {
			return fmt.Errorf("app.RunOnline: %w", err)
		}
		a.client = c
	}

	action := models.Action{Type: models.ActionOpen, Game: models.GameBattleship}
	if !host {
		room, err := a.chooseRoom()
		if err != nil {
			return fmt.Errorf("app.RunOnline: %w", err)
		}
		if room == "" {
			return nil
		}
		action = models.Action{Type: models.ActionJoin, Lobby: room}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	u := newUi(a.client.Send)
	go func() {
		defer cancel()
		for {
			env, err := a.client.Next()
			if err != nil {
				log.Error("app [RunOnline]", "err", err)
				return
			}
			u.handle(ctx, env)
		}
	}()
	go u.listen(ctx)

	if err := a.client.Send(action); err != nil {
		return fmt.Errorf("app.RunOnline: %w", err)
	}
	u.gui.Start(ctx, nil)

	// The connection is gone once the reader stops; dial again next time.
	a.client.Close()
	a.client = nil
	return nil
}
