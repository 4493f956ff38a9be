package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli"

	"github.com/wojtekolesinski/fleetduel/app"
	"github.com/wojtekolesinski/fleetduel/battleship"
	"github.com/wojtekolesinski/fleetduel/lobby"
	"github.com/wojtekolesinski/fleetduel/server"
)

const (
	serverAddress     = "http://localhost:9999"
	httpClientTimeout = 30 * time.Second
	shutdownTimeout   = 5 * time.Second
)

func main() {
	a := cli.NewApp()
	a.Name = "fleetduel"
	a.Usage = "battleship and other small games in the terminal and over websockets"
	a.Version = "0.1"
	a.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "log-level,l",
			Usage:  "Log `level` for output",
			Value:  "info",
			EnvVar: "LOG_LEVEL",
		},
		cli.DurationFlag{
			Name:   "confirm-timeout",
			Usage:  "Time a player has to confirm an attack, 0 disables it",
			Value:  battleship.DefaultConfirmTimeout,
			EnvVar: "CONFIRM_TIMEOUT",
		},
		cli.DurationFlag{
			Name:   "select-timeout",
			Usage:  "Time a player has to pick a column or a row, 0 disables it",
			EnvVar: "SELECT_TIMEOUT",
		},
	}
	a.Before = func(c *cli.Context) error {
		setLogLevel(c.GlobalString("log-level"))
		return nil
	}
	a.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "serve games through websocket connections",
			Action: serve,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "host",
					Usage:  "Hostname to listen on",
					Value:  "localhost",
					EnvVar: "LISTEN_HOST",
				},
				cli.IntFlag{
					Name:   "port",
					Usage:  "TCP `port` to listen on",
					Value:  9999,
					EnvVar: "LISTEN_PORT",
				},
				cli.StringFlag{
					Name:   "hash-key",
					Usage:  "Hash key used for secure cookies",
					EnvVar: "HASH_KEY",
				},
				cli.StringFlag{
					Name:   "block-key",
					Usage:  "Block key used for secure cookies",
					EnvVar: "BLOCK_KEY",
				},
				cli.StringFlag{
					Name:   "origin",
					Usage:  "Sets the allowable origin",
					Value:  "*",
					EnvVar: "ORIGIN",
				},
				cli.DurationFlag{
					Name:   "turn-timeout",
					Usage:  "Time a tic-tac-toe player has to move, 0 disables it",
					EnvVar: "TURN_TIMEOUT",
				},
				cli.DurationFlag{
					Name:   "lobby-ttl",
					Usage:  "How long an open lobby waits for an opponent",
					Value:  lobby.DefaultTTL,
					EnvVar: "LOBBY_TTL",
				},
				cli.DurationFlag{
					Name:   "reconnect-grace",
					Usage:  "How long a disconnected player has to come back before forfeiting",
					Value:  time.Minute,
					EnvVar: "RECONNECT_GRACE",
				},
			},
		},
		{
			Name:   "play",
			Usage:  "play in the terminal, online or against the computer",
			Action: play,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "server",
					Usage:  "Game server `url`",
					Value:  serverAddress,
					EnvVar: "SERVER_URL",
				},
			},
		},
		{
			Name:   "local",
			Usage:  "play one game against the computer",
			Action: local,
		},
	}
	if err := a.Run(os.Args); err != nil {
		log.Error("main", "err", err)
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "fatal":
		log.SetLevel(log.FatalLevel)
	}
}

func battleshipConfig(c *cli.Context) battleship.Config {
	cfg := battleship.DefaultConfig()
	cfg.ConfirmTimeout = c.GlobalDuration("confirm-timeout")
	cfg.SelectTimeout = c.GlobalDuration("select-timeout")
	return cfg
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s := server.New(server.Config{
		Origin:      c.String("origin"),
		HashKey:     []byte(c.String("hash-key")),
		BlockKey:    []byte(c.String("block-key")),
		Battleship:  battleshipConfig(c),
		TurnTimeout: c.Duration("turn-timeout"),
		LobbyTTL:    c.Duration("lobby-ttl"),

		ReconnectGrace: c.Duration("reconnect-grace"),
	})

	addr := net.JoinHostPort(c.String("host"), strconv.Itoa(c.Int("port")))
	srv := &http.Server{Addr: addr, Handler: s}
	errc := make(chan error, 1)
	go func() {
		log.Info("main [serve]", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("main.serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("main [serve]", "msg", "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Shutdown(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}

func play(c *cli.Context) error {
	a := app.New(battleshipConfig(c), c.String("server"), httpClientTimeout)
	return a.Run(context.Background())
}

func local(c *cli.Context) error {
	a := app.New(battleshipConfig(c), "", httpClientTimeout)
	return a.RunLocal(context.Background())
}
