package app

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/wojtekolesinski/fleetduel/models"
)

const (
	choiceComputer = iota + 1
	choiceHost
	choiceJoin
	choiceQuit
)

func (a *App) displayMenu() (int, error) {
	choices := []string{
		"Play against the computer",
		"Open an online game",
		"Join an online game",
		"Quit",
	}

	i, err := choose(a.con, choices, func(a string) string { return a })
	if err != nil {
		return 0, fmt.Errorf("app.displayMenu: %w", err)
	}
	log.Debug("app [displayMenu]", "choice", i+1)
	return i + 1, nil
}

// chooseRoom lists the open battleship lobbies and returns the one picked, or "" when none is open.
func (a *App) chooseRoom() (string, error) {
	var rooms []models.Room
	fmt.Fprintln(a.con.out, "Fetching list of open games")
	err := retry(func() (err error) {
		rooms, err = a.client.Lobbies()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("client.Lobbies: %w", err)
	}

	var open []models.Room
	for _, r := range rooms {
		if r.Game == models.GameBattleship && r.Host != a.client.Participant {
			open = append(open, r)
		}
	}
	if len(open) == 0 {
		fmt.Fprintln(a.con.out, "\nNo open games, try hosting one.")
		return "", nil
	}

	i, err := choose(a.con, open, func(r models.Room) string {
		return fmt.Sprintf("%s (host %s)", r.ID, r.Host)
	})
	if err != nil {
		return "", err
	}
	return open[i].ID, nil
}
