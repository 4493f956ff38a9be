package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

const maxRequests = 3

var errNoInput = errors.New("no more input")

// console reads menu answers line by line.
type console struct {
	in  *bufio.Scanner
	out io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: bufio.NewScanner(in), out: out}
}

func (c *console) readLine() (string, error) {
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", fmt.Errorf("app.readLine: %w", err)
		}
		return "", errNoInput
	}
	return strings.TrimSpace(c.in.Text()), nil
}

// choose lists items numbered from 1 and returns the index of the one picked.
func choose[T any](c *console, items []T, label func(T) string) (int, error) {
	for i, it := range items {
		fmt.Fprintf(c.out, "(%d)\t%s\n", i+1, label(it))
	}
	for {
		fmt.Fprint(c.out, "Your choice: ")
		line, err := c.readLine()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(items) {
			fmt.Fprintf(c.out, "Pick a number between 1 and %d\n", len(items))
			continue
		}
		return n - 1, nil
	}
}

// confirm asks a yes/no question until it gets y or n.
func (c *console) confirm(question string) (bool, error) {
	for {
		fmt.Fprintf(c.out, "%s (y/n): ", question)
		line, err := c.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		log.Debug("app [confirm]", "answer", line)
	}
}

// retry calls target until it succeeds or maxRequests attempts fail.
func retry(target func() error) (err error) {
	for i := 0; i < maxRequests; i++ {
		if err = target(); err == nil {
			return nil
		}
		log.Error("app [retry]", "attempt", i+1, "err", err)
	}
	return err
}
