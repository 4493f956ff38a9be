package board

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
)

var (
	ErrOutOfBounds = errors.New("coordinate outside the board")
	ErrOverlap     = errors.New("ship overlaps another ship")
	ErrBadCoord    = errors.New("malformed coordinate")
)

type Cell int

const (
	Empty Cell = iota
	ShipOccupied
	Hit
	Miss
)

func (c Cell) String() string {
	switch c {
	case ShipOccupied:
		return "ship"
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	default:
		return "empty"
	}
}

// Coord addresses a cell by zero-based column and row.
type Coord struct {
	Col int
	Row int
}

// String renders the coordinate the way players read it: column letter, one-based row ("B7").
func (c Coord) String() string {
	return fmt.Sprintf("%c%d", 'A'+c.Col, c.Row+1)
}

// ParseCoord is the inverse of Coord.String.
func ParseCoord(s string) (Coord, error) {
	if len(s) < 2 || s[0] < 'A' || s[0] > 'Z' {
		return Coord{}, fmt.Errorf("%w: %q", ErrBadCoord, s)
	}
	row, err := strconv.Atoi(s[1:])
	if err != nil || row < 1 {
		return Coord{}, fmt.Errorf("%w: %q", ErrBadCoord, s)
	}
	return Coord{Col: int(s[0] - 'A'), Row: row - 1}, nil
}

// Grid is a square matrix of cells indexed [row][col]. An attack board is a bare Grid that only
// ever holds Hit and Miss.
type Grid [][]Cell

func NewGrid(size int) Grid {
	g := make(Grid, size)
	for row := range g {
		g[row] = make([]Cell, size)
	}
	return g
}

func (g Grid) Size() int {
	return len(g)
}

func (g Grid) Contains(c Coord) bool {
	return c.Row >= 0 && c.Row < len(g) && c.Col >= 0 && c.Col < len(g)
}

func (g Grid) At(c Coord) Cell {
	return g[c.Row][c.Col]
}

func (g Grid) Mark(c Coord, cell Cell) {
	g[c.Row][c.Col] = cell
}

func (g Grid) Count(cell Cell) int {
	n := 0
	for _, row := range g {
		for _, v := range row {
			if v == cell {
				n++
			}
		}
	}
	return n
}

// Strings returns the grid as cell names, row by row.
func (g Grid) Strings() [][]string {
	out := make([][]string, len(g))
	for r, row := range g {
		out[r] = make([]string, len(row))
		for c, v := range row {
			out[r][c] = v.String()
		}
	}
	return out
}

func (g Grid) String() string {
	if len(g) == 0 {
		return "empty grid\n"
	}

	var buffer bytes.Buffer
	w := tabwriter.NewWriter(&buffer, 3, 0, 1, ' ', 0)

	fmt.Fprint(w, "\t")
	for col := range g {
		fmt.Fprintf(w, "%c\t", 'A'+col)
	}
	fmt.Fprint(w, "\n")

	for r, row := range g {
		fmt.Fprintf(w, "%d\t", r+1)
		for _, v := range row {
			switch v {
			case ShipOccupied:
				fmt.Fprint(w, "S\t")
			case Hit:
				fmt.Fprint(w, "X\t")
			case Miss:
				fmt.Fprint(w, "O\t")
			default:
				fmt.Fprint(w, "~\t")
			}
		}
		fmt.Fprint(w, "\n")
	}
	w.Flush()
	return buffer.String()
}

type Ship struct {
	Name  string
	Size  int
	Cells []Coord
	hits  map[Coord]struct{}
}

func (s *Ship) Occupies(c Coord) bool {
	for _, cell := range s.Cells {
		if cell == c {
			return true
		}
	}
	return false
}

func (s *Ship) Hits() int {
	return len(s.hits)
}

func (s *Ship) Sunk() bool {
	return len(s.hits) == len(s.Cells)
}

// Board is one participant's fleet: the grid the opponent attacks plus the ships placed on it.
type Board struct {
	Grid  Grid
	Ships []*Ship
}

func New(size int) *Board {
	return &Board{Grid: NewGrid(size)}
}

type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

// cells lists the coordinates a ship of the given size would cover from origin.
func cells(origin Coord, size int, o Orientation) []Coord {
	out := make([]Coord, size)
	for i := range out {
		if o == Horizontal {
			out[i] = Coord{Col: origin.Col + i, Row: origin.Row}
		} else {
			out[i] = Coord{Col: origin.Col, Row: origin.Row + i}
		}
	}
	return out
}

// Place puts a ship on the board. The board is left untouched when the ship does not fit or
// overlaps another one.
func (b *Board) Place(name string, size int, origin Coord, o Orientation) (*Ship, error) {
	target := cells(origin, size, o)
	for _, c := range target {
		if !b.Grid.Contains(c) {
			return nil, fmt.Errorf("board.Place %s at %v: %w", name, c, ErrOutOfBounds)
		}
		if b.Grid.At(c) != Empty {
			return nil, fmt.Errorf("board.Place %s at %v: %w", name, c, ErrOverlap)
		}
	}

	for _, c := range target {
		b.Grid.Mark(c, ShipOccupied)
	}
	s := &Ship{Name: name, Size: size, Cells: target, hits: map[Coord]struct{}{}}
	b.Ships = append(b.Ships, s)
	return s, nil
}

func (b *Board) ShipAt(c Coord) *Ship {
	for _, s := range b.Ships {
		if s.Occupies(c) {
			return s
		}
	}
	return nil
}

// Strike marks c as Hit or Miss depending on what is under it and records the hit on the ship.
// It reports the struck ship, or nil on a miss.
func (b *Board) Strike(c Coord) (*Ship, error) {
	if !b.Grid.Contains(c) {
		return nil, fmt.Errorf("board.Strike %v: %w", c, ErrOutOfBounds)
	}
	s := b.ShipAt(c)
	if s == nil {
		b.Grid.Mark(c, Miss)
		return nil, nil
	}
	b.Grid.Mark(c, Hit)
	s.hits[c] = struct{}{}
	return s, nil
}

func (b *Board) ShipsLeft() int {
	n := 0
	for _, s := range b.Ships {
		if !s.Sunk() {
			n++
		}
	}
	return n
}

func (b *Board) AllSunk() bool {
	return b.ShipsLeft() == 0
}
