package board

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/charmbracelet/log"
)

const Size = 10

var ErrFleetTooLarge = errors.New("fleet does not fit on the board")

type ShipSpec struct {
	Name string
	Size int
}

// Fleet is the standard five-ship fleet, 17 cells in total.
var Fleet = []ShipSpec{
	{Name: "Carrier", Size: 5},
	{Name: "Battleship", Size: 4},
	{Name: "Cruiser", Size: 3},
	{Name: "Submarine", Size: 3},
	{Name: "Destroyer", Size: 2},
}

func FleetCells(fleet []ShipSpec) int {
	n := 0
	for _, s := range fleet {
		n += s.Size
	}
	return n
}

// Generate places the fleet on an empty size×size board, largest ship first, by sampling a
// random orientation and origin until every target cell is empty. The same rng seed yields the
// same board.
func Generate(size int, fleet []ShipSpec, rng *rand.Rand) (*Board, error) {
	if FleetCells(fleet) > size*size {
		return nil, fmt.Errorf("board.Generate: %w", ErrFleetTooLarge)
	}
	ordered := make([]ShipSpec, len(fleet))
	copy(ordered, fleet)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Size > ordered[j].Size })

	b := New(size)
	for _, spec := range ordered {
		if spec.Size < 1 || spec.Size > size {
			return nil, fmt.Errorf("board.Generate %s (%d): %w", spec.Name, spec.Size, ErrFleetTooLarge)
		}
		attempts := 0
		for {
			attempts++
			var origin Coord
			o := Orientation(rng.Intn(2))
			if o == Horizontal {
				origin = Coord{Col: rng.Intn(size - spec.Size + 1), Row: rng.Intn(size)}
			} else {
				origin = Coord{Col: rng.Intn(size), Row: rng.Intn(size - spec.Size + 1)}
			}
			if _, err := b.Place(spec.Name, spec.Size, origin, o); err == nil {
				break
			}
		}
		log.Debug("board [Generate]", "ship", spec.Name, "attempts", attempts)
	}
	return b, nil
}
