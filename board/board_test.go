package board

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFleetProperties(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		b, err := Generate(Size, Fleet, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)

		assert.Equal(t, 17, b.Grid.Count(ShipOccupied), "seed %d", seed)
		require.Len(t, b.Ships, len(Fleet))

		seen := map[Coord]string{}
		for _, s := range b.Ships {
			assert.Equal(t, s.Size, len(s.Cells), "ship %s seed %d", s.Name, seed)
			for _, c := range s.Cells {
				require.True(t, b.Grid.Contains(c))
				other, dup := seen[c]
				assert.False(t, dup, "%s overlaps %s at %v (seed %d)", s.Name, other, c, seed)
				seen[c] = s.Name
				assert.Equal(t, ShipOccupied, b.Grid.At(c))
			}
		}
	}
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	a, err := Generate(Size, Fleet, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := Generate(Size, Fleet, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	assert.Equal(t, a.Grid, b.Grid)
	for i := range a.Ships {
		assert.Equal(t, a.Ships[i].Name, b.Ships[i].Name)
		assert.Equal(t, a.Ships[i].Cells, b.Ships[i].Cells)
	}
}

func TestGeneratePlacesLargestFirst(t *testing.T) {
	b, err := Generate(Size, []ShipSpec{{"Destroyer", 2}, {"Carrier", 5}}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, "Carrier", b.Ships[0].Name)
	assert.Equal(t, "Destroyer", b.Ships[1].Name)
}

func TestGenerateRejectsOversizedFleet(t *testing.T) {
	_, err := Generate(3, Fleet, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrFleetTooLarge)

	_, err = Generate(4, []ShipSpec{{"Carrier", 5}}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrFleetTooLarge)
}

func TestPlace(t *testing.T) {
	b := New(5)

	s, err := b.Place("Destroyer", 2, Coord{Col: 1, Row: 1}, Horizontal)
	require.NoError(t, err)
	assert.Equal(t, []Coord{{1, 1}, {2, 1}}, s.Cells)

	_, err = b.Place("Cruiser", 3, Coord{Col: 2, Row: 0}, Vertical)
	assert.ErrorIs(t, err, ErrOverlap)

	_, err = b.Place("Cruiser", 3, Coord{Col: 3, Row: 3}, Vertical)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	assert.Equal(t, 2, b.Grid.Count(ShipOccupied), "failed placements must not touch the grid")
	assert.Len(t, b.Ships, 1)
}

func TestStrike(t *testing.T) {
	b := New(5)
	_, err := b.Place("Destroyer", 2, Coord{Col: 3, Row: 2}, Horizontal)
	require.NoError(t, err)

	s, err := b.Strike(Coord{Col: 0, Row: 0})
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, Miss, b.Grid.At(Coord{0, 0}))

	s, err = b.Strike(Coord{Col: 3, Row: 2})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 1, s.Hits())
	assert.False(t, s.Sunk())
	assert.Equal(t, 1, b.ShipsLeft())

	s, err = b.Strike(Coord{Col: 4, Row: 2})
	require.NoError(t, err)
	assert.True(t, s.Sunk())
	assert.True(t, b.AllSunk())

	_, err = b.Strike(Coord{Col: 5, Row: 0})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestCoordRoundTrip(t *testing.T) {
	c, err := ParseCoord("J10")
	require.NoError(t, err)
	assert.Equal(t, Coord{Col: 9, Row: 9}, c)
	assert.Equal(t, "B7", Coord{Col: 1, Row: 6}.String())

	for _, bad := range []string{"", "A", "a1", "A0", "Ax"} {
		_, err := ParseCoord(bad)
		assert.ErrorIs(t, err, ErrBadCoord, bad)
	}
}

func TestGridString(t *testing.T) {
	b := New(2)
	_, err := b.Place("Patrol", 1, Coord{0, 0}, Horizontal)
	require.NoError(t, err)
	_, _ = b.Strike(Coord{Col: 1, Row: 1})

	out := b.Grid.String()
	assert.Contains(t, out, "S")
	assert.Contains(t, out, "O")
	assert.Contains(t, out, "A")
}
