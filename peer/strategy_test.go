package peer

import (
	"testing"

	"github.com/Seednode/platematch/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundState(t *testing.T) match.State {
	t.Helper()

	s, err := match.Reduce(match.NewState(10, match.Seat0), match.Start{Turn: match.Seat0})
	require.NoError(t, err)

	return s
}

func TestPassNeverActs(t *testing.T) {
	t.Parallel()

	s := roundState(t)

	_, ok := Pass{}.Plate(s, match.Seat0)
	assert.False(t, ok)

	_, _, ok = Pass{}.Pair(s, match.Seat0)
	assert.False(t, ok)

	assert.Equal(t, 3, Pass{}.Place(s, match.Seat0, 3, 4))
}

func TestMemoryPicksUncoveredPlates(t *testing.T) {
	t.Parallel()

	s := roundState(t)
	for i := range 9 {
		s.Plates[i].Covered = true
	}

	m := NewMemory(0.5, 7)
	for range 20 {
		plate, ok := m.Plate(s, match.Seat0)
		require.True(t, ok)
		assert.Equal(t, 9, plate)
	}

	s.Plates[9].Covered = true
	_, ok := m.Plate(s, match.Seat0)
	assert.False(t, ok)
}

func TestMemoryRecallFindsMatchingPair(t *testing.T) {
	t.Parallel()

	s := roundState(t)
	for i := range s.Plates {
		s.Plates[i].Tokens = [2]int{i + 1, 0}
	}
	s.Plates[2].Tokens = [2]int{1, 6}
	s.Plates[6].Tokens = [2]int{3, 4}

	m := NewMemory(1, 3)
	for range 20 {
		a, b, ok := m.Pair(s, match.Seat0)
		require.True(t, ok)
		assert.ElementsMatch(t, []int{2, 6}, []int{a, b})
	}
}

func TestMemoryWithoutRecallPicksDistinctPlates(t *testing.T) {
	t.Parallel()

	s := roundState(t)

	m := NewMemory(0, 11)
	for range 100 {
		a, b, ok := m.Pair(s, match.Seat0)
		require.True(t, ok)
		assert.NotEqual(t, a, b)
		assert.True(t, a >= 0 && a < len(s.Plates))
		assert.True(t, b >= 0 && b < len(s.Plates))
	}
}

func TestMemoryPlacesOnARevealedPlate(t *testing.T) {
	t.Parallel()

	s := roundState(t)

	m := NewMemory(1, 5)
	seen := map[int]bool{}
	for range 50 {
		plate := m.Place(s, match.Seat0, 2, 8)
		require.Contains(t, []int{2, 8}, plate)
		seen[plate] = true
	}
	assert.Len(t, seen, 2)
}
