package peer

import (
	"math/rand/v2"

	"github.com/Seednode/platematch/match"
)

// Strategy chooses the local player's actions. Returning ok=false passes,
// leaving the turn to the countdown.
type Strategy interface {
	Plate(s match.State, me match.Seat) (plate int, ok bool)
	Pair(s match.State, me match.Seat) (a, b int, ok bool)
	// Place picks which of the two revealed plates receives a held token.
	Place(s match.State, me match.Seat, a, b int) int
}

// Pass never acts.
type Pass struct{}

func (Pass) Plate(match.State, match.Seat) (int, bool) { return 0, false }

func (Pass) Pair(match.State, match.Seat) (int, int, bool) { return 0, 0, false }

func (Pass) Place(_ match.State, _ match.Seat, a, _ int) int { return a }

// Memory plays random round plates and, with probability Recall, remembers
// a matching pair in the main phase.
type Memory struct {
	Recall float64
	Rand   *rand.Rand
}

func NewMemory(recall float64, seed uint64) *Memory {
	return &Memory{
		Recall: recall,
		Rand:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (m *Memory) Plate(s match.State, _ match.Seat) (int, bool) {
	free := s.Uncovered()
	if len(free) == 0 {
		return 0, false
	}

	return free[m.Rand.IntN(len(free))], true
}

func (m *Memory) Pair(s match.State, _ match.Seat) (int, int, bool) {
	n := len(s.Plates)
	if n < 2 {
		return 0, 0, false
	}

	if m.Rand.Float64() < m.Recall {
		var pairs [][2]int
		for a := range n {
			for b := a + 1; b < n; b++ {
				if s.Matches(a, b) {
					pairs = append(pairs, [2]int{a, b})
				}
			}
		}
		if len(pairs) > 0 {
			p := pairs[m.Rand.IntN(len(pairs))]

			return p[0], p[1], true
		}
	}

	a := m.Rand.IntN(n)
	b := m.Rand.IntN(n - 1)
	if b >= a {
		b++
	}

	return a, b, true
}

func (m *Memory) Place(_ match.State, _ match.Seat, a, b int) int {
	if m.Rand.IntN(2) == 0 {
		return a
	}

	return b
}
