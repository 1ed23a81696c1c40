package service

import (
	"bytes"
	"errors"
	"math/big"
	mrand "math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("randomness must not be used")
}

func weightsOf(ws map[int64]int64) (*big.Int, map[int64]*big.Int) {
	total := new(big.Int)
	out := make(map[int64]*big.Int, len(ws))
	for id, w := range ws {
		out[id] = big.NewInt(w)
		total.Add(total, out[id])
	}
	return total, out
}

func TestSelector_Properties(t *testing.T) {
	rng := mrand.New(mrand.NewSource(42))
	s := NewSelector(mrand.New(mrand.NewSource(1)))

	for i := 0; i < 200; i++ {
		users := 1 + rng.Intn(30)
		ws := make(map[int64]int64, users)
		for u := 0; u < users; u++ {
			ws[int64(u+1)] = 1 + rng.Int63n(1000)
		}
		winnerCount := 1 + rng.Intn(10)
		total, weights := weightsOf(ws)

		winners, err := s.Select(winnerCount, total, weights)
		require.NoError(t, err)

		assert.Len(t, winners, min(winnerCount, users))
		seen := make(map[int64]bool)
		for _, w := range winners {
			_, ok := ws[w]
			assert.True(t, ok, "winner %d is not an entrant", w)
			assert.False(t, seen[w], "winner %d drawn twice", w)
			seen[w] = true
		}
	}
}

func TestSelector_EveryoneWinsWithoutRandomness(t *testing.T) {
	s := NewSelector(failingReader{})
	total, weights := weightsOf(map[int64]int64{3: 10, 1: 5})

	winners, err := s.Select(2, total, weights)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, winners)

	winners, err = s.Select(5, total, weights)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, winners)
}

func TestSelector_DeterministicForSeed(t *testing.T) {
	ws := map[int64]int64{1: 3, 2: 50, 3: 1, 4: 999, 5: 20, 6: 7}

	draw := func() []int64 {
		total, weights := weightsOf(ws)
		winners, err := NewSelector(mrand.New(mrand.NewSource(99))).Select(3, total, weights)
		require.NoError(t, err)
		return winners
	}

	assert.Equal(t, draw(), draw())
}

func TestSelector_TwoOfThree(t *testing.T) {
	total, weights := weightsOf(map[int64]int64{'A': 1, 'B': 1, 'C': 1})

	winners, err := NewSelector(nil).Select(2, total, weights)
	require.NoError(t, err)
	require.Len(t, winners, 2)
	assert.NotEqual(t, winners[0], winners[1])
	for _, w := range winners {
		assert.Contains(t, []int64{'A', 'B', 'C'}, w)
	}
}

func TestSelector_IntegerDivisionDraw(t *testing.T) {
	total, weights := weightsOf(map[int64]int64{1: 1, 2: 1, 3: 1})

	// r = 0+1: counter = 3/1 = 3, only the last user takes it below 1.
	winners, err := NewSelector(bytes.NewReader([]byte{0x00})).Select(1, total, weights)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, winners)

	// r = 2+1: counter = 3/3 = 1, the first user wins.
	winners, err = NewSelector(bytes.NewReader([]byte{0x02})).Select(1, total, weights)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, winners)
}

func TestSelector_ExcludedWeightCanVoidARound(t *testing.T) {
	_, weights := weightsOf(map[int64]int64{1: 1, 2: 1})
	// Two more units belong to excluded members.
	total := big.NewInt(4)

	// r = 1: counter = 4 never drops below 1 over a summed weight of 2.
	winners, err := NewSelector(bytes.NewReader([]byte{0x00})).Select(1, total, weights)
	require.NoError(t, err)
	assert.Empty(t, winners)
}

func TestSelector_DoesNotMutateInput(t *testing.T) {
	total, weights := weightsOf(map[int64]int64{1: 2, 2: 3, 3: 4})
	before := new(big.Int).Set(total)

	_, err := NewSelector(mrand.New(mrand.NewSource(5))).Select(2, total, weights)
	require.NoError(t, err)
	assert.Zero(t, before.Cmp(total))
	assert.Len(t, weights, 3)
	assert.EqualValues(t, 3, weights[2].Int64())
}
