package service

import (
	"crypto/rand"
	"io"
	"math/big"
	"sort"
)

var one = big.NewInt(1)

// Selector draws weighted winners without replacement.
type Selector struct {
	rand io.Reader
}

// NewSelector returns a selector reading randomness from r, crypto/rand when nil.
func NewSelector(r io.Reader) *Selector {
	if r == nil {
		r = rand.Reader
	}
	return &Selector{rand: r}
}

// Select picks up to winnerCount users. Each round draws r in [1, total],
// sets a counter to total/r and walks the users in ascending id order,
// subtracting each weight; the user that takes the counter below 1 wins and
// leaves the pool. When total exceeds the summed weights a round may find no
// winner. With no more users than winners every user wins.
func (s *Selector) Select(winnerCount int, total *big.Int, weights map[int64]*big.Int) ([]int64, error) {
	ids := make([]int64, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) <= winnerCount {
		return ids, nil
	}

	current := new(big.Int).Set(total)
	winners := make([]int64, 0, winnerCount)
	for round := 0; round < winnerCount && current.Sign() > 0; round++ {
		r, err := rand.Int(s.rand, current)
		if err != nil {
			return nil, err
		}
		r.Add(r, one)

		counter := new(big.Int).Quo(current, r)
		for i, id := range ids {
			counter.Sub(counter, weights[id])
			if counter.Cmp(one) < 0 {
				winners = append(winners, id)
				current.Sub(current, weights[id])
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	return winners, nil
}
