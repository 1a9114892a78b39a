// Package options selects strangle strikes from an option ladder.
package options

import (
	"errors"
	"math"
	"sort"

	"github.com/quaxel/eodstrangle/internal/gateway"
)

// ErrNoStrike indicates that no ladder entry passed the quote filter.
var ErrNoStrike = errors.New("no eligible strike")

// LadderEntry is one strike of an option chain with its current quote.
type LadderEntry struct {
	Strike float64
	Bid    float64
	Ask    float64
}

// byStrike returns a copy of the ladder sorted ascending by strike. All
// selection walks run over this order so tie handling stays deterministic
// regardless of input order.
func byStrike(ladder []LadderEntry) []LadderEntry {
	sorted := make([]LadderEntry, len(ladder))
	copy(sorted, ladder)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Strike < sorted[j].Strike })
	return sorted
}

// ClosestStrike returns the strike nearest to target among entries with a
// valid bid. Equidistant candidates resolve to the lower strike.
func ClosestStrike(ladder []LadderEntry, target float64) (float64, error) {
	best := math.NaN()
	bestDist := math.Inf(1)
	for _, entry := range byStrike(ladder) {
		if !gateway.ValidPrice(entry.Bid) {
			continue
		}
		if dist := math.Abs(entry.Strike - target); dist < bestDist {
			bestDist = dist
			best = entry.Strike
		}
	}
	if math.IsNaN(best) {
		return 0, ErrNoStrike
	}
	return best, nil
}

// ATMStrike returns the quoted strike nearest to the spot price.
func ATMStrike(ladder []LadderEntry, spot float64) (float64, error) {
	return ClosestStrike(ladder, spot)
}

// ByTargetPremium returns the strike whose premium is nearest to target on
// the out-of-the-money side of atm for the given right. Puts search at or
// below atm against the ask, resolving premium ties to the higher strike;
// calls search at or above atm against the bid, resolving ties to the lower
// strike.
func ByTargetPremium(ladder []LadderEntry, right gateway.Right, atm, target float64) (float64, error) {
	sorted := byStrike(ladder)
	if right == gateway.RightPut {
		// Walk downward so a strict improvement keeps the highest strike
		// among equal premium distances.
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
	}

	best := math.NaN()
	bestDist := math.Inf(1)
	for _, entry := range sorted {
		var premium float64
		switch right {
		case gateway.RightPut:
			if entry.Strike > atm {
				continue
			}
			premium = entry.Ask
		case gateway.RightCall:
			if entry.Strike < atm {
				continue
			}
			premium = entry.Bid
		default:
			return 0, ErrNoStrike
		}
		if !gateway.ValidPrice(premium) {
			continue
		}
		if dist := math.Abs(premium - target); dist < bestDist {
			bestDist = dist
			best = entry.Strike
		}
	}
	if math.IsNaN(best) {
		return 0, ErrNoStrike
	}
	return best, nil
}
