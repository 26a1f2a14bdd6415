// Package settlement computes per-participant entitlements for a settled run.
// All functions are pure and use 128-bit intermediate arithmetic so the full
// uint64 range of deposits and balances never overflows.
package settlement

import (
	"math"
	"math/bits"

	"github.com/Meridian-Labs/poolrun/pkg/run"
)

const (
	// BpsDenominator is the basis-point scale: 10000 bps = 100%.
	BpsDenominator = 10_000
	// BonusBpsPerCorrectVote awards 1% of the base share per correct vote.
	BonusBpsPerCorrectVote = 100
)

// mulDiv returns floor(a*b/div) using a 128-bit intermediate product.
// If the quotient would not fit in 64 bits it saturates; with engine inputs
// (deposit <= totalDeposited, votes <= MaxVoteRounds) that cannot happen.
func mulDiv(a, b, div uint64) uint64 {
	if div == 0 {
		return 0
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= div {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, div)
	return q
}

// BaseShare is the proportional slice of the final balance:
// floor(deposit * finalBalance / totalDeposited).
func BaseShare(deposit, finalBalance, totalDeposited uint64) uint64 {
	return mulDiv(deposit, finalBalance, totalDeposited)
}

// VoteBonus is the performance bonus on top of a base share:
// floor(base * correctVotes*100 / 10000).
func VoteBonus(base uint64, correctVotes uint8) uint64 {
	return mulDiv(base, uint64(correctVotes)*BonusBpsPerCorrectVote, BpsDenominator)
}

// Entitlement is the amount a participant may withdraw from a settled run.
func Entitlement(r run.Run, p run.Participation) uint64 {
	base := BaseShare(p.DepositAmount, r.FinalBalance, r.TotalDeposited)
	bonus := VoteBonus(base, p.CorrectVotes)
	total := base + bonus
	if total < base { // saturate on the (theoretical) wrap
		return math.MaxUint64
	}
	return total
}

// Dust is the residual left in the vault once every listed participant has
// been paid their entitlement. Floor rounding keeps it non-negative; with no
// vote bonuses it is bounded by participantCount - 1 minimal units.
func Dust(r run.Run, parts []run.Participation) uint64 {
	remaining := r.FinalBalance
	for _, p := range parts {
		e := Entitlement(r, p)
		if e >= remaining {
			return 0
		}
		remaining -= e
	}
	return remaining
}
