//go:build property
// +build property

// Package settlement_test contains property-based tests for the share
// arithmetic: conservation, monotonicity, and dust bounds.
package settlement_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Meridian-Labs/poolrun/pkg/run"
	"github.com/Meridian-Labs/poolrun/pkg/settlement"
)

// TestBaseSharesNeverExceedVault verifies conservation: with deposits that
// sum to the run total, the base shares never pay out more than the vault
// holds, and the floor-rounding residue stays below the participant count.
func TestBaseSharesNeverExceedVault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sum of base shares <= final balance, dust < participants", prop.ForAll(
		func(deposits []uint32, final uint32) bool {
			if len(deposits) == 0 {
				return true
			}
			var total uint64
			for _, d := range deposits {
				total += uint64(d) + 1 // deposits are positive
			}

			var paid uint64
			for _, d := range deposits {
				paid += settlement.BaseShare(uint64(d)+1, uint64(final), total)
			}
			if paid > uint64(final) {
				return false
			}
			return uint64(final)-paid < uint64(len(deposits))
		},
		gen.SliceOfN(8, gen.UInt32()),
		gen.UInt32(),
	))

	properties.TestingRun(t)
}

// TestBaseShareMonotoneInDeposit verifies a larger deposit never earns a
// smaller base share against the same run.
func TestBaseShareMonotoneInDeposit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("base share is monotone in the deposit", prop.ForAll(
		func(a, b, final, extra uint32) bool {
			total := uint64(a) + uint64(b) + uint64(extra) + 1
			lo, hi := uint64(a), uint64(b)
			if lo > hi {
				lo, hi = hi, lo
			}
			return settlement.BaseShare(lo, uint64(final), total) <=
				settlement.BaseShare(hi, uint64(final), total)
		},
		gen.UInt32(), gen.UInt32(), gen.UInt32(), gen.UInt32(),
	))

	properties.TestingRun(t)
}

// TestEntitlementAtLeastBase verifies the vote bonus only ever adds.
func TestEntitlementAtLeastBase(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("entitlement >= base share", prop.ForAll(
		func(deposit, total, final uint32, votes uint8) bool {
			if total == 0 {
				return true
			}
			r := run.Run{TotalDeposited: uint64(total), FinalBalance: uint64(final)}
			p := run.Participation{DepositAmount: uint64(deposit), CorrectVotes: votes % (run.MaxVoteRounds + 1)}
			base := settlement.BaseShare(p.DepositAmount, r.FinalBalance, r.TotalDeposited)
			return settlement.Entitlement(r, p) >= base
		},
		gen.UInt32(), gen.UInt32(), gen.UInt32(), gen.UInt8(),
	))

	properties.TestingRun(t)
}

// TestDustNeverExceedsVault verifies the reconciliation readout is bounded.
func TestDustNeverExceedsVault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("0 <= dust <= final balance", prop.ForAll(
		func(deposits []uint32, final uint32, votes uint8) bool {
			var total uint64
			parts := make([]run.Participation, 0, len(deposits))
			for _, d := range deposits {
				amount := uint64(d) + 1
				total += amount
				parts = append(parts, run.Participation{
					DepositAmount: amount,
					CorrectVotes:  votes % (run.MaxVoteRounds + 1),
				})
			}
			r := run.Run{TotalDeposited: total, FinalBalance: uint64(final)}
			return settlement.Dust(r, parts) <= uint64(final)
		},
		gen.SliceOfN(6, gen.UInt32()),
		gen.UInt32(),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
