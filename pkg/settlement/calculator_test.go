package settlement

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Meridian-Labs/poolrun/pkg/run"
)

func TestBaseShareProportional(t *testing.T) {
	// Two participants, 40/60 split of 100 deposited, vault settled at 120.
	assert.Equal(t, uint64(48), BaseShare(40, 120, 100))
	assert.Equal(t, uint64(72), BaseShare(60, 120, 100))
}

func TestBaseShareFloors(t *testing.T) {
	// 3-way even split of 100: floor(1*100/3) = 33 leaves dust behind.
	assert.Equal(t, uint64(33), BaseShare(1, 100, 3))
	assert.Equal(t, uint64(0), BaseShare(1, 2, 3))
}

func TestBaseShareZeroDenominator(t *testing.T) {
	assert.Equal(t, uint64(0), BaseShare(40, 120, 0))
}

func TestBaseShareLoss(t *testing.T) {
	// Vault below deposits: shares shrink proportionally.
	assert.Equal(t, uint64(20), BaseShare(40, 50, 100))
	assert.Equal(t, uint64(30), BaseShare(60, 50, 100))
}

func TestBaseShareLargeValuesNoOverflow(t *testing.T) {
	// deposit * finalBalance overflows uint64; the 128-bit path must not.
	deposit := uint64(1 << 40)
	total := uint64(1 << 41)
	final := uint64(1 << 41)
	assert.Equal(t, uint64(1<<40), BaseShare(deposit, final, total))

	// Full-range sanity: a sole participant always gets the whole vault.
	assert.Equal(t, uint64(math.MaxUint64), BaseShare(math.MaxUint64, math.MaxUint64, math.MaxUint64))
}

func TestVoteBonus(t *testing.T) {
	// 1% per correct vote.
	assert.Equal(t, uint64(0), VoteBonus(48, 0))
	assert.Equal(t, uint64(0), VoteBonus(48, 1)) // floor(48*100/10000) = 0
	assert.Equal(t, uint64(1), VoteBonus(100, 1))
	assert.Equal(t, uint64(12), VoteBonus(100, 12))
	assert.Equal(t, uint64(600), VoteBonus(5000, 12))
}

func TestEntitlementWorkedExample(t *testing.T) {
	// min 10 / max 100 / capacity 2; A deposits 40, B deposits 60.
	// Settled at 120 with A voting 1/1.
	r := run.Run{
		Status:         run.StatusSettled,
		TotalDeposited: 100,
		FinalBalance:   120,
	}
	a := run.Participation{DepositAmount: 40, CorrectVotes: 1, TotalVotes: 1}
	b := run.Participation{DepositAmount: 60}

	// A: base 48, bonus floor(48*100/10000)=0.
	assert.Equal(t, uint64(48), Entitlement(r, a))
	// B: base 72, no votes.
	assert.Equal(t, uint64(72), Entitlement(r, b))
	// The two payouts consume the vault exactly.
	assert.Equal(t, uint64(0), Dust(r, []run.Participation{a, b}))
}

func TestEntitlementWithBonus(t *testing.T) {
	r := run.Run{TotalDeposited: 10_000, FinalBalance: 20_000}
	p := run.Participation{DepositAmount: 5_000, CorrectVotes: 3}

	// base = 10000, bonus = floor(10000*300/10000) = 300.
	assert.Equal(t, uint64(10_300), Entitlement(r, p))
}

func TestDustBoundedByRounding(t *testing.T) {
	// Three equal deposits into 100 final: 3*33 = 99, dust 1.
	r := run.Run{TotalDeposited: 3, FinalBalance: 100}
	parts := []run.Participation{
		{DepositAmount: 1}, {DepositAmount: 1}, {DepositAmount: 1},
	}
	assert.Equal(t, uint64(1), Dust(r, parts))
}

func TestDustNeverNegative(t *testing.T) {
	// Bonuses can push the sum of entitlements past the vault; dust clamps
	// to zero instead of wrapping.
	r := run.Run{TotalDeposited: 100, FinalBalance: 100}
	parts := []run.Participation{
		{DepositAmount: 50, CorrectVotes: 12},
		{DepositAmount: 50, CorrectVotes: 12},
	}
	assert.Equal(t, uint64(0), Dust(r, parts))
}
