package run

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Meridian-Labs/poolrun/pkg/apperrors"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		min     uint64
		max     uint64
		maxPart uint16
		wantErr error
	}{
		{"valid", 10, 100, 5, nil},
		{"min equals max", 50, 50, 1, nil},
		{"zero min", 0, 100, 5, ErrInvalidDepositBounds},
		{"max below min", 100, 99, 5, ErrInvalidDepositBounds},
		{"zero capacity", 10, 100, 0, ErrInvalidParticipantLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(1, "authority", tt.min, tt.max, tt.maxPart, fixedClock)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusWaiting, r.Status)
			assert.Equal(t, uint64(0), r.TotalDeposited)
			assert.Equal(t, uint16(0), r.ParticipantCount)
			assert.Equal(t, fixedClock(), r.CreatedAt)
			assert.True(t, r.StartedAt.IsZero())
		})
	}
}

func TestCheckDepositOrder(t *testing.T) {
	r, err := New(1, "authority", 10, 100, 1, fixedClock)
	require.NoError(t, err)
	r.ParticipantCount = 1

	// An amount that is both too low and against a full run must report
	// the phase/bounds failure order: too-low wins over full.
	assert.ErrorIs(t, r.CheckDeposit(5), ErrDepositTooLow)
	assert.ErrorIs(t, r.CheckDeposit(500), ErrDepositTooHigh)
	assert.ErrorIs(t, r.CheckDeposit(50), ErrRunFull)

	r.Status = StatusActive
	// Phase wins over everything.
	assert.ErrorIs(t, r.CheckDeposit(5), ErrNotWaiting)
}

func TestCheckDepositBoundsInclusive(t *testing.T) {
	r, err := New(1, "authority", 10, 100, 2, fixedClock)
	require.NoError(t, err)

	assert.NoError(t, r.CheckDeposit(10))
	assert.NoError(t, r.CheckDeposit(100))
	assert.ErrorIs(t, r.CheckDeposit(9), ErrDepositTooLow)
	assert.ErrorIs(t, r.CheckDeposit(101), ErrDepositTooHigh)
}

func TestApplyDeposit(t *testing.T) {
	r, err := New(1, "authority", 10, 100, 2, fixedClock)
	require.NoError(t, err)

	r = r.ApplyDeposit(40)
	r = r.ApplyDeposit(60)
	assert.Equal(t, uint64(100), r.TotalDeposited)
	assert.Equal(t, uint16(2), r.ParticipantCount)
}

func TestLifecycleTransitions(t *testing.T) {
	r, err := New(1, "authority", 10, 100, 2, fixedClock)
	require.NoError(t, err)
	r = r.ApplyDeposit(40)

	r, err = r.Start(fixedClock)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, r.Status)
	assert.Equal(t, fixedClock(), r.StartedAt)

	// Active runs cannot start again.
	_, err = r.Start(fixedClock)
	assert.Equal(t, apperrors.CodeInvalidRunStatus, apperrors.CodeOf(err))

	r, err = r.Settle(120, fixedClock)
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, r.Status)
	assert.Equal(t, uint64(120), r.FinalBalance)

	// Settled is terminal.
	_, err = r.Settle(120, fixedClock)
	assert.Equal(t, apperrors.CodeInvalidRunStatus, apperrors.CodeOf(err))
	_, err = r.Start(fixedClock)
	assert.Equal(t, apperrors.CodeInvalidRunStatus, apperrors.CodeOf(err))
}

func TestStartRequiresParticipants(t *testing.T) {
	r, err := New(1, "authority", 10, 100, 2, fixedClock)
	require.NoError(t, err)

	_, err = r.Start(fixedClock)
	assert.ErrorIs(t, err, ErrNoParticipants)
}

func TestSettleRequiresActive(t *testing.T) {
	r, err := New(1, "authority", 10, 100, 2, fixedClock)
	require.NoError(t, err)

	_, err = r.Settle(120, fixedClock)
	assert.Equal(t, apperrors.CodeInvalidRunStatus, apperrors.CodeOf(err))
}

func TestProfit(t *testing.T) {
	r := Run{TotalDeposited: 100, FinalBalance: 120}
	assert.Equal(t, uint64(20), r.Profit())

	// A loss floors at zero rather than underflowing.
	r.FinalBalance = 80
	assert.Equal(t, uint64(0), r.Profit())
}

func TestSetVoteStats(t *testing.T) {
	p := NewParticipation(1, "alice", 40)
	assert.Equal(t, uint64(40), p.DepositAmount)
	assert.False(t, p.Withdrawn)

	p, err := p.SetVoteStats(3, 5)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), p.CorrectVotes)
	assert.Equal(t, uint8(5), p.TotalVotes)

	// Overwrite semantics: the second report replaces the first.
	p, err = p.SetVoteStats(1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), p.CorrectVotes)
	assert.Equal(t, uint8(2), p.TotalVotes)
}

func TestSetVoteStatsRejectsInconsistentCounts(t *testing.T) {
	p := NewParticipation(1, "alice", 40)

	_, err := p.SetVoteStats(6, 5)
	assert.ErrorIs(t, err, ErrInvalidVoteStats)

	_, err = p.SetVoteStats(13, 13)
	assert.ErrorIs(t, err, ErrInvalidVoteStats)

	// The boundary itself is allowed.
	_, err = p.SetVoteStats(MaxVoteRounds, MaxVoteRounds)
	assert.NoError(t, err)
}
