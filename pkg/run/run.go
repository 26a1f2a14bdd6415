// Package run holds the per-run ledger records and the lifecycle state
// machine: a run moves Waiting -> Active -> Settled, deposits are accepted
// only while Waiting, and the ordering is never reversible.
package run

import (
	"time"

	"github.com/Meridian-Labs/poolrun/pkg/apperrors"
)

// Status is the lifecycle phase of a run.
type Status string

const (
	// StatusWaiting accepts deposits; the initial state.
	StatusWaiting Status = "WAITING"
	// StatusActive means trading is in progress; deposits are closed.
	StatusActive Status = "ACTIVE"
	// StatusSettled is terminal; participants may withdraw.
	StatusSettled Status = "SETTLED"
)

var (
	// ErrInvalidDepositBounds indicates min/max deposit configuration is invalid.
	ErrInvalidDepositBounds = apperrors.New(apperrors.CodeInvalidDepositAmount, "min deposit must be positive and max deposit must be >= min deposit")
	// ErrInvalidParticipantLimit indicates a zero participant capacity.
	ErrInvalidParticipantLimit = apperrors.New(apperrors.CodeInvalidParticipantLimit, "max participants must be positive")
	// ErrNotWaiting indicates a deposit against a run that left the waiting phase.
	ErrNotWaiting = apperrors.New(apperrors.CodeRunNotInWaitingPhase, "run is not in waiting phase")
	// ErrDepositTooLow indicates a deposit below the run minimum.
	ErrDepositTooLow = apperrors.New(apperrors.CodeDepositTooLow, "deposit amount is below the run minimum")
	// ErrDepositTooHigh indicates a deposit above the run maximum.
	ErrDepositTooHigh = apperrors.New(apperrors.CodeDepositTooHigh, "deposit amount exceeds the run maximum")
	// ErrRunFull indicates the run reached its participant capacity.
	ErrRunFull = apperrors.New(apperrors.CodeRunFull, "run is full")
	// ErrNoParticipants indicates a start attempt on an empty run.
	ErrNoParticipants = apperrors.New(apperrors.CodeNoParticipants, "run has no participants")
	// ErrNotSettled indicates a withdrawal against a run that has not settled.
	ErrNotSettled = apperrors.New(apperrors.CodeRunNotSettled, "run is not settled")
)

// Run is the per-run ledger record. Created once, mutated by the
// deposit/start/settle operations, never deleted.
type Run struct {
	RunID            uint64    `json:"run_id"`
	Authority        string    `json:"authority"`
	Status           Status    `json:"status"`
	TotalDeposited   uint64    `json:"total_deposited"`
	FinalBalance     uint64    `json:"final_balance"`
	ParticipantCount uint16    `json:"participant_count"`
	MinDeposit       uint64    `json:"min_deposit"`
	MaxDeposit       uint64    `json:"max_deposit"`
	MaxParticipants  uint16    `json:"max_participants"`
	CreatedAt        time.Time `json:"created_at"`
	StartedAt        time.Time `json:"started_at,omitzero"`
	EndedAt          time.Time `json:"ended_at,omitzero"`
}

// New validates the run configuration and returns a run in the waiting phase.
// The platform pause flag is checked by the engine, not here.
func New(runID uint64, authority string, minDeposit, maxDeposit uint64, maxParticipants uint16, now func() time.Time) (Run, error) {
	if now == nil {
		now = time.Now
	}
	if minDeposit == 0 || maxDeposit < minDeposit {
		return Run{}, ErrInvalidDepositBounds
	}
	if maxParticipants == 0 {
		return Run{}, ErrInvalidParticipantLimit
	}
	return Run{
		RunID:           runID,
		Authority:       authority,
		Status:          StatusWaiting,
		MinDeposit:      minDeposit,
		MaxDeposit:      maxDeposit,
		MaxParticipants: maxParticipants,
		CreatedAt:       now().UTC(),
	}, nil
}

// CheckDeposit validates a deposit amount against the run's phase, bounds and
// capacity. Check order is fixed: phase, too-low, too-high, full.
func (r Run) CheckDeposit(amount uint64) error {
	if r.Status != StatusWaiting {
		return ErrNotWaiting
	}
	if amount < r.MinDeposit {
		return ErrDepositTooLow
	}
	if amount > r.MaxDeposit {
		return ErrDepositTooHigh
	}
	if r.ParticipantCount >= r.MaxParticipants {
		return ErrRunFull
	}
	return nil
}

// ApplyDeposit returns a copy with the accepted deposit folded into the run
// totals. Callers must have passed CheckDeposit first.
func (r Run) ApplyDeposit(amount uint64) Run {
	r.TotalDeposited += amount
	r.ParticipantCount++
	return r
}

// Start transitions Waiting -> Active. A run with no participants cannot start.
func (r Run) Start(now func() time.Time) (Run, error) {
	if now == nil {
		now = time.Now
	}
	if r.Status != StatusWaiting {
		return Run{}, statusError(r.Status, StatusActive)
	}
	if r.ParticipantCount == 0 {
		return Run{}, ErrNoParticipants
	}
	r.Status = StatusActive
	r.StartedAt = now().UTC()
	return r, nil
}

// Settle transitions Active -> Settled, recording the final vault balance.
// The vault cross-check and shares-count validation belong to the engine.
func (r Run) Settle(finalBalance uint64, now func() time.Time) (Run, error) {
	if now == nil {
		now = time.Now
	}
	if r.Status != StatusActive {
		return Run{}, statusError(r.Status, StatusSettled)
	}
	r.Status = StatusSettled
	r.FinalBalance = finalBalance
	r.EndedAt = now().UTC()
	return r, nil
}

// Profit reports the net gain over deposits, floored at zero. Reporting only.
func (r Run) Profit() uint64 {
	if r.FinalBalance > r.TotalDeposited {
		return r.FinalBalance - r.TotalDeposited
	}
	return 0
}

func statusError(from, to Status) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidRunStatus,
		"run status does not allow this operation",
		map[string]string{"FromStatus": string(from), "ToStatus": string(to)},
	)
}
