package engine

import (
	"context"
	"errors"

	"github.com/Meridian-Labs/poolrun/pkg/apperrors"
	"github.com/Meridian-Labs/poolrun/pkg/audit"
	"github.com/Meridian-Labs/poolrun/pkg/ledger"
	"github.com/Meridian-Labs/poolrun/pkg/run"
	"github.com/Meridian-Labs/poolrun/pkg/settlement"
	"github.com/Meridian-Labs/poolrun/pkg/store"
	"github.com/Meridian-Labs/poolrun/pkg/vault"
)

// Withdrawal reports a paid-out claim.
type Withdrawal struct {
	RunID       uint64 `json:"run_id"`
	Participant string `json:"participant"`
	BaseShare   uint64 `json:"base_share"`
	VoteBonus   uint64 `json:"vote_bonus"`
	Amount      uint64 `json:"amount"`
}

// Withdraw pays the caller their entitlement from a settled run: the
// proportional base share plus the vote bonus, computed fresh from the run
// record. At most once per participant per run; the withdrawn flag is set
// with a compare-and-set so a duplicate never pays twice.
func (e *Engine) Withdraw(ctx context.Context, runID uint64) (Withdrawal, error) {
	participant, err := caller(ctx)
	if err != nil {
		return Withdrawal{}, err
	}

	lock := e.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.loadRun(ctx, runID)
	if err != nil {
		return Withdrawal{}, err
	}
	if r.Status != run.StatusSettled {
		return Withdrawal{}, run.ErrNotSettled
	}
	part, err := e.loadParticipation(ctx, runID, participant)
	if err != nil {
		return Withdrawal{}, err
	}
	if part.Withdrawn {
		return Withdrawal{}, apperrors.New(apperrors.CodeAlreadyWithdrawn, "participant already withdrew from this run")
	}

	base := settlement.BaseShare(part.DepositAmount, r.FinalBalance, r.TotalDeposited)
	bonus := settlement.VoteBonus(base, part.CorrectVotes)
	amount := settlement.Entitlement(r, part)

	vaultAccount := vault.RunVaultAccount(runID)
	balance, err := e.vault.Balance(ctx, vaultAccount)
	if err != nil {
		return Withdrawal{}, mapVaultError(err)
	}
	if amount > balance {
		return Withdrawal{}, apperrors.New(apperrors.CodeInsufficientVaultFunds,
			"vault cannot cover the computed entitlement")
	}

	cap, ok := e.capability(runID)
	if !ok {
		return Withdrawal{}, apperrors.Newf(apperrors.CodeNotFound, "no vault capability held for run %d", runID)
	}
	if e.bank != nil {
		e.bank.EnsureAccount(vault.AccountID(participant))
	}
	if err := e.vault.Transfer(ctx, vaultAccount, vault.AccountID(participant), amount,
		vault.CapabilityAuthorization(cap)); err != nil {
		return Withdrawal{}, mapVaultError(err)
	}

	// The CAS is the cross-instance guard; under the stripe lock a duplicate
	// can only come from another process. Compensate by pulling the payment
	// back into the vault.
	if err := e.store.MarkWithdrawn(ctx, runID, participant, amount); err != nil {
		e.reclaim(ctx, runID, participant, amount)
		if errors.Is(err, store.ErrAlreadyWithdrawn) {
			return Withdrawal{}, apperrors.New(apperrors.CodeAlreadyWithdrawn, "participant already withdrew from this run")
		}
		if errors.Is(err, store.ErrNotFound) {
			return Withdrawal{}, apperrors.Newf(apperrors.CodeNotFound,
				"no participation for %s in run %d", participant, runID)
		}
		return Withdrawal{}, err
	}

	e.appendEvent(ledger.EventWithdrawalPaid, runID, participant, map[string]any{
		"base_share": base,
		"vote_bonus": bonus,
		"amount":     amount,
	})
	_ = e.audit.Record(ctx, audit.EventMutation, "run.withdraw", runAuditResource(runID), map[string]any{
		"amount": amount,
	})
	e.metrics.CountWithdrawal(ctx, runID, amount)
	e.logger.Info("withdrawal paid", "run_id", runID, "participant", participant,
		"base_share", base, "vote_bonus", bonus, "amount", amount)

	return Withdrawal{
		RunID:       runID,
		Participant: participant,
		BaseShare:   base,
		VoteBonus:   bonus,
		Amount:      amount,
	}, nil
}

// GetRun returns a run record.
func (e *Engine) GetRun(ctx context.Context, runID uint64) (run.Run, error) {
	return e.loadRun(ctx, runID)
}

// ListRuns returns all run records ordered by id.
func (e *Engine) ListRuns(ctx context.Context) ([]run.Run, error) {
	return e.store.ListRuns(ctx)
}

// GetParticipation returns one participation record.
func (e *Engine) GetParticipation(ctx context.Context, runID uint64, participant string) (run.Participation, error) {
	return e.loadParticipation(ctx, runID, participant)
}

// ListParticipations returns all participation records for a run.
func (e *Engine) ListParticipations(ctx context.Context, runID uint64) ([]run.Participation, error) {
	if _, err := e.loadRun(ctx, runID); err != nil {
		return nil, err
	}
	return e.store.ListParticipations(ctx, runID)
}

// Dust reports the rounding residue a settled run will leave in its vault
// once every participant has withdrawn. Read-only reconciliation aid.
func (e *Engine) Dust(ctx context.Context, runID uint64) (uint64, error) {
	r, err := e.loadRun(ctx, runID)
	if err != nil {
		return 0, err
	}
	if r.Status != run.StatusSettled {
		return 0, run.ErrNotSettled
	}
	parts, err := e.store.ListParticipations(ctx, runID)
	if err != nil {
		return 0, err
	}
	return settlement.Dust(r, parts), nil
}
