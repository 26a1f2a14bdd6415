package engine

import (
	"context"
	"errors"
	"strconv"

	"github.com/Meridian-Labs/poolrun/pkg/apperrors"
	"github.com/Meridian-Labs/poolrun/pkg/audit"
	"github.com/Meridian-Labs/poolrun/pkg/ledger"
	"github.com/Meridian-Labs/poolrun/pkg/run"
	"github.com/Meridian-Labs/poolrun/pkg/store"
	"github.com/Meridian-Labs/poolrun/pkg/vault"
)

// ParticipantShare names a participant in a settlement submission. Share
// values are accepted for audit parity with the caller's own books, but the
// engine recomputes every entitlement at withdrawal time and never trusts
// the submitted values.
type ParticipantShare struct {
	Participant string `json:"participant"`
	Share       uint64 `json:"share"`
}

// CreateRunVault provisions the escrow account for a run and retains its
// capability. Must happen before the run can accept deposits; idempotent
// failure on a duplicate.
func (e *Engine) CreateRunVault(ctx context.Context, runID uint64) error {
	actor, err := caller(ctx)
	if err != nil {
		return err
	}
	if _, err := e.loadPlatform(ctx); err != nil {
		return err
	}
	if e.bank == nil {
		return apperrors.New(apperrors.CodeUnknown, "vault backend does not support account provisioning")
	}

	cap, err := e.bank.CreateAccount(vault.RunVaultAccount(runID))
	if err != nil {
		if errors.Is(err, vault.ErrAccountExists) {
			return apperrors.Newf(apperrors.CodeAlreadyExists, "vault for run %d already exists", runID)
		}
		return err
	}
	e.storeCapability(runID, cap)

	e.appendEvent(ledger.EventVaultCreated, runID, actor, nil)
	_ = e.audit.Record(ctx, audit.EventMutation, "run.create_vault", runAuditResource(runID), nil)
	e.logger.Info("run vault created", "run_id", runID, "actor", actor)
	return nil
}

// CreateRun registers a new run in the waiting phase. Only the platform
// authority creates runs; creation is blocked while the platform is paused.
func (e *Engine) CreateRun(ctx context.Context, runID uint64, minDeposit, maxDeposit uint64, maxParticipants uint16) (run.Run, error) {
	actor, err := caller(ctx)
	if err != nil {
		return run.Run{}, err
	}

	e.platMu.Lock()
	defer e.platMu.Unlock()

	p, err := e.loadPlatform(ctx)
	if err != nil {
		return run.Run{}, err
	}
	if err := p.RequireAuthority(actor); err != nil {
		return run.Run{}, err
	}
	if err := p.RequireUnpaused(); err != nil {
		return run.Run{}, err
	}

	r, err := run.New(runID, p.Authority, minDeposit, maxDeposit, maxParticipants, e.clock)
	if err != nil {
		return run.Run{}, err
	}
	if err := e.store.CreateRun(ctx, r); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return run.Run{}, apperrors.Newf(apperrors.CodeAlreadyExists, "run %d already exists", runID)
		}
		return run.Run{}, err
	}
	if err := e.store.UpdatePlatform(ctx, p.RecordRun()); err != nil {
		return run.Run{}, err
	}

	e.appendEvent(ledger.EventRunCreated, runID, actor, map[string]any{
		"min_deposit":      minDeposit,
		"max_deposit":      maxDeposit,
		"max_participants": maxParticipants,
	})
	_ = e.audit.Record(ctx, audit.EventMutation, "run.create", runAuditResource(runID), nil)
	if e.metrics != nil {
		e.metrics.RunsCreated.Add(ctx, 1)
	}
	e.logger.Info("run created", "run_id", runID,
		"min_deposit", minDeposit, "max_deposit", maxDeposit, "max_participants", maxParticipants)
	return r, nil
}

// Deposit escrows the caller's funds into a waiting run and records their
// participation. Rejections are checked in a fixed order: platform paused,
// run phase, amount below minimum, amount above maximum, run full. One
// deposit per participant per run.
func (e *Engine) Deposit(ctx context.Context, runID uint64, amount uint64) (run.Participation, error) {
	participant, err := caller(ctx)
	if err != nil {
		return run.Participation{}, err
	}

	p, err := e.loadPlatform(ctx)
	if err != nil {
		return run.Participation{}, err
	}
	if err := p.RequireUnpaused(); err != nil {
		e.countRejectedDeposit(ctx)
		return run.Participation{}, err
	}

	lock := e.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.loadRun(ctx, runID)
	if err != nil {
		return run.Participation{}, err
	}
	if err := r.CheckDeposit(amount); err != nil {
		e.countRejectedDeposit(ctx)
		return run.Participation{}, err
	}
	if _, err := e.store.GetParticipation(ctx, runID, participant); err == nil {
		return run.Participation{}, apperrors.Newf(apperrors.CodeAlreadyExists,
			"participant already deposited into run %d", runID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return run.Participation{}, err
	}

	// Move money first: if the escrow transfer fails nothing was recorded.
	vaultAccount := vault.RunVaultAccount(runID)
	source := vault.AccountID(participant)
	if err := e.vault.Transfer(ctx, source, vaultAccount, amount, vault.SelfAuthorization(participant)); err != nil {
		e.countRejectedDeposit(ctx)
		return run.Participation{}, mapVaultError(err)
	}

	part := run.NewParticipation(runID, participant, amount)
	if err := e.store.CreateParticipation(ctx, part); err != nil {
		e.refund(ctx, runID, source, amount)
		if errors.Is(err, store.ErrAlreadyExists) {
			return run.Participation{}, apperrors.Newf(apperrors.CodeAlreadyExists,
				"participant already deposited into run %d", runID)
		}
		return run.Participation{}, err
	}
	if err := e.store.UpdateRun(ctx, r.ApplyDeposit(amount)); err != nil {
		// Roll back both halves of the deposit: the participation record and
		// the escrowed funds.
		if derr := e.store.DeleteParticipation(ctx, runID, participant); derr != nil {
			e.logger.Error("participation rollback failed", "run_id", runID,
				"participant", participant, "error", derr)
		}
		e.refund(ctx, runID, source, amount)
		return run.Participation{}, err
	}

	e.appendEvent(ledger.EventDepositAccepted, runID, participant, map[string]any{"amount": amount})
	_ = e.audit.Record(ctx, audit.EventMutation, "run.deposit", runAuditResource(runID), map[string]any{"amount": amount})
	e.metrics.CountDeposit(ctx, runID, amount)
	e.logger.Info("deposit accepted", "run_id", runID, "participant", participant, "amount", amount)
	return part, nil
}

// refund returns escrowed funds after a failed record write. Best effort: a
// failure here is logged loudly and reconciled from the ledger.
func (e *Engine) refund(ctx context.Context, runID uint64, to vault.AccountID, amount uint64) {
	cap, ok := e.capability(runID)
	if !ok {
		e.logger.Error("refund impossible, no run capability", "run_id", runID, "amount", amount)
		return
	}
	if err := e.vault.Transfer(ctx, vault.RunVaultAccount(runID), to, amount, vault.CapabilityAuthorization(cap)); err != nil {
		e.logger.Error("refund failed", "run_id", runID, "to", to, "amount", amount, "error", err)
	}
}

// reclaim pulls an already-paid amount from a participant back into the run
// vault after the withdrawn flag could not be set. Best effort, like refund.
func (e *Engine) reclaim(ctx context.Context, runID uint64, participant string, amount uint64) {
	if err := e.vault.Transfer(ctx, vault.AccountID(participant), vault.RunVaultAccount(runID), amount,
		vault.SelfAuthorization(participant)); err != nil {
		e.logger.Error("reclaim failed", "run_id", runID, "participant", participant,
			"amount", amount, "error", err)
	}
}

// StartRun transitions a run from waiting to active, closing deposits.
// Authority only; a run with zero participants cannot start.
func (e *Engine) StartRun(ctx context.Context, runID uint64) (run.Run, error) {
	actor, err := caller(ctx)
	if err != nil {
		return run.Run{}, err
	}

	lock := e.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.loadRun(ctx, runID)
	if err != nil {
		return run.Run{}, err
	}
	if err := e.requireRunAuthority(r, actor); err != nil {
		return run.Run{}, err
	}
	r, err = r.Start(e.clock)
	if err != nil {
		return run.Run{}, err
	}
	if err := e.store.UpdateRun(ctx, r); err != nil {
		return run.Run{}, err
	}

	e.appendEvent(ledger.EventRunStarted, runID, actor, map[string]any{
		"total_deposited":   r.TotalDeposited,
		"participant_count": r.ParticipantCount,
	})
	_ = e.audit.Record(ctx, audit.EventMutation, "run.start", runAuditResource(runID), nil)
	e.logger.Info("run started", "run_id", runID,
		"total_deposited", r.TotalDeposited, "participants", r.ParticipantCount)
	return r, nil
}

// SettleRun transitions an active run to settled, fixing the final balance
// every withdrawal is computed from. The submitted share list must name
// exactly as many participants as deposited, and the run vault must hold
// exactly finalBalance: the trading process returns all capital before
// settlement, never after.
func (e *Engine) SettleRun(ctx context.Context, runID uint64, finalBalance uint64, shares []ParticipantShare) (run.Run, error) {
	actor, err := caller(ctx)
	if err != nil {
		return run.Run{}, err
	}

	lock := e.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.loadRun(ctx, runID)
	if err != nil {
		return run.Run{}, err
	}
	if err := e.requireRunAuthority(r, actor); err != nil {
		return run.Run{}, err
	}
	// Phase before payload: a non-active run rejects on status no matter what
	// was submitted.
	if r.Status != run.StatusActive {
		return run.Run{}, apperrors.New(apperrors.CodeInvalidRunStatus,
			"only an active run can settle")
	}
	if len(shares) != int(r.ParticipantCount) {
		return run.Run{}, apperrors.WithMetadata(apperrors.CodeInvalidSharesCount,
			"share list does not match the participant count",
			map[string]string{
				"Submitted": strconv.Itoa(len(shares)),
				"Expected":  strconv.Itoa(int(r.ParticipantCount)),
			})
	}

	balance, err := e.vault.Balance(ctx, vault.RunVaultAccount(runID))
	if err != nil {
		return run.Run{}, mapVaultError(err)
	}
	if balance != finalBalance {
		return run.Run{}, apperrors.WithMetadata(apperrors.CodeVaultBalanceMismatch,
			"vault balance does not match the declared final balance",
			map[string]string{
				"VaultBalance": strconv.FormatUint(balance, 10),
				"FinalBalance": strconv.FormatUint(finalBalance, 10),
			})
	}

	r, err = r.Settle(finalBalance, e.clock)
	if err != nil {
		return run.Run{}, err
	}
	if err := e.store.UpdateRun(ctx, r); err != nil {
		return run.Run{}, err
	}

	e.appendEvent(ledger.EventRunSettled, runID, actor, map[string]any{
		"final_balance":   finalBalance,
		"total_deposited": r.TotalDeposited,
		"profit":          r.Profit(),
	})
	_ = e.audit.Record(ctx, audit.EventMutation, "run.settle", runAuditResource(runID), map[string]any{
		"final_balance": finalBalance,
	})
	e.metrics.CountSettlement(ctx, runID, r.TotalDeposited, finalBalance)
	e.logger.Info("run settled", "run_id", runID,
		"final_balance", finalBalance, "profit", r.Profit())
	return r, nil
}

// UpdateVoteStats overwrites a participant's cumulative vote counters.
// Authority only, and only while the run is active.
func (e *Engine) UpdateVoteStats(ctx context.Context, runID uint64, participant string, correct, total uint8) (run.Participation, error) {
	actor, err := caller(ctx)
	if err != nil {
		return run.Participation{}, err
	}

	lock := e.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.loadRun(ctx, runID)
	if err != nil {
		return run.Participation{}, err
	}
	if err := e.requireRunAuthority(r, actor); err != nil {
		return run.Participation{}, err
	}
	if r.Status != run.StatusActive {
		return run.Participation{}, apperrors.New(apperrors.CodeInvalidRunStatus,
			"vote stats can only be updated while the run is active")
	}

	part, err := e.loadParticipation(ctx, runID, participant)
	if err != nil {
		return run.Participation{}, err
	}
	part, err = part.SetVoteStats(correct, total)
	if err != nil {
		return run.Participation{}, err
	}
	if err := e.store.UpdateVoteStats(ctx, runID, participant, correct, total); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return run.Participation{}, apperrors.Newf(apperrors.CodeNotFound,
				"no participation for %s in run %d", participant, runID)
		}
		return run.Participation{}, err
	}

	e.appendEvent(ledger.EventVoteStatsUpdated, runID, actor, map[string]any{
		"participant":   participant,
		"correct_votes": correct,
		"total_votes":   total,
	})
	e.logger.Info("vote stats updated", "run_id", runID,
		"participant", participant, "correct", correct, "total", total)
	return part, nil
}

// requireRunAuthority rejects callers other than the run's recorded authority.
func (e *Engine) requireRunAuthority(r run.Run, actor string) error {
	if actor != r.Authority {
		return apperrors.New(apperrors.CodeUnauthorized, "caller is not the run authority")
	}
	return nil
}

func (e *Engine) loadParticipation(ctx context.Context, runID uint64, participant string) (run.Participation, error) {
	p, err := e.store.GetParticipation(ctx, runID, participant)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return run.Participation{}, apperrors.Newf(apperrors.CodeNotFound,
				"no participation for %s in run %d", participant, runID)
		}
		return run.Participation{}, err
	}
	return p, nil
}

func (e *Engine) countRejectedDeposit(ctx context.Context) {
	if e.metrics != nil {
		e.metrics.DepositsRejected.Add(ctx, 1)
	}
}
