package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Meridian-Labs/poolrun/pkg/apperrors"
	"github.com/Meridian-Labs/poolrun/pkg/audit"
	"github.com/Meridian-Labs/poolrun/pkg/ledger"
	"github.com/Meridian-Labs/poolrun/pkg/platform"
	"github.com/Meridian-Labs/poolrun/pkg/store"
	"github.com/Meridian-Labs/poolrun/pkg/vault"
)

// InitializePlatform performs the one-time deployment setup. The caller
// becomes the platform authority; the fee rate is validated and stored.
func (e *Engine) InitializePlatform(ctx context.Context, feeBps uint16) (platform.Platform, error) {
	authority, err := caller(ctx)
	if err != nil {
		return platform.Platform{}, err
	}

	e.platMu.Lock()
	defer e.platMu.Unlock()

	p, err := platform.Initialize(authority, feeBps, e.clock)
	if err != nil {
		return platform.Platform{}, err
	}
	if err := e.store.CreatePlatform(ctx, p); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return platform.Platform{}, apperrors.New(apperrors.CodeAlreadyExists, "platform is already initialized")
		}
		return platform.Platform{}, err
	}

	e.appendEvent(ledger.EventPlatformInitialized, 0, authority, map[string]any{"fee_bps": feeBps})
	_ = e.audit.Record(ctx, audit.EventAdmin, "platform.initialize", "platform", map[string]any{"fee_bps": feeBps})
	e.logger.Info("platform initialized", "authority", authority, "fee_bps", feeBps)
	return p, nil
}

// GetPlatform returns the registry record.
func (e *Engine) GetPlatform(ctx context.Context) (platform.Platform, error) {
	return e.loadPlatform(ctx)
}

// PausePlatform sets the emergency pause flag. Authority only; idempotent.
func (e *Engine) PausePlatform(ctx context.Context) (platform.Platform, error) {
	return e.setPaused(ctx, true)
}

// UnpausePlatform clears the emergency pause flag. Authority only; idempotent.
func (e *Engine) UnpausePlatform(ctx context.Context) (platform.Platform, error) {
	return e.setPaused(ctx, false)
}

func (e *Engine) setPaused(ctx context.Context, paused bool) (platform.Platform, error) {
	actor, err := caller(ctx)
	if err != nil {
		return platform.Platform{}, err
	}

	e.platMu.Lock()
	defer e.platMu.Unlock()

	p, err := e.loadPlatform(ctx)
	if err != nil {
		return platform.Platform{}, err
	}
	if err := p.RequireAuthority(actor); err != nil {
		return platform.Platform{}, err
	}

	event, action := ledger.EventPlatformPaused, "platform.pause"
	if paused {
		p = p.Pause()
	} else {
		p = p.Unpause()
		event, action = ledger.EventPlatformUnpaused, "platform.unpause"
	}
	if err := e.store.UpdatePlatform(ctx, p); err != nil {
		return platform.Platform{}, err
	}

	e.appendEvent(event, 0, actor, nil)
	_ = e.audit.Record(ctx, audit.EventAdmin, action, "platform", nil)
	e.logger.Info("platform pause flag updated", "paused", paused, "actor", actor)
	return p, nil
}

// EmergencyWithdraw drains amount from a run's vault to an arbitrary
// destination account. Break-glass only: the platform must be paused and the
// caller must be the platform authority. Participation records are not
// touched, which strands withdrawal claims; that is the accepted cost of the
// recovery path and the reason every use is audited.
func (e *Engine) EmergencyWithdraw(ctx context.Context, runID uint64, amount uint64, destination vault.AccountID) error {
	actor, err := caller(ctx)
	if err != nil {
		return err
	}

	p, err := e.loadPlatform(ctx)
	if err != nil {
		return err
	}
	if err := p.RequireAuthority(actor); err != nil {
		return err
	}
	if err := p.RequirePaused(); err != nil {
		return err
	}

	lock := e.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.loadRun(ctx, runID); err != nil {
		return err
	}
	cap, ok := e.capability(runID)
	if !ok {
		return apperrors.Newf(apperrors.CodeNotFound, "no vault capability held for run %d", runID)
	}

	vaultAccount := vault.RunVaultAccount(runID)
	if e.bank != nil {
		e.bank.EnsureAccount(destination)
	}
	if err := e.vault.Transfer(ctx, vaultAccount, destination, amount, vault.CapabilityAuthorization(cap)); err != nil {
		return mapVaultError(err)
	}

	e.appendEvent(ledger.EventEmergencyWithdraw, runID, actor, map[string]any{
		"amount":      amount,
		"destination": string(destination),
	})
	// This audit record is mandatory, not best-effort.
	if err := e.audit.Record(ctx, audit.EventAdmin, "run.emergency_withdraw", runAuditResource(runID), map[string]any{
		"amount":      amount,
		"destination": string(destination),
	}); err != nil {
		e.logger.Error("emergency withdraw audit failed", "run_id", runID, "error", err)
	}
	if e.metrics != nil {
		e.metrics.EmergencyWithdrawals.Add(ctx, 1)
	}
	e.logger.Warn("emergency withdraw executed",
		"run_id", runID, "amount", amount, "destination", destination, "actor", actor)
	return nil
}

// mapVaultError lifts vault sentinels into the typed taxonomy so API clients
// see stable codes instead of backend internals.
func mapVaultError(err error) error {
	switch {
	case errors.Is(err, vault.ErrNoAccount):
		return apperrors.New(apperrors.CodeNotFound, "vault account does not exist")
	case errors.Is(err, vault.ErrInsufficientFunds):
		return apperrors.New(apperrors.CodeInsufficientVaultFunds, "vault cannot cover the transfer")
	case errors.Is(err, vault.ErrUnauthorizedTransfer):
		return apperrors.New(apperrors.CodeUnauthorized, "transfer authorization rejected")
	default:
		return err
	}
}

func runAuditResource(runID uint64) string {
	return fmt.Sprintf("run:%d", runID)
}
