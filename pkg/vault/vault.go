// Package vault models the custodial escrow capability. The engine never
// owns balances; it observes them and requests transfers backed by an
// Authorization: either the authenticated caller debiting their own account,
// or the run's delegated capability debiting the run vault.
package vault

import (
	"context"
	"errors"
	"fmt"
)

// AccountID identifies a custodial account (a participant's funding account,
// a run vault, or an arbitrary destination).
type AccountID string

// RunVaultAccount returns the escrow account id for a run.
func RunVaultAccount(runID uint64) AccountID {
	return AccountID(fmt.Sprintf("vault:run:%d", runID))
}

// Capability is the delegated signing authority for one account. It is
// minted when the account is created and is the only way to debit an account
// the caller does not own.
type Capability struct {
	Account AccountID `json:"account"`
	Token   string    `json:"token"`
}

// Authorization proves the caller may debit the source of a transfer.
// Exactly one field is set: Identity for self-debits, Capability for
// delegated debits (run vault outbound).
type Authorization struct {
	Identity   string
	Capability Capability
}

// SelfAuthorization authorizes debits from the caller's own account.
func SelfAuthorization(identity string) Authorization {
	return Authorization{Identity: identity}
}

// CapabilityAuthorization authorizes debits via a delegated capability.
func CapabilityAuthorization(cap Capability) Authorization {
	return Authorization{Capability: cap}
}

var (
	// ErrNoAccount indicates a transfer or balance query against an unknown account.
	ErrNoAccount = errors.New("vault: account does not exist")
	// ErrAccountExists indicates a duplicate account creation.
	ErrAccountExists = errors.New("vault: account already exists")
	// ErrUnauthorizedTransfer indicates the authorization does not cover the source account.
	ErrUnauthorizedTransfer = errors.New("vault: authorization does not cover the source account")
	// ErrInsufficientFunds indicates the source balance cannot cover the transfer.
	ErrInsufficientFunds = errors.New("vault: insufficient funds in source account")
)

// Vault is the custodial escrow interface. Implementations must apply each
// transfer atomically: both sides move or neither does.
type Vault interface {
	// Balance reports the current balance of an account.
	Balance(ctx context.Context, account AccountID) (uint64, error)
	// Transfer moves amount from one account to another, if auth covers from.
	Transfer(ctx context.Context, from, to AccountID, amount uint64, auth Authorization) error
}

// Provisioner is the account-creation side of a custodial backend. Bank
// implements it; external custodians provision accounts out of band.
type Provisioner interface {
	// CreateAccount registers an account and mints its capability.
	CreateAccount(account AccountID) (Capability, error)
	// EnsureAccount registers an account if missing.
	EnsureAccount(account AccountID)
}
