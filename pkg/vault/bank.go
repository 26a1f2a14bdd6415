package vault

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Bank is an in-process Vault used by the engine in single-node deployments
// and by tests. The production custodial mechanism lives outside this module;
// Bank reproduces its contract: atomic transfers and capability-gated debits.
type Bank struct {
	mu       sync.Mutex
	balances map[AccountID]uint64
	tokens   map[AccountID]string
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[AccountID]uint64),
		tokens:   make(map[AccountID]string),
	}
}

// CreateAccount registers an account and mints its capability.
func (b *Bank) CreateAccount(account AccountID) (Capability, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.balances[account]; ok {
		return Capability{}, ErrAccountExists
	}
	token := uuid.New().String()
	b.balances[account] = 0
	b.tokens[account] = token
	return Capability{Account: account, Token: token}, nil
}

// EnsureAccount registers an account if missing. Participant funding
// accounts are provisioned lazily on first deposit.
func (b *Bank) EnsureAccount(account AccountID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.balances[account]; !ok {
		b.balances[account] = 0
		b.tokens[account] = uuid.New().String()
	}
}

// Mint credits an account out of thin air. This stands in for the external
// processes that fund accounts: participant on-ramps and the trading process
// returning capital to a run vault.
func (b *Bank) Mint(account AccountID, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

// Burn debits an account without a destination, mirroring the trading
// process drawing down pooled capital.
func (b *Bank) Burn(account AccountID, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balances[account]
	if !ok {
		return ErrNoAccount
	}
	if bal < amount {
		return ErrInsufficientFunds
	}
	b.balances[account] = bal - amount
	return nil
}

// Balance implements Vault.
func (b *Bank) Balance(_ context.Context, account AccountID) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balances[account]
	if !ok {
		return 0, ErrNoAccount
	}
	return bal, nil
}

// Transfer implements Vault. The whole operation happens under one lock:
// authorization check, balance check, and both account mutations.
func (b *Bank) Transfer(_ context.Context, from, to AccountID, amount uint64, auth Authorization) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBal, ok := b.balances[from]
	if !ok {
		return ErrNoAccount
	}
	if _, ok := b.balances[to]; !ok {
		return ErrNoAccount
	}
	if !b.authorizes(auth, from) {
		return ErrUnauthorizedTransfer
	}
	if fromBal < amount {
		return ErrInsufficientFunds
	}

	b.balances[from] = fromBal - amount
	b.balances[to] += amount
	return nil
}

// authorizes reports whether auth covers debits from account.
// Callers must hold b.mu.
func (b *Bank) authorizes(auth Authorization, from AccountID) bool {
	if auth.Identity != "" && AccountID(auth.Identity) == from {
		return true
	}
	cap := auth.Capability
	return cap.Account == from && cap.Token != "" && b.tokens[from] == cap.Token
}
