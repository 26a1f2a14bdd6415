// Package engine is the run lifecycle and settlement engine: the state
// machine from creation through waiting/active/settled, deposit admission,
// and the proportional share computation applied at withdrawal.
//
// Every operation is atomic and serializable against the records it
// touches. Runs are serialized on striped per-run locks; the platform
// registry has its own lock. No operation blocks indefinitely: each commits
// immediately or fails with a typed rejection.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Meridian-Labs/poolrun/pkg/apperrors"
	"github.com/Meridian-Labs/poolrun/pkg/audit"
	"github.com/Meridian-Labs/poolrun/pkg/auth"
	"github.com/Meridian-Labs/poolrun/pkg/ledger"
	"github.com/Meridian-Labs/poolrun/pkg/observability"
	"github.com/Meridian-Labs/poolrun/pkg/platform"
	"github.com/Meridian-Labs/poolrun/pkg/run"
	"github.com/Meridian-Labs/poolrun/pkg/store"
	"github.com/Meridian-Labs/poolrun/pkg/vault"
)

// runLockStripes is the size of the striped lock table. Locks are keyed by
// run id modulo stripe count; collisions only cost throughput, not safety.
const runLockStripes = 64

// Engine coordinates the platform registry, run ledgers, participation
// ledgers, and the escrow vault.
type Engine struct {
	store   store.Store
	vault   vault.Vault
	bank    vault.Provisioner
	events  *ledger.Ledger
	audit   audit.Logger
	metrics *observability.Metrics
	logger  *slog.Logger
	clock   func() time.Time

	platMu sync.Mutex
	locks  [runLockStripes]sync.Mutex

	capMu sync.Mutex
	caps  map[uint64]vault.Capability
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithAudit sets the audit logger.
func WithAudit(l audit.Logger) Option {
	return func(e *Engine) { e.audit = l }
}

// WithMetrics sets the business metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over the given store and vault. When the vault also
// implements vault.Provisioner (the in-process Bank does), the engine can
// provision run vault accounts itself.
func New(st store.Store, v vault.Vault, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		vault:  v,
		events: ledger.New(),
		audit:  audit.Nop{},
		logger: slog.Default(),
		clock:  time.Now,
		caps:   make(map[uint64]vault.Capability),
	}
	if p, ok := v.(vault.Provisioner); ok {
		e.bank = p
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Events exposes the append-only lifecycle ledger.
func (e *Engine) Events() *ledger.Ledger { return e.events }

// runLock returns the stripe lock serializing all mutations of one run.
func (e *Engine) runLock(runID uint64) *sync.Mutex {
	return &e.locks[runID%runLockStripes]
}

func (e *Engine) capability(runID uint64) (vault.Capability, bool) {
	e.capMu.Lock()
	defer e.capMu.Unlock()
	cap, ok := e.caps[runID]
	return cap, ok
}

func (e *Engine) storeCapability(runID uint64, cap vault.Capability) {
	e.capMu.Lock()
	defer e.capMu.Unlock()
	e.caps[runID] = cap
}

// caller extracts the authenticated identity from the context.
func caller(ctx context.Context) (string, error) {
	id := auth.CallerID(ctx)
	if id == "" {
		return "", apperrors.New(apperrors.CodeUnauthorized, "no authenticated caller")
	}
	return id, nil
}

// loadPlatform maps the store sentinel onto the typed taxonomy.
func (e *Engine) loadPlatform(ctx context.Context) (platform.Platform, error) {
	p, err := e.store.GetPlatform(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return platform.Platform{}, apperrors.New(apperrors.CodeNotFound, "platform is not initialized")
		}
		return platform.Platform{}, err
	}
	return p, nil
}

func (e *Engine) loadRun(ctx context.Context, runID uint64) (run.Run, error) {
	r, err := e.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return run.Run{}, apperrors.Newf(apperrors.CodeNotFound, "run %d does not exist", runID)
		}
		return run.Run{}, err
	}
	return r, nil
}

func (e *Engine) appendEvent(event ledger.EventType, runID uint64, actor string, data map[string]any) {
	if _, err := e.events.Append(event, runID, actor, data); err != nil {
		e.logger.Error("ledger append failed", "event", event, "run_id", runID, "error", err)
	}
}
