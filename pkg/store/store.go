// Package store defines the persistence interfaces for the three record
// kinds: the platform singleton, runs, and per-(run, participant)
// participation records. Keys are opaque lookup handles derived from the
// records' identifying fields.
package store

import (
	"context"
	"errors"

	"github.com/Meridian-Labs/poolrun/pkg/platform"
	"github.com/Meridian-Labs/poolrun/pkg/run"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("store: record not found")
	// ErrAlreadyExists indicates a create collided with an existing record.
	ErrAlreadyExists = errors.New("store: record already exists")
	// ErrAlreadyWithdrawn indicates the withdrawn flag was already set when a
	// compare-and-set withdrawal update ran.
	ErrAlreadyWithdrawn = errors.New("store: participation already withdrawn")
)

// PlatformStore persists the singleton registry record.
type PlatformStore interface {
	// CreatePlatform writes the registry. Fails with ErrAlreadyExists if the
	// deployment was already initialized.
	CreatePlatform(ctx context.Context, p platform.Platform) error
	GetPlatform(ctx context.Context) (platform.Platform, error)
	UpdatePlatform(ctx context.Context, p platform.Platform) error
}

// RunStore persists run ledger records.
type RunStore interface {
	CreateRun(ctx context.Context, r run.Run) error
	GetRun(ctx context.Context, runID uint64) (run.Run, error)
	UpdateRun(ctx context.Context, r run.Run) error
	ListRuns(ctx context.Context) ([]run.Run, error)
}

// ParticipationStore persists participation records. Record uniqueness per
// (run, participant) is the structural guarantee against double deposits.
type ParticipationStore interface {
	CreateParticipation(ctx context.Context, p run.Participation) error
	GetParticipation(ctx context.Context, runID uint64, participant string) (run.Participation, error)
	ListParticipations(ctx context.Context, runID uint64) ([]run.Participation, error)
	// UpdateVoteStats overwrites the cumulative vote counters.
	UpdateVoteStats(ctx context.Context, runID uint64, participant string, correct, total uint8) error
	// MarkWithdrawn flips the withdrawn flag exactly once and records the
	// paid share. It must be a compare-and-set: if the flag is already set
	// it fails with ErrAlreadyWithdrawn and changes nothing.
	MarkWithdrawn(ctx context.Context, runID uint64, participant string, finalShare uint64) error
	// DeleteParticipation removes a record, used to roll back a deposit whose
	// run update failed.
	DeleteParticipation(ctx context.Context, runID uint64, participant string) error
}

// Store aggregates the three record stores behind one backend.
type Store interface {
	PlatformStore
	RunStore
	ParticipationStore
}
