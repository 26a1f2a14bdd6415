// Package platform holds the deployment-wide registry: the administrative
// authority, the platform fee rate, the monotonic run counter, and the
// emergency pause flag. The registry is an explicit value threaded through
// the engine, never ambient global state.
package platform

import (
	"time"

	"github.com/Meridian-Labs/poolrun/pkg/apperrors"
)

// MaxFeeBps is the upper bound on the platform fee: 10000 bps = 100%.
const MaxFeeBps = 10_000

var (
	// ErrInvalidFee indicates a fee above 100%.
	ErrInvalidFee = apperrors.New(apperrors.CodeInvalidFee, "platform fee exceeds 10000 basis points")
	// ErrPaused indicates run creation or deposits while the platform is paused.
	ErrPaused = apperrors.New(apperrors.CodePlatformPaused, "platform is paused")
	// ErrNotPaused indicates an emergency operation outside of a pause.
	ErrNotPaused = apperrors.New(apperrors.CodePlatformNotPaused, "platform must be paused for this operation")
	// ErrUnauthorized indicates the caller is not the recorded authority.
	ErrUnauthorized = apperrors.New(apperrors.CodeUnauthorized, "caller is not the platform authority")
)

// Platform is the singleton registry record.
//
// FeeBps is validated and stored but deliberately not applied to any
// settlement calculation in this version; it is reserved for a future fee
// model and must not be silently wired into share computation.
type Platform struct {
	Authority string    `json:"authority"`
	FeeBps    uint16    `json:"fee_bps"`
	TotalRuns uint64    `json:"total_runs"`
	Paused    bool      `json:"is_paused"`
	CreatedAt time.Time `json:"created_at"`
}

// Initialize validates the fee and returns a fresh registry. One-time setup;
// the storage layer rejects a second initialization via record uniqueness.
func Initialize(authority string, feeBps uint16, now func() time.Time) (Platform, error) {
	if now == nil {
		now = time.Now
	}
	if feeBps > MaxFeeBps {
		return Platform{}, ErrInvalidFee
	}
	return Platform{
		Authority: authority,
		FeeBps:    feeBps,
		CreatedAt: now().UTC(),
	}, nil
}

// RequireAuthority rejects callers other than the recorded authority.
func (p Platform) RequireAuthority(caller string) error {
	if caller != p.Authority {
		return ErrUnauthorized
	}
	return nil
}

// RequireUnpaused gates run creation and deposits. Settlement, withdrawal
// and vote updates are never blocked by the pause flag.
func (p Platform) RequireUnpaused() error {
	if p.Paused {
		return ErrPaused
	}
	return nil
}

// RequirePaused gates the break-glass emergency path.
func (p Platform) RequirePaused() error {
	if !p.Paused {
		return ErrNotPaused
	}
	return nil
}

// Pause returns a copy with the pause flag set.
func (p Platform) Pause() Platform {
	p.Paused = true
	return p
}

// Unpause returns a copy with the pause flag cleared.
func (p Platform) Unpause() Platform {
	p.Paused = false
	return p
}

// RecordRun increments the run counter. Run identifiers are caller-supplied;
// the counter is the audit count of runs ever created and the seed callers
// use to derive fresh identifiers.
func (p Platform) RecordRun() Platform {
	p.TotalRuns++
	return p
}
