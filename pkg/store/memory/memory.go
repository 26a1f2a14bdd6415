// Package memory provides a mutex-guarded in-memory Store, used by tests and
// single-node evaluation deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Meridian-Labs/poolrun/pkg/platform"
	"github.com/Meridian-Labs/poolrun/pkg/run"
	"github.com/Meridian-Labs/poolrun/pkg/store"
)

type participationKey struct {
	runID       uint64
	participant string
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu             sync.RWMutex
	platform       *platform.Platform
	runs           map[uint64]run.Run
	participations map[participationKey]run.Participation
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		runs:           make(map[uint64]run.Run),
		participations: make(map[participationKey]run.Participation),
	}
}

// CreatePlatform implements store.PlatformStore.
func (s *Store) CreatePlatform(_ context.Context, p platform.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.platform != nil {
		return store.ErrAlreadyExists
	}
	s.platform = &p
	return nil
}

// GetPlatform implements store.PlatformStore.
func (s *Store) GetPlatform(_ context.Context) (platform.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.platform == nil {
		return platform.Platform{}, store.ErrNotFound
	}
	return *s.platform, nil
}

// UpdatePlatform implements store.PlatformStore.
func (s *Store) UpdatePlatform(_ context.Context, p platform.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.platform == nil {
		return store.ErrNotFound
	}
	s.platform = &p
	return nil
}

// CreateRun implements store.RunStore.
func (s *Store) CreateRun(_ context.Context, r run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.RunID]; ok {
		return store.ErrAlreadyExists
	}
	s.runs[r.RunID] = r
	return nil
}

// GetRun implements store.RunStore.
func (s *Store) GetRun(_ context.Context, runID uint64) (run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return run.Run{}, store.ErrNotFound
	}
	return r, nil
}

// UpdateRun implements store.RunStore.
func (s *Store) UpdateRun(_ context.Context, r run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.RunID]; !ok {
		return store.ErrNotFound
	}
	s.runs[r.RunID] = r
	return nil
}

// ListRuns implements store.RunStore. Runs are returned ordered by id.
func (s *Store) ListRuns(_ context.Context) ([]run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]run.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out, nil
}

// CreateParticipation implements store.ParticipationStore.
func (s *Store) CreateParticipation(_ context.Context, p run.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participationKey{p.RunID, p.Participant}
	if _, ok := s.participations[key]; ok {
		return store.ErrAlreadyExists
	}
	s.participations[key] = p
	return nil
}

// GetParticipation implements store.ParticipationStore.
func (s *Store) GetParticipation(_ context.Context, runID uint64, participant string) (run.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participations[participationKey{runID, participant}]
	if !ok {
		return run.Participation{}, store.ErrNotFound
	}
	return p, nil
}

// ListParticipations implements store.ParticipationStore, ordered by
// participant for deterministic iteration.
func (s *Store) ListParticipations(_ context.Context, runID uint64) ([]run.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []run.Participation
	for key, p := range s.participations {
		if key.runID == runID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out, nil
}

// UpdateVoteStats implements store.ParticipationStore.
func (s *Store) UpdateVoteStats(_ context.Context, runID uint64, participant string, correct, total uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participationKey{runID, participant}
	p, ok := s.participations[key]
	if !ok {
		return store.ErrNotFound
	}
	p.CorrectVotes = correct
	p.TotalVotes = total
	s.participations[key] = p
	return nil
}

// MarkWithdrawn implements store.ParticipationStore with compare-and-set
// semantics on the withdrawn flag.
func (s *Store) MarkWithdrawn(_ context.Context, runID uint64, participant string, finalShare uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participationKey{runID, participant}
	p, ok := s.participations[key]
	if !ok {
		return store.ErrNotFound
	}
	if p.Withdrawn {
		return store.ErrAlreadyWithdrawn
	}
	p.Withdrawn = true
	p.FinalShare = finalShare
	s.participations[key] = p
	return nil
}

// DeleteParticipation implements store.ParticipationStore.
func (s *Store) DeleteParticipation(_ context.Context, runID uint64, participant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participationKey{runID, participant}
	if _, ok := s.participations[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.participations, key)
	return nil
}
