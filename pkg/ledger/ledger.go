// Package ledger is the append-only audit trail for run lifecycle events.
// Each entry is hash-chained to its predecessor; entries are never mutated
// or deleted, matching the append-only contract of the run records.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventType categorizes a run lifecycle event.
type EventType string

const (
	EventPlatformInitialized EventType = "PLATFORM_INITIALIZED"
	EventPlatformPaused      EventType = "PLATFORM_PAUSED"
	EventPlatformUnpaused    EventType = "PLATFORM_UNPAUSED"
	EventVaultCreated        EventType = "VAULT_CREATED"
	EventRunCreated          EventType = "RUN_CREATED"
	EventDepositAccepted     EventType = "DEPOSIT_ACCEPTED"
	EventRunStarted          EventType = "RUN_STARTED"
	EventVoteStatsUpdated    EventType = "VOTE_STATS_UPDATED"
	EventRunSettled          EventType = "RUN_SETTLED"
	EventWithdrawalPaid      EventType = "WITHDRAWAL_PAID"
	EventEmergencyWithdraw   EventType = "EMERGENCY_WITHDRAW"
)

// Entry is an immutable, hash-chained audit record.
type Entry struct {
	Sequence    uint64         `json:"sequence"`
	Event       EventType      `json:"event"`
	RunID       uint64         `json:"run_id,omitempty"`
	Actor       string         `json:"actor,omitempty"`
	ContentHash string         `json:"content_hash"`
	PrevHash    string         `json:"prev_hash"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
}

// Ledger is an append-only, hash-chained event log.
type Ledger struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    func() time.Time
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		entries:  make([]Entry, 0),
		headHash: "genesis",
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Append adds an event to the ledger and returns its sequence number.
func (l *Ledger) Append(event EventType, runID uint64, actor string, data map[string]any) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	contentHash, err := entryHash(seq, event, runID, data, l.headHash)
	if err != nil {
		return 0, err
	}

	l.entries = append(l.entries, Entry{
		Sequence:    seq,
		Event:       event,
		RunID:       runID,
		Actor:       actor,
		ContentHash: contentHash,
		PrevHash:    l.headHash,
		Timestamp:   l.clock(),
		Data:        data,
	})
	l.headHash = contentHash
	return seq, nil
}

// Get retrieves an entry by sequence number.
func (l *Ledger) Get(seq uint64) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq == 0 || seq > uint64(len(l.entries)) {
		return Entry{}, fmt.Errorf("entry %d not found", seq)
	}
	return l.entries[seq-1], nil
}

// ForRun returns all entries touching the given run, in sequence order.
func (l *Ledger) ForRun(runID uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

// Head returns the current head hash.
func (l *Ledger) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify checks the integrity of the whole chain.
func (l *Ledger) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := "genesis"
	for i, entry := range l.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}
		computed, err := entryHash(entry.Sequence, entry.Event, entry.RunID, entry.Data, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to hash entry %d", i+1)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}
	return true, "chain verified"
}

func entryHash(seq uint64, event EventType, runID uint64, data map[string]any, prevHash string) (string, error) {
	hashInput := struct {
		Seq      uint64         `json:"seq"`
		Event    EventType      `json:"event"`
		RunID    uint64         `json:"run_id"`
		Data     map[string]any `json:"data"`
		PrevHash string         `json:"prev"`
	}{seq, event, runID, data, prevHash}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal ledger entry: %w", err)
	}
	h := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
