package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestAppendChainsEntries(t *testing.T) {
	l := New().WithClock(testClock())

	seq1, err := l.Append(EventRunCreated, 1, "authority", map[string]any{"min_deposit": uint64(10)})
	require.NoError(t, err)
	seq2, err := l.Append(EventDepositAccepted, 1, "alice", map[string]any{"amount": uint64(40)})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)
	assert.Equal(t, 2, l.Length())

	first, err := l.Get(1)
	require.NoError(t, err)
	second, err := l.Get(2)
	require.NoError(t, err)

	assert.Equal(t, "genesis", first.PrevHash)
	assert.Equal(t, first.ContentHash, second.PrevHash)
	assert.Equal(t, second.ContentHash, l.Head())
}

func TestGetOutOfRange(t *testing.T) {
	l := New()
	_, err := l.Get(0)
	assert.Error(t, err)
	_, err = l.Get(1)
	assert.Error(t, err)
}

func TestForRunFilters(t *testing.T) {
	l := New().WithClock(testClock())
	_, err := l.Append(EventRunCreated, 1, "authority", nil)
	require.NoError(t, err)
	_, err = l.Append(EventRunCreated, 2, "authority", nil)
	require.NoError(t, err)
	_, err = l.Append(EventRunStarted, 1, "authority", nil)
	require.NoError(t, err)

	entries := l.ForRun(1)
	require.Len(t, entries, 2)
	assert.Equal(t, EventRunCreated, entries[0].Event)
	assert.Equal(t, EventRunStarted, entries[1].Event)
	assert.Empty(t, l.ForRun(99))
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := New().WithClock(testClock())
	for i := 0; i < 5; i++ {
		_, err := l.Append(EventDepositAccepted, 1, "alice", map[string]any{"amount": uint64(i)})
		require.NoError(t, err)
	}

	ok, msg := l.Verify()
	assert.True(t, ok, msg)

	// Rewrite one entry's payload behind the ledger's back.
	l.entries[2].Data["amount"] = uint64(999)
	ok, msg = l.Verify()
	assert.False(t, ok)
	assert.Contains(t, msg, "mismatch")
}

func TestVerifyDetectsBrokenChain(t *testing.T) {
	l := New().WithClock(testClock())
	for i := 0; i < 3; i++ {
		_, err := l.Append(EventDepositAccepted, 1, "alice", nil)
		require.NoError(t, err)
	}

	l.entries[1].PrevHash = "sha256:forged"
	ok, msg := l.Verify()
	assert.False(t, ok)
	assert.Contains(t, msg, "chain broken")
}

func TestEmptyLedgerVerifies(t *testing.T) {
	l := New()
	ok, _ := l.Verify()
	assert.True(t, ok)
	assert.Equal(t, "genesis", l.Head())
}
