package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestInitialize(t *testing.T) {
	p, err := Initialize("authority", 250, fixedClock)
	require.NoError(t, err)
	assert.Equal(t, "authority", p.Authority)
	assert.Equal(t, uint16(250), p.FeeBps)
	assert.Equal(t, uint64(0), p.TotalRuns)
	assert.False(t, p.Paused)
	assert.Equal(t, fixedClock(), p.CreatedAt)
}

func TestInitializeFeeBounds(t *testing.T) {
	// 100% is the inclusive maximum.
	_, err := Initialize("authority", MaxFeeBps, fixedClock)
	assert.NoError(t, err)

	_, err = Initialize("authority", MaxFeeBps+1, fixedClock)
	assert.ErrorIs(t, err, ErrInvalidFee)
}

func TestRequireAuthority(t *testing.T) {
	p, err := Initialize("authority", 0, fixedClock)
	require.NoError(t, err)

	assert.NoError(t, p.RequireAuthority("authority"))
	assert.ErrorIs(t, p.RequireAuthority("mallory"), ErrUnauthorized)
}

func TestPauseGates(t *testing.T) {
	p, err := Initialize("authority", 0, fixedClock)
	require.NoError(t, err)

	assert.NoError(t, p.RequireUnpaused())
	assert.ErrorIs(t, p.RequirePaused(), ErrNotPaused)

	p = p.Pause()
	assert.ErrorIs(t, p.RequireUnpaused(), ErrPaused)
	assert.NoError(t, p.RequirePaused())

	// Pausing twice is a no-op, not an error.
	p = p.Pause()
	assert.True(t, p.Paused)

	p = p.Unpause()
	assert.NoError(t, p.RequireUnpaused())
}

func TestRecordRun(t *testing.T) {
	p, err := Initialize("authority", 0, fixedClock)
	require.NoError(t, err)

	p = p.RecordRun().RecordRun().RecordRun()
	assert.Equal(t, uint64(3), p.TotalRuns)
}
