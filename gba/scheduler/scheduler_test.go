package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOrderingTiesByClass checks that events sharing a timestamp fire in
// class-enum order, and earlier timestamps fire first regardless of
// registration order.
func TestOrderingTiesByClass(t *testing.T) {
	s := New()

	var fired []Class
	record := func(class Class) Handler {
		return func(now uint64, param int64) {
			fired = append(fired, class)
		}
	}
	s.Register(PPUHDraw, record(PPUHDraw))    // "A"
	s.Register(PPUHBlank, record(PPUHBlank))  // "B"
	s.Register(PPUVBlank, record(PPUVBlank))  // "C"

	s.Add(100, PPUHDraw)
	s.Add(100, PPUHBlank)
	s.Add(50, PPUVBlank)

	s.AdvanceBy(200)

	assert.Equal(t, []Class{PPUVBlank, PPUHDraw, PPUHBlank}, fired)
	assert.Equal(t, uint64(200), s.Now())
}

func TestAtMostOneEventPerClass(t *testing.T) {
	s := New()
	count := 0
	s.Register(APUMixer, func(now uint64, param int64) { count++ })

	s.Add(10, APUMixer)
	s.Add(20, APUMixer)
	require.Len(t, s.heap, 1)

	s.AdvanceBy(100)
	assert.Equal(t, 1, count)
}

func TestCancel(t *testing.T) {
	s := New()
	fired := false
	s.Register(DMAComplete, func(now uint64, param int64) { fired = true })

	s.Add(10, DMAComplete)
	s.Cancel(DMAComplete)
	s.AdvanceBy(100)

	assert.False(t, fired)
	assert.False(t, s.Pending(DMAComplete))
}

func TestReschedulingFromHandler(t *testing.T) {
	s := New()
	ticks := 0
	s.Register(APUSequencer, func(now uint64, param int64) {
		ticks++
		if ticks < 3 {
			s.Add(10, APUSequencer)
		}
	})

	s.Add(10, APUSequencer)
	s.AdvanceBy(100)

	assert.Equal(t, 3, ticks)
}

func TestRemainingCyclesReflectsNextEvent(t *testing.T) {
	s := New()
	s.Register(Timer0Overflow, func(now uint64, param int64) {})

	assert.Equal(t, 0, s.RemainingCycles())

	s.Add(1000, Timer0Overflow)
	assert.Equal(t, 1000, s.RemainingCycles())

	s.AdvanceBy(400)
	assert.Equal(t, 600, s.RemainingCycles())
}

func TestEventTimestampsNeverBelowNow(t *testing.T) {
	s := New()
	var seen []uint64
	s.Register(KeypadPoll, func(now uint64, param int64) { seen = append(seen, now) })

	s.Add(5, KeypadPoll)
	s.AdvanceBy(5)
	require.Len(t, seen, 1)
	assert.GreaterOrEqual(t, seen[0], s.Now()-5)
}

func TestDoubleRegisterPanics(t *testing.T) {
	s := New()
	s.Register(RTCTick, func(now uint64, param int64) {})
	assert.Panics(t, func() {
		s.Register(RTCTick, func(now uint64, param int64) {})
	})
}

func TestResetClearsHeapNotRegistrations(t *testing.T) {
	s := New()
	fired := 0
	s.Register(PPUVBlank, func(now uint64, param int64) { fired++ })
	s.Add(10, PPUVBlank)

	s.Reset()
	assert.Equal(t, uint64(0), s.Now())
	assert.False(t, s.Pending(PPUVBlank))

	s.Add(5, PPUVBlank)
	s.AdvanceBy(5)
	assert.Equal(t, 1, fired)
}
