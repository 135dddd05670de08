package gba

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-gba/gba/mmio"
)

// driveSomeState pushes a source Core into a non-trivial, reachable state:
// a running timer with its IRQ enabled, a keypad selection mask, and a few
// cycles of execution, so a savestate round-trip has more to get wrong
// than an all-zero struct.
func driveSomeState(t *testing.T, c *Core) {
	t.Helper()
	c.AttachROM(make([]byte, 0x1000))
	c.bus.Write8(mmio.IE, 0x08, 0)
	c.bus.Write8(mmio.TM0CNT_L, 0x34, 0)
	c.bus.Write8(mmio.TM0CNT_L+1, 0x12, 0)
	c.bus.Write8(mmio.TM0CNT_L+2, 0xC0, 0)
	c.bus.Write8(mmio.IME, 1, 0)
	c.bus.Write8(mmio.KEYCNT, 0x0F, 0)
	c.bus.Write8(mmio.KEYCNT+1, 0x40, 0)
	c.Run(137)
}

func TestSaveStateRoundTripRestoresObservableState(t *testing.T) {
	src := newTestCore()
	driveSomeState(t, src)

	var snap SaveState
	src.CopyState(&snap)

	dst := newTestCore()
	require.NoError(t, dst.LoadState(snap))

	assert.Equal(t, src.GetScheduler().Now(), dst.GetScheduler().Now())
	assert.Equal(t, src.PeekHalfIO(mmio.IE), dst.PeekHalfIO(mmio.IE))
	assert.Equal(t, src.PeekHalfIO(mmio.IF), dst.PeekHalfIO(mmio.IF))
	assert.Equal(t, src.PeekByteIO(mmio.IME), dst.PeekByteIO(mmio.IME))
	assert.Equal(t, src.PeekWordIO(mmio.TM0CNT_L), dst.PeekWordIO(mmio.TM0CNT_L))
	assert.Equal(t, src.PeekHalfIO(mmio.KEYCNT), dst.PeekHalfIO(mmio.KEYCNT))
	assert.Equal(t, src.FrameBuffer(), dst.FrameBuffer())
}

// TestSaveStateMarshalRoundTripsThroughBytes exercises the gob-encoded blob
// a host would write to disk, not just the in-memory CopyState/LoadState
// path.
func TestSaveStateMarshalRoundTripsThroughBytes(t *testing.T) {
	src := newTestCore()
	driveSomeState(t, src)

	var snap SaveState
	src.CopyState(&snap)

	blob, err := snap.Marshal()
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	decoded, err := UnmarshalSaveState(blob)
	require.NoError(t, err)

	dst := newTestCore()
	require.NoError(t, dst.LoadState(decoded))

	assert.Equal(t, src.GetScheduler().Now(), dst.GetScheduler().Now())
	assert.Equal(t, src.PeekWordIO(mmio.TM0CNT_L), dst.PeekWordIO(mmio.TM0CNT_L))
	assert.Equal(t, src.FrameBuffer(), dst.FrameBuffer())
}

// TestSaveStateRoundTripWithRTCRequiresPriorCreateRTC mirrors LoadState's
// documented precondition: a save state carrying RTC state can only be
// loaded into a Core that has already wired a chip via CreateRTC.
func TestSaveStateRoundTripWithRTCRequiresPriorCreateRTC(t *testing.T) {
	src := newTestCore()
	src.CreateRTC()
	driveSomeState(t, src)

	var snap SaveState
	src.CopyState(&snap)
	require.True(t, snap.HasRTC)

	withoutRTC := newTestCore()
	assert.Error(t, withoutRTC.LoadState(snap))

	withRTC := newTestCore()
	withRTC.CreateRTC()
	require.NoError(t, withRTC.LoadState(snap))

	assert.Equal(t, src.GetScheduler().Now(), withRTC.GetScheduler().Now())
}

func TestSaveStateVersionMismatchIsRejected(t *testing.T) {
	c := newTestCore()
	snap := SaveState{Version: SaveStateVersion + 1}
	assert.Error(t, c.LoadState(snap))
}
