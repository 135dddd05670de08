package dma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-gba/gba/bus"
	"github.com/valerio/go-gba/gba/irq"
	"github.com/valerio/go-gba/gba/mmio"
	"github.com/valerio/go-gba/gba/scheduler"
)

func setup(t *testing.T) (*Controller, *bus.Bus) {
	t.Helper()
	sched := scheduler.New()
	b := bus.New(sched)
	irqc := irq.New()
	return New(sched, b, irqc), b
}

func writeChannel(c *Controller, ch int, src, dst uint32, count uint16, control uint16) {
	base := mmio.DMA0SAD + uint32(ch)*mmio.DMABlockStride
	for i, v := range bit4(src) {
		c.WriteIO(base+uint32(i), v)
	}
	for i, v := range bit4(dst) {
		c.WriteIO(base+4+uint32(i), v)
	}
	c.WriteIO(base+8, byte(count))
	c.WriteIO(base+9, byte(count>>8))
	c.WriteIO(base+10, byte(control))
	c.WriteIO(base+11, byte(control>>8))
}

func bit4(v uint32) [4]byte {
	return [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func TestImmediateTransferCopiesWords(t *testing.T) {
	c, b := setup(t)
	b.Write32(0x02000000, 0xCAFEBABE, bus.NonSequential)

	// enable, 16-bit units, immediate trigger -> control = 0x8000
	writeChannel(c, 0, 0x02000000, 0x02000100, 2, 0x8000)

	require.True(t, c.IsRunning())
	c.Run()
	c.Run()
	assert.False(t, c.IsRunning())

	assert.Equal(t, uint16(0xBABE), b.Read16(0x02000100, bus.NonSequential))
	assert.Equal(t, uint16(0xCAFE), b.Read16(0x02000102, bus.NonSequential))
}

func TestChannelPriorityLowestWins(t *testing.T) {
	c, _ := setup(t)
	writeChannel(c, 1, 0x02000000, 0x02000200, 4, 0x9000) // VBlank trigger
	writeChannel(c, 0, 0x02000000, 0x02000100, 4, 0x9000)

	c.Request(VBlank)
	require.True(t, c.IsRunning())

	// channel 0 must run first despite channel 1 having been written first
	c.Run()
	assert.Equal(t, uint32(3), c.Remaining(0))
	assert.Equal(t, uint32(4), c.Remaining(1))
}

func TestNonRepeatingChannelDisablesAfterCompletion(t *testing.T) {
	c, _ := setup(t)
	writeChannel(c, 3, 0x02000000, 0x02000300, 1, 0x8000)

	require.True(t, c.Enabled(3))
	c.Run()
	assert.False(t, c.Enabled(3))
}

func TestRepeatingChannelReArmsOnNextOccasion(t *testing.T) {
	c, _ := setup(t)
	writeChannel(c, 2, 0x02000000, 0x02000200, 1, 0x9200) // repeat + VBlank trigger

	c.Request(VBlank)
	c.Run()
	assert.False(t, c.IsRunning())
	assert.True(t, c.Enabled(2))

	c.Request(VBlank)
	assert.True(t, c.IsRunning())
}
