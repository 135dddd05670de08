package keypad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-gba/gba/irq"
	"github.com/valerio/go-gba/gba/mmio"
)

func newTestController() (*Controller, *irq.Controller) {
	irqc := irq.New()
	return New(irqc), irqc
}

func TestNewAndResetReleaseEveryKey(t *testing.T) {
	c, _ := newTestController()
	assert.Equal(t, uint16(0x03FF), c.keyinput)

	c.SetKeyStatus(A, true)
	c.Reset()
	assert.Equal(t, uint16(0x03FF), c.keyinput)
}

func TestSetKeyStatusClearsBitWhenPressed(t *testing.T) {
	c, _ := newTestController()
	c.SetKeyStatus(A, true)
	assert.False(t, bitSet(c.keyinput, A))

	c.SetKeyStatus(A, false)
	assert.True(t, bitSet(c.keyinput, A))
}

func bitSet(v uint16, key Key) bool {
	return (v>>uint8(key))&1 == 1
}

func TestReadIOKeyinputAndKeycnt(t *testing.T) {
	c, _ := newTestController()
	c.SetKeyStatus(Start, true)

	assert.Equal(t, byte(c.keyinput), c.ReadIO(mmio.KEYINPUT))
	assert.Equal(t, byte(c.keyinput>>8), c.ReadIO(mmio.KEYINPUT+1))

	c.WriteIO(mmio.KEYCNT, 0xFF)
	c.WriteIO(mmio.KEYCNT+1, 0xC3) // AND mode, IRQ enable, selector high bits 0b11
	assert.Equal(t, byte(0xFF), c.ReadIO(mmio.KEYCNT))
	assert.Equal(t, byte(0xC3), c.ReadIO(mmio.KEYCNT+1))
	assert.True(t, c.andMode)
	assert.True(t, c.irqEnable)
}

func TestPollRaisesKeypadIRQInOrMode(t *testing.T) {
	c, irqc := newTestController()
	c.WriteIO(mmio.KEYCNT, 1<<uint8(A))
	c.WriteIO(mmio.KEYCNT+1, 0x40) // IRQ enable, OR mode

	c.Poll()
	assert.Zero(t, irqc.IF()&(1<<uint8(irq.Keypad)))

	c.SetKeyStatus(A, true)
	c.Poll()
	assert.NotZero(t, irqc.IF()&(1<<uint8(irq.Keypad)))
}

func TestPollRaisesKeypadIRQOnlyWhenAllSelectedHeldInAndMode(t *testing.T) {
	c, irqc := newTestController()
	selector := uint16(1<<uint8(A) | 1<<uint8(B))
	c.WriteIO(mmio.KEYCNT, byte(selector))
	c.WriteIO(mmio.KEYCNT+1, byte(selector>>8)|0xC0) // AND mode, IRQ enable

	c.SetKeyStatus(A, true)
	c.Poll()
	assert.Zero(t, irqc.IF()&(1<<uint8(irq.Keypad)), "only one of the two selected keys is held")

	c.SetKeyStatus(B, true)
	c.Poll()
	assert.NotZero(t, irqc.IF()&(1<<uint8(irq.Keypad)))
}

func TestPollDoesNothingWhenIRQDisabled(t *testing.T) {
	c, irqc := newTestController()
	c.WriteIO(mmio.KEYCNT, 1<<uint8(A))
	c.SetKeyStatus(A, true)

	c.Poll()
	assert.Zero(t, irqc.IF())
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c, _ := newTestController()
	c.SetKeyStatus(Up, true)
	c.WriteIO(mmio.KEYCNT, 0x0F)
	c.WriteIO(mmio.KEYCNT+1, 0xC0)

	snap := c.Snapshot()

	other, _ := newTestController()
	other.Restore(snap)

	require.Equal(t, c.keyinput, other.keyinput)
	assert.Equal(t, c.selector, other.selector)
	assert.Equal(t, c.andMode, other.andMode)
	assert.Equal(t, c.irqEnable, other.irqEnable)
}
