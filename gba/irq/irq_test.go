package irq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRaiseAndAcknowledge(t *testing.T) {
	c := New()
	c.SetEnable(1 << uint8(Timer0))
	c.Raise(Timer0)

	assert.True(t, c.ShouldUnhaltCPU())
	assert.False(t, c.Pending(), "IME is still off")

	c.SetMaster(true)
	assert.True(t, c.Pending())

	c.AcknowledgeIF(1 << uint8(Timer0))
	assert.False(t, c.Pending())
	assert.False(t, c.ShouldUnhaltCPU())
}

func TestUnhaltIgnoresIME(t *testing.T) {
	c := New()
	c.SetEnable(1 << uint8(Keypad))
	c.Raise(Keypad)

	assert.False(t, c.Pending())
	assert.True(t, c.ShouldUnhaltCPU())
}

func TestDisabledSourceNeverWakes(t *testing.T) {
	c := New()
	c.Raise(VBlank)
	assert.False(t, c.ShouldUnhaltCPU())
}

func TestResetClearsEverything(t *testing.T) {
	c := New()
	c.SetEnable(0xFFFF)
	c.SetMaster(true)
	c.Raise(DMA0)

	c.Reset()

	assert.Equal(t, uint16(0), c.IE())
	assert.Equal(t, uint16(0), c.IF())
	assert.False(t, c.IME())
}
