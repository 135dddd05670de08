// Package keypad implements the input latch and key-interrupt trigger.
package keypad

import (
	"github.com/valerio/go-gba/gba/bit"
	"github.com/valerio/go-gba/gba/irq"
	"github.com/valerio/go-gba/gba/mmio"
)

// Key is one of the ten physical buttons, numbered by KEYINPUT bit position.
type Key uint8

const (
	A Key = iota
	B
	Select
	Start
	Right
	Left
	Up
	Down
	R
	L
)

// Controller latches which keys are held and raises irq.Keypad when the
// held set matches the KEYCNT selector condition.
type Controller struct {
	// keyinput mirrors the KEYINPUT register: a held key is 0, released is 1.
	keyinput uint16

	selector uint16
	andMode  bool
	irqEnable bool

	irqc *irq.Controller
}

// New constructs a Controller with all keys released.
func New(irqc *irq.Controller) *Controller {
	return &Controller{keyinput: 0x03FF, irqc: irqc}
}

// Reset releases all keys and clears KEYCNT.
func (c *Controller) Reset() {
	c.keyinput = 0x03FF
	c.selector = 0
	c.andMode = false
	c.irqEnable = false
}

// SetKeyStatus updates the input latch for key.
func (c *Controller) SetKeyStatus(key Key, pressed bool) {
	c.keyinput = bit.SetTo(c.keyinput, uint8(key), !pressed)
}

// Poll checks the latch against the key-interrupt selector and raises
// irq.Keypad on match. Scheduled periodically by Core.
func (c *Controller) Poll() {
	if !c.irqEnable {
		return
	}
	held := ^c.keyinput & c.selector
	match := false
	if c.andMode {
		match = held == c.selector
	} else {
		match = held != 0
	}
	if match {
		c.irqc.Raise(irq.Keypad)
	}
}

// ReadIO implements bus.MMIODevice for KEYINPUT/KEYCNT.
func (c *Controller) ReadIO(addr uint32) uint8 {
	switch addr {
	case mmio.KEYINPUT:
		return bit.Low8(c.keyinput)
	case mmio.KEYINPUT + 1:
		return bit.High8(c.keyinput)
	case mmio.KEYCNT:
		return bit.Low8(c.selector)
	case mmio.KEYCNT + 1:
		v := bit.High8(c.selector) & 0x03
		v = bit.SetTo(v, 6, c.irqEnable)
		v = bit.SetTo(v, 7, c.andMode)
		return v
	}
	return 0
}

// WriteIO implements bus.MMIODevice for KEYCNT (KEYINPUT is read-only).
func (c *Controller) WriteIO(addr uint32, value uint8) {
	switch addr {
	case mmio.KEYCNT:
		c.selector = bit.Combine16(bit.High8(c.selector), value)
	case mmio.KEYCNT + 1:
		hi := value & 0x03
		c.selector = bit.Combine16(hi, bit.Low8(c.selector))
		c.irqEnable = bit.IsSet(value, 6)
		c.andMode = bit.IsSet(value, 7)
	}
}

// Snapshot is the input latch and KEYCNT selector, for SaveState.
type Snapshot struct {
	KeyInput  uint16
	Selector  uint16
	AndMode   bool
	IRQEnable bool
}

// Snapshot captures the current register state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{KeyInput: c.keyinput, Selector: c.selector, AndMode: c.andMode, IRQEnable: c.irqEnable}
}

// Restore replaces the register state with snap's contents.
func (c *Controller) Restore(snap Snapshot) {
	c.keyinput = snap.KeyInput
	c.selector = snap.Selector
	c.andMode = snap.AndMode
	c.irqEnable = snap.IRQEnable
}
