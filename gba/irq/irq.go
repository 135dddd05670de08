// Package irq implements the GBA's two-register interrupt controller:
// IE (enable), IF (pending/acknowledge), and the IME master switch.
package irq

import "github.com/valerio/go-gba/gba/bit"

// Source identifies one of the fourteen interrupt lines, numbered by their
// bit position in IE/IF.
type Source uint8

const (
	VBlank Source = iota
	HBlank
	VCount
	Timer0
	Timer1
	Timer2
	Timer3
	Serial
	DMA0
	DMA1
	DMA2
	DMA3
	Keypad
	GamePak // "ROM" source, also used by RTC ForceIRQ
)

// Controller latches pending/enabled interrupt lines and answers the two
// questions the CPU and the halt loop care about: should the CPU wake up,
// and should it actually take the exception.
type Controller struct {
	ie   uint16
	ifr  uint16
	ime  bool
}

// New constructs a Controller with everything masked off, matching
// power-on state.
func New() *Controller {
	return &Controller{}
}

// Reset clears IE/IF/IME back to power-on defaults.
func (c *Controller) Reset() {
	c.ie = 0
	c.ifr = 0
	c.ime = false
}

// Raise latches source into IF. IF bits only clear via an explicit
// acknowledge write (AcknowledgeIF), never implicitly.
func (c *Controller) Raise(source Source) {
	c.ifr = bit.Set(c.ifr, uint8(source))
}

// IE returns the current interrupt-enable register.
func (c *Controller) IE() uint16 { return c.ie }

// IF returns the current interrupt-pending register.
func (c *Controller) IF() uint16 { return c.ifr }

// IME returns the master interrupt enable flag.
func (c *Controller) IME() bool { return c.ime }

// SetEnable writes IE.
func (c *Controller) SetEnable(ie uint16) { c.ie = ie }

// SetMaster writes IME.
func (c *Controller) SetMaster(ime bool) { c.ime = ime }

// AcknowledgeIF clears the bits set in value from IF, the hardware's
// write-1-to-clear acknowledge semantics.
func (c *Controller) AcknowledgeIF(value uint16) {
	c.ifr &^= value
}

// ShouldUnhaltCPU reports whether any enabled source is pending,
// regardless of IME. Halt exits on this condition alone.
func (c *Controller) ShouldUnhaltCPU() bool {
	return c.ie&c.ifr != 0
}

// Pending reports whether the CPU should take an exception at the next
// instruction boundary: IME must also be set.
func (c *Controller) Pending() bool {
	return c.ime && c.ie&c.ifr != 0
}

// Snapshot is IE/IF/IME, for SaveState.
type Snapshot struct {
	IE, IF uint16
	IME    bool
}

// Snapshot captures the current register state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{IE: c.ie, IF: c.ifr, IME: c.ime}
}

// Restore replaces the register state with snap's contents.
func (c *Controller) Restore(snap Snapshot) {
	c.ie = snap.IE
	c.ifr = snap.IF
	c.ime = snap.IME
}
