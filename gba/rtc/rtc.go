// Package rtc implements the Seiko S-3511 real-time clock's 3-wire
// serial protocol as used by GBA cartridges: a small state machine
// driven by SCK rising edges while CS is held high, exchanging
// single-byte commands for BCD-encoded date/time and control registers.
package rtc

import (
	"log/slog"
	"time"

	"github.com/valerio/go-gba/gba/bit"
	"github.com/valerio/go-gba/gba/irq"
)

// State is idle or one of the four phases of a single serial transaction.
type State uint8

const (
	StateIdle State = iota
	StateCommand
	StateReceiving
	StateSending
	StateComplete
)

// Register is one of the eight 3-bit-addressed RTC registers.
type Register uint8

const (
	RegForceReset Register = iota
	RegUnused1
	RegControl
	RegForceIRQ
	RegDateTime
	RegTime
	RegUnused6
	RegUnused7
)

// argBytes is the fixed argument length of each register, per the
// emulation core's data model.
var argBytes = [8]int{
	RegForceReset: 0,
	RegControl:    1,
	RegForceIRQ:   0,
	RegDateTime:   7,
	RegTime:       3,
}

// Clock abstracts "now" so tests can supply a fixed instant instead of
// depending on wall-clock time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Chip is the 3-wire serial peripheral state machine. It does not sit
// on the IO bus directly: cartridge GPIO (RCNT in "RTC mode") bit-bangs
// CS/SCK/SIO against it, one call per line transition.
type Chip struct {
	irqc  *irq.Controller
	clock Clock

	state State
	cs    bool
	sck   bool

	command  byte
	reg      Register
	readMode bool

	bitCount  int
	byteCount int
	buf       []byte

	control byte // bit6 24h mode, bit3 per-minute IRQ, bit1 unused
}

// New constructs a Chip using the real system clock for DateTime/Time
// reads.
func New(irqc *irq.Controller) *Chip {
	return &Chip{irqc: irqc, clock: systemClock{}}
}

// NewWithClock is New but lets a test (or a host save-state) supply a
// fixed Clock instead of wall-clock time.
func NewWithClock(irqc *irq.Controller, clock Clock) *Chip {
	return &Chip{irqc: irqc, clock: clock}
}

// Reset returns the chip to idle with CS/SCK low and the control
// register at its 24-hour-mode default (0x40).
func (c *Chip) Reset() {
	c.state = StateIdle
	c.cs = false
	c.sck = false
	c.command = 0
	c.bitCount = 0
	c.byteCount = 0
	c.buf = nil
	// 24h mode by default; real hardware's power-on default is a registry
	// quirk per title, and the core has no persisted host preference to
	// fall back to (see the design notes' RTC open question).
	c.control = 0x40
}

// SetCS updates the chip-select line. A 0→1 transition resets the
// transaction to Command state regardless of what was in progress.
func (c *Chip) SetCS(level bool) {
	if level && !c.cs {
		c.state = StateCommand
		c.bitCount = 0
		c.byteCount = 0
		c.command = 0
		c.buf = nil
	}
	if !level {
		c.state = StateIdle
	}
	c.cs = level
}

// Step advances the state machine on an SCK transition while CS is
// held high. sio is the current input line value (ignored while
// sending); it returns the chip's current output level for SIO.
func (c *Chip) Step(sck, sio bool) bool {
	rising := sck && !c.sck
	c.sck = sck
	if !c.cs || !rising {
		return c.currentSIOOut()
	}

	out := c.currentSIOOut() // latched before this edge's bitCount advances

	switch c.state {
	case StateCommand:
		c.command = bit.SetTo(c.command, uint8(7-c.bitCount), sio)
		c.bitCount++
		if c.bitCount == 8 {
			c.bitCount = 0
			c.decodeCommand()
		}
	case StateReceiving:
		idx := c.bitCount / 8
		bitInByte := 7 - (c.bitCount % 8)
		if idx < len(c.buf) {
			c.buf[idx] = bit.SetTo(c.buf[idx], uint8(bitInByte), sio)
		}
		c.bitCount++
		if c.bitCount == len(c.buf)*8 {
			c.applyWrite()
			c.state = StateComplete
		}
	case StateSending:
		c.bitCount++
		if c.bitCount == len(c.buf)*8 {
			c.state = StateComplete
		}
	}
	return out
}

// currentSIOOut returns the bit this chip is currently driving onto
// SIO while sending (LSB-first out of the current buffer byte).
func (c *Chip) currentSIOOut() bool {
	if c.state != StateSending || len(c.buf) == 0 {
		return false
	}
	idx := c.bitCount / 8
	bitInByte := c.bitCount % 8
	if idx >= len(c.buf) {
		return false
	}
	return bit.IsSet(c.buf[idx], uint8(bitInByte))
}

// decodeCommand interprets the completed command byte. A valid frame
// is 0110 DRRR (high nibble fixed at 0x6, then the direction bit and a
// 3-bit register); if instead the low nibble reads 0x6 and the high reads
// the variable bits, the byte arrived bit-reversed on the wire and is
// corrected before re-interpreting.
func (c *Chip) decodeCommand() {
	cmd := c.command
	switch {
	case cmd>>4 == 0x6:
		// as-is
	case cmd&0xF == 0x6:
		cmd = bit.ReverseBits8(cmd)
	default:
		// unknown command: log it and go idle; no interrupt is raised.
		slog.Error("rtc: unknown command byte", "command", cmd)
		c.state = StateIdle
		return
	}

	c.reg = Register(bit.Extract(cmd, 2, 0))
	c.readMode = bit.IsSet(cmd, 3)
	n := argBytes[c.reg]

	if c.readMode && n > 0 {
		c.buf = make([]byte, n)
		c.populateRead()
		c.state = StateSending
		c.bitCount = 0
		return
	}
	if !c.readMode && n > 0 {
		c.buf = make([]byte, n)
		c.state = StateReceiving
		c.bitCount = 0
		return
	}

	// zero-argument registers act immediately.
	c.applyImmediate()
	c.state = StateComplete
}

// populateRead fills buf for a Sending transaction from live register
// state, BCD-encoding date/time fields and adjusting hours for 12h/24h
// mode as configured by Control.
func (c *Chip) populateRead() {
	now := c.clock.Now()
	switch c.reg {
	case RegDateTime:
		y, m, d := now.Date()
		c.buf[0] = bit.ToBCD(uint8(y % 100))
		c.buf[1] = bit.ToBCD(uint8(m))
		c.buf[2] = bit.ToBCD(uint8(d))
		c.buf[3] = bit.ToBCD(uint8(now.Weekday()))
		c.buf[4], c.buf[5], c.buf[6] = c.encodedTime(now)
	case RegTime:
		c.buf[0], c.buf[1], c.buf[2] = c.encodedTime(now)
	case RegControl:
		c.buf[0] = c.control
	}
}

// encodedTime returns hour/min/sec BCD bytes. In 12-hour mode (Control's
// bit 6 clear) a PM hour has 12 subtracted and 0x40 folded into the raw
// decimal value before BCD encoding, not after: hour 13 becomes decimal
// 65 (1|0x40), which BCD-encodes to 0x65, rather than a clean bit-7 PM
// flag over a 1-12 hour. This matches the chip's own packing, quirks
// included, so a host reading the PM bit out of the high nibble sees
// the same byte a real cartridge would.
func (c *Chip) encodedTime(now time.Time) (hh, mm, ss byte) {
	hour := now.Hour()
	if c.control&0x40 == 0 && hour >= 12 { // 12h mode, PM
		hour = (hour - 12) | 0x40
	}
	return bit.ToBCD(uint8(hour)), bit.ToBCD(uint8(now.Minute())), bit.ToBCD(uint8(now.Second()))
}

// applyWrite commits a completed Receiving transaction's buffer to the
// targeted register.
func (c *Chip) applyWrite() {
	switch c.reg {
	case RegControl:
		c.control = c.buf[0] & 0x4A // 24h(bit6), per-minute IRQ(bit3), unused bit1
	case RegDateTime, RegTime:
		// Persisting host-provided date/time writes is left to the
		// host's save state; this core only tracks Control/ForceReset/
		// ForceIRQ, per the open question in the design notes.
	}
}

// applyImmediate handles the two zero-argument commands.
func (c *Chip) applyImmediate() {
	switch c.reg {
	case RegForceReset:
		c.control = 0
	case RegForceIRQ:
		c.irqc.Raise(irq.GamePak)
	}
}

// Snapshot is the serial state machine's full in-progress transaction
// state plus the Control register, for SaveState. The clock itself is
// never snapshotted: a restored session still reads wall-clock time (or
// whatever Clock the host reattaches), per the RTC open question about
// host-provided date/time persistence.
type Snapshot struct {
	State     State
	CS, SCK   bool
	Command   byte
	Reg       Register
	ReadMode  bool
	BitCount  int
	ByteCount int
	Buf       []byte
	Control   byte
}

// Snapshot captures the current transaction state.
func (c *Chip) Snapshot() Snapshot {
	return Snapshot{
		State: c.state, CS: c.cs, SCK: c.sck,
		Command: c.command, Reg: c.reg, ReadMode: c.readMode,
		BitCount: c.bitCount, ByteCount: c.byteCount,
		Buf: append([]byte(nil), c.buf...), Control: c.control,
	}
}

// Restore replaces the transaction state with snap's contents.
func (c *Chip) Restore(snap Snapshot) {
	c.state = snap.State
	c.cs = snap.CS
	c.sck = snap.SCK
	c.command = snap.Command
	c.reg = snap.Reg
	c.readMode = snap.ReadMode
	c.bitCount = snap.BitCount
	c.byteCount = snap.ByteCount
	c.buf = append([]byte(nil), snap.Buf...)
	c.control = snap.Control
}
