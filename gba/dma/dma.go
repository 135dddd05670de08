// Package dma implements the GBA's four-channel DMA engine.
package dma

import (
	"github.com/valerio/go-gba/gba/bit"
	"github.com/valerio/go-gba/gba/bus"
	"github.com/valerio/go-gba/gba/irq"
	"github.com/valerio/go-gba/gba/mmio"
	"github.com/valerio/go-gba/gba/scheduler"
)

// Occasion identifies what just happened that might arm a DMA channel.
type Occasion uint8

const (
	Immediate Occasion = iota
	VBlank
	HBlank
	FIFOA
	FIFOB
	Video
)

// trigger is the control-word-encoded start condition of a channel.
type trigger uint8

const (
	triggerImmediate trigger = iota
	triggerVBlank
	triggerHBlank
	triggerSpecial // channel-dependent: FIFO A/B for 1/2, video capture for 3
)

// addrStep encodes the per-unit address step direction.
type addrStep uint8

const (
	stepIncrement addrStep = iota
	stepDecrement
	stepFixed
	stepIncrementReload // destination only: increment, reload at end
)

type channel struct {
	index int

	srcAddr  uint32
	dstAddr  uint32
	srcCur   uint32
	dstCur   uint32
	wordCount uint32
	remaining uint32

	control uint16 // raw DMAxCNT_H, source of truth for the derived fields below

	srcStep  addrStep
	dstStep  addrStep
	repeat   bool
	unit32   bool // false = 16-bit units, true = 32-bit
	trig     trigger
	irqOnEnd bool
	enabled  bool

	pending bool // armed and waiting for (or mid-way through) a burst
}

// recompute derives the named fields from the raw control word. Real
// DMAxCNT_H layout: bits 5-6 dest step, bit 7 src step low bit, bit 8 src
// step high bit, bit 9 repeat, bit 10 unit size, bits 11 (ch3 only, video
// capture, unused here), 12-13 trigger, 14 irq-on-end, 15 enable.
func (ch *channel) recompute() {
	v := ch.control
	ch.dstStep = addrStep((v >> 5) & 0x3)
	ch.srcStep = addrStep((v >> 7) & 0x3)
	ch.repeat = bit.IsSet(v, 9)
	ch.unit32 = bit.IsSet(v, 10)
	ch.trig = trigger((v >> 12) & 0x3)
	ch.irqOnEnd = bit.IsSet(v, 14)
	ch.enabled = bit.IsSet(v, 15)
}

func (ch *channel) occasionMatches(o Occasion) bool {
	switch ch.trig {
	case triggerImmediate:
		return o == Immediate
	case triggerVBlank:
		return o == VBlank
	case triggerHBlank:
		return o == HBlank
	case triggerSpecial:
		switch ch.index {
		case 1:
			return o == FIFOA
		case 2:
			return o == FIFOB
		case 3:
			return o == Video
		}
	}
	return false
}

// Controller owns the four channels, strictly prioritised by index (0
// highest).
type Controller struct {
	ch    [4]channel
	bus   *bus.Bus
	irqc  *irq.Controller
	sched *scheduler.Scheduler
}

// New constructs a Controller driven by bus for memory access and irqc
// for completion interrupts.
func New(sched *scheduler.Scheduler, b *bus.Bus, irqc *irq.Controller) *Controller {
	c := &Controller{bus: b, irqc: irqc, sched: sched}
	for i := range c.ch {
		c.ch[i].index = i
	}
	return c
}

// Reset disables all channels and clears their registers.
func (c *Controller) Reset() {
	for i := range c.ch {
		c.ch[i] = channel{index: i}
	}
}

// Request arms every enabled channel whose trigger matches occasion.
func (c *Controller) Request(occasion Occasion) {
	for i := range c.ch {
		ch := &c.ch[i]
		if ch.enabled && ch.occasionMatches(occasion) && ch.remaining == 0 {
			ch.srcCur = ch.srcAddr
			ch.dstCur = ch.dstAddr
			ch.remaining = ch.wordCount
			ch.pending = true
		}
	}
}

// RequestVBlank, RequestHBlank, RequestFIFOA and RequestFIFOB are thin
// named wrappers over Request, letting the Controller satisfy the small
// occasion-specific interfaces the PPU and APU packages use to trigger
// DMA without importing this package.
func (c *Controller) RequestVBlank() { c.Request(VBlank) }
func (c *Controller) RequestHBlank() { c.Request(HBlank) }
func (c *Controller) RequestFIFOA()  { c.Request(FIFOA) }
func (c *Controller) RequestFIFOB()  { c.Request(FIFOB) }

// IsRunning reports whether any channel has units left to transfer.
func (c *Controller) IsRunning() bool {
	return c.active() >= 0
}

func (c *Controller) active() int {
	for i := range c.ch {
		ch := &c.ch[i]
		if ch.enabled && ch.pending && ch.remaining > 0 {
			return i
		}
	}
	return -1
}

// Run executes one unit of the highest-priority active channel.
func (c *Controller) Run() {
	i := c.active()
	if i < 0 {
		return
	}
	ch := &c.ch[i]

	kind := bus.Sequential
	if ch.unit32 {
		v := c.bus.Read32(ch.srcCur, kind)
		c.bus.Write32(ch.dstCur, v, kind)
	} else {
		v := c.bus.Read16(ch.srcCur, kind)
		c.bus.Write16(ch.dstCur, v, kind)
	}

	unitSize := uint32(2)
	if ch.unit32 {
		unitSize = 4
	}
	ch.srcCur = stepAddr(ch.srcCur, ch.srcStep, unitSize)
	ch.dstCur = stepAddr(ch.dstCur, ch.dstStep, unitSize)
	ch.remaining--

	if ch.remaining == 0 {
		c.complete(i)
	}
}

func stepAddr(addr uint32, step addrStep, size uint32) uint32 {
	switch step {
	case stepIncrement, stepIncrementReload:
		return addr + size
	case stepDecrement:
		return addr - size
	default:
		return addr
	}
}

func (c *Controller) complete(i int) {
	ch := &c.ch[i]
	ch.pending = false

	if ch.dstStep != stepIncrementReload && ch.dstStep != stepFixed {
		ch.dstAddr = ch.dstCur
	}
	if ch.srcStep != stepFixed {
		ch.srcAddr = ch.srcCur
	}

	if !ch.repeat {
		ch.enabled = false
	}
	if ch.irqOnEnd {
		c.irqc.Raise(dmaIRQSource(i))
	}
}

func dmaIRQSource(i int) irq.Source {
	switch i {
	case 0:
		return irq.DMA0
	case 1:
		return irq.DMA1
	case 2:
		return irq.DMA2
	default:
		return irq.DMA3
	}
}

// ReadIO implements bus.MMIODevice for the DMAxSAD/DAD/CNT registers.
func (c *Controller) ReadIO(addr uint32) uint8 {
	i, off := decode(addr)
	ch := &c.ch[i]
	switch {
	case off < 4:
		return byteOf(ch.srcAddr, off)
	case off < 8:
		return byteOf(ch.dstAddr, off-4)
	case off < 10:
		return byteOf(ch.wordCount, off-8)
	case off == 10:
		return bit.Low8(ch.control)
	default:
		return bit.High8(ch.control)
	}
}

// WriteIO implements bus.MMIODevice for the DMAxSAD/DAD/CNT registers.
func (c *Controller) WriteIO(addr uint32, value uint8) {
	i, off := decode(addr)
	ch := &c.ch[i]
	switch {
	case off < 4:
		ch.srcAddr = setByte(ch.srcAddr, off, value)
	case off < 8:
		ch.dstAddr = setByte(ch.dstAddr, off-4, value)
	case off < 10:
		ch.wordCount = uint32(setByte(uint32(ch.wordCount), off-8, value)) & 0xFFFF
	case off == 10:
		ch.control = bit.Combine16(bit.High8(ch.control), value)
		wasEnabled := ch.enabled
		ch.recompute()
		c.maybeStartImmediate(i, wasEnabled)
	default:
		ch.control = bit.Combine16(value, bit.Low8(ch.control))
		wasEnabled := ch.enabled
		ch.recompute()
		c.maybeStartImmediate(i, wasEnabled)
	}
}

func (c *Controller) maybeStartImmediate(i int, wasEnabled bool) {
	ch := &c.ch[i]
	if ch.enabled && !wasEnabled && ch.trig == triggerImmediate {
		c.Request(Immediate)
	}
}

func decode(addr uint32) (channelIdx int, off uint32) {
	base := addr - mmio.DMA0SAD
	channelIdx = int(base / mmio.DMABlockStride)
	off = base % mmio.DMABlockStride
	return
}

func byteOf(v uint32, off uint32) uint8 { return uint8(v >> (8 * off)) }

func setByte(v uint32, off uint32, b uint8) uint32 {
	shift := 8 * off
	mask := uint32(0xFF) << shift
	return (v &^ mask) | (uint32(b) << shift)
}

// Remaining returns channel i's outstanding unit count, for tests.
func (c *Controller) Remaining(i int) uint32 { return c.ch[i].remaining }

// Enabled reports whether channel i is enabled, for tests.
func (c *Controller) Enabled(i int) bool { return c.ch[i].enabled }

// Snapshot is the four channels' full register and in-flight state, for
// SaveState.
type Snapshot struct {
	Channels [4]channel
}

// Snapshot captures every channel verbatim; channel has no unexported
// pointers, so a value copy is a faithful snapshot.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{Channels: c.ch}
}

// Restore replaces all four channels with snap's contents.
func (c *Controller) Restore(snap Snapshot) {
	c.ch = snap.Channels
}
