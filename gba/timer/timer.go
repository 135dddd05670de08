// Package timer implements the GBA's four cascading/prescaled counters.
package timer

import (
	"github.com/valerio/go-gba/gba/bit"
	"github.com/valerio/go-gba/gba/irq"
	"github.com/valerio/go-gba/gba/mmio"
	"github.com/valerio/go-gba/gba/scheduler"
)

// prescalerDivisors maps the 2-bit TACx prescaler select to its divisor.
var prescalerDivisors = [4]uint32{1, 64, 256, 1024}

// overflowClasses indexes the scheduler class that belongs to each timer.
var overflowClasses = [4]scheduler.Class{
	scheduler.Timer0Overflow,
	scheduler.Timer1Overflow,
	scheduler.Timer2Overflow,
	scheduler.Timer3Overflow,
}

// irqSources indexes the irq.Source that belongs to each timer.
var irqSources = [4]irq.Source{irq.Timer0, irq.Timer1, irq.Timer2, irq.Timer3}

// FIFOHook is implemented by the APU to receive timer-overflow pacing for
// sound FIFO A/B, avoiding a direct package dependency from timer -> apu.
type FIFOHook interface {
	OnTimerOverflow(channel int, times int)
}

type channel struct {
	reload    uint16
	counter   uint16
	prescaler uint32
	cascade   bool
	irqEnable bool
	running   bool
}

// Controller owns the four timer channels and their MMIO registers.
type Controller struct {
	ch    [4]channel
	sched *scheduler.Scheduler
	irqc  *irq.Controller
	fifo  FIFOHook
}

// New constructs a Controller wired to sched and irqc, with its scheduler
// handlers registered. fifo may be nil if audio FIFO pacing is not needed
// (e.g. in a unit test).
func New(sched *scheduler.Scheduler, irqc *irq.Controller, fifo FIFOHook) *Controller {
	c := &Controller{sched: sched, irqc: irqc, fifo: fifo}
	for i := 0; i < 4; i++ {
		idx := i
		sched.Register(overflowClasses[idx], func(now uint64, param int64) {
			c.overflow(idx)
		})
	}
	return c
}

// Reset stops all channels and clears their registers.
func (c *Controller) Reset() {
	for i := range c.ch {
		c.ch[i] = channel{}
		c.sched.Cancel(overflowClasses[i])
	}
}

func (c *Controller) periodCycles(i int) uint64 {
	ch := &c.ch[i]
	remaining := uint32(0x10000) - uint32(ch.counter)
	return uint64(remaining) * uint64(ch.prescaler)
}

func (c *Controller) start(i int) {
	ch := &c.ch[i]
	ch.counter = ch.reload
	if ch.cascade && i > 0 {
		// cascading timers never hold their own scheduler event; they tick
		// from the previous timer's overflow handler instead.
		c.sched.Cancel(overflowClasses[i])
		return
	}
	c.sched.Add(c.periodCycles(i), overflowClasses[i])
}

// overflow runs when timer i's scheduled event fires, or when a
// cascaded channel is ticked to an overflow by its predecessor.
func (c *Controller) overflow(i int) {
	ch := &c.ch[i]
	ch.counter = ch.reload

	if ch.irqEnable {
		c.irqc.Raise(irqSources[i])
	}
	if c.fifo != nil && i < 2 {
		c.fifo.OnTimerOverflow(i, 1)
	}

	if ch.running && !ch.cascade {
		c.sched.Add(c.periodCycles(i), overflowClasses[i])
	}

	if i+1 < 4 && c.ch[i+1].running && c.ch[i+1].cascade {
		c.tickCascade(i+1, 1)
	}
}

// tickCascade advances a cascading channel by `times` steps, which may
// itself overflow (and cascade further).
func (c *Controller) tickCascade(i int, times int) {
	ch := &c.ch[i]
	for n := 0; n < times; n++ {
		if ch.counter == 0xFFFF {
			c.overflow(i)
		} else {
			ch.counter++
		}
	}
}

// ReadIO implements bus.MMIODevice for TM0CNT_L..TM3CNT_H.
func (c *Controller) ReadIO(addr uint32) uint8 {
	i, reg := decode(addr)
	ch := &c.ch[i]
	switch reg {
	case regCounterLo:
		return bit.Low8(ch.counter)
	case regCounterHi:
		return bit.High8(ch.counter)
	case regControlLo:
		v := prescalerSelect(ch.prescaler)
		v = bit.SetTo(v, 2, ch.cascade)
		v = bit.SetTo(v, 6, ch.irqEnable)
		v = bit.SetTo(v, 7, ch.running)
		return v
	default:
		return 0
	}
}

// WriteIO implements bus.MMIODevice for TM0CNT_L..TM3CNT_H.
func (c *Controller) WriteIO(addr uint32, value uint8) {
	i, reg := decode(addr)
	ch := &c.ch[i]
	switch reg {
	case regCounterLo:
		ch.reload = bit.Combine16(bit.High8(ch.reload), value)
	case regCounterHi:
		ch.reload = bit.Combine16(value, bit.Low8(ch.reload))
	case regControlLo:
		wasRunning := ch.running
		ch.prescaler = prescalerDivisors[value&0x3]
		ch.cascade = bit.IsSet(value, 2) && i > 0
		ch.irqEnable = bit.IsSet(value, 6)
		ch.running = bit.IsSet(value, 7)

		if ch.running && !wasRunning {
			c.start(i)
		} else if !ch.running && wasRunning {
			c.sched.Cancel(overflowClasses[i])
		}
	}
}

type regKind uint8

const (
	regCounterLo regKind = iota
	regCounterHi
	regControlLo
	regControlHi
)

func decode(addr uint32) (channelIdx int, reg regKind) {
	off := addr - mmio.TM0CNT_L
	channelIdx = int(off / mmio.TimerBlockStride)
	switch off % mmio.TimerBlockStride {
	case 0:
		reg = regCounterLo
	case 1:
		reg = regCounterHi
	case 2:
		reg = regControlLo
	default:
		reg = regControlHi
	}
	return
}

func prescalerSelect(divisor uint32) uint8 {
	for i, d := range prescalerDivisors {
		if d == divisor {
			return uint8(i)
		}
	}
	return 0
}

// Counter returns channel i's live counter value, for debugging/tests.
func (c *Controller) Counter(i int) uint16 { return c.ch[i].counter }

// Running reports whether channel i is enabled.
func (c *Controller) Running(i int) bool { return c.ch[i].running }

// Snapshot is the four channels' register state, for SaveState. The
// scheduler's own pending-event timestamps are captured separately by
// scheduler.Snapshot. Restoring a Controller snapshot does not re-arm
// any timer event; scheduler.Restore repopulates the overflow events
// verbatim.
type Snapshot struct {
	Channels [4]channel
}

// Snapshot captures every channel verbatim.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{Channels: c.ch}
}

// Restore replaces all four channels with snap's contents.
func (c *Controller) Restore(snap Snapshot) {
	c.ch = snap.Channels
}
