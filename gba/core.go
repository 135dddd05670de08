// Package gba wires the scheduler, bus, and every peripheral into the
// Core composition root and drives the halt/DMA/IRQ interleave described
// in the emulation core's run loop.
package gba

import (
	"github.com/valerio/go-gba/gba/apu"
	"github.com/valerio/go-gba/gba/bit"
	"github.com/valerio/go-gba/gba/bus"
	"github.com/valerio/go-gba/gba/cpu"
	"github.com/valerio/go-gba/gba/dma"
	"github.com/valerio/go-gba/gba/irq"
	"github.com/valerio/go-gba/gba/keypad"
	"github.com/valerio/go-gba/gba/mmio"
	"github.com/valerio/go-gba/gba/ppu"
	"github.com/valerio/go-gba/gba/rtc"
	"github.com/valerio/go-gba/gba/scheduler"
	"github.com/valerio/go-gba/gba/timer"
)

// keypadPollInterval is how often the scheduler re-checks the key
// selector against the input latch; the GBA has no hardware keypad
// interrupt clock, so this is a core-chosen polling cadence fine enough
// that no game-observable input latency is introduced.
const keypadPollInterval = 4096

// Core owns every component exactly once, per the design notes' "sole
// owner" pattern: no peripheral holds a back-reference to another, they
// only see the small consumer interfaces (bus.MMIODevice,
// apu.DMARequester, ppu.DMARequester, timer.FIFOHook, cpu.Bus) that Core
// wires together at construction.
type Core struct {
	cfg Config

	sched  *scheduler.Scheduler
	bus    *bus.Bus
	irqc   *irq.Controller
	dmac   *dma.Controller
	timers *timer.Controller
	keys   *keypad.Controller
	apu    *apu.APU
	ppu    *ppu.PPU
	cpu    *cpu.CPU

	gpio *gpioPort

	halted bool
}

// New constructs a Core from cfg. BIOS/ROM are attached separately, and
// Reset must be called before Run.
func New(cfg Config) *Core {
	c := &Core{cfg: cfg}

	c.sched = scheduler.New()
	c.bus = bus.New(c.sched)
	c.irqc = irq.New()
	c.dmac = dma.New(c.sched, c.bus, c.irqc)
	c.apu = apu.New(c.sched, c.dmac, cfg.Audio.Interpolation)
	c.timers = timer.New(c.sched, c.irqc, c.apu)
	c.keys = keypad.New(c.irqc)
	c.ppu = ppu.New(c.sched, c.irqc, c.dmac, cfg.VideoDevice, c.bus)
	c.cpu = cpu.New(c.bus)
	c.gpio = &gpioPort{}

	c.bus.RegisterIO(mmio.DISPCNT, mmio.BG3VOFS+1, c.ppu)
	c.bus.RegisterIO(mmio.SOUND1CNT_L, mmio.FIFO_B+3, c.apu)
	c.bus.RegisterIO(mmio.DMA0SAD, mmio.DMA0SAD+4*mmio.DMABlockStride-1, c.dmac)
	c.bus.RegisterIO(mmio.TM0CNT_L, mmio.TM0CNT_L+4*mmio.TimerBlockStride-1, c.timers)
	c.bus.RegisterIO(mmio.KEYINPUT, mmio.KEYCNT+1, c.keys)
	c.bus.RegisterIO(mmio.RCNT, mmio.RCNT+1, c.gpio)
	c.bus.RegisterIO(mmio.IE, mmio.IME+3, &irqIO{irqc: c.irqc})

	c.sched.Register(scheduler.KeypadPoll, func(now uint64, param int64) {
		c.keys.Poll()
		c.sched.Add(keypadPollInterval, scheduler.KeypadPoll)
	})

	c.bus.SetHaltHook(func() { c.halted = true })

	return c
}

// Reset clears every component's mutable state, rearms the scheduler's
// recurring events, and (per skip_bios) plants post-BIOS CPU register
// state. Identity and scheduler registrations survive, per the data
// model's lifecycle rule.
func (c *Core) Reset() {
	c.sched.Reset()
	c.bus.Reset()
	c.irqc.Reset()
	c.dmac.Reset()
	c.timers.Reset()
	c.keys.Reset()
	c.apu.Reset()
	c.ppu.Reset()
	c.cpu.Reset()
	c.halted = false

	c.apu.ConfigureHLE(apu.HLEConfig{
		Enable:      c.cfg.Audio.MP2KHLEEnable,
		Cubic:       c.cfg.Audio.MP2KHLECubic,
		ForceReverb: c.cfg.Audio.MP2KHLEForceReverb,
	}, c.bus.ROM())

	if c.cfg.SkipBIOS {
		c.cpu.SkipBIOS()
	}

	c.sched.Add(keypadPollInterval, scheduler.KeypadPoll)

	if c.cfg.AudioDevice != nil {
		resampler := c.apu.Resampler()
		c.cfg.AudioDevice.Open(c.cfg.AudioDevice.GetSampleRate(), c.cfg.AudioDevice.GetBlockSize(), func(out []float32) {
			resampler.Read(out)
		})
	}
}

// AttachBIOS installs the BIOS image.
func (c *Core) AttachBIOS(data []byte) { c.bus.AttachBIOS(data) }

// AttachROM installs the cartridge ROM image.
func (c *Core) AttachROM(data []byte) { c.bus.AttachROM(data) }

// CreateRTC wires a real-time-clock chip onto the GPIO port and returns
// it, so the host (or a test) can drive it directly in addition to the
// cartridge's own GPIO bit-banging.
func (c *Core) CreateRTC() *rtc.Chip {
	chip := rtc.New(c.irqc)
	chip.Reset()
	c.gpio.rtc = chip
	return chip
}

// CreateSolarSensor wires a light-level sensor onto the GPIO port and
// returns it so the host can report ambient light.
func (c *Core) CreateSolarSensor() *SolarSensor {
	sensor := NewSolarSensor()
	c.gpio.solar = sensor
	return sensor
}

// SetKeyStatus updates the input latch for key.
func (c *Core) SetKeyStatus(key keypad.Key, pressed bool) {
	c.keys.SetKeyStatus(key, pressed)
}

// Run advances emulation by at most cycles master cycles, implementing
// the halt/DMA/IRQ interleave: while not halted the CPU retires
// instructions (checking the HLE hook and pending IRQ after each one);
// while halted, pending DMA runs to completion and the clock
// fast-forwards directly to the next scheduler event rather than
// stepping one cycle at a time.
func (c *Core) Run(cycles int) {
	limit := c.sched.Now() + uint64(cycles)
	for c.sched.Now() < limit {
		if !c.halted {
			c.maybeInterceptHLE()
			c.cpu.Run()
			c.maybeDispatchIRQ()
			continue
		}

		for c.sched.Now() < limit && !c.irqc.ShouldUnhaltCPU() {
			if c.dmac.IsRunning() {
				c.dmac.Run()
				if c.irqc.ShouldUnhaltCPU() {
					continue
				}
			}
			c.bus.Step(c.sched.RemainingCycles())
		}
		if c.irqc.ShouldUnhaltCPU() {
			c.bus.Step(1)
			c.halted = false
		}
	}
	c.apu.EndAudioBlock()
}

// maybeInterceptHLE hands the APU a substitute stereo frame when the
// CPU's PC reaches the detected MP2K mixer entrypoint. The real MP2K
// mixer decodes a full engine sound-info struct and loops over many
// output samples per call; this core's interface-only CPU has no
// instruction decoder to drive that loop, so it substitutes the single
// frame the mixer's calling convention places at r0 (pointer to an
// interleaved L/R byte pair), which is enough to exercise the FIFO
// contribution path the mixer event reads from.
func (c *Core) maybeInterceptHLE() {
	pc := c.cpu.R(15)
	if !c.apu.ShouldIntercept(pc) {
		return
	}
	bufPtr := c.cpu.R(0)
	left := int8(c.bus.PeekByte(bufPtr))
	right := int8(c.bus.PeekByte(bufPtr + 1))
	c.apu.InterceptMixer(left, right)
}

// maybeDispatchIRQ takes the IRQ exception at the current instruction
// boundary if IME and an enabled, pending source both say so.
func (c *Core) maybeDispatchIRQ() {
	if !c.irqc.Pending() {
		return
	}
	c.cpu.EnterException(cpu.ModeIRQ, cpu.VectorIRQ, 4)
}

// GetScheduler exposes the scheduler for host introspection/tests.
func (c *Core) GetScheduler() *scheduler.Scheduler { return c.sched }

// GetROM, GetPRAM, GetVRAM and GetOAM expose the Bus-owned backing
// stores, per the Core API's accessor contract.
func (c *Core) GetROM() []byte   { return c.bus.ROM() }
func (c *Core) GetPRAM() []byte  { return c.bus.Palette() }
func (c *Core) GetVRAM() []byte  { return c.bus.VRAM() }
func (c *Core) GetOAM() []byte   { return c.bus.OAM() }

// PeekByteIO, PeekHalfIO and PeekWordIO read the bus without charging
// wait-state cycles, for a debugger or save-state UI.
func (c *Core) PeekByteIO(addr uint32) uint8  { return c.bus.PeekByte(addr) }
func (c *Core) PeekHalfIO(addr uint32) uint16 { return c.bus.PeekHalf(addr) }
func (c *Core) PeekWordIO(addr uint32) uint32 { return c.bus.PeekWord(addr) }

// GetBGHOFS and GetBGVOFS return the scroll registers for background bg.
func (c *Core) GetBGHOFS(bg int) uint16 { return c.ppu.BGHOFS(bg) }
func (c *Core) GetBGVOFS(bg int) uint16 { return c.ppu.BGVOFS(bg) }

// FrameBuffer returns the PPU's current frame buffer.
func (c *Core) FrameBuffer() []uint32 { return c.ppu.FrameBuffer() }

// irqIO services IE/IF/WAITCNT/IME as a single MMIO range so irq.Controller
// itself stays free of bus/mmio imports. WAITCNT is stored but otherwise
// unused: this bus charges fixed wait-state costs per region rather than
// the configurable per-region timings a real WAITCNT selects, per the
// simplification already noted on bus's waitTable.
type irqIO struct {
	irqc    *irq.Controller
	waitcnt uint16
}

func (io *irqIO) ReadIO(addr uint32) uint8 {
	switch addr {
	case mmio.IE:
		return bit.Low8(io.irqc.IE())
	case mmio.IE + 1:
		return bit.High8(io.irqc.IE())
	case mmio.IF:
		return bit.Low8(io.irqc.IF())
	case mmio.IF + 1:
		return bit.High8(io.irqc.IF())
	case mmio.WAITCNT:
		return bit.Low8(io.waitcnt)
	case mmio.WAITCNT + 1:
		return bit.High8(io.waitcnt)
	case mmio.IME:
		if io.irqc.IME() {
			return 1
		}
		return 0
	case mmio.IME + 1, mmio.IME + 2, mmio.IME + 3:
		return 0
	}
	return 0
}

func (io *irqIO) WriteIO(addr uint32, value uint8) {
	switch addr {
	case mmio.IE:
		io.irqc.SetEnable(bit.Combine16(bit.High8(io.irqc.IE()), value))
	case mmio.IE + 1:
		io.irqc.SetEnable(bit.Combine16(value, bit.Low8(io.irqc.IE())))
	case mmio.IF:
		// write-1-to-clear acts per byte: a low-byte write must not
		// touch bits in the untouched high byte, so the high half of
		// the acknowledge mask is zero rather than the live register.
		io.irqc.AcknowledgeIF(bit.Combine16(0, value))
	case mmio.IF + 1:
		io.irqc.AcknowledgeIF(bit.Combine16(value, 0))
	case mmio.WAITCNT:
		io.waitcnt = bit.Combine16(bit.High8(io.waitcnt), value)
	case mmio.WAITCNT + 1:
		io.waitcnt = bit.Combine16(value, bit.Low8(io.waitcnt))
	case mmio.IME:
		io.irqc.SetMaster(value&1 != 0)
	}
}
