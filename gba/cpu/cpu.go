// Package cpu implements the ARM7TDMI at its scheduling interface:
// mode switching, banked registers, pipeline flush, and a Run step that
// reports consumed cycles to the scheduler via Bus accesses. The
// ARM/THUMB instruction decoder itself is out of scope for this core;
// Run fetches and retires a fixed-cost placeholder instruction so the
// halt/DMA/IRQ interleave in Core's run loop has something to drive.
package cpu

import (
	"github.com/valerio/go-gba/gba/bus"
)

// Bus is the subset of the system bus the CPU drives: instruction
// fetch/data access (which accumulates wait-state cycles into the
// scheduler) and idle cycles spent during internal operations.
type Bus interface {
	Read8(addr uint32, kind bus.AccessKind) uint8
	Read16(addr uint32, kind bus.AccessKind) uint16
	Read32(addr uint32, kind bus.AccessKind) uint32
	Write8(addr uint32, value uint8, kind bus.AccessKind)
	Write16(addr uint32, value uint16, kind bus.AccessKind)
	Write32(addr uint32, value uint32, kind bus.AccessKind)
	Idle(cycles int)
}

// Mode is one of the ARM7TDMI's seven operating modes.
type Mode uint8

const (
	ModeUSR Mode = iota
	ModeFIQ
	ModeIRQ
	ModeSVC
	ModeABT
	ModeUND
	ModeSYS

	numModes
)

// psrModeBits is the CPSR mode-field encoding for each Mode, per the
// ARM architecture reference.
var psrModeBits = [numModes]uint32{
	ModeUSR: 0x10,
	ModeFIQ: 0x11,
	ModeIRQ: 0x12,
	ModeSVC: 0x13,
	ModeABT: 0x17,
	ModeUND: 0x1B,
	ModeSYS: 0x1F,
}

const (
	flagT uint32 = 1 << 5 // Thumb state
	flagI uint32 = 1 << 7 // IRQ disable
	flagF uint32 = 1 << 6 // FIQ disable
)

// bank holds the registers that are banked per mode: r13 (SP), r14 (LR),
// and the saved program status register (meaningless in USR/SYS, which
// share the single unbanked set).
type bank struct {
	r13, r14 uint32
	spsr     uint32
}

// CPU holds ARM7TDMI register state at the granularity the scheduler
// and Core run loop need: general registers, the current mode/flags,
// and the seven per-mode banks. It does not decode or execute real
// ARM/THUMB instructions.
type CPU struct {
	r       [16]uint32 // r0-r15; r13/r14 here are the *current* mode's view
	cpsr    uint32
	banks   [numModes]bank
	mode    Mode
	bus     Bus

	pipelineFlushed bool
}

// New constructs a CPU bound to bus. Reset must be called before Run.
func New(b Bus) *CPU {
	return &CPU{bus: b}
}

// Reset clears all registers and enters SVC mode with IRQ/FIQ disabled,
// matching ARM7TDMI power-on state. Core calls SkipBIOS afterward when
// configured to boot straight into a cartridge.
func (c *CPU) Reset() {
	c.r = [16]uint32{}
	c.banks = [numModes]bank{}
	c.mode = ModeSVC
	c.cpsr = psrModeBits[ModeSVC] | flagI | flagF
	c.r[15] = 0x00000000
	c.pipelineFlushed = true
}

// SkipBIOS plants the post-BIOS register state the real boot ROM would
// have left behind: banked stack pointers for SVC/IRQ/SYS, PC at the
// cartridge entrypoint, and SYS as the running mode. This is scenario 4
// from the emulation core's seed tests.
func (c *CPU) SkipBIOS() {
	c.SwitchMode(ModeSYS)
	c.banks[ModeSVC].r13 = 0x03007FE0
	c.banks[ModeIRQ].r13 = 0x03007FA0
	c.banks[ModeSYS].r13 = 0x03007F00
	c.r[13] = 0x03007F00
	c.r[15] = 0x08000000
	c.cpsr &^= flagT // ARM state
	c.FlushPipeline()
}

// SwitchMode banks out the current r13/r14/SPSR and banks in the target
// mode's, updating CPSR's mode field. FIQ additionally banks r8-r12,
// which this core does not model since no in-scope peripheral depends
// on FIQ register shadowing.
func (c *CPU) SwitchMode(m Mode) {
	if m == c.mode {
		return
	}
	c.banks[c.mode].r13 = c.r[13]
	c.banks[c.mode].r14 = c.r[14]
	c.mode = m
	c.r[13] = c.banks[m].r13
	c.r[14] = c.banks[m].r14
	c.cpsr = (c.cpsr &^ 0x1F) | psrModeBits[m]
}

// Mode returns the CPU's current operating mode.
func (c *CPU) Mode() Mode { return c.mode }

// R returns general register n (0-15). r15 reflects the raw PC value,
// not the pipelined fetch-ahead a real decoder would expose.
func (c *CPU) R(n int) uint32 { return c.r[n] }

// SetR writes general register n. Writing r15 implies a pipeline flush.
func (c *CPU) SetR(n int, v uint32) {
	c.r[n] = v
	if n == 15 {
		c.FlushPipeline()
	}
}

// BankedR13 and BankedR14 expose a mode's banked SP/LR without
// switching into it, which is what Core's BIOS-skip verification and
// exception entry/exit need.
func (c *CPU) BankedR13(m Mode) uint32 { return c.banks[m].r13 }
func (c *CPU) BankedR14(m Mode) uint32 { return c.banks[m].r14 }

// SetBankedR13 writes a mode's banked SP directly, used by Core to seed
// stack pointers during BIOS skip and by SaveState restoration.
func (c *CPU) SetBankedR13(m Mode, v uint32) { c.banks[m].r13 = v }

// SPSR returns the saved program status register for an exception mode.
func (c *CPU) SPSR(m Mode) uint32 { return c.banks[m].spsr }

// Thumb reports whether the CPU is currently in THUMB execution state.
func (c *CPU) Thumb() bool { return c.cpsr&flagT != 0 }

// CPSR returns the full current program status register.
func (c *CPU) CPSR() uint32 { return c.cpsr }

// SetCPSR writes the full CPSR, re-banking registers if the mode field
// changed (as happens on exception return via MSR/data-processing-to-PC
// in the real decoder).
func (c *CPU) SetCPSR(v uint32) {
	target := Mode(0)
	for m := Mode(0); m < numModes; m++ {
		if psrModeBits[m] == v&0x1F {
			target = m
			break
		}
	}
	c.cpsr = v
	c.SwitchMode(target)
}

// FlushPipeline marks that the next Run call must treat r15 as freshly
// retargeted rather than sequentially advanced; a real decoder uses
// this to discard its two-stage prefetch.
func (c *CPU) FlushPipeline() { c.pipelineFlushed = true }

// EnterException switches into m, banks the old CPSR into that mode's
// SPSR, sets LR to the return address, disables IRQs (and FIQs for
// FIQ/reset), clears Thumb, and vectors to the exception's fixed
// address. Core's IRQ dispatch enters exceptions through this.
func (c *CPU) EnterException(m Mode, vector, lrOffset uint32) {
	oldCPSR := c.cpsr
	oldPC := c.r[15]
	c.SwitchMode(m)
	c.banks[m].spsr = oldCPSR
	c.r[14] = oldPC + lrOffset
	c.cpsr &^= flagT
	c.cpsr |= flagI
	if m == ModeFIQ {
		c.cpsr |= flagF
	}
	c.r[15] = vector
	c.FlushPipeline()
}

// Exception vector addresses, fixed by the ARM7TDMI and the GBA's BIOS
// layout.
const (
	VectorUndefined uint32 = 0x04
	VectorSWI       uint32 = 0x08
	VectorIRQ       uint32 = 0x18
)

// Run executes one instruction-equivalent step: it fetches the
// instruction word at r15 (charging the fetch to the scheduler through
// Bus), advances r15 by the current instruction width, and reports back
// to Core without altering any other architectural state. Decoding and
// executing real ARM/THUMB opcodes is out of scope for this core; this
// is the minimal step that lets the halt/DMA/IRQ interleave and cycle
// accounting in Core.Run operate against a CPU that "runs".
func (c *CPU) Run() {
	width := uint32(4)
	kind := bus.Code
	if c.Thumb() {
		width = 2
		c.bus.Read16(c.r[15], kind)
	} else {
		c.bus.Read32(c.r[15], kind)
	}
	if !c.pipelineFlushed {
		c.r[15] += width
	}
	c.pipelineFlushed = false
}

// Snapshot is every general and banked register plus the current mode,
// for SaveState.
type Snapshot struct {
	R     [16]uint32
	CPSR  uint32
	Banks [numModes]bank
	Mode  Mode
}

// Snapshot captures the full register file.
func (c *CPU) Snapshot() Snapshot {
	return Snapshot{R: c.r, CPSR: c.cpsr, Banks: c.banks, Mode: c.mode}
}

// Restore replaces the register file with snap's contents. The pipeline
// is marked flushed, since a real decoder's prefetch state is not part
// of the architectural snapshot.
func (c *CPU) Restore(snap Snapshot) {
	c.r = snap.R
	c.cpsr = snap.CPSR
	c.banks = snap.Banks
	c.mode = snap.Mode
	c.pipelineFlushed = true
}
