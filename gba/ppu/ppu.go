// Package ppu implements the GBA's pixel engine at its scheduling
// interface: scanline timing, V-blank/H-blank/V-count interrupt and DMA
// generation, and the register/memory surface (DISPCNT, DISPSTAT,
// VCOUNT, BGxHOFS/VOFS, palette/VRAM/OAM). The per-dot background and
// sprite compositing pipeline is out of scope for this core; drawLine is
// a single simplified pass kept only so the frame buffer is non-empty,
// not a faithful renderer.
package ppu

import (
	"github.com/valerio/go-gba/gba/bit"
	"github.com/valerio/go-gba/gba/irq"
	"github.com/valerio/go-gba/gba/mmio"
	"github.com/valerio/go-gba/gba/scheduler"
)

const (
	// ScreenWidth and ScreenHeight are the visible frame buffer dimensions.
	ScreenWidth  = 240
	ScreenHeight = 160

	visibleLines = ScreenHeight
	vblankLines  = 68
	totalLines   = visibleLines + vblankLines // 228

	cyclesPerScanline = 1232
	hdrawCycles       = 1007
	hblankCycles      = cyclesPerScanline - hdrawCycles // 225
)

// DMARequester is the subset of the DMA engine's contract the PPU drives:
// it requests a channel scan on VBlank/HBlank occasions without importing
// the dma package (which would import bus, which the PPU also needs).
type DMARequester interface {
	RequestVBlank()
	RequestHBlank()
}

// VideoDevice is the host collaborator that receives a completed frame,
// per the Core API's video_dev contract. Draw is called once per V-blank.
type VideoDevice interface {
	Draw(framebuffer []uint32)
}

// VideoMemory is the Bus's palette/VRAM/OAM backing stores. The Bus
// already owns these regions (for its own address dispatch and 8-bit
// write masking); the PPU reads and writes through this accessor rather
// than keeping a second copy.
type VideoMemory interface {
	Palette() []byte
	VRAM() []byte
	OAM() []byte
}

// background holds the per-background scroll registers; only the
// text-mode BGxHOFS/BGxVOFS pair is modeled, matching the
// interface-only scope.
type background struct {
	hofs, vofs uint16 // 9-bit scroll registers
}

// PPU runs the line-timed scanline state machine and owns the frame
// buffer and display registers; palette/VRAM/OAM storage is the Bus's.
type PPU struct {
	sched *scheduler.Scheduler
	irqc  *irq.Controller
	dma   DMARequester
	video VideoDevice
	mem   VideoMemory

	line uint16 // current VCOUNT, 0..227

	dispcnt  uint16
	dispstat uint16 // bit0 vblank, bit1 hblank, bit2 vcounter, bit3-5 irq enables, bit8-15 LYC

	bg [4]background

	framebuffer [ScreenWidth * ScreenHeight]uint32
}

// New constructs a PPU and registers its scanline events with sched. dma
// and video may be nil in headless/test contexts; a nil video simply
// skips the per-frame callback.
func New(sched *scheduler.Scheduler, irqc *irq.Controller, dma DMARequester, video VideoDevice, mem VideoMemory) *PPU {
	p := &PPU{sched: sched, irqc: irqc, dma: dma, video: video, mem: mem}
	sched.Register(scheduler.PPUHDraw, p.onHDraw)
	sched.Register(scheduler.PPUHBlank, p.onHBlank)
	return p
}

// Reset clears all mutable PPU state and arms the first HDraw event.
func (p *PPU) Reset() {
	p.line = 0
	p.dispcnt = 0
	p.dispstat = 0
	p.bg = [4]background{}
	p.framebuffer = [ScreenWidth * ScreenHeight]uint32{}
	p.sched.Add(0, scheduler.PPUHDraw)
}

// onHDraw fires at the start of every scanline (dot 0): it clears the
// H-blank flag, evaluates the V-count-match interrupt, and arms H-blank
// hdrawCycles later.
func (p *PPU) onHDraw(now uint64, param int64) {
	p.dispstat = bit.Clear(p.dispstat, 1)

	lyc := uint16(bit.Extract(p.dispstat, 15, 8))
	matched := p.line == lyc
	p.dispstat = bit.SetTo(p.dispstat, 2, matched)
	if matched && bit.IsSet(p.dispstat, 5) {
		p.irqc.Raise(irq.VCount)
	}

	if p.line < visibleLines {
		p.drawLine(p.line)
	}

	p.sched.Add(hdrawCycles, scheduler.PPUHBlank)
}

// onHBlank fires at dot hdrawCycles: it sets the H-blank flag, raises
// the H-blank interrupt and DMA occasion, advances VCOUNT, and on
// entering/leaving V-blank does the same for that flag, interrupt and
// DMA occasion. It then arms the next HDraw hblankCycles later.
func (p *PPU) onHBlank(now uint64, param int64) {
	p.dispstat = bit.Set(p.dispstat, 1)
	if bit.IsSet(p.dispstat, 4) {
		p.irqc.Raise(irq.HBlank)
	}
	if p.line < visibleLines && p.dma != nil {
		p.dma.RequestHBlank()
	}

	p.line++
	if p.line == visibleLines {
		p.dispstat = bit.Set(p.dispstat, 0)
		if bit.IsSet(p.dispstat, 3) {
			p.irqc.Raise(irq.VBlank)
		}
		if p.dma != nil {
			p.dma.RequestVBlank()
		}
		if p.video != nil {
			p.video.Draw(p.framebuffer[:])
		}
	}
	if p.line == totalLines {
		p.line = 0
		p.dispstat = bit.Clear(p.dispstat, 0)
	}

	p.sched.Add(hblankCycles, scheduler.PPUHDraw)
}

// drawLine is a placeholder pass: it paints the backdrop color (palette
// entry 0) across the line so the frame buffer is well-defined. Real
// background/sprite compositing is out of scope for this core.
func (p *PPU) drawLine(line uint16) {
	pram := p.mem.Palette()
	backdrop := bgr555ToRGBA(uint16(pram[0]) | uint16(pram[1])<<8)
	row := int(line) * ScreenWidth
	for x := 0; x < ScreenWidth; x++ {
		p.framebuffer[row+x] = backdrop
	}
}

func bgr555ToRGBA(c uint16) uint32 {
	r := uint32(c&0x1F) * 255 / 31
	g := uint32((c>>5)&0x1F) * 255 / 31
	b := uint32((c>>10)&0x1F) * 255 / 31
	return 0xFF000000 | b<<16 | g<<8 | r
}

// FrameBuffer returns the current frame buffer, each pixel packed as
// 0xAABBGGRR (red in the low byte),
// as the Core API's GetVRAM-style accessor for the video surface.
func (p *PPU) FrameBuffer() []uint32 { return p.framebuffer[:] }

// PRAM, VRAM and OAM expose the Bus-owned backing stores for the Core
// API's GetPRAM/GetVRAM/GetOAM accessors.
func (p *PPU) PRAM() []byte { return p.mem.Palette() }
func (p *PPU) VRAM() []byte { return p.mem.VRAM() }
func (p *PPU) OAM() []byte  { return p.mem.OAM() }

// BGHOFS and BGVOFS return the scroll registers for background bg (0..3),
// the Core API's GetBGHOFS/GetBGVOFS accessors.
func (p *PPU) BGHOFS(bg int) uint16 { return p.bg[bg].hofs }
func (p *PPU) BGVOFS(bg int) uint16 { return p.bg[bg].vofs }

// VCount returns the current scanline, backing the VCOUNT register read.
func (p *PPU) VCount() uint16 { return p.line }

// ReadIO implements bus.MMIODevice for the display registers.
func (p *PPU) ReadIO(addr uint32) uint8 {
	switch {
	case addr == mmio.DISPCNT:
		return bit.Low8(p.dispcnt)
	case addr == mmio.DISPCNT+1:
		return bit.High8(p.dispcnt)
	case addr == mmio.DISPSTAT:
		return bit.Low8(p.dispstat)
	case addr == mmio.DISPSTAT+1:
		return bit.High8(p.dispstat)
	case addr == mmio.VCOUNT:
		return bit.Low8(p.line)
	case addr == mmio.VCOUNT+1:
		return bit.High8(p.line)
	}
	if off, ok := bgScrollOffset(addr); ok {
		reg := p.bgScrollReg(off.bg, off.isVOFS)
		if off.hi {
			return bit.High8(*reg)
		}
		return bit.Low8(*reg)
	}
	return 0
}

// WriteIO implements bus.MMIODevice for the display registers. VCOUNT
// and the LY-compare-matched bit of DISPSTAT are read-only.
func (p *PPU) WriteIO(addr uint32, value uint8) {
	switch {
	case addr == mmio.DISPCNT:
		p.dispcnt = bit.Combine16(bit.High8(p.dispcnt), value)
		return
	case addr == mmio.DISPCNT+1:
		p.dispcnt = bit.Combine16(value, bit.Low8(p.dispcnt))
		return
	case addr == mmio.DISPSTAT:
		// low byte bits 0-2 (vblank/hblank/vcounter flags) are read-only
		keep := bit.Low8(p.dispstat) & 0x07
		p.dispstat = bit.Combine16(bit.High8(p.dispstat), keep|(value&^0x07))
		return
	case addr == mmio.DISPSTAT+1:
		p.dispstat = bit.Combine16(value, bit.Low8(p.dispstat))
		return
	}
	if off, ok := bgScrollOffset(addr); ok {
		reg := p.bgScrollReg(off.bg, off.isVOFS)
		if off.hi {
			*reg = bit.Combine16(value&0x01, bit.Low8(*reg))
		} else {
			*reg = bit.Combine16(bit.High8(*reg), value)
		}
	}
}

func (p *PPU) bgScrollReg(bg int, isVOFS bool) *uint16 {
	if isVOFS {
		return &p.bg[bg].vofs
	}
	return &p.bg[bg].hofs
}

type scrollOffset struct {
	bg     int
	isVOFS bool
	hi     bool
}

// Snapshot is the display registers, scroll registers, current scanline
// and frame buffer, for SaveState.
type Snapshot struct {
	Line               uint16
	DISPCNT, DISPSTAT  uint16
	BG                 [4]background
	FrameBuffer        [ScreenWidth * ScreenHeight]uint32
}

// Snapshot captures the full register and frame-buffer state.
func (p *PPU) Snapshot() Snapshot {
	return Snapshot{Line: p.line, DISPCNT: p.dispcnt, DISPSTAT: p.dispstat, BG: p.bg, FrameBuffer: p.framebuffer}
}

// Restore replaces the register and frame-buffer state with snap's
// contents.
func (p *PPU) Restore(snap Snapshot) {
	p.line = snap.Line
	p.dispcnt = snap.DISPCNT
	p.dispstat = snap.DISPSTAT
	p.bg = snap.BG
	p.framebuffer = snap.FrameBuffer
}

// bgScrollOffset maps one of the eight BGxHOFS/BGxVOFS byte addresses to
// its (background, register, byte) coordinates.
func bgScrollOffset(addr uint32) (scrollOffset, bool) {
	if addr < mmio.BG0HOFS || addr > mmio.BG3VOFS+1 {
		return scrollOffset{}, false
	}
	rel := addr - mmio.BG0HOFS
	bg := int(rel / 4)
	within := rel % 4
	return scrollOffset{bg: bg, isVOFS: within >= 2, hi: within%2 == 1}, true
}
