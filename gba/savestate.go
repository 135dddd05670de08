package gba

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/valerio/go-gba/gba/apu"
	"github.com/valerio/go-gba/gba/bus"
	"github.com/valerio/go-gba/gba/cpu"
	"github.com/valerio/go-gba/gba/dma"
	"github.com/valerio/go-gba/gba/irq"
	"github.com/valerio/go-gba/gba/keypad"
	"github.com/valerio/go-gba/gba/ppu"
	"github.com/valerio/go-gba/gba/rtc"
	"github.com/valerio/go-gba/gba/scheduler"
	"github.com/valerio/go-gba/gba/timer"
)

// SaveStateVersion is bumped whenever a field is added, removed, or
// reinterpreted; LoadState rejects a SaveState whose Version does not
// match, rather than guess at a migration. Binary compatibility across
// versions is the host's problem to solve (or not), per the Core API
// contract.
const SaveStateVersion = 1

// SaveState is the opaque by-value snapshot CopyState produces and
// LoadState consumes: every component's register and working-memory
// state, enough to resume a session bit-for-bit identically. ROM/BIOS
// images and the host's audio/video device collaborators are not part
// of it; the host re-attaches those before LoadState.
type SaveState struct {
	Version int

	Scheduler scheduler.Snapshot
	Bus       bus.Snapshot
	IRQ       irq.Snapshot
	DMA       dma.Snapshot
	Timer     timer.Snapshot
	Keypad    keypad.Snapshot
	APU       apu.Snapshot
	PPU       ppu.Snapshot
	CPU       cpu.Snapshot

	HasRTC bool
	RTC    rtc.Snapshot

	Halted bool
}

// CopyState fills out with a complete snapshot of the Core's current
// state.
func (c *Core) CopyState(out *SaveState) {
	out.Version = SaveStateVersion
	out.Scheduler = c.sched.Snapshot()
	out.Bus = c.bus.Snapshot()
	out.IRQ = c.irqc.Snapshot()
	out.DMA = c.dmac.Snapshot()
	out.Timer = c.timers.Snapshot()
	out.Keypad = c.keys.Snapshot()
	out.APU = c.apu.Snapshot()
	out.PPU = c.ppu.Snapshot()
	out.CPU = c.cpu.Snapshot()
	out.Halted = c.halted

	if c.gpio.rtc != nil {
		out.HasRTC = true
		out.RTC = c.gpio.rtc.Snapshot()
	} else {
		out.HasRTC = false
	}
}

// LoadState restores every component from state. A RTC chip must already
// have been created via CreateRTC if state.HasRTC is set; LoadState
// restores its transaction state but does not create one, since the
// GPIO wiring is a host decision made once at session start.
func (c *Core) LoadState(state SaveState) error {
	if state.Version != SaveStateVersion {
		return fmt.Errorf("gba: save state version %d, want %d", state.Version, SaveStateVersion)
	}

	c.sched.Restore(state.Scheduler)
	c.bus.Restore(state.Bus)
	c.irqc.Restore(state.IRQ)
	c.dmac.Restore(state.DMA)
	c.timers.Restore(state.Timer)
	c.keys.Restore(state.Keypad)
	c.apu.Restore(state.APU)
	c.ppu.Restore(state.PPU)
	c.cpu.Restore(state.CPU)
	c.halted = state.Halted

	if state.HasRTC {
		if c.gpio.rtc == nil {
			return fmt.Errorf("gba: save state has an RTC but none was created via CreateRTC")
		}
		c.gpio.rtc.Restore(state.RTC)
	}

	return nil
}

// Marshal encodes state as an opaque byte blob a host can write to disk.
// gob is the stdlib's own self-describing binary codec; nothing in the
// example corpus offers a serialization format for an ad hoc struct tree
// like this one without a code-generation step (msgp, the library the
// nestor example leans on for its own snapshot, requires `go generate`),
// so this stays on the standard library rather than adopt a generator
// this core never runs (see DESIGN.md).
func (state SaveState) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalSaveState decodes a blob produced by SaveState.Marshal.
func UnmarshalSaveState(data []byte) (SaveState, error) {
	var state SaveState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return SaveState{}, err
	}
	return state, nil
}
