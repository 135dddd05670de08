// Package apu implements the GBA's four PSG channels, the two PCM sample
// FIFOs, the mixer/sequencer scheduler events, and the optional MP2K
// high-level audio hook.
package apu

import (
	"github.com/valerio/go-gba/gba/bit"
	"github.com/valerio/go-gba/gba/mmio"
	"github.com/valerio/go-gba/gba/scheduler"
)

// clockHz is the GBA master clock, 16.78 MHz.
const clockHz = 16777216

// sampleRateHz maps the 2-bit BIAS sampling-rate select to an output rate.
var sampleRateHz = [4]uint32{32768, 65536, 131072, 262144}

const hleSampleRateHz = 65536

// DMARequester lets the APU ask for a FIFO DMA refill without importing
// the dma package directly.
type DMARequester interface {
	RequestFIFOA()
	RequestFIFOB()
}

// APU owns the PSG channels, the two sample FIFOs, the mixer/sequencer
// scheduling, and the resampler that feeds the host audio callback.
type APU struct {
	sched *scheduler.Scheduler
	dma   DMARequester

	enabled bool

	square1 psgChannel
	square2 psgChannel
	wave    psgChannel
	noise   psgChannel

	waveRAM    [2][16]byte
	waveBank   uint8
	waveDAC    bool

	lfsr uint16

	fifoA, fifoB fifo

	// NR50/NR51
	leftVolume, rightVolume uint8
	psgVolumeShift          uint8 // 0,1,2 => 100%,50%,25% master PSG volume

	biasLevel uint16
	biasRate  uint8 // 2-bit select into sampleRateHz

	sequencerStep int

	resampler *Resampler
	hle       hleState
}

// New constructs an APU wired to sched for its mixer/sequencer events.
// dma may be nil if FIFO DMA refill requests are not needed.
func New(sched *scheduler.Scheduler, dma DMARequester, interp Interpolation) *APU {
	a := &APU{
		sched:     sched,
		dma:       dma,
		lfsr:      0x7FFF,
		resampler: NewResampler(interp, clockHz, sampleRateHz[0]),
	}
	sched.Register(scheduler.APUMixer, func(now uint64, param int64) { a.onMixer(now) })
	sched.Register(scheduler.APUSequencer, func(now uint64, param int64) { a.onSequencer(now) })
	return a
}

// Reset restores power-on register state and reschedules the mixer and
// sequencer events.
func (a *APU) Reset() {
	a.enabled = true
	a.square1 = psgChannel{}
	a.square2 = psgChannel{}
	a.wave = psgChannel{}
	a.noise = psgChannel{}
	a.fifoA.reset()
	a.fifoB.reset()
	a.lfsr = 0x7FFF
	a.biasLevel = 0x200
	a.biasRate = 0
	a.sequencerStep = 0

	a.sched.Cancel(scheduler.APUMixer)
	a.sched.Cancel(scheduler.APUSequencer)
	a.scheduleNextMixer()
	a.sched.Add(sequencerPeriodCycles, scheduler.APUSequencer)
}

// ConfigureHLE applies the MP2K HLE config and, if enabled, scans rom for
// the mixer signature.
func (a *APU) ConfigureHLE(cfg HLEConfig, rom []byte) {
	a.hle.cfg = cfg
	a.hle.armed = false
	if cfg.Enable {
		a.hle.arm(rom)
	}
}

// ShouldIntercept reports whether the HLE mixer should substitute samples
// because pc is the detected MP2K entrypoint.
func (a *APU) ShouldIntercept(pc uint32) bool { return a.hle.ShouldIntercept(pc) }

// InterceptMixer is Core's single inspection point for the HLE hook: it
// hands the APU the decoded stereo samples the high-level mixer produced
// for this frame slice, substituting them into the FIFO contribution path.
func (a *APU) InterceptMixer(left, right int8) {
	a.fifoA.latch = left
	a.fifoB.latch = right
}

func (a *APU) currentSampleInterval() uint64 {
	if a.hle.cfg.Enable && a.hle.armed {
		return clockHz / hleSampleRateHz
	}
	return uint64(clockHz / sampleRateHz[a.biasRate&0x3])
}

func (a *APU) scheduleNextMixer() {
	interval := a.currentSampleInterval()
	now := a.sched.Now()
	// interval is always a power of two, so this aligns the next mixer
	// tick to the sample grid rather than drifting by rounding error.
	delta := interval - (now & (interval - 1))
	a.sched.Add(delta, scheduler.APUMixer)
}

const sequencerPeriodCycles = clockHz / 512 // 512 Hz frame sequencer

func (a *APU) onSequencer(now uint64) {
	switch a.sequencerStep {
	case 0, 4:
		a.tickLength()
	case 2, 6:
		a.tickLength()
		a.tickSweep()
	case 7:
		a.tickEnvelope()
	}
	a.sequencerStep = (a.sequencerStep + 1) % 8
	a.sched.Add(sequencerPeriodCycles, scheduler.APUSequencer)
}

func (a *APU) tickLength() {
	a.square1.tickLength()
	a.square2.tickLength()
	a.wave.tickLength()
	a.noise.tickLength()
}

func (a *APU) tickSweep() {
	a.square1.tickSweep()
}

func (a *APU) tickEnvelope() {
	a.square1.tickEnvelope()
	a.square2.tickEnvelope()
	a.noise.tickEnvelope()
}

// onMixer combines the four PSG outputs and the two FIFO latches into a
// stereo sample, per section 4.7.
func (a *APU) onMixer(now uint64) {
	if !a.enabled {
		a.resampler.Push(0, 0, now)
		a.scheduleNextMixer()
		return
	}

	psgShiftDiv := int32(1) << a.psgVolumeShift

	var left, right int32
	mixPSG := func(c *psgChannel, s int8) {
		v := int32(s) / psgShiftDiv
		if c.leftEnable {
			left += v
		}
		if c.rightEnable {
			right += v
		}
	}
	mixPSG(&a.square1, a.square1.sample())
	mixPSG(&a.square2, a.square2.sample())
	mixPSG(&a.wave, a.wave.sample())
	mixPSG(&a.noise, a.noise.sample())

	left *= int32(a.leftVolume + 1)
	right *= int32(a.rightVolume + 1)

	// FIFO contribution: each FIFO is routed and weighted independently by
	// its own SOUNDCNT_H enable-L/enable-R/volume bits, per section 4.7's
	// "weighted by per-FIFO volume tier" and the FIFO A/B routing decision
	// recorded in DESIGN.md.
	left += fifoContribution(&a.fifoA, true)
	right += fifoContribution(&a.fifoA, false)
	left += fifoContribution(&a.fifoB, true)
	right += fifoContribution(&a.fifoB, false)

	bias := int32(a.biasLevel)
	left = clamp10(left + bias)
	right = clamp10(right + bias)

	// recenter the 10-bit unsigned mix around zero for a signed PCM frame
	sl := int16((left - 0x200) * 32)
	sr := int16((right - 0x200) * 32)

	a.resampler.Push(sl, sr, now)
	a.scheduleNextMixer()
}

// fifoContribution weights f's latch by its own volume tier and gates it
// by its own left/right enable bit.
func fifoContribution(f *fifo, left bool) int32 {
	enabled := f.enableRight
	if left {
		enabled = f.enableLeft
	}
	if !enabled {
		return 0
	}
	v := int32(f.latch)
	if f.volumeFull {
		v *= 2
	}
	return v
}

func clamp10(v int32) int32 {
	if v < 0 {
		return 0
	}
	if v > 0x3FF {
		return 0x3FF
	}
	return v
}

// OnTimerOverflow implements timer.FIFOHook: pops a byte into whichever
// FIFO has its SOUNDCNT_H timer-select bit pointed at channel, and
// requests a DMA refill once that FIFO has drained to 4 bytes or fewer.
func (a *APU) OnTimerOverflow(channel int, times int) {
	for n := 0; n < times; n++ {
		if int(a.fifoA.timerSelect) == channel {
			if a.fifoA.pop() <= 4 && a.dma != nil {
				a.dma.RequestFIFOA()
			}
		}
		if int(a.fifoB.timerSelect) == channel {
			if a.fifoB.pop() <= 4 && a.dma != nil {
				a.dma.RequestFIFOB()
			}
		}
	}
}

// PushFIFO appends a byte written via FIFO_A/FIFO_B to the named FIFO.
func (a *APU) PushFIFO(isB bool, sample int8) {
	if isB {
		a.fifoB.push(sample)
		return
	}
	a.fifoA.push(sample)
}

// ReadIO implements bus.MMIODevice for the sound register block.
func (a *APU) ReadIO(addr uint32) uint8 {
	switch addr {
	case mmio.SOUNDCNT_L:
		return (a.leftVolume&0x7)<<4 | (a.rightVolume & 0x7)
	case mmio.SOUNDCNT_L + 1:
		var v uint8
		v = bit.SetTo(v, 0, a.square1.rightEnable)
		v = bit.SetTo(v, 1, a.square2.rightEnable)
		v = bit.SetTo(v, 2, a.wave.rightEnable)
		v = bit.SetTo(v, 3, a.noise.rightEnable)
		v = bit.SetTo(v, 4, a.square1.leftEnable)
		v = bit.SetTo(v, 5, a.square2.leftEnable)
		v = bit.SetTo(v, 6, a.wave.leftEnable)
		v = bit.SetTo(v, 7, a.noise.leftEnable)
		return v
	case mmio.SOUNDCNT_H:
		v := a.psgVolumeShift & 0x3
		v = bit.SetTo(v, 2, a.fifoA.volumeFull)
		v = bit.SetTo(v, 3, a.fifoB.volumeFull)
		return v
	case mmio.SOUNDCNT_H + 1:
		var v uint8
		v = bit.SetTo(v, 0, a.fifoA.enableRight)
		v = bit.SetTo(v, 1, a.fifoA.enableLeft)
		v = bit.SetTo(v, 2, a.fifoA.timerSelect != 0)
		v = bit.SetTo(v, 4, a.fifoB.enableRight)
		v = bit.SetTo(v, 5, a.fifoB.enableLeft)
		v = bit.SetTo(v, 6, a.fifoB.timerSelect != 0)
		return v
	case mmio.SOUNDCNT_X:
		var v uint8
		v = bit.SetTo(v, 0, a.square1.enabled)
		v = bit.SetTo(v, 1, a.square2.enabled)
		v = bit.SetTo(v, 2, a.wave.enabled)
		v = bit.SetTo(v, 3, a.noise.enabled)
		v = bit.SetTo(v, 7, a.enabled)
		return v
	case mmio.SOUNDBIAS:
		return bit.Low8(a.biasLevel)
	case mmio.SOUNDBIAS + 1:
		v := bit.High8(a.biasLevel) & 0x3F
		v |= a.biasRate << 6
		return v
	}
	if addr >= mmio.WAVE_RAM && addr < mmio.WAVE_RAM+16 {
		return a.waveRAM[1-a.waveBank][addr-mmio.WAVE_RAM]
	}
	return 0
}

// WriteIO implements bus.MMIODevice for the sound register block.
func (a *APU) WriteIO(addr uint32, value uint8) {
	switch addr {
	case mmio.SOUNDCNT_L:
		a.rightVolume = value & 0x7
		a.leftVolume = (value >> 4) & 0x7
	case mmio.SOUNDCNT_L + 1:
		a.square1.rightEnable = bit.IsSet(value, 0)
		a.square2.rightEnable = bit.IsSet(value, 1)
		a.wave.rightEnable = bit.IsSet(value, 2)
		a.noise.rightEnable = bit.IsSet(value, 3)
		a.square1.leftEnable = bit.IsSet(value, 4)
		a.square2.leftEnable = bit.IsSet(value, 5)
		a.wave.leftEnable = bit.IsSet(value, 6)
		a.noise.leftEnable = bit.IsSet(value, 7)
	case mmio.SOUNDCNT_H:
		a.psgVolumeShift = value & 0x3
		a.fifoA.volumeFull = bit.IsSet(value, 2)
		a.fifoB.volumeFull = bit.IsSet(value, 3)
	case mmio.SOUNDCNT_H + 1:
		a.fifoA.enableRight = bit.IsSet(value, 0)
		a.fifoA.enableLeft = bit.IsSet(value, 1)
		if bit.IsSet(value, 2) {
			a.fifoA.timerSelect = 1
		} else {
			a.fifoA.timerSelect = 0
		}
		if bit.IsSet(value, 3) {
			a.fifoA.reset()
		}
		a.fifoB.enableRight = bit.IsSet(value, 4)
		a.fifoB.enableLeft = bit.IsSet(value, 5)
		if bit.IsSet(value, 6) {
			a.fifoB.timerSelect = 1
		} else {
			a.fifoB.timerSelect = 0
		}
		if bit.IsSet(value, 7) {
			a.fifoB.reset()
		}
	case mmio.SOUNDCNT_X:
		a.enabled = bit.IsSet(value, 7)
	case mmio.SOUNDBIAS:
		// bit 0 is unused on real hardware; mask it off so only bits
		// 1-7 of the low byte are stored.
		a.biasLevel = bit.Combine16(bit.High8(a.biasLevel), value&0xFE)
	case mmio.SOUNDBIAS + 1:
		a.biasLevel = bit.Combine16(value&0x3F, bit.Low8(a.biasLevel))
		newRate := (value >> 6) & 0x3
		if newRate != a.biasRate {
			a.biasRate = newRate
			a.resampler.Reconfigure(a.resamplerInterp(), clockHz, a.currentOutputRate(), a.sched.Now())
		}
	case mmio.FIFO_A, mmio.FIFO_A + 1, mmio.FIFO_A + 2, mmio.FIFO_A + 3:
		a.PushFIFO(false, int8(value))
	case mmio.FIFO_B, mmio.FIFO_B + 1, mmio.FIFO_B + 2, mmio.FIFO_B + 3:
		a.PushFIFO(true, int8(value))
	}

	if addr >= mmio.WAVE_RAM && addr < mmio.WAVE_RAM+16 {
		a.waveRAM[1-a.waveBank][addr-mmio.WAVE_RAM] = value
	}
}

func (a *APU) currentOutputRate() uint32 {
	if a.hle.cfg.Enable && a.hle.armed {
		return hleSampleRateHz
	}
	return sampleRateHz[a.biasRate&0x3]
}

func (a *APU) resamplerInterp() Interpolation { return a.resampler.interp }

// Resampler exposes the producer/consumer ring buffer endpoint to Core,
// which hands it to the host audio device collaborator.
func (a *APU) Resampler() *Resampler { return a.resampler }

// EndAudioBlock flushes every sample pushed to the resampler since the
// last call, making them available to Read. Core calls this once per Run
// slice; without it the Sinc kernels' underlying blip buffers never
// advance and eventually refuse further deltas.
func (a *APU) EndAudioBlock() {
	a.resampler.EndBlock(a.sched.Now())
}

// Snapshot is every PSG/FIFO/mixer register plus the HLE hook's armed
// state, for SaveState. The resampler's ring buffer is never part of it:
// it holds in-flight host audio, not emulation state, and is reset by
// the host's own audio device lifecycle.
type Snapshot struct {
	Enabled                          bool
	Square1, Square2, Wave, Noise    psgChannel
	WaveRAM                          [2][16]byte
	WaveBank                         uint8
	WaveDAC                          bool
	LFSR                             uint16
	FIFOA, FIFOB                     fifo
	LeftVolume, RightVolume          uint8
	PSGVolumeShift                   uint8
	BiasLevel                        uint16
	BiasRate                         uint8
	SequencerStep                    int
	HLEArmed                         bool
	HLEHookPC                        uint32
}

// Snapshot captures every register and the HLE hook's armed state.
func (a *APU) Snapshot() Snapshot {
	return Snapshot{
		Enabled: a.enabled,
		Square1: a.square1, Square2: a.square2, Wave: a.wave, Noise: a.noise,
		WaveRAM: a.waveRAM, WaveBank: a.waveBank, WaveDAC: a.waveDAC,
		LFSR:           a.lfsr,
		FIFOA:          a.fifoA,
		FIFOB:          a.fifoB,
		LeftVolume:     a.leftVolume,
		RightVolume:    a.rightVolume,
		PSGVolumeShift: a.psgVolumeShift,
		BiasLevel:      a.biasLevel,
		BiasRate:       a.biasRate,
		SequencerStep:  a.sequencerStep,
		HLEArmed:       a.hle.armed,
		HLEHookPC:      a.hle.hookPC,
	}
}

// Restore replaces every register and the HLE hook's armed state with
// snap's contents.
func (a *APU) Restore(snap Snapshot) {
	a.enabled = snap.Enabled
	a.square1, a.square2, a.wave, a.noise = snap.Square1, snap.Square2, snap.Wave, snap.Noise
	a.waveRAM, a.waveBank, a.waveDAC = snap.WaveRAM, snap.WaveBank, snap.WaveDAC
	a.lfsr = snap.LFSR
	a.fifoA, a.fifoB = snap.FIFOA, snap.FIFOB
	a.leftVolume, a.rightVolume = snap.LeftVolume, snap.RightVolume
	a.psgVolumeShift = snap.PSGVolumeShift
	a.biasLevel, a.biasRate = snap.BiasLevel, snap.BiasRate
	a.sequencerStep = snap.SequencerStep
	a.hle.armed = snap.HLEArmed
	a.hle.hookPC = snap.HLEHookPC
}
