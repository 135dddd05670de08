package apu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-gba/gba/mmio"
	"github.com/valerio/go-gba/gba/scheduler"
)

type fakeDMA struct {
	reqA, reqB int
}

func (f *fakeDMA) RequestFIFOA() { f.reqA++ }
func (f *fakeDMA) RequestFIFOB() { f.reqB++ }

// TestTimerOverflowDrainsFIFOToLatch checks that after enqueuing four
// bytes, each timer overflow pops one into the latch.
func TestTimerOverflowDrainsFIFOToLatch(t *testing.T) {
	sched := scheduler.New()
	dma := &fakeDMA{}
	a := New(sched, dma, Cosine)
	a.Reset()

	a.PushFIFO(false, 0x01)
	a.PushFIFO(false, 0x02)
	a.PushFIFO(false, 0x03)
	a.PushFIFO(false, 0x04)

	a.OnTimerOverflow(0, 1)
	assert.Equal(t, int8(0x01), a.fifoA.latch)

	a.OnTimerOverflow(0, 1)
	assert.Equal(t, int8(0x02), a.fifoA.latch)
}

func TestFIFORequestsDMARefillAtFourOrFewer(t *testing.T) {
	sched := scheduler.New()
	dma := &fakeDMA{}
	a := New(sched, dma, Cosine)
	a.Reset()

	a.PushFIFO(false, 1)
	a.OnTimerOverflow(0, 1) // pops to count 0, which is <= 4

	assert.GreaterOrEqual(t, dma.reqA, 1)
}

// TestFIFOMixerRoutingAndVolumeTier checks that SOUNDCNT_H's high byte
// gates each FIFO's L/R contribution independently and that the volume
// tier bit doubles it, per section 4.7's per-FIFO weighting.
func TestFIFOMixerRoutingAndVolumeTier(t *testing.T) {
	sched := scheduler.New()
	a := New(sched, nil, Cosine)
	a.Reset()

	// FIFO A: left only, 50% volume. FIFO B: right only, 100% volume.
	a.WriteIO(mmio.SOUNDCNT_H, 0x00)        // SOUNDCNT_H low: psg vol=0, both FIFOs 50%
	a.WriteIO(mmio.SOUNDCNT_H+1, 0x02|0x10) // high: FIFO A enableLeft (bit1), FIFO B enableRight (bit4)

	a.fifoA.latch = 10
	a.fifoB.latch = 20

	left := fifoContribution(&a.fifoA, true) + fifoContribution(&a.fifoB, true)
	right := fifoContribution(&a.fifoA, false) + fifoContribution(&a.fifoB, false)
	assert.Equal(t, int32(10), left)  // only FIFO A reaches left
	assert.Equal(t, int32(20), right) // only FIFO B reaches right

	a.WriteIO(mmio.SOUNDCNT_H, 0x08) // FIFO B volume tier -> 100%
	right = fifoContribution(&a.fifoB, false)
	assert.Equal(t, int32(40), right) // doubled
}

func TestSOUNDCNTHighByteResetBitClearsFIFO(t *testing.T) {
	sched := scheduler.New()
	a := New(sched, nil, Cosine)
	a.Reset()

	a.PushFIFO(false, 1)
	a.PushFIFO(false, 2)
	a.WriteIO(mmio.SOUNDCNT_H+1, 0x08) // FIFO A reset bit (bit3 of high byte)

	assert.Equal(t, 0, a.fifoA.count)
}

func TestMixerEventReschedulesOnSampleGrid(t *testing.T) {
	sched := scheduler.New()
	a := New(sched, nil, Cosine)
	a.Reset()

	require.True(t, sched.Pending(scheduler.APUMixer))

	sched.AdvanceBy(int(sched.RemainingCycles()))
	// after firing, mixer must have rescheduled itself
	assert.True(t, sched.Pending(scheduler.APUMixer))
}

func TestMasterDisableStillProducesSilentSamples(t *testing.T) {
	sched := scheduler.New()
	a := New(sched, nil, Cosine)
	a.Reset()
	a.enabled = false

	out := make([]float32, 8)
	a.resampler.EndBlock(sched.Now())
	n := a.resampler.Read(out)
	_ = n // resampler may legitimately have nothing buffered yet; just exercise the path
}

// TestSincKernelSurvivesManyBlocksWithoutOverflow drives the Sinc64 blip
// kernel across many frame-length blocks the way Core.Run does: the
// mixer event pushes deltas timestamped on the scheduler's absolute,
// ever-increasing clock, and EndAudioBlock is called once per block.
// Without rebasing each push against the last EndBlock, blip's AddDelta
// eventually rejects a timestamp outside its buffered range; this test
// runs well past that point (roughly 7-8 frames) and still produces
// samples on request.
func TestSincKernelSurvivesManyBlocksWithoutOverflow(t *testing.T) {
	sched := scheduler.New()
	a := New(sched, nil, Sinc64)
	a.Reset()

	const cyclesPerFrame = 280896
	for frame := 0; frame < 16; frame++ {
		sched.AdvanceBy(cyclesPerFrame)
		a.EndAudioBlock()
	}

	out := make([]float32, 4096)
	n := a.resampler.Read(out)
	assert.Greater(t, n, 0)
}
