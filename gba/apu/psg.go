package apu

// psgChannel models the register/envelope/length/sweep state shared by
// the four PSG channels. The exact per-cycle waveform generation (duty
// cycle edges, wave RAM playback, LFSR noise taps) is a separately scoped
// concern; what this core owns is the sequencer-driven length/envelope/
// sweep state machine and the channel's current output amplitude, which
// is all the mixer needs.
type psgChannel struct {
	enabled bool

	// length
	lengthCounter uint16
	lengthEnabled bool

	// envelope (square/noise channels)
	volume            uint8
	envelopeInitial   uint8
	envelopeDirection int8 // +1 increase, -1 decrease
	envelopePeriod    uint8
	envelopeTimer     uint8

	// sweep (square 1 only)
	sweepEnabled bool
	sweepPeriod  uint8
	sweepShift   uint8
	sweepNegate  bool
	sweepTimer   uint8
	frequency    uint16

	// duty (square channels)
	dutyStep   uint8
	dutyCycle  uint8 // 0..3 selecting 12.5/25/50/75%

	leftEnable  bool
	rightEnable bool
}

var dutyTable = [4][8]uint8{
	{0, 0, 0, 0, 0, 0, 0, 1}, // 12.5%
	{1, 0, 0, 0, 0, 0, 0, 1}, // 25%
	{1, 0, 0, 0, 0, 1, 1, 1}, // 50%
	{0, 1, 1, 1, 1, 1, 1, 0}, // 75%
}

// tickLength runs at 256 Hz; called by the sequencer on steps 0,2,4,6.
func (c *psgChannel) tickLength() {
	if !c.lengthEnabled || c.lengthCounter == 0 {
		return
	}
	c.lengthCounter--
	if c.lengthCounter == 0 {
		c.enabled = false
	}
}

// tickEnvelope runs at 64 Hz; called by the sequencer on step 7.
func (c *psgChannel) tickEnvelope() {
	if c.envelopePeriod == 0 {
		return
	}
	if c.envelopeTimer > 0 {
		c.envelopeTimer--
	}
	if c.envelopeTimer == 0 {
		c.envelopeTimer = c.envelopePeriod
		next := int8(c.volume) + c.envelopeDirection
		if next >= 0 && next <= 15 {
			c.volume = uint8(next)
		}
	}
}

// tickSweep runs at 128 Hz on square 1; called by the sequencer on steps 2,6.
func (c *psgChannel) tickSweep() {
	if !c.sweepEnabled || c.sweepPeriod == 0 {
		return
	}
	if c.sweepTimer > 0 {
		c.sweepTimer--
	}
	if c.sweepTimer == 0 {
		c.sweepTimer = c.sweepPeriod
		delta := c.frequency >> c.sweepShift
		if c.sweepNegate {
			if delta <= c.frequency {
				c.frequency -= delta
			}
		} else {
			if c.frequency+delta <= 0x7FF {
				c.frequency += delta
			} else {
				c.enabled = false
			}
		}
	}
}

// sample returns the channel's current signed amplitude in [-15, 15],
// a simplified stand-in for the real duty/wave/LFSR generator.
func (c *psgChannel) sample() int8 {
	if !c.enabled || c.volume == 0 {
		return 0
	}
	if dutyTable[c.dutyCycle][c.dutyStep%8] == 0 {
		return -int8(c.volume)
	}
	return int8(c.volume)
}
