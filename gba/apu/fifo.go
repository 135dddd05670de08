package apu

// fifo is one of the two 4-byte PCM sample FIFOs (A or B) driven by timer
// overflow. The byte-wide latch holds the sample currently contributing
// to the mixer; it changes only when pop or reset is called.
// enableLeft/enableRight and volumeFull hold the FIFO's own L/R routing and
// volume tier, set by the APU's SOUNDCNT_H writes (volume tier from the low
// byte, routing from the high byte), independent of the other FIFO's and
// of the PSG's NR51/NR50 routing.
type fifo struct {
	buf   [4]int8
	count int
	latch int8

	enableLeft, enableRight bool
	volumeFull              bool // false: 50%, true: 100%
	timerSelect             uint8
}

func (f *fifo) push(sample int8) {
	if f.count >= len(f.buf) {
		return // hardware drops writes to a full FIFO
	}
	f.buf[f.count] = sample
	f.count++
}

// pop shifts the oldest byte into latch and returns the new count.
func (f *fifo) pop() int {
	if f.count == 0 {
		return 0
	}
	f.latch = f.buf[0]
	copy(f.buf[:], f.buf[1:])
	f.count--
	return f.count
}

func (f *fifo) reset() {
	f.buf = [4]int8{}
	f.count = 0
	f.latch = 0
}
