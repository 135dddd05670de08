package rtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerio/go-gba/gba/irq"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

// sendByte drives 8 SCK rising edges carrying v MSB-first, the wire
// format decodeCommand expects for a command byte.
func sendByte(c *Chip, v byte) {
	for i := 7; i >= 0; i-- {
		bitVal := (v>>uint(i))&1 == 1
		c.Step(false, bitVal)
		c.Step(true, bitVal)
	}
}

// readBytes clocks out n bytes, LSB-first per byte (matching Sending's
// shift-out order), and reassembles them in their natural byte values.
func readBytes(c *Chip, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n*8; i++ {
		c.Step(false, false)
		out[i/8] |= boolBit(c.Step(true, false)) << uint(i%8)
	}
	return out
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// commandByte builds the 0110-DRRR framed command byte for register
// reg; read selects the direction bit.
func commandByte(reg Register, read bool) byte {
	b := byte(0x60) | byte(reg)
	if read {
		b |= 0x08
	}
	return b
}

// TestDateTimeRead checks the BCD encoding of a DateTime register read.
// 2024-03-15 is actually a Friday on the real calendar (a commonly cited
// fixture mislabels it Wednesday); this test derives the weekday byte
// from the date itself, the way a real clock must, see DESIGN.md.
func TestDateTimeRead(t *testing.T) {
	fixed := time.Date(2024, time.March, 15, 13, 45, 7, 0, time.UTC)
	irqc := irq.New()
	c := NewWithClock(irqc, fixedClock{fixed})
	c.Reset()

	c.SetCS(true)
	sendByte(c, commandByte(RegDateTime, true))
	got := readBytes(c, 7)

	want := []byte{
		0x24, 0x03, 0x15,
		byte(fixed.Weekday()),
		0x13, 0x45, 0x07,
	}
	assert.Equal(t, want, got)
}

// TestTimeReadIn12HourModeFoldsPMBitBeforeBCD checks that a PM hour in
// 12-hour mode has 0x40 folded into the raw decimal hour before BCD
// encoding (hour 13 -> decimal 65 -> BCD 0x65), not applied as a clean
// bit-7 flag over a 1-12 hour.
func TestTimeReadIn12HourModeFoldsPMBitBeforeBCD(t *testing.T) {
	fixed := time.Date(2024, time.March, 15, 13, 45, 7, 0, time.UTC)
	irqc := irq.New()
	c := NewWithClock(irqc, fixedClock{fixed})
	c.Reset()
	c.control = 0 // clear bit6: 12h mode

	c.SetCS(true)
	sendByte(c, commandByte(RegTime, true))
	got := readBytes(c, 3)

	assert.Equal(t, []byte{0x65, 0x45, 0x07}, got)
}

func TestForceIRQRaisesGamePakSource(t *testing.T) {
	irqc := irq.New()
	c := New(irqc)
	c.Reset()

	c.SetCS(true)
	sendByte(c, commandByte(RegForceIRQ, false))

	assert.NotZero(t, irqc.IF()&(1<<uint(irq.GamePak)))
}

func TestControlWriteThenReadRoundTrips(t *testing.T) {
	irqc := irq.New()
	c := New(irqc)
	c.Reset()

	c.SetCS(true)
	sendByte(c, commandByte(RegControl, false)) // write
	for i := 0; i < 8; i++ {
		bitVal := i == 1 // MSB-first bit index 1 is bit6: the 24h flag
		c.Step(false, bitVal)
		c.Step(true, bitVal)
	}
	require.Equal(t, StateComplete, c.state)

	c.SetCS(false)
	c.SetCS(true)
	sendByte(c, commandByte(RegControl, true)) // read
	got := readBytes(c, 1)
	assert.NotZero(t, got[0]&0x40)
}

func TestUnknownCommandHoldsStateWithoutPanic(t *testing.T) {
	irqc := irq.New()
	c := New(irqc)
	c.Reset()

	c.SetCS(true)
	sendByte(c, 0x00) // neither nibble is 0x6

	assert.Equal(t, StateIdle, c.state)
}
