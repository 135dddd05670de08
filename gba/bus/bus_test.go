package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/valerio/go-gba/gba/scheduler"
)

func TestReadWriteWRAM(t *testing.T) {
	b := New(scheduler.New())
	b.Write32(0x02000000, 0xDEADBEEF, NonSequential)
	assert.Equal(t, uint32(0xDEADBEEF), b.Read32(0x02000000, NonSequential))
}

func TestOpenBusReturnsLastCodeFetch(t *testing.T) {
	b := New(scheduler.New())
	b.AttachROM(make([]byte, 0x1000))
	b.Read32(0x08000000, Code) // primes lastCodeFetch with zero, deterministic

	v := b.Read32(0x0D000000+0x2000000, NonSequential) // well past any mapped region
	assert.Equal(t, b.LastCodeFetch(), v)
}

func TestReadOnlyBIOSIgnoresWrites(t *testing.T) {
	b := New(scheduler.New())
	b.AttachBIOS([]byte{0x11, 0x22, 0x33, 0x44})
	before := b.Read32(0x00000000, NonSequential)

	b.Write32(0x00000000, 0xFFFFFFFF, NonSequential)

	assert.Equal(t, before, b.Read32(0x00000000, NonSequential))
}

func TestStepAdvancesScheduler(t *testing.T) {
	sched := scheduler.New()
	fired := false
	sched.Register(scheduler.KeypadPoll, func(now uint64, param int64) { fired = true })
	sched.Add(2, scheduler.KeypadPoll)

	b := New(sched)
	b.Read8(0x02000000, NonSequential) // wait-state cost of 3 cycles crosses the event

	assert.True(t, fired)
}

type stubDevice struct {
	data map[uint32]uint8
}

func (s *stubDevice) ReadIO(addr uint32) uint8 { return s.data[addr] }
func (s *stubDevice) WriteIO(addr uint32, value uint8) {
	if s.data == nil {
		s.data = map[uint32]uint8{}
	}
	s.data[addr] = value
}

func TestRegisteredIODeviceFanout(t *testing.T) {
	b := New(scheduler.New())
	dev := &stubDevice{}
	b.RegisterIO(0x04000100, 0x04000103, dev)

	b.Write16(0x04000100, 0xBEEF, NonSequential)
	assert.Equal(t, uint16(0xBEEF), b.Read16(0x04000100, NonSequential))
}

func TestHaltHookInvokedOnHALTCNTWrite(t *testing.T) {
	b := New(scheduler.New())
	halted := false
	b.SetHaltHook(func() { halted = true })

	b.Write8(0x04000301, 0x00, NonSequential)
	assert.True(t, halted)
}

func TestWrite8DuplicatesIntoBothVRAMHalves(t *testing.T) {
	b := New(scheduler.New())

	b.Write8(0x06000000, 0xAB, NonSequential)
	assert.Equal(t, uint16(0xABAB), b.Read16(0x06000000, NonSequential))

	b.Write8(0x06000001, 0xCD, NonSequential)
	assert.Equal(t, uint16(0xCDCD), b.Read16(0x06000000, NonSequential))
}

func TestWrite8DuplicatesIntoBothPaletteHalves(t *testing.T) {
	b := New(scheduler.New())

	b.Write8(0x05000004, 0x7E, NonSequential)
	assert.Equal(t, uint16(0x7E7E), b.Read16(0x05000004, NonSequential))

	b.Write8(0x05000005, 0x3C, NonSequential)
	assert.Equal(t, uint16(0x3C3C), b.Read16(0x05000004, NonSequential))
}
