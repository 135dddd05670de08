// Package mmio lists the fixed IO register addresses the bus dispatches on.
// It is kept separate from bus so peripheral packages can depend on the
// address constants without importing the bus package itself.
package mmio

const (
	Base = 0x04000000

	// Display
	DISPCNT  = Base + 0x000
	DISPSTAT = Base + 0x004
	VCOUNT   = Base + 0x006
	BG0HOFS  = Base + 0x010
	BG0VOFS  = Base + 0x012
	BG1HOFS  = Base + 0x014
	BG1VOFS  = Base + 0x016
	BG2HOFS  = Base + 0x018
	BG2VOFS  = Base + 0x01A
	BG3HOFS  = Base + 0x01C
	BG3VOFS  = Base + 0x01E

	// Sound
	SOUND1CNT_L = Base + 0x060
	SOUND1CNT_H = Base + 0x062
	SOUND1CNT_X = Base + 0x064
	SOUND2CNT_L = Base + 0x068
	SOUND2CNT_H = Base + 0x06C
	SOUND3CNT_L = Base + 0x070
	SOUND3CNT_H = Base + 0x072
	SOUND3CNT_X = Base + 0x074
	SOUND4CNT_L = Base + 0x078
	SOUND4CNT_H = Base + 0x07C
	SOUNDCNT_L  = Base + 0x080
	SOUNDCNT_H  = Base + 0x082
	SOUNDCNT_X  = Base + 0x084
	SOUNDBIAS   = Base + 0x088
	WAVE_RAM    = Base + 0x090 // 0x90-0x9F, two 16-byte banks
	FIFO_A      = Base + 0x0A0
	FIFO_B      = Base + 0x0A4

	// DMA, indexed 0..3, each block is 12 bytes
	DMA0SAD = Base + 0x0B0
	DMA0DAD = Base + 0x0B4
	DMA0CNT = Base + 0x0B8
	DMABlockStride = 0x0C

	// Timers, indexed 0..3, each block is 4 bytes
	TM0CNT_L = Base + 0x100
	TM0CNT_H = Base + 0x102
	TimerBlockStride = 0x04

	// Serial / keypad
	KEYINPUT = Base + 0x130
	KEYCNT   = Base + 0x132
	RCNT     = Base + 0x134 // GPIO/RTC mode select

	// Interrupt
	IE      = Base + 0x200
	IF      = Base + 0x202
	WAITCNT = Base + 0x204
	IME     = Base + 0x208
	HALTCNT = Base + 0x301
)
