package gba

import (
	"github.com/valerio/go-gba/gba/bit"
	"github.com/valerio/go-gba/gba/mmio"
	"github.com/valerio/go-gba/gba/rtc"
)

// gpioPort services RCNT, the cartridge's 4-bit general-purpose I/O port.
// Real hardware multiplexes this port between plain SRAM bank select,
// the RTC's 3-wire serial lines, and a solar sensor's light-level
// counter depending on what the cartridge wires to it; this core models
// one attached peripheral at a time, matching CreateRTC/CreateSolarSensor
// being mutually exclusive Core API calls.
type gpioPort struct {
	data        uint8 // bits 0-2: SCK, SIO, CS (or sensor-specific wiring)
	direction   uint8
	gpioEnabled bool

	rtc    *rtc.Chip
	solar  *SolarSensor
	sioOut bool
}

const (
	gpioBitSCK = 0
	gpioBitSIO = 1
	gpioBitCS  = 2
)

func (g *gpioPort) ReadIO(addr uint32) uint8 {
	switch addr {
	case mmio.RCNT:
		v := g.data & 0x07
		if g.rtc != nil {
			v = bit.SetTo(v, gpioBitSIO, g.sioOut)
		}
		if g.solar != nil {
			v = bit.SetTo(v, gpioBitSIO, g.solar.read())
		}
		return v
	case mmio.RCNT + 1:
		v := g.direction & 0x07
		return bit.SetTo(v, 7, g.gpioEnabled)
	}
	return 0
}

func (g *gpioPort) WriteIO(addr uint32, value uint8) {
	switch addr {
	case mmio.RCNT:
		prev := g.data
		g.data = value & 0x07
		if !g.gpioEnabled {
			return
		}
		cs := bit.IsSet(g.data, gpioBitCS)
		sck := bit.IsSet(g.data, gpioBitSCK)
		sio := bit.IsSet(g.data, gpioBitSIO)
		if g.rtc != nil {
			if cs != bit.IsSet(prev, gpioBitCS) {
				g.rtc.SetCS(cs)
			}
			g.sioOut = g.rtc.Step(sck, sio)
		}
		if g.solar != nil && sck && !bit.IsSet(prev, gpioBitSCK) {
			g.solar.pulse()
		}
	case mmio.RCNT + 1:
		g.direction = value & 0x07
		g.gpioEnabled = bit.IsSet(value, 7)
	}
}

// SolarSensor models the GPIO light-level counter used by cartridges
// like the Boktai series: the host reports an ambient light level, and
// the cartridge reads it back as a counter that takes longer to expire
// in brighter light, driven one step per SCK pulse.
type SolarSensor struct {
	level   uint8 // 0 (dark) .. 255 (bright), set by the host
	counter uint8
}

// NewSolarSensor constructs a sensor reporting full darkness until the
// host calls SetLightLevel.
func NewSolarSensor() *SolarSensor {
	return &SolarSensor{}
}

// SetLightLevel updates the simulated ambient light, consumed by games
// that poll the sensor's GPIO counter.
func (s *SolarSensor) SetLightLevel(level uint8) { s.level = level }

func (s *SolarSensor) pulse() {
	if s.counter < s.level {
		s.counter++
	}
}

func (s *SolarSensor) read() bool {
	return s.counter >= s.level
}
