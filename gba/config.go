package gba

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/valerio/go-gba/gba/apu"
	"github.com/valerio/go-gba/gba/ppu"
)

// AudioDevice is the host audio collaborator Core drives: Open hands it a
// pull callback the host calls from its own audio thread, Close tears the
// stream down, and SetPause lets the host mute without reconfiguring.
type AudioDevice interface {
	Open(sampleRate, blockSize int, pull func(out []float32))
	Close()
	GetSampleRate() int
	GetBlockSize() int
	SetPause(paused bool)
}

// AudioConfig controls the MP2K HLE hook and the resampler kernel.
type AudioConfig struct {
	MP2KHLEEnable      bool              `toml:"mp2k_hle_enable"`
	MP2KHLECubic       bool              `toml:"mp2k_hle_cubic"`
	MP2KHLEForceReverb bool              `toml:"mp2k_hle_force_reverb"`
	Interpolation      apu.Interpolation `toml:"interpolation"`
}

// Config is the full set of options a host may select at construction,
// per the Core API's config object.
type Config struct {
	SkipBIOS bool        `toml:"skip_bios"`
	Audio    AudioConfig `toml:"audio"`

	AudioDevice AudioDevice      `toml:"-"`
	VideoDevice ppu.VideoDevice  `toml:"-"`
}

// DefaultConfig matches real hardware's boot behavior (BIOS runs) with HLE
// audio off and a band-limited resampler, the safest default for an
// unconfigured host.
func DefaultConfig() Config {
	return Config{
		SkipBIOS: false,
		Audio: AudioConfig{
			Interpolation: apu.Sinc64,
		},
	}
}

// LoadConfigFile decodes a TOML config file, falling back to DefaultConfig
// for any field the file omits. AudioDevice/VideoDevice are never
// TOML-encoded; the host wires those in after loading.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
