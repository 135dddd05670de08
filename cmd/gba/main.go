package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/valerio/go-gba/gba"
)

func main() {
	app := cli.NewApp()
	app.Name = "gba"
	app.Description = "A headless Game Boy Advance emulation core runner"
	app.Usage = "gba [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "bios",
			Usage: "Path to the BIOS image",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "Path to a TOML config file",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run before exiting (required)",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "skip-bios",
			Usage: "Boot directly into the cartridge, skipping BIOS execution",
		},
	}
	app.Action = runCore

	if err := app.Run(os.Args); err != nil {
		slog.Error("error running core", "error", err)
		os.Exit(1)
	}
}

// cyclesPerFrame approximates the GBA's 16.78 MHz clock over a 59.73 Hz
// frame rate (280896 master cycles per frame, per the PPU's 1232
// cycles/scanline * 228 scanlines).
const cyclesPerFrame = 280896

func runCore(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	frames := c.Int("frames")
	if frames <= 0 {
		return errors.New("running headless requires --frames with a positive value")
	}

	cfg := gba.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := gba.LoadConfigFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.Bool("skip-bios") {
		cfg.SkipBIOS = true
	}

	rom, err := os.ReadFile(romPath)
	if err != nil {
		return err
	}

	core := gba.New(cfg)
	core.AttachROM(rom)

	if biosPath := c.String("bios"); biosPath != "" {
		bios, err := os.ReadFile(biosPath)
		if err != nil {
			return err
		}
		core.AttachBIOS(bios)
	}

	core.Reset()

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(handler))

	slog.Info("running headless", "rom", romPath, "frames", frames, "skip_bios", cfg.SkipBIOS)

	for i := 0; i < frames; i++ {
		core.Run(cyclesPerFrame)
		if i%60 == 0 {
			slog.Info("frame progress", "completed", i+1, "total", frames)
		}
	}

	slog.Info("headless run completed", "frames", frames)
	return nil
}
