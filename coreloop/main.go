// Command coreloop runs the flight core on the host against the software
// spectrometer. Commands arrive on the UDP command port, a serial link or a script;
// packets are written to the output directory, mirrored to the monitor and archived.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/itohio/coreloop/pkg/archive"
	"github.com/itohio/coreloop/pkg/cdi"
	"github.com/itohio/coreloop/pkg/config"
	"github.com/itohio/coreloop/pkg/coreloop"
	"github.com/itohio/coreloop/pkg/emulator"
	"github.com/itohio/coreloop/pkg/hal"
	"github.com/itohio/coreloop/pkg/logging"
)

func main() {
	var (
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		modeFlag    = flag.String("m", "", "CDI mode override: port, serial or mock")
		outFlag     = flag.String("o", "", "Packet output directory override")
		scriptFlag  = flag.String("s", "", "Command script (mock mode)")
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		verboseFlag = flag.Bool("v", false, "Log every command and fault")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *modeFlag != "" {
		cfg.CDI.Mode = *modeFlag
	}
	if *outFlag != "" {
		cfg.CDI.OutputDir = *outFlag
	}
	if *scriptFlag != "" {
		cfg.CDI.Script = *scriptFlag
	}
	if *portFlag != "" {
		cfg.CDI.Serial.Port = *portFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logging.SetVerbose(*verboseFlag)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("coreloop exited with error: %v", err)
		os.Exit(1)
	}
	log.Printf("coreloop shut down")
}

func run(ctx context.Context, cfg *config.Config) error {
	link := cdi.NewLink(cdi.DefaultBufferSize)
	g, gCtx := errgroup.WithContext(ctx)

	var store hal.Store = hal.NewMemStore()
	if cfg.Archive.Path != "" {
		a, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer a.Close()
		link.AddSink(a)
		store = a
		log.Printf("Archiving session %s to %s", a.SessionID(), cfg.Archive.Path)
	}

	if cfg.CDI.Telemetry != "" {
		mirror, err := cdi.DialTelemetry(cfg.CDI.Telemetry)
		if err != nil {
			return err
		}
		defer mirror.Close()
		link.AddSink(mirror)
	}

	switch cfg.CDI.Mode {
	case config.ModePort, config.ModeMock:
		dir, err := cdi.NewDirSink(cfg.CDI.OutputDir)
		if err != nil {
			return err
		}
		link.AddSink(dir)
	}

	switch cfg.CDI.Mode {
	case config.ModePort:
		port, err := cdi.ListenCommands(cfg.CDI.Address)
		if err != nil {
			return err
		}
		log.Printf("Listening for commands on %s", port.Addr())
		g.Go(func() error { return port.Serve(gCtx, link.Push) })

	case config.ModeSerial:
		serial := cdi.NewSerialLink(cfg.CDI.Serial.Port, cfg.CDI.Serial.Baud)
		if err := serial.Connect(); err != nil {
			return err
		}
		defer serial.Close()
		link.AddSink(serial)
		log.Printf("Connected to serial port: %s", cfg.CDI.Serial.Port)
		g.Go(func() error { return serial.Serve(gCtx, link.Push) })

	case config.ModeMock:
		if cfg.CDI.Script != "" {
			script, err := cdi.LoadScript(cfg.CDI.Script)
			if err != nil {
				return err
			}
			log.Printf("Running %d scripted steps from %s", len(script), cfg.CDI.Script)
			g.Go(func() error { return script.Run(gCtx, link.Push) })
		}
	}

	tickHz := uint32(time.Second / cfg.Loop.TickPeriod)
	emu := emulator.New(&cfg.Emulator, tickHz)
	core := coreloop.New(link, emu, store, cfg.Loop.Timing())
	if err := core.Boot(); err != nil {
		logging.Logf("coreloop: boot: %v", err)
	}

	ticks := make(chan time.Time)
	g.Go(func() error {
		defer close(ticks)
		ticker := time.NewTicker(cfg.Loop.TickPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case t := <-ticker.C:
				emu.Advance()
				select {
				case ticks <- t:
				case <-gCtx.Done():
					return nil
				}
			}
		}
	})
	g.Go(func() error { return core.Run(gCtx, ticks) })

	return g.Wait()
}
