package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/coreloop/pkg/protocol"
)

// CDI transport modes.
const (
	ModePort   = "port"   // UDP command port, packets written to OutputDir
	ModeSerial = "serial" // framed serial link
	ModeMock   = "mock"   // in-process, commands from a script file
)

// Config represents the host configuration of the core loop and the monitor.
type Config struct {
	Loop     LoopConfig     `yaml:"loop"`
	CDI      CDIConfig      `yaml:"cdi"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Emulator EmulatorConfig `yaml:"emulator"`
	Monitor  MonitorConfig  `yaml:"monitor"`
}

// LoopConfig contains the tick period and the delays counted in ticks.
type LoopConfig struct {
	TickPeriod     time.Duration `yaml:"tick_period"`
	DispatchDelay  uint16        `yaml:"dispatch_delay"`
	ResettleDelay  uint16        `yaml:"resettle_delay"`
	HeartbeatDelay uint16        `yaml:"heartbeat_delay"`
	ADCStatSamples int           `yaml:"adc_stat_samples"`
}

// CDIConfig selects and configures the command/data transport.
type CDIConfig struct {
	Mode      string       `yaml:"mode"`
	Address   string       `yaml:"address"`   // UDP command port
	Telemetry string       `yaml:"telemetry"` // UDP address packets are mirrored to, empty disables
	OutputDir string       `yaml:"output_dir"`
	Script    string       `yaml:"script"` // command script for mock mode
	Serial    SerialConfig `yaml:"serial"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// ArchiveConfig contains the packet archive location. An empty path disables it.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// EmulatorConfig contains the software spectrometer parameters.
type EmulatorConfig struct {
	Seed          int64     `yaml:"seed"`
	Level         []float32 `yaml:"level"`          // per input RMS in ADC counts at medium gain
	Noise         float32   `yaml:"noise"`          // uncorrelated noise RMS in ADC counts
	SpectrumLevel float32   `yaml:"spectrum_level"` // power per bin per averaged sample
	StatTicks     int       `yaml:"stat_ticks"`     // ticks an ADC statistics run takes
	SpectrumTicks int       `yaml:"spectrum_ticks"` // ticks per spectrum at 2^14 averages
}

// MonitorConfig contains telemetry monitor parameters.
type MonitorConfig struct {
	Listen  string `yaml:"listen"`
	History int    `yaml:"history"` // packets kept per series
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Loop: LoopConfig{
			TickPeriod:     10 * time.Millisecond,
			DispatchDelay:  protocol.DispatchDelay,
			ResettleDelay:  protocol.ResettleDelay,
			HeartbeatDelay: protocol.HeartbeatDelay,
			ADCStatSamples: protocol.ADCStatSamples,
		},
		CDI: CDIConfig{
			Mode:      ModePort,
			Address:   ":32100",
			Telemetry: "127.0.0.1:32101",
			OutputDir: "cdi_output",
			Serial: SerialConfig{
				Port: "/dev/ttyUSB0",
				Baud: 115200,
			},
		},
		Archive: ArchiveConfig{
			Path: "coreloop.db",
		},
		Emulator: EmulatorConfig{
			Seed:          1,
			Level:         []float32{300, 300, 300, 300},
			Noise:         20,
			SpectrumLevel: 1,
			StatTicks:     2,
			SpectrumTicks: 100,
		},
		Monitor: MonitorConfig{
			Listen:  ":32101",
			History: 600,
		},
	}
}

// Timing returns the loop delays in the form the core consumes.
func (l LoopConfig) Timing() protocol.Timing {
	return protocol.Timing{
		DispatchDelay:  l.DispatchDelay,
		ResettleDelay:  l.ResettleDelay,
		HeartbeatDelay: l.HeartbeatDelay,
		ADCStatSamples: l.ADCStatSamples,
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	switch c.CDI.Mode {
	case ModePort, ModeSerial, ModeMock:
	default:
		return fmt.Errorf("invalid cdi mode %q", c.CDI.Mode)
	}
	if c.Loop.TickPeriod <= 0 || c.Loop.TickPeriod > time.Second {
		return fmt.Errorf("tick period %v out of range (0, 1s]", c.Loop.TickPeriod)
	}
	if len(c.Emulator.Level) != protocol.NInput {
		return fmt.Errorf("emulator level needs %d entries, got %d", protocol.NInput, len(c.Emulator.Level))
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Loop.TickPeriod == 0 {
		c.Loop.TickPeriod = def.Loop.TickPeriod
	}
	if c.Loop.HeartbeatDelay == 0 {
		c.Loop.HeartbeatDelay = def.Loop.HeartbeatDelay
	}
	if c.Loop.ADCStatSamples == 0 {
		c.Loop.ADCStatSamples = def.Loop.ADCStatSamples
	}

	if c.CDI.Mode == "" {
		c.CDI.Mode = def.CDI.Mode
	}
	if c.CDI.Address == "" {
		c.CDI.Address = def.CDI.Address
	}
	if c.CDI.OutputDir == "" {
		c.CDI.OutputDir = def.CDI.OutputDir
	}
	if c.CDI.Serial.Port == "" {
		c.CDI.Serial.Port = def.CDI.Serial.Port
	}
	if c.CDI.Serial.Baud == 0 {
		c.CDI.Serial.Baud = def.CDI.Serial.Baud
	}

	if len(c.Emulator.Level) == 0 {
		c.Emulator.Level = def.Emulator.Level
	}
	if c.Emulator.StatTicks == 0 {
		c.Emulator.StatTicks = def.Emulator.StatTicks
	}
	if c.Emulator.SpectrumTicks == 0 {
		c.Emulator.SpectrumTicks = def.Emulator.SpectrumTicks
	}
	if c.Emulator.SpectrumLevel == 0 {
		c.Emulator.SpectrumLevel = def.Emulator.SpectrumLevel
	}

	if c.Monitor.Listen == "" {
		c.Monitor.Listen = def.Monitor.Listen
	}
	if c.Monitor.History == 0 {
		c.Monitor.History = def.Monitor.History
	}
}
