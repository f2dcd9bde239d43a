package framegrab

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes one deployment: where the devices live on the bus and
// which capture to run.
type Config struct {
	Bridge     BridgeConfig       `yaml:"bridge"`
	Sensor     SensorSettings     `yaml:"sensor"`
	Controller ControllerSettings `yaml:"controller"`
	Capture    CaptureSettings    `yaml:"capture"`
}

type BridgeConfig struct {
	Backend string `yaml:"backend"` // sim, devmem, serial
	Port    string `yaml:"port"`    // serial only, empty to autodetect
	Base    uint32 `yaml:"base"`
	Span    uint32 `yaml:"span"`
}

type SensorSettings struct {
	Base          uint32 `yaml:"base"`
	PixDepth      uint8  `yaml:"pix_depth"`
	MaxWidth      uint16 `yaml:"max_width"`
	MaxHeight     uint16 `yaml:"max_height"`
	MaxFrameBytes uint32 `yaml:"max_frame_bytes"`

	FrameFrameBlankMin uint32 `yaml:"frame_frame_blank_min"`
	FrameLineBlankMin  uint32 `yaml:"frame_line_blank_min"`
	LineLineBlankMin   uint32 `yaml:"line_line_blank_min"`
	LineFrameBlankMin  uint32 `yaml:"line_frame_blank_min"`
}

type ControllerSettings struct {
	Base        uint32 `yaml:"base"`
	AccessWidth uint8  `yaml:"access_width"`
	Stride      uint32 `yaml:"stride"`
	ByteOrder   string `yaml:"byte_order"` // little, big
	Packed      bool   `yaml:"packed"`     // status packed into register 0x1

	// overrides of the selected layout, 0 keeps it
	StatusRegister uint32 `yaml:"status_register"`
	StatusShift    uint32 `yaml:"status_shift"`
	StatusMask     uint32 `yaml:"status_mask"`
}

type CaptureSettings struct {
	Width       uint16 `yaml:"width"`
	Height      uint16 `yaml:"height"`
	Frames      int    `yaml:"frames"`
	StartOffset uint32 `yaml:"start_offset"`
	SampleWidth uint8  `yaml:"sample_width"`

	// blanking values of 0 use the documented minimum
	FrameFrameBlank uint32 `yaml:"frame_frame_blank"`
	FrameLineBlank  uint32 `yaml:"frame_line_blank"`
	LineLineBlank   uint32 `yaml:"line_line_blank"`
	LineFrameBlank  uint32 `yaml:"line_frame_blank"`

	Wait WaitSettings `yaml:"wait"`
}

type WaitSettings struct {
	Strategy string        `yaml:"strategy"` // busy, timed, staged, fixed
	MaxPolls int           `yaml:"max_polls"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultConfig is the reference design: a 640x480 12 bit generator and a
// bridge span sized for one 320x240 16 bit frame.
func DefaultConfig() Config {
	return Config{
		Bridge: BridgeConfig{
			Backend: "sim",
			Base:    DefaultBridgeBase,
			Span:    DefaultBridgeSpan,
		},
		Sensor: SensorSettings{
			Base:               DefaultSensorBase,
			PixDepth:           DefaultPixDepth,
			MaxWidth:           DefaultMaxWidth,
			MaxHeight:          DefaultMaxHeight,
			FrameFrameBlankMin: DefaultBlanking.FrameFrameBlank,
			FrameLineBlankMin:  DefaultBlanking.FrameLineBlank,
			LineLineBlankMin:   DefaultBlanking.LineLineBlank,
			LineFrameBlankMin:  DefaultBlanking.LineFrameBlank,
		},
		Controller: ControllerSettings{
			Base:        DefaultControllerBase,
			AccessWidth: uint8(Width8),
			Stride:      1,
			ByteOrder:   "little",
		},
		Capture: CaptureSettings{
			Width:       320,
			Height:      240,
			Frames:      1,
			SampleWidth: uint8(Width16),
			Wait: WaitSettings{
				Strategy: "timed",
				Interval: time.Millisecond,
				Timeout:  time.Second,
			},
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Bridge.Backend {
	case "sim", "devmem", "serial":
	default:
		errs = append(errs, fmt.Errorf("bridge.backend must be sim, devmem or serial, got %q", c.Bridge.Backend))
	}
	if c.Bridge.Span == 0 {
		errs = append(errs, fmt.Errorf("bridge.span must be > 0"))
	}
	if c.Sensor.PixDepth == 0 || c.Sensor.PixDepth > 32 {
		errs = append(errs, fmt.Errorf("sensor.pix_depth must be 1-32, got %d", c.Sensor.PixDepth))
	}
	if c.Sensor.MaxWidth == 0 || c.Sensor.MaxHeight == 0 {
		errs = append(errs, fmt.Errorf("sensor.max_width and sensor.max_height must be > 0"))
	}
	if !Width(c.Controller.AccessWidth).Valid() {
		errs = append(errs, fmt.Errorf("controller.access_width must be 8, 16 or 32, got %d", c.Controller.AccessWidth))
	}
	if c.Controller.StatusShift >= 32 {
		errs = append(errs, fmt.Errorf("controller.status_shift must be < 32, got %d", c.Controller.StatusShift))
	}
	if c.Controller.ByteOrder != "little" && c.Controller.ByteOrder != "big" {
		errs = append(errs, fmt.Errorf("controller.byte_order must be little or big, got %q", c.Controller.ByteOrder))
	}
	if !Width(c.Capture.SampleWidth).Valid() {
		errs = append(errs, fmt.Errorf("capture.sample_width must be 8, 16 or 32, got %d", c.Capture.SampleWidth))
	}
	if c.Capture.Frames < 1 {
		errs = append(errs, fmt.Errorf("capture.frames must be >= 1"))
	}
	switch c.Capture.Wait.Strategy {
	case "busy", "timed", "staged", "fixed":
	default:
		errs = append(errs, fmt.Errorf("capture.wait.strategy must be busy, timed, staged or fixed, got %q", c.Capture.Wait.Strategy))
	}

	return errors.Join(errs...)
}

func (c *Config) SensorHandle() SensorHandle {
	return SensorHandle{
		Base:          c.Sensor.Base,
		PixDepth:      c.Sensor.PixDepth,
		MaxWidth:      c.Sensor.MaxWidth,
		MaxHeight:     c.Sensor.MaxHeight,
		MaxFrameBytes: c.Sensor.MaxFrameBytes,
		Blanking: SensorConfig{
			FrameFrameBlank: c.Sensor.FrameFrameBlankMin,
			FrameLineBlank:  c.Sensor.FrameLineBlankMin,
			LineLineBlank:   c.Sensor.LineLineBlankMin,
			LineFrameBlank:  c.Sensor.LineFrameBlankMin,
		},
		Registers: DefaultSensorRegisters,
	}
}

// SensorConfig is the capture geometry, with unset blanking raised to the
// documented minima.
func (c *Config) SensorConfig() SensorConfig {
	return SensorConfig{
		Width:           c.Capture.Width,
		Height:          c.Capture.Height,
		FrameFrameBlank: max(c.Capture.FrameFrameBlank, c.Sensor.FrameFrameBlankMin),
		FrameLineBlank:  max(c.Capture.FrameLineBlank, c.Sensor.FrameLineBlankMin),
		LineLineBlank:   max(c.Capture.LineLineBlank, c.Sensor.LineLineBlankMin),
		LineFrameBlank:  max(c.Capture.LineFrameBlank, c.Sensor.LineFrameBlankMin),
	}
}

func (c *Config) ControllerConfig() ControllerConfig {
	regs := DefaultControllerRegisters
	if c.Controller.Packed {
		regs = PackedControllerRegisters
	}
	regs.AccessWidth = Width(c.Controller.AccessWidth)
	if c.Controller.StatusRegister > 0 {
		regs.Status = c.Controller.StatusRegister
	}
	if c.Controller.StatusShift > 0 {
		regs.StatusShift = uint8(c.Controller.StatusShift)
	}
	if c.Controller.StatusMask > 0 {
		regs.StatusMask = c.Controller.StatusMask
	}
	if c.Controller.Stride > 0 {
		regs.Stride = c.Controller.Stride
	}
	regs.ByteOrder = binary.LittleEndian
	if c.Controller.ByteOrder == "big" {
		regs.ByteOrder = binary.BigEndian
	}
	return ControllerConfig{
		Base:        c.Controller.Base,
		Registers:   regs,
		SampleWidth: Width(c.Capture.SampleWidth),
		Span:        c.Bridge.Span,
	}
}

func (c *Config) WaitStrategy() WaitStrategy {
	w := c.Capture.Wait
	switch w.Strategy {
	case "busy":
		return BusyPoll{MaxPolls: w.MaxPolls}
	case "staged":
		return StagedPoll{Interval: w.Interval, Timeout: w.Timeout}
	case "fixed":
		return FixedDelay{Delay: w.Interval}
	default:
		return TimedPoll{Interval: w.Interval, Timeout: w.Timeout}
	}
}

// SimulatorConfig models the configured deployment. The frame store covers
// the whole bridge span.
func (c *Config) SimulatorConfig() SimulatorConfig {
	ctrl := c.ControllerConfig()
	return SimulatorConfig{
		BridgeBase:     c.Bridge.Base,
		StoreSize:      c.Bridge.Span,
		Sensor:         c.SensorHandle(),
		ControllerBase: ctrl.Base,
		Controller:     ctrl.Registers,
		LevelsPerPoll:  1,
	}
}

// OpenBackend opens the configured bus backend. Sensor and controller
// registers must be reachable through it as well as the bridge span.
func (c *Config) OpenBackend() (Backend, error) {
	switch c.Bridge.Backend {
	case "sim":
		return NewSimulator(c.SimulatorConfig()), nil
	case "devmem":
		mem, err := OpenDevMem(c.Bridge.Base, c.Bridge.Span)
		if err != nil {
			return nil, err
		}
		// register blocks live outside the bridge span
		for _, base := range []uint32{c.Sensor.Base, c.Controller.Base} {
			if err := mem.Map(base, registerBlockSpan); err != nil {
				mem.Close()
				return nil, err
			}
		}
		return mem, nil
	case "serial":
		return OpenSerialBridge(c.Bridge.Port)
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Bridge.Backend)
	}
}
