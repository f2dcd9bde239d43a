package framegrab

import (
	"fmt"
	"log/slog"
)

// SensorConfig is the pixel geometry and blanking timing applied to the
// sensor output generator before it starts streaming.
type SensorConfig struct {
	Width  uint16
	Height uint16

	FrameFrameBlank uint32
	FrameLineBlank  uint32
	LineLineBlank   uint32
	LineFrameBlank  uint32
}

// SensorHandle identifies a sensor instance by its register base and its
// immutable capability limits.
type SensorHandle struct {
	Base      uint32
	PixDepth  uint8
	MaxWidth  uint16
	MaxHeight uint16

	// MaxFrameBytes is the addressable frame length, 0 when unlimited.
	MaxFrameBytes uint32

	// Blanking holds the documented minimum of every blanking parameter.
	Blanking  SensorConfig
	Registers SensorRegisters
}

// DefaultSensorHandle describes the 12 bit 640x480 generator of the reference design.
var DefaultSensorHandle = SensorHandle{
	Base:      DefaultSensorBase,
	PixDepth:  DefaultPixDepth,
	MaxWidth:  DefaultMaxWidth,
	MaxHeight: DefaultMaxHeight,
	Blanking:  DefaultBlanking,
	Registers: DefaultSensorRegisters,
}

func (h SensorHandle) BytesPerPixel() uint32 {
	return (uint32(h.PixDepth) + 7) / 8
}

func (h SensorHandle) FrameBytes(cfg SensorConfig) uint32 {
	return uint32(cfg.Width) * uint32(cfg.Height) * h.BytesPerPixel()
}

func (h SensorHandle) validate(cfg SensorConfig) error {
	if cfg.Width == 0 || cfg.Width > h.MaxWidth {
		return &ConfigError{Kind: ErrDimensionOutOfRange, Detail: fmt.Sprintf("width %d, must be 0 < width <= %d", cfg.Width, h.MaxWidth)}
	}
	if cfg.Height == 0 || cfg.Height > h.MaxHeight {
		return &ConfigError{Kind: ErrDimensionOutOfRange, Detail: fmt.Sprintf("height %d, must be 0 < height <= %d", cfg.Height, h.MaxHeight)}
	}

	blanking := []struct {
		name       string
		value, min uint32
	}{
		{"frame-frame blank", cfg.FrameFrameBlank, h.Blanking.FrameFrameBlank},
		{"frame-line blank", cfg.FrameLineBlank, h.Blanking.FrameLineBlank},
		{"line-line blank", cfg.LineLineBlank, h.Blanking.LineLineBlank},
		{"line-frame blank", cfg.LineFrameBlank, h.Blanking.LineFrameBlank},
	}
	for _, b := range blanking {
		if b.value < b.min {
			return &ConfigError{Kind: ErrBlankingTooLow, Detail: fmt.Sprintf("%s %d, minimum is %d", b.name, b.value, b.min)}
		}
	}

	if h.MaxFrameBytes > 0 && uint64(cfg.Width)*uint64(cfg.Height)*uint64(h.BytesPerPixel()) > uint64(h.MaxFrameBytes) {
		return &ConfigError{Kind: ErrFrameTooLarge, Detail: fmt.Sprintf("%dx%d at %d bytes per pixel exceeds %d bytes", cfg.Width, cfg.Height, h.BytesPerPixel(), h.MaxFrameBytes)}
	}
	return nil
}

type SensorState uint8

const (
	SensorUninitialized SensorState = iota
	SensorStopped
	SensorConfigured
	SensorStreaming
)

func (s SensorState) String() string {
	switch s {
	case SensorUninitialized:
		return "uninitialized"
	case SensorStopped:
		return "stopped"
	case SensorConfigured:
		return "configured"
	case SensorStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("SensorState(%d)", uint8(s))
	}
}

// Sensor drives one sensor output generator through
// stop -> configure -> start. It is not safe for concurrent use.
type Sensor struct {
	bus    Backend
	handle SensorHandle
	state  SensorState
	config SensorConfig
}

func NewSensor(bus Backend, handle SensorHandle) *Sensor {
	return &Sensor{bus: bus, handle: handle}
}

func (s *Sensor) Handle() SensorHandle { return s.handle }
func (s *Sensor) State() SensorState   { return s.state }

// Config returns the geometry applied by the last successful Configure.
func (s *Sensor) Config() SensorConfig { return s.config }

// FrameBytes is the size of one frame in the configured geometry.
func (s *Sensor) FrameBytes() uint32 {
	return s.handle.FrameBytes(s.config)
}

// Init binds the driver to its register base. Calling it again is a no-op.
func (s *Sensor) Init() {
	if s.state != SensorUninitialized {
		return
	}
	s.state = SensorStopped
	slog.Debug("framegrab: sensor initialized", "base", fmt.Sprintf("0x%08X", s.handle.Base))
}

func (s *Sensor) Stop() error {
	switch s.state {
	case SensorUninitialized:
		return &SequenceError{Component: "sensor", Op: "stop", State: s.state}
	case SensorStopped:
		return nil
	}

	if err := s.writeRegister(s.handle.Registers.Command, sensorCommandStop); err != nil {
		return fmt.Errorf("failed to stop sensor: %w", err)
	}
	idle := false
	for i := 0; i < sensorStopPolls && !idle; i++ {
		status, err := s.readRegister(s.handle.Registers.Status)
		if err != nil {
			return fmt.Errorf("failed to stop sensor: %w", err)
		}
		idle = status&sensorStatusIdle != 0
	}
	if !idle {
		return fmt.Errorf("failed to stop sensor: generator still busy after %d status reads", sensorStopPolls)
	}

	slog.Debug("framegrab: sensor stopped", "from", s.state)
	s.state = SensorStopped
	return nil
}

func (s *Sensor) Configure(cfg SensorConfig) error {
	if s.state != SensorStopped {
		return &SequenceError{Component: "sensor", Op: "configure", State: s.state}
	}
	if err := s.handle.validate(cfg); err != nil {
		return err
	}

	regs := s.handle.Registers
	writes := []struct {
		offset, value uint32
	}{
		{regs.Width, uint32(cfg.Width)},
		{regs.Height, uint32(cfg.Height)},
		{regs.FrameFrameBlank, cfg.FrameFrameBlank},
		{regs.FrameLineBlank, cfg.FrameLineBlank},
		{regs.LineLineBlank, cfg.LineLineBlank},
		{regs.LineFrameBlank, cfg.LineFrameBlank},
	}
	for _, w := range writes {
		if err := s.writeRegister(w.offset, w.value); err != nil {
			return fmt.Errorf("failed to configure sensor: %w", err)
		}
	}

	s.config = cfg
	s.state = SensorConfigured
	slog.Debug("framegrab: sensor configured", "width", cfg.Width, "height", cfg.Height, "frame_bytes", s.FrameBytes())
	return nil
}

// Start begins continuous streaming. Configure must have succeeded since the
// last Stop, stale geometry is never reused.
func (s *Sensor) Start() error {
	if s.state != SensorConfigured {
		return &SequenceError{Component: "sensor", Op: "start", State: s.state}
	}
	if err := s.writeRegister(s.handle.Registers.Command, sensorCommandStart); err != nil {
		return fmt.Errorf("failed to start sensor: %w", err)
	}
	s.state = SensorStreaming
	slog.Debug("framegrab: sensor streaming")
	return nil
}

func (s *Sensor) writeRegister(offset, value uint32) error {
	return s.bus.WriteAt(s.handle.Base+offset, Width32, value)
}

func (s *Sensor) readRegister(offset uint32) (uint32, error) {
	return s.bus.ReadAt(s.handle.Base+offset, Width32)
}
