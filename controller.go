package framegrab

import (
	"fmt"
	"log/slog"
	"math/bits"
)

// CaptureDescriptor tells the controller where in device memory to place the
// capture and how many bytes to acquire.
type CaptureDescriptor struct {
	StartOffset uint32
	LengthBytes uint32
}

// ControllerStatus is a live snapshot of the status register. Readiness is
// signalled as a growing run of low bits: 0b1, 0b11, 0b111, ...
type ControllerStatus uint32

// Level is the number of contiguous readiness bits set from bit 0.
func (s ControllerStatus) Level() int {
	return bits.TrailingZeros32(^uint32(s))
}

type ControllerState uint8

const (
	ControllerIdle ControllerState = iota
	ControllerArmed
	ControllerAcquiring
	ControllerSettled
)

func (s ControllerState) String() string {
	switch s {
	case ControllerIdle:
		return "idle"
	case ControllerArmed:
		return "armed"
	case ControllerAcquiring:
		return "acquiring"
	case ControllerSettled:
		return "settled"
	default:
		return fmt.Sprintf("ControllerState(%d)", uint8(s))
	}
}

type ControllerConfig struct {
	Base      uint32
	Registers ControllerRegisters

	// SampleWidth is the width later used to extract the capture.
	SampleWidth Width

	// FrameLength is the size of one frame in bytes, 0 when not yet known.
	FrameLength uint32

	// Span of the bus window the capture is read through, 0 when unchecked.
	Span uint32
}

var DefaultControllerConfig = ControllerConfig{
	Base:        DefaultControllerBase,
	Registers:   DefaultControllerRegisters,
	SampleWidth: Width16,
	Span:        DefaultBridgeSpan,
}

// Controller sequences the frame grabber through arm -> trigger -> poll ->
// disarm. It is not safe for concurrent use.
type Controller struct {
	bus   Backend
	cfg   ControllerConfig
	state ControllerState

	descriptor CaptureDescriptor
	expected   int
	level      int
}

func NewController(bus Backend, cfg ControllerConfig) *Controller {
	if cfg.Registers.Stride == 0 {
		cfg.Registers.Stride = 1
	}
	if !cfg.Registers.AccessWidth.Valid() {
		cfg.Registers.AccessWidth = Width8
	}
	if cfg.Registers.ByteOrder == nil {
		cfg.Registers.ByteOrder = DefaultControllerRegisters.ByteOrder
	}
	if cfg.Registers.StatusMask == 0 {
		cfg.Registers.StatusMask = 0xFF
	}
	if !cfg.SampleWidth.Valid() {
		cfg.SampleWidth = Width16
	}
	return &Controller{bus: bus, cfg: cfg}
}

func (c *Controller) State() ControllerState           { return c.state }
func (c *Controller) Descriptor() CaptureDescriptor    { return c.descriptor }
func (c *Controller) SampleWidth() Width               { return c.cfg.SampleWidth }
func (c *Controller) FrameLength() uint32              { return c.cfg.FrameLength }
func (c *Controller) Settled() bool                    { return c.state == ControllerSettled }
func (c *Controller) ExpectedLevel() int               { return c.expected }
func (c *Controller) SetFrameLength(frameLength uint32) { c.cfg.FrameLength = frameLength }

func (c *Controller) validate(d CaptureDescriptor) error {
	sampleBytes := c.cfg.SampleWidth.Bytes()
	if d.LengthBytes == 0 || d.LengthBytes%sampleBytes != 0 {
		return &ConfigError{Kind: ErrLengthMismatch, Detail: fmt.Sprintf("length %d is not a positive multiple of %d byte samples", d.LengthBytes, sampleBytes)}
	}
	if c.cfg.FrameLength > 0 && d.LengthBytes%c.cfg.FrameLength != 0 {
		return &ConfigError{Kind: ErrLengthMismatch, Detail: fmt.Sprintf("length %d is not a multiple of the %d byte frame", d.LengthBytes, c.cfg.FrameLength)}
	}
	if frames, levels := c.expectedLevel(d), c.StatusLevels(); frames > levels {
		return &ConfigError{Kind: ErrLengthMismatch, Detail: fmt.Sprintf("length %d spans %d frames, the status register signals at most %d", d.LengthBytes, frames, levels)}
	}
	if c.cfg.Span > 0 && uint64(d.StartOffset)+uint64(d.LengthBytes) > uint64(c.cfg.Span) {
		return &OutOfRangeError{Offset: d.StartOffset, Length: d.LengthBytes, Span: c.cfg.Span}
	}
	return nil
}

// StatusLevels is the highest readiness level the status register can show.
func (c *Controller) StatusLevels() int {
	return bits.OnesCount32(c.cfg.Registers.StatusMask)
}

func (c *Controller) expectedLevel(d CaptureDescriptor) int {
	if c.cfg.FrameLength == 0 {
		return 1
	}
	return int(d.LengthBytes / c.cfg.FrameLength)
}

// Arm loads the start address and length registers and clears the status.
func (c *Controller) Arm(d CaptureDescriptor) error {
	if c.state != ControllerIdle {
		return &SequenceError{Component: "controller", Op: "arm", State: c.state}
	}
	if err := c.validate(d); err != nil {
		return err
	}

	regs := c.cfg.Registers
	if err := c.writeWord(regs.StartAddress, d.StartOffset); err != nil {
		return fmt.Errorf("failed to write start address: %w", err)
	}
	if err := c.writeWord(regs.Length, d.LengthBytes); err != nil {
		return fmt.Errorf("failed to write length: %w", err)
	}
	if err := c.resetStatus(); err != nil {
		return fmt.Errorf("failed to reset status: %w", err)
	}

	c.descriptor = d
	c.expected = c.expectedLevel(d)
	c.level = 0
	c.state = ControllerArmed
	slog.Debug("framegrab: controller armed", "start", fmt.Sprintf("0x%08X", d.StartOffset), "length", d.LengthBytes, "expected_level", c.expected)
	return nil
}

// Trigger sets the start bit. The sensor must already be streaming or the
// capture will hold stale data; ArmAndStart enforces that ordering.
func (c *Controller) Trigger() error {
	if c.state != ControllerArmed {
		return &SequenceError{Component: "controller", Op: "trigger", State: c.state}
	}
	if err := c.writeRegister(c.cfg.Registers.Start, 1); err != nil {
		return fmt.Errorf("failed to trigger capture: %w", err)
	}
	c.state = ControllerAcquiring
	slog.Debug("framegrab: controller triggered")
	return nil
}

// Poll reads the status register. It never fails for sequencing reasons,
// only when the backend cannot complete the read.
func (c *Controller) Poll() (ControllerStatus, error) {
	raw, err := c.readRegister(c.cfg.Registers.Status)
	if err != nil {
		return 0, fmt.Errorf("failed to read status: %w", err)
	}
	status := ControllerStatus((raw >> c.cfg.Registers.StatusShift) & c.cfg.Registers.StatusMask)

	if c.state == ControllerAcquiring || c.state == ControllerSettled {
		level := status.Level()
		if level < c.level {
			slog.Warn("framegrab: status level regressed", "level", level, "previous", c.level)
		} else if level > c.level {
			c.level = level
		}
		if c.state == ControllerAcquiring && c.level >= c.expected {
			c.state = ControllerSettled
			slog.Debug("framegrab: capture settled", "level", c.level)
		}
	}
	return status, nil
}

// Level is the highest readiness level observed since the last Arm.
func (c *Controller) Level() int { return c.level }

func (c *Controller) Disarm() error {
	if c.state != ControllerAcquiring && c.state != ControllerSettled {
		return &SequenceError{Component: "controller", Op: "disarm", State: c.state}
	}
	if err := c.writeRegister(c.cfg.Registers.Start, 0); err != nil {
		return fmt.Errorf("failed to disarm controller: %w", err)
	}
	c.state = ControllerIdle
	slog.Debug("framegrab: controller disarmed")
	return nil
}

func (c *Controller) resetStatus() error {
	regs := c.cfg.Registers
	if regs.StatusShift == 0 {
		return c.writeRegister(regs.Status, 0)
	}
	// packed: keep the bits the status shares its register with
	raw, err := c.readRegister(regs.Status)
	if err != nil {
		return err
	}
	return c.writeRegister(regs.Status, raw&^(regs.StatusMask<<regs.StatusShift))
}

// writeWord spreads a 32 bit value over four consecutive byte registers.
func (c *Controller) writeWord(first uint32, value uint32) error {
	var lanes [4]byte
	c.cfg.Registers.ByteOrder.PutUint32(lanes[:], value)
	for i, b := range lanes {
		if err := c.writeRegister(first+uint32(i), uint32(b)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) address(reg uint32) uint32 {
	return c.cfg.Base + reg*c.cfg.Registers.Stride
}

func (c *Controller) writeRegister(reg uint32, value uint32) error {
	return c.bus.WriteAt(c.address(reg), c.cfg.Registers.AccessWidth, value)
}

func (c *Controller) readRegister(reg uint32) (uint32, error) {
	return c.bus.ReadAt(c.address(reg), c.cfg.Registers.AccessWidth)
}
