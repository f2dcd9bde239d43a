package framegrab

import (
	"encoding/binary"
	"fmt"
)

// SimulatorConfig describes the device a Simulator models.
type SimulatorConfig struct {
	BridgeBase uint32
	StoreSize  uint32

	Sensor SensorHandle

	ControllerBase uint32
	Controller     ControllerRegisters

	// LevelsPerPoll is how many readiness levels the status advances per
	// status read while acquiring. Values above 1 skip levels.
	LevelsPerPoll int
	// Stall keeps the status at zero so captures never settle.
	Stall bool
}

// DefaultSimulatorConfig models the reference design with a 1 MiB frame store.
var DefaultSimulatorConfig = SimulatorConfig{
	BridgeBase:     DefaultBridgeBase,
	StoreSize:      1 << 20,
	Sensor:         DefaultSensorHandle,
	ControllerBase: DefaultControllerBase,
	Controller:     DefaultControllerRegisters,
	LevelsPerPoll:  1,
}

// Simulator is an in-process Backend modelling the sensor output generator,
// the capture controller and the frame store behind the bus bridge.
type Simulator struct {
	cfg   SimulatorConfig
	store []byte

	sensorRegs map[uint32]uint32
	ctrlRegs   map[uint32]uint32
	streaming  bool

	acquiring   bool
	status      uint32
	level       int
	startAddr   uint32
	length      uint32
	frameBytes  uint32
	frames      int
	staleFrames int

	Reads  int
	Writes int
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.LevelsPerPoll < 1 {
		cfg.LevelsPerPoll = 1
	}
	if cfg.Controller.Stride == 0 {
		cfg.Controller.Stride = 1
	}
	if cfg.Controller.ByteOrder == nil {
		cfg.Controller.ByteOrder = binary.LittleEndian
	}
	if cfg.Controller.StatusMask == 0 {
		cfg.Controller.StatusMask = 0xFF
	}
	return &Simulator{
		cfg:        cfg,
		store:      make([]byte, cfg.StoreSize),
		sensorRegs: make(map[uint32]uint32),
		ctrlRegs:   make(map[uint32]uint32),
	}
}

// SimulatedPixel is the value the simulator streams for a pixel of the
// given frame of a capture.
func SimulatedPixel(frame, pixel int, depth uint8) uint32 {
	return (uint32(pixel) + uint32(frame)*7) & (1<<uint32(depth) - 1)
}

// Store exposes the simulated frame store.
func (s *Simulator) Store() []byte { return s.store }

// Streaming reports whether the sensor model is producing pixels.
func (s *Simulator) Streaming() bool { return s.streaming }

// StaleFrames counts frames that completed while the sensor was not
// streaming and therefore were never written to the store.
func (s *Simulator) StaleFrames() int { return s.staleFrames }

func (s *Simulator) Close() error { return nil }

func (s *Simulator) ReadAt(addr uint32, width Width) (uint32, error) {
	if !width.Valid() {
		return 0, fmt.Errorf("invalid access width %d", width)
	}
	s.Reads++

	if off, ok := s.storeOffset(addr, width); ok {
		var buf [4]byte
		copy(buf[:], s.store[off:off+width.Bytes()])
		return binary.LittleEndian.Uint32(buf[:]), nil
	}
	if reg, ok := s.sensorRegister(addr); ok {
		if reg == s.cfg.Sensor.Registers.Status {
			if s.streaming {
				return 0, nil
			}
			return sensorStatusIdle, nil
		}
		return s.sensorRegs[reg] & width.mask(), nil
	}
	if reg, ok := s.controllerRegister(addr); ok {
		regs := s.cfg.Controller
		if reg == regs.Status {
			s.advance()
			raw := s.ctrlRegs[reg]&^(regs.StatusMask<<regs.StatusShift) | (s.status&regs.StatusMask)<<regs.StatusShift
			return raw & width.mask(), nil
		}
		return s.ctrlRegs[reg] & width.mask(), nil
	}
	return 0, fmt.Errorf("unmapped address 0x%08X", addr)
}

func (s *Simulator) WriteAt(addr uint32, width Width, value uint32) error {
	if !width.Valid() {
		return fmt.Errorf("invalid access width %d", width)
	}
	s.Writes++
	value &= width.mask()

	if off, ok := s.storeOffset(addr, width); ok {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], value)
		copy(s.store[off:off+width.Bytes()], buf[:width.Bytes()])
		return nil
	}
	if reg, ok := s.sensorRegister(addr); ok {
		s.sensorRegs[reg] = value
		if reg == s.cfg.Sensor.Registers.Command {
			switch value {
			case sensorCommandStart:
				s.streaming = s.sensorRegs[s.cfg.Sensor.Registers.Width] > 0 && s.sensorRegs[s.cfg.Sensor.Registers.Height] > 0
			case sensorCommandStop:
				s.streaming = false
			}
		}
		return nil
	}
	if reg, ok := s.controllerRegister(addr); ok {
		regs := s.cfg.Controller
		s.ctrlRegs[reg] = value & 0xFF
		switch reg {
		case regs.Status:
			s.status = (value >> regs.StatusShift) & regs.StatusMask
		case regs.Start:
			if value&1 != 0 && !s.acquiring {
				s.begin()
			} else if value&1 == 0 {
				s.acquiring = false
			}
		}
		return nil
	}
	return fmt.Errorf("unmapped address 0x%08X", addr)
}

func (s *Simulator) begin() {
	s.acquiring = true
	s.level = 0
	s.startAddr = s.word(s.cfg.Controller.StartAddress)
	s.length = s.word(s.cfg.Controller.Length)

	h := s.cfg.Sensor
	s.frameBytes = uint32(s.sensorRegs[h.Registers.Width]) * uint32(s.sensorRegs[h.Registers.Height]) * h.BytesPerPixel()
	s.frames = 1
	if s.frameBytes > 0 && s.length >= s.frameBytes {
		s.frames = int(s.length / s.frameBytes)
	}
}

// advance moves an acquiring capture forward by LevelsPerPoll frames.
func (s *Simulator) advance() {
	if !s.acquiring || s.cfg.Stall {
		return
	}
	for i := 0; i < s.cfg.LevelsPerPoll && s.level < s.frames; i++ {
		s.fill(s.level)
		s.level++
	}
	s.status = 1<<uint32(s.level) - 1
}

func (s *Simulator) fill(frame int) {
	if !s.streaming || s.frameBytes == 0 {
		s.staleFrames++
		return
	}
	bpp := s.cfg.Sensor.BytesPerPixel()
	base := uint64(s.startAddr) + uint64(frame)*uint64(s.frameBytes)
	var buf [4]byte
	for pixel := 0; uint64(pixel)*uint64(bpp) < uint64(s.frameBytes); pixel++ {
		off := base + uint64(pixel)*uint64(bpp)
		if off+uint64(bpp) > uint64(len(s.store)) {
			return
		}
		binary.LittleEndian.PutUint32(buf[:], SimulatedPixel(frame, pixel, s.cfg.Sensor.PixDepth))
		copy(s.store[off:off+uint64(bpp)], buf[:bpp])
	}
}

func (s *Simulator) word(first uint32) uint32 {
	var lanes [4]byte
	for i := range lanes {
		lanes[i] = byte(s.ctrlRegs[first+uint32(i)])
	}
	return s.cfg.Controller.ByteOrder.Uint32(lanes[:])
}

func (s *Simulator) storeOffset(addr uint32, width Width) (uint32, bool) {
	if addr < s.cfg.BridgeBase {
		return 0, false
	}
	off := addr - s.cfg.BridgeBase
	if uint64(off)+uint64(width.Bytes()) > uint64(len(s.store)) {
		return 0, false
	}
	return off, true
}

func (s *Simulator) sensorRegister(addr uint32) (uint32, bool) {
	base := s.cfg.Sensor.Base
	if addr < base || addr-base > s.cfg.Sensor.Registers.Status {
		return 0, false
	}
	return addr - base, true
}

func (s *Simulator) controllerRegister(addr uint32) (uint32, bool) {
	base, stride := s.cfg.ControllerBase, s.cfg.Controller.Stride
	regs := s.cfg.Controller
	last := max(regs.Start, regs.StartAddress+3, regs.Length+3, regs.Status)
	if addr < base || addr-base > last*stride || (addr-base)%stride != 0 {
		return 0, false
	}
	return (addr - base) / stride, true
}
