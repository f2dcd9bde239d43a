package framegrab

import "encoding/binary"

// Width is the size of a single bus access or sample in bits.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
)

func (w Width) Bytes() uint32 {
	return uint32(w) / 8
}

func (w Width) Valid() bool {
	return w == Width8 || w == Width16 || w == Width32
}

func (w Width) mask() uint32 {
	if w == Width32 {
		return 0xFFFFFFFF
	}
	return 1<<uint32(w) - 1
}

// SensorRegisters is the byte offset of every register of the sensor output
// generator relative to its base address.
type SensorRegisters struct {
	Width           uint32
	Height          uint32
	FrameFrameBlank uint32
	FrameLineBlank  uint32
	LineLineBlank   uint32
	LineFrameBlank  uint32
	Command         uint32
	Status          uint32
}

var DefaultSensorRegisters = SensorRegisters{
	Width:           0x00,
	Height:          0x04,
	FrameFrameBlank: 0x08,
	FrameLineBlank:  0x0C,
	LineLineBlank:   0x10,
	LineFrameBlank:  0x14,
	Command:         0x18,
	Status:          0x1C,
}

const (
	sensorCommandStart = 0
	sensorCommandStop  = 1

	sensorStatusIdle = 1 << 0

	// stop waits this many status reads for the generator to go idle
	sensorStopPolls = 1000
)

// ControllerRegisters describes where the capture controller's logical
// registers live and how they are accessed. Offsets are register indices,
// multiplied by Stride to get the byte offset from the controller base.
type ControllerRegisters struct {
	Start        uint32 // start/stop bit (W)
	StartAddress uint32 // first of 4 byte lanes (W)
	Length       uint32 // first of 4 byte lanes (W)
	Status       uint32 // readiness bits (RW)

	Stride      uint32
	AccessWidth Width
	ByteOrder   binary.ByteOrder

	// packed variants share the status with another register
	StatusShift uint8
	StatusMask  uint32
}

var DefaultControllerRegisters = ControllerRegisters{
	Start:        0x0,
	StartAddress: 0x1,
	Length:       0x5,
	Status:       0x9,
	Stride:       1,
	AccessWidth:  Width8,
	ByteOrder:    binary.LittleEndian,
	StatusMask:   0xFF,
}

// PackedControllerRegisters is the narrow variant where the status bits sit
// in the upper nibble of register 0x1.
var PackedControllerRegisters = ControllerRegisters{
	Start:        0x0,
	StartAddress: 0x2,
	Length:       0x6,
	Status:       0x1,
	Stride:       1,
	AccessWidth:  Width8,
	ByteOrder:    binary.LittleEndian,
	StatusShift:  4,
	StatusMask:   0x0F,
}

const (
	DefaultSensorBase     = 0x10000820
	DefaultControllerBase = 0x10000800
	DefaultBridgeBase     = 0x00000000

	DefaultPixDepth  = 12
	DefaultMaxWidth  = 640
	DefaultMaxHeight = 480

	// span of the address span expander, sized for one 320x240x2 frame
	DefaultBridgeSpan = 151 * 1024
	// full span reachable through the expander on the largest deployment
	FullBridgeSpan = 256 * 1024 * 1024
)

// DefaultBlanking holds the documented blanking minima of the generator.
var DefaultBlanking = SensorConfig{
	FrameFrameBlank: 1,
	FrameLineBlank:  1,
	LineLineBlank:   1,
	LineFrameBlank:  1,
}

// Known USB IDs of serial bus bridges.
const VENDOR_ID = "09FB"

var PRODUCT_IDs = []string{"6010", "6810"}
