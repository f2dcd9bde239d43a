package framegrab

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialBridge reaches the bus bridge through a USB-CDC debug port. Every
// access is one command packet answered by one reply packet.
type SerialBridge struct {
	port     io.ReadWriteCloser
	PortName string
}

// OpenSerialBridge opens the given port, or autodetects a bridge by its USB
// IDs when no port name is given.
func OpenSerialBridge(serialPort ...string) (*SerialBridge, error) {
	portName := ""
	var err error

	if len(serialPort) == 0 || serialPort[0] == "" {
		portName, err = getSerialPort()
		if err != nil {
			return nil, fmt.Errorf("failed to open serial bridge: %w", err)
		}
	} else {
		portName = serialPort[0]
	}

	p, err := serial.Open(portName, &serial.Mode{}) // USB-CDC, the baudrate is ignored
	if err != nil {
		return nil, fmt.Errorf("failed to open serial bridge: %w", err)
	}

	return &SerialBridge{port: p, PortName: portName}, nil
}

// NewSerialBridge speaks the bridge protocol over an already open port.
func NewSerialBridge(port io.ReadWriteCloser) *SerialBridge {
	return &SerialBridge{port: port}
}

func (b *SerialBridge) Close() error {
	return b.port.Close()
}

func (b *SerialBridge) ReadAt(addr uint32, width Width) (uint32, error) {
	if !width.Valid() {
		return 0, fmt.Errorf("invalid access width %d", width)
	}
	data, err := b.sendCommand(fmt.Sprintf("RMEM%08X%02X", addr, uint8(width)))
	if err != nil {
		return 0, fmt.Errorf("failed to read 0x%08X: %w", addr, err)
	}
	if len(data) == 0 || len(data) > 8 {
		return 0, fmt.Errorf("failed to read 0x%08X: invalid response length (%d)", addr, len(data))
	}
	value, err := strconv.ParseUint(string(data), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to decode value at 0x%08X: %w", addr, err)
	}
	return uint32(value) & width.mask(), nil
}

func (b *SerialBridge) WriteAt(addr uint32, width Width, value uint32) error {
	if !width.Valid() {
		return fmt.Errorf("invalid access width %d", width)
	}
	_, err := b.sendCommand(fmt.Sprintf("WMEM%08X%02X%08X", addr, uint8(width), value&width.mask()))
	if err != nil {
		return fmt.Errorf("failed to write 0x%08X: %w", addr, err)
	}
	return nil
}

func (b *SerialBridge) sendCommand(cmd string) (data []byte, err error) {
	cmdType := cmd[0:4]

	// Reformat cmd, include length
	cmd = fmt.Sprintf("   #%04X%s", len(cmd), cmd)

	_, err = b.port.Write([]byte(cmd))
	if err != nil {
		return []byte{}, fmt.Errorf("failed to write to serial port: %w", err)
	}

	for packetType := ""; packetType != cmdType; {
		packetType, data, err = b.readPacket()
		if err != nil {
			return []byte{}, fmt.Errorf("failed to read response: %w", err)
		}
		if packetType == "ERRR" {
			return []byte{}, fmt.Errorf("bridge rejected %s: %s", cmdType, data)
		}
	}

	return
}

func (b *SerialBridge) readPacket() (packetType string, data []byte, err error) {
	header := make([]byte, 12)
	for string(header[:4]) != "   #" {
		if _, err = io.ReadFull(b.port, header); err != nil {
			return "", []byte{}, fmt.Errorf("failed to read header from serial port: %w", err)
		}
	}

	header = header[4:]
	packetType = string(header[4:])

	length, err := hex.DecodeString(string(header[:4]))
	if err != nil {
		return "", []byte{}, fmt.Errorf("failed to decode packet length: %w", err)
	}
	if binary.BigEndian.Uint16(length) < 8 {
		return "", []byte{}, fmt.Errorf("invalid packet length %d", binary.BigEndian.Uint16(length))
	}

	dataLength := binary.BigEndian.Uint16(length) - 8

	data = make([]byte, dataLength)
	if _, err = io.ReadFull(b.port, data); err != nil {
		return "", []byte{}, fmt.Errorf("failed to read data from serial port: %w", err)
	}

	crc := make([]byte, 4)
	if _, err = io.ReadFull(b.port, crc); err != nil {
		return "", []byte{}, fmt.Errorf("failed to read CRC from serial port: %w", err)
	}

	return
}

func getSerialPort() (string, error) {
	portDetails, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("failed to autodetect bridge serial port: %w", err)
	}

	for _, port := range portDetails {
		if port.IsUSB && strings.EqualFold(port.VID, VENDOR_ID) && slices.Contains(PRODUCT_IDs, strings.ToUpper(port.PID)) {
			return port.Name, nil
		}
	}

	return "", fmt.Errorf("no serial bridge found")
}
