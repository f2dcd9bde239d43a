//go:build !linux

package framegrab

import "fmt"

const registerBlockSpan = 0x100

type DevMem struct{}

func OpenDevMem(base, span uint32) (*DevMem, error) {
	return nil, fmt.Errorf("failed to map 0x%08X+0x%X: /dev/mem is only supported on linux", base, span)
}

func (d *DevMem) Map(base, span uint32) error {
	return fmt.Errorf("device memory is not supported on this platform")
}

func (d *DevMem) ReadAt(addr uint32, width Width) (uint32, error) {
	return 0, fmt.Errorf("device memory is not supported on this platform")
}

func (d *DevMem) WriteAt(addr uint32, width Width, value uint32) error {
	return fmt.Errorf("device memory is not supported on this platform")
}

func (d *DevMem) Close() error { return nil }
