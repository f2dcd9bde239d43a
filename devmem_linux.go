//go:build linux

package framegrab

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const devMemPath = "/dev/mem"

// registerBlockSpan is how much is mapped for a device register block.
const registerBlockSpan = 0x100

type devMemRegion struct {
	base uint32 // physical address of mem[0], page aligned
	mem  []byte
}

// DevMem maps physical address ranges through /dev/mem. Accesses outside
// the mapped ranges fail.
type DevMem struct {
	file    *os.File
	regions []devMemRegion
}

// OpenDevMem maps span bytes of physical memory starting at base.
func OpenDevMem(base, span uint32) (*DevMem, error) {
	f, err := os.OpenFile(devMemPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", devMemPath, err)
	}
	d := &DevMem{file: f}
	if err := d.Map(base, span); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// Map adds another physical range. Ranges already covered are not mapped twice.
func (d *DevMem) Map(base, span uint32) error {
	if d.covers(base, span) {
		return nil
	}
	page := uint32(os.Getpagesize())
	aligned := base - base%page
	length := int(base - aligned + span)

	mem, err := unix.Mmap(int(d.file.Fd()), int64(aligned), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("failed to map 0x%08X+0x%X: %w", base, span, err)
	}
	d.regions = append(d.regions, devMemRegion{base: aligned, mem: mem})
	return nil
}

func (d *DevMem) covers(addr, length uint32) bool {
	_, ok := d.lookup(addr, length)
	return ok
}

func (d *DevMem) lookup(addr, length uint32) (unsafe.Pointer, bool) {
	for _, r := range d.regions {
		if addr >= r.base && uint64(addr-r.base)+uint64(length) <= uint64(len(r.mem)) {
			return unsafe.Pointer(&r.mem[addr-r.base]), true
		}
	}
	return nil, false
}

func (d *DevMem) pointer(addr uint32, width Width) (unsafe.Pointer, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("invalid access width %d", width)
	}
	if addr%width.Bytes() != 0 {
		return nil, fmt.Errorf("unaligned %d bit access at 0x%08X", width, addr)
	}
	p, ok := d.lookup(addr, width.Bytes())
	if !ok {
		return nil, fmt.Errorf("address 0x%08X is not mapped", addr)
	}
	return p, nil
}

// ReadAt issues a single access of the requested width so the bridge sees
// exactly one bus transaction.
func (d *DevMem) ReadAt(addr uint32, width Width) (uint32, error) {
	p, err := d.pointer(addr, width)
	if err != nil {
		return 0, err
	}
	switch width {
	case Width8:
		return uint32(*(*uint8)(p)), nil
	case Width16:
		return uint32(*(*uint16)(p)), nil
	default:
		return atomic.LoadUint32((*uint32)(p)), nil
	}
}

func (d *DevMem) WriteAt(addr uint32, width Width, value uint32) error {
	p, err := d.pointer(addr, width)
	if err != nil {
		return err
	}
	switch width {
	case Width8:
		*(*uint8)(p) = uint8(value)
	case Width16:
		*(*uint16)(p) = uint16(value)
	default:
		atomic.StoreUint32((*uint32)(p), value)
	}
	return nil
}

func (d *DevMem) Close() error {
	var err error
	for _, r := range d.regions {
		if uerr := unix.Munmap(r.mem); err == nil {
			err = uerr
		}
	}
	d.regions = nil
	if d.file != nil {
		if cerr := d.file.Close(); err == nil {
			err = cerr
		}
		d.file = nil
	}
	return err
}
