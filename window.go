package framegrab

import "fmt"

// Window is a bounds-checked aperture of Span bytes starting at Base. Every
// access is checked against the span before it reaches the backend.
type Window struct {
	bus  Backend
	base uint32
	span uint32
}

func NewWindow(bus Backend, base, span uint32) (*Window, error) {
	if bus == nil {
		return nil, fmt.Errorf("failed to create window: no backend")
	}
	if span == 0 {
		return nil, fmt.Errorf("failed to create window: zero span")
	}
	if uint64(base)+uint64(span) > 1<<32 {
		return nil, fmt.Errorf("failed to create window: 0x%08X+0x%X wraps the address space", base, span)
	}
	return &Window{bus: bus, base: base, span: span}, nil
}

func (w *Window) Base() uint32 { return w.base }
func (w *Window) Span() uint32 { return w.span }

// Contains reports whether length bytes starting at offset fit in the window.
func (w *Window) Contains(offset, length uint32) bool {
	return uint64(offset)+uint64(length) <= uint64(w.span)
}

// Rebase returns a window of the same span over a different base address.
func (w *Window) Rebase(base uint32) (*Window, error) {
	return NewWindow(w.bus, base, w.span)
}

func (w *Window) check(offset uint32, width Width) error {
	if !width.Valid() {
		return fmt.Errorf("invalid access width %d", width)
	}
	if !w.Contains(offset, width.Bytes()) {
		return &OutOfRangeError{Offset: offset, Length: width.Bytes(), Span: w.span}
	}
	return nil
}

func (w *Window) Read(offset uint32, width Width) (uint32, error) {
	if err := w.check(offset, width); err != nil {
		return 0, err
	}
	value, err := w.bus.ReadAt(w.base+offset, width)
	if err != nil {
		return 0, fmt.Errorf("failed to read window offset 0x%08X: %w", offset, err)
	}
	return value, nil
}

func (w *Window) Write(offset uint32, width Width, value uint32) error {
	if err := w.check(offset, width); err != nil {
		return err
	}
	if err := w.bus.WriteAt(w.base+offset, width, value&width.mask()); err != nil {
		return fmt.Errorf("failed to write window offset 0x%08X: %w", offset, err)
	}
	return nil
}
