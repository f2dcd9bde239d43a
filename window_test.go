package framegrab

import (
	"errors"
	"testing"
)

func newTestWindow(t *testing.T, span uint32) (*Simulator, *Window) {
	t.Helper()
	cfg := DefaultSimulatorConfig
	cfg.StoreSize = span
	sim := NewSimulator(cfg)
	w, err := NewWindow(sim, cfg.BridgeBase, span)
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}
	return sim, w
}

func TestWindow_ReadAfterWrite(t *testing.T) {
	_, w := newTestWindow(t, 256)

	tests := []struct {
		width Width
		value uint32
	}{
		{Width8, 0xA5},
		{Width16, 0xBEEF},
		{Width32, 0xDEADBEEF},
	}

	for _, tt := range tests {
		for k := uint32(0); k+tt.width.Bytes() <= w.Span(); k += tt.width.Bytes() {
			pattern := (tt.value ^ k) & tt.width.mask()
			if err := w.Write(k, tt.width, pattern); err != nil {
				t.Fatalf("Write(%d, %d) failed: %v", k, tt.width, err)
			}
			got, err := w.Read(k, tt.width)
			if err != nil {
				t.Fatalf("Read(%d, %d) failed: %v", k, tt.width, err)
			}
			if got != pattern {
				t.Errorf("Read(%d, %d) = 0x%X, want 0x%X", k, tt.width, got, pattern)
			}
		}
	}
}

func TestWindow_OutOfRange(t *testing.T) {
	sim, w := newTestWindow(t, 64)

	tests := []struct {
		name   string
		offset uint32
		width  Width
	}{
		{"past end", 64, Width8},
		{"straddles end 16", 63, Width16},
		{"straddles end 32", 62, Width32},
		{"far past end", 0xFFFFFFFF, Width32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reads, writes := sim.Reads, sim.Writes
			if _, err := w.Read(tt.offset, tt.width); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Read error = %v, want ErrOutOfRange", err)
			}
			if err := w.Write(tt.offset, tt.width, 1); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Write error = %v, want ErrOutOfRange", err)
			}
			if sim.Reads != reads || sim.Writes != writes {
				t.Errorf("out of range access reached the backend")
			}
		})
	}

	var oor *OutOfRangeError
	_, err := w.Read(63, Width16)
	if !errors.As(err, &oor) || oor.Span != 64 || oor.Offset != 63 {
		t.Errorf("expected OutOfRangeError{Offset: 63, Span: 64}, got %v", err)
	}
}

func TestWindow_LastSampleInRange(t *testing.T) {
	_, w := newTestWindow(t, 64)
	if err := w.Write(60, Width32, 7); err != nil {
		t.Fatalf("Write at the last word failed: %v", err)
	}
	if _, err := w.Read(63, Width8); err != nil {
		t.Errorf("Read at the last byte failed: %v", err)
	}
}

func TestWindow_InvalidWidth(t *testing.T) {
	_, w := newTestWindow(t, 64)
	if _, err := w.Read(0, Width(12)); err == nil {
		t.Error("expected error for 12 bit access")
	}
}

func TestWindow_Rebase(t *testing.T) {
	_, w := newTestWindow(t, 128)
	if err := w.Write(64, Width16, 0x1234); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	moved, err := w.Rebase(64)
	if err != nil {
		t.Fatalf("Rebase failed: %v", err)
	}
	if moved.Span() != w.Span() || moved.Base() != 64 {
		t.Errorf("Rebase = base %d span %d, want base 64 span %d", moved.Base(), moved.Span(), w.Span())
	}
	got, err := moved.Read(0, Width16)
	if err != nil {
		t.Fatalf("Read through rebased window failed: %v", err)
	}
	if got != 0x1234 {
		t.Errorf("Read = 0x%X, want 0x1234", got)
	}

	// the rebased window keeps its span even where the backend ends
	if _, err := moved.Read(100, Width16); err == nil {
		t.Error("expected backend error past the end of the store")
	}
}

func TestNewWindow_Invalid(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig)
	if _, err := NewWindow(nil, 0, 16); err == nil {
		t.Error("expected error without backend")
	}
	if _, err := NewWindow(sim, 0, 0); err == nil {
		t.Error("expected error for zero span")
	}
	if _, err := NewWindow(sim, 0xFFFFFF00, 0x200); err == nil {
		t.Error("expected error for a window wrapping the address space")
	}
}
