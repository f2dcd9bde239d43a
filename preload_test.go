package framegrab

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// flakyBackend drops every write to one address.
type flakyBackend struct {
	*Simulator
	broken uint32
}

func (f *flakyBackend) WriteAt(addr uint32, width Width, value uint32) error {
	if addr == f.broken {
		return nil
	}
	return f.Simulator.WriteAt(addr, width, value)
}

func TestPreload(t *testing.T) {
	_, w := newTestWindow(t, 4096)
	src := []byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE, 0xF0}

	if err := Preload(w, 1024, bytes.NewReader(src), 2, binary.BigEndian); err != nil {
		t.Fatalf("Preload failed: %v", err)
	}
	for i, want := range []uint32{0x12345678, 0x9ABCDEF0} {
		got, err := w.Read(1024+uint32(i)*4, Width32)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("word %d = 0x%08X, want 0x%08X", i, got, want)
		}
	}
}

func TestPreload_ShortInput(t *testing.T) {
	_, w := newTestWindow(t, 4096)
	if err := Preload(w, 0, bytes.NewReader([]byte{1, 2, 3, 4, 5}), 2, binary.BigEndian); err == nil {
		t.Error("expected error for truncated input")
	}
}

func TestPreload_OutOfRange(t *testing.T) {
	_, w := newTestWindow(t, 16)
	err := Preload(w, 8, bytes.NewReader(make([]byte, 16)), 4, binary.BigEndian)
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Preload error = %v, want ErrOutOfRange", err)
	}
}

func TestPreload_VerifyFailure(t *testing.T) {
	cfg := DefaultSimulatorConfig
	cfg.StoreSize = 64
	bus := &flakyBackend{Simulator: NewSimulator(cfg), broken: 8}
	w, err := NewWindow(bus, 0, 64)
	if err != nil {
		t.Fatal(err)
	}

	src := bytes.Repeat([]byte{0xFF}, 16)
	if err := Preload(w, 0, bytes.NewReader(src), 4, binary.LittleEndian); !errors.Is(err, ErrVerify) {
		t.Errorf("Preload error = %v, want ErrVerify", err)
	}
}
