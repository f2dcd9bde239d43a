package framegrab

import (
	"errors"
	"testing"
)

func fillPattern(t *testing.T, w *Window, length uint32) {
	t.Helper()
	for off := uint32(0); off < length; off += 2 {
		if err := w.Write(off, Width16, off/2); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
}

func TestExtract_Exact(t *testing.T) {
	tests := []struct {
		name  string
		base  uint32
		frame uint32
		width Width
	}{
		{"16 bit at 0", 0, 1024, Width16},
		{"8 bit at 0", 0, 1024, Width8},
		{"32 bit at 0", 0, 1024, Width32},
		{"16 bit filling the span", 1024, 3072, Width16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, w := newTestWindow(t, 4096)
			fillPattern(t, w, 4096)

			out := &FrameBuffer{}
			if err := Extract(w, tt.base, tt.frame, tt.width, out); err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if got, want := out.Len(), int(tt.frame/tt.width.Bytes()); got != want {
				t.Fatalf("extracted %d samples, want %d", got, want)
			}
			for i, s := range out.Samples {
				want, _ := w.Read(tt.base+uint32(i)*tt.width.Bytes(), tt.width)
				if s != want {
					t.Fatalf("sample %d = 0x%X, want 0x%X", i, s, want)
				}
			}
		})
	}
}

func TestExtract_OverrunIsNeverPartial(t *testing.T) {
	sim, w := newTestWindow(t, 4096)
	out := &FrameBuffer{Width: Width16, Samples: []uint32{42}}
	reads := sim.Reads

	err := Extract(w, 2048, 2050, Width16, out)
	if !errors.Is(err, ErrWindowOverrun) {
		t.Fatalf("Extract error = %v, want ErrWindowOverrun", err)
	}
	if sim.Reads != reads {
		t.Errorf("overrunning extract issued %d reads", sim.Reads-reads)
	}
	if len(out.Samples) != 1 || out.Samples[0] != 42 {
		t.Errorf("buffer was modified: %v", out.Samples)
	}
}

func TestExtract_LengthMismatch(t *testing.T) {
	_, w := newTestWindow(t, 4096)
	if err := Extract(w, 0, 1023, Width16, &FrameBuffer{}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Extract error = %v, want ErrLengthMismatch", err)
	}
}

func TestExtractMulti(t *testing.T) {
	_, w := newTestWindow(t, 4096)
	fillPattern(t, w, 4096)

	outs := []*FrameBuffer{{}, {}, {}}
	if err := ExtractMulti(w, 3, 1024, Width16, outs); err != nil {
		t.Fatalf("ExtractMulti failed: %v", err)
	}
	for i, fb := range outs {
		if fb.Len() != 512 {
			t.Fatalf("frame %d has %d samples, want 512", i, fb.Len())
		}
		if first := fb.Samples[0]; first != uint32(i*512) {
			t.Errorf("frame %d starts with %d, want %d", i, first, i*512)
		}
	}
}

func TestExtractMulti_OverrunOnFirstFrame(t *testing.T) {
	const (
		frame    = 153600
		aperture = 151040
	)
	_, w := newTestWindow(t, aperture)

	outs := []*FrameBuffer{{}, {}, {}}
	err := ExtractMulti(w, 3, frame, Width16, outs)
	var overrun *WindowOverrunError
	if !errors.As(err, &overrun) {
		t.Fatalf("ExtractMulti error = %v, want WindowOverrunError", err)
	}
	if overrun.Frame != 0 {
		t.Errorf("failed frame = %d, want 0", overrun.Frame)
	}
	for i, fb := range outs {
		if fb.Len() != 0 {
			t.Errorf("frame %d received %d samples", i, fb.Len())
		}
	}
}

func TestExtractMulti_OverrunOnLaterFrame(t *testing.T) {
	_, w := newTestWindow(t, 2560)
	fillPattern(t, w, 2560)

	outs := []*FrameBuffer{{}, {}, {}}
	err := ExtractMulti(w, 3, 1024, Width16, outs)
	var overrun *WindowOverrunError
	if !errors.As(err, &overrun) || overrun.Frame != 2 {
		t.Fatalf("ExtractMulti error = %v, want overrun on frame 2", err)
	}
	if outs[0].Len() != 512 || outs[1].Len() != 512 {
		t.Errorf("frames before the overrun were not extracted")
	}
	if outs[2].Len() != 0 {
		t.Errorf("overrunning frame received %d samples", outs[2].Len())
	}
}

func TestExtractMulti_NotEnoughBuffers(t *testing.T) {
	_, w := newTestWindow(t, 4096)
	if err := ExtractMulti(w, 3, 1024, Width16, []*FrameBuffer{{}}); err == nil {
		t.Error("expected error for missing buffers")
	}
}

func TestExtractRing(t *testing.T) {
	_, w := newTestWindow(t, 8192)
	fillPattern(t, w, 8192)

	outs := []*FrameBuffer{{}, {}}
	if err := ExtractRing(w, 512, 2, 1024, 4096, Width16, outs); err != nil {
		t.Fatalf("ExtractRing failed: %v", err)
	}
	if outs[0].Samples[0] != 256 || outs[1].Samples[0] != (512+4096)/2 {
		t.Errorf("ring slots start with %d and %d", outs[0].Samples[0], outs[1].Samples[0])
	}
	if err := ExtractRing(w, 0, 2, 1024, 512, Width16, outs); err == nil {
		t.Error("expected error for a stride smaller than the frame")
	}
}

func TestExtractTiled(t *testing.T) {
	const (
		store    = 8192
		aperture = 1000 // not a multiple of 4 on purpose
		frame    = 5000
	)
	sim := NewSimulator(SimulatorConfig{StoreSize: store, Sensor: DefaultSensorHandle, ControllerBase: DefaultControllerBase, Controller: DefaultControllerRegisters})
	full, err := NewWindow(sim, 0, store)
	if err != nil {
		t.Fatal(err)
	}
	for off := uint32(0); off < store; off += 4 {
		if err := full.Write(off, Width32, off); err != nil {
			t.Fatal(err)
		}
	}

	w, err := NewWindow(sim, 0, aperture)
	if err != nil {
		t.Fatal(err)
	}
	out := &FrameBuffer{}
	if err := Extract(w, 0, frame, Width32, out); !errors.Is(err, ErrWindowOverrun) {
		t.Fatalf("plain Extract error = %v, want ErrWindowOverrun", err)
	}
	if err := ExtractTiled(w, 1024, frame, Width32, out); err != nil {
		t.Fatalf("ExtractTiled failed: %v", err)
	}
	if out.Len() != frame/4 {
		t.Fatalf("extracted %d samples, want %d", out.Len(), frame/4)
	}
	for i, s := range out.Samples {
		if want := uint32(1024 + i*4); s != want {
			t.Fatalf("sample %d = %d, want %d", i, s, want)
		}
	}
}

func TestFrameBuffer_Gray16(t *testing.T) {
	fb := &FrameBuffer{Width: Width16, Samples: []uint32{0x0102, 0x0304, 0x0506, 0x0708}}
	img, err := fb.Gray16(2, 2)
	if err != nil {
		t.Fatalf("Gray16 failed: %v", err)
	}
	if got := img.Gray16At(1, 1).Y; got != 0x0708 {
		t.Errorf("pixel (1,1) = 0x%04X, want 0x0708", got)
	}
	if _, err := fb.Gray16(3, 2); err == nil {
		t.Error("expected error for mismatched geometry")
	}
	fb.Width = Width8
	if _, err := fb.Gray16(2, 2); err == nil {
		t.Error("expected error for 8 bit samples")
	}
}
