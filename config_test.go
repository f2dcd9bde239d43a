package framegrab

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framegrab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig is invalid: %v", err)
	}
	if got := cfg.SensorHandle().FrameBytes(cfg.SensorConfig()); got > cfg.Bridge.Span {
		t.Errorf("default frame of %d bytes does not fit the %d byte span", got, cfg.Bridge.Span)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
bridge:
  backend: sim
  span: 0x100000
controller:
  byte_order: big
  access_width: 32
  stride: 4
  base: 0x20000000
capture:
  width: 640
  height: 480
  frames: 1
  line_line_blank: 12
  wait:
    strategy: staged
    interval: 2ms
    timeout: 500ms
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Bridge.Span != 0x100000 {
		t.Errorf("span = 0x%X", cfg.Bridge.Span)
	}
	if cfg.Sensor.Base != DefaultSensorBase {
		t.Errorf("unset sensor base = 0x%X, want default", cfg.Sensor.Base)
	}

	ctrl := cfg.ControllerConfig()
	if ctrl.Registers.ByteOrder != binary.BigEndian || ctrl.Registers.Stride != 4 || ctrl.Registers.AccessWidth != Width32 {
		t.Errorf("controller registers = %+v", ctrl.Registers)
	}

	sc := cfg.SensorConfig()
	if sc.LineLineBlank != 12 || sc.FrameFrameBlank != DefaultBlanking.FrameFrameBlank {
		t.Errorf("sensor config = %+v", sc)
	}

	staged, ok := cfg.WaitStrategy().(StagedPoll)
	if !ok {
		t.Fatalf("WaitStrategy = %T, want StagedPoll", cfg.WaitStrategy())
	}
	if staged.Interval != 2*time.Millisecond || staged.Timeout != 500*time.Millisecond {
		t.Errorf("staged poll = %+v", staged)
	}
}

func TestLoadConfig_StatusLayout(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		reg   uint32
		shift uint32
		mask  uint32
	}{
		{"default", "controller: {}\n", DefaultControllerRegisters.Status, 0, 0xFF},
		{"packed", "controller:\n  packed: true\n", 0x1, 4, 0x0F},
		{"explicit", "controller:\n  status_register: 0xA\n  status_shift: 2\n  status_mask: 0x3F\n", 0xA, 2, 0x3F},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.yaml))
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			regs := cfg.ControllerConfig().Registers
			if regs.Status != tt.reg || uint32(regs.StatusShift) != tt.shift || regs.StatusMask != tt.mask {
				t.Errorf("status register 0x%X shift %d mask 0x%X, want 0x%X shift %d mask 0x%X",
					regs.Status, regs.StatusShift, regs.StatusMask, tt.reg, tt.shift, tt.mask)
			}
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, `
bridge:
  backend: pcie
controller:
  access_width: 12
capture:
  frames: 0
  wait:
    strategy: sometimes
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"bridge.backend", "controller.access_width", "capture.frames", "capture.wait.strategy"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error does not mention %s: %v", field, err)
		}
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestConfig_SimulatedCapture(t *testing.T) {
	cfg := DefaultConfig()
	bus, err := cfg.OpenBackend()
	if err != nil {
		t.Fatalf("OpenBackend failed: %v", err)
	}
	defer bus.Close()

	sensor := NewSensor(bus, cfg.SensorHandle())
	sensor.Init()
	if err := sensor.Configure(cfg.SensorConfig()); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	window, err := NewWindow(bus, cfg.Bridge.Base, cfg.Bridge.Span)
	if err != nil {
		t.Fatal(err)
	}

	result, err := Capture(context.Background(), CaptureRequest{
		Sensor:     sensor,
		Controller: NewController(bus, cfg.ControllerConfig()),
		Window:     window,
		Frames:     cfg.Capture.Frames,
		Wait:       cfg.WaitStrategy(),
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if got := result.Frames[0].Len(); got != 320*240 {
		t.Errorf("captured %d samples, want %d", got, 320*240)
	}
}
