package framegrab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
)

// ArmAndStart brings the sensor into streaming before the controller is
// triggered. Triggering a controller while the sensor is not streaming
// produces frames with stale or partial data and no fault is reported, so
// this is the ordering callers should use.
func ArmAndStart(s *Sensor, c *Controller, d CaptureDescriptor) error {
	state := s.State()
	if state != SensorConfigured && state != SensorStreaming {
		return &SequenceError{Component: "sensor", Op: "arm and start", State: state}
	}
	if c.State() != ControllerIdle {
		return &SequenceError{Component: "controller", Op: "arm", State: c.State()}
	}

	c.SetFrameLength(s.FrameBytes())
	if err := c.validate(d); err != nil {
		return err
	}

	if state == SensorConfigured {
		if err := s.Start(); err != nil {
			return err
		}
	}
	err := c.Arm(d)
	if err == nil {
		err = c.Trigger()
	}
	if err != nil && state == SensorConfigured {
		return errors.Join(err, restoreConfigured(s))
	}
	return err
}

// restoreConfigured stops a sensor started by a failed ArmAndStart and
// reapplies its geometry so the caller finds it configured again.
func restoreConfigured(s *Sensor) error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.Configure(s.Config())
}

// DefaultWait is used by Capture when the request names no wait strategy.
var DefaultWait WaitStrategy = TimedPoll{Interval: time.Millisecond, Timeout: time.Second}

type CaptureRequest struct {
	Sensor     *Sensor
	Controller *Controller
	Window     *Window

	// Frames is the number of consecutive frames to acquire, at least 1.
	Frames int
	// StartOffset is where in the window the first frame is placed.
	StartOffset uint32

	// Wait defaults to DefaultWait.
	Wait WaitStrategy
}

type CaptureResult struct {
	ID       uuid.UUID
	Frames   []*FrameBuffer
	Status   ControllerStatus
	Duration time.Duration
}

// Capture runs one full cycle: start the sensor, arm and trigger the
// controller, wait for it to settle, extract every frame and disarm. When
// waiting fails the controller is disarmed and the sensor stopped before the
// error is returned.
func Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	if req.Frames < 1 {
		req.Frames = 1
	}
	if req.Wait == nil {
		req.Wait = DefaultWait
	}

	id := uuid.New()
	log := slog.With("capture", id.String())
	start := time.Now()

	frameLength := req.Sensor.FrameBytes()
	length := uint64(frameLength) * uint64(req.Frames)
	if length > math.MaxUint32 {
		return nil, &ConfigError{Kind: ErrFrameTooLarge, Detail: fmt.Sprintf("%d frames of %d bytes exceed the 32 bit capture length", req.Frames, frameLength)}
	}
	d := CaptureDescriptor{StartOffset: req.StartOffset, LengthBytes: uint32(length)}
	log.Info("framegrab: starting capture", "frames", req.Frames, "frame_bytes", frameLength, "start", fmt.Sprintf("0x%08X", d.StartOffset))

	if err := ArmAndStart(req.Sensor, req.Controller, d); err != nil {
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}

	status, err := req.Wait.Wait(ctx, req.Controller)
	if err != nil {
		log.Warn("framegrab: capture did not settle, aborting", "level", req.Controller.Level(), "expected", req.Controller.ExpectedLevel(), "error", err)
		return nil, errors.Join(fmt.Errorf("failed to wait for capture: %w", err), abort(req.Sensor, req.Controller))
	}

	result := &CaptureResult{ID: id, Status: status, Frames: make([]*FrameBuffer, req.Frames)}
	for i := range result.Frames {
		result.Frames[i] = &FrameBuffer{}
	}
	width := req.Controller.SampleWidth()
	extractErr := ExtractRing(req.Window, d.StartOffset, req.Frames, frameLength, frameLength, width, result.Frames)
	if err := req.Controller.Disarm(); err != nil {
		return nil, errors.Join(extractErr, err)
	}
	if extractErr != nil {
		return nil, fmt.Errorf("failed to extract capture: %w", extractErr)
	}

	result.Duration = time.Since(start)
	log.Info("framegrab: capture complete", "level", status.Level(), "duration", result.Duration)
	return result, nil
}

func abort(s *Sensor, c *Controller) error {
	var errs []error
	if c.State() == ControllerAcquiring || c.State() == ControllerSettled {
		errs = append(errs, c.Disarm())
	}
	errs = append(errs, s.Stop())
	return errors.Join(errs...)
}
