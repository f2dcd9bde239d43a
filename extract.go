package framegrab

import (
	"fmt"
	"image"
)

// FrameBuffer holds raw samples in pixel order, one sample per access of
// Width bits. Values are passed through as read from the bus.
type FrameBuffer struct {
	Width   Width
	Samples []uint32
}

func NewFrameBuffer(width Width, samples int) *FrameBuffer {
	return &FrameBuffer{Width: width, Samples: make([]uint32, samples)}
}

// Reset resizes the buffer to n samples of the given width, reusing its
// backing array when it is large enough.
func (f *FrameBuffer) Reset(width Width, n int) {
	f.Width = width
	if cap(f.Samples) >= n {
		f.Samples = f.Samples[:n]
		return
	}
	f.Samples = make([]uint32, n)
}

func (f *FrameBuffer) Len() int { return len(f.Samples) }

// Gray16 returns a width x height 16 bit image of the samples, big-endian
// as image.Gray16 stores them.
func (f *FrameBuffer) Gray16(width, height int) (*image.Gray16, error) {
	if f.Width != Width16 {
		return nil, fmt.Errorf("cannot build a 16 bit image from %d bit samples", f.Width)
	}
	if width*height != len(f.Samples) {
		return nil, fmt.Errorf("invalid frame geometry %dx%d for %d samples", width, height, len(f.Samples))
	}
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for i, s := range f.Samples {
		img.Pix[2*i] = uint8(s >> 8)
		img.Pix[2*i+1] = uint8(s)
	}
	return img, nil
}

// Extract reads one frame of frameLength bytes starting at base. The whole
// range is checked before the first access so an overrun never leaves a
// partially filled buffer behind.
func Extract(w *Window, base, frameLength uint32, width Width, out *FrameBuffer) error {
	return extractFrame(w, 0, base, frameLength, width, out)
}

// ExtractMulti reads frameCount consecutive frames, frame i starting at
// i*frameLength. It stops at the first frame that does not fit the window;
// buffers of later frames are left untouched.
func ExtractMulti(w *Window, frameCount int, frameLength uint32, width Width, out []*FrameBuffer) error {
	return ExtractRing(w, 0, frameCount, frameLength, frameLength, width, out)
}

// ExtractRing reads frameCount frames laid out stride bytes apart starting
// at base.
func ExtractRing(w *Window, base uint32, frameCount int, frameLength, stride uint32, width Width, out []*FrameBuffer) error {
	if len(out) < frameCount {
		return fmt.Errorf("need %d frame buffers, got %d", frameCount, len(out))
	}
	if stride < frameLength {
		return fmt.Errorf("ring stride %d is smaller than the %d byte frame", stride, frameLength)
	}
	for i := 0; i < frameCount; i++ {
		offset := uint64(base) + uint64(i)*uint64(stride)
		if offset > uint64(w.Span()) {
			return &WindowOverrunError{Frame: i, Offset: uint32(min(offset, 0xFFFFFFFF)), Length: frameLength, Span: w.Span()}
		}
		if err := extractFrame(w, i, uint32(offset), frameLength, width, out[i]); err != nil {
			return err
		}
	}
	return nil
}

// ExtractTiled reads a frame that starts deviceOffset bytes past the window
// base and may be larger than the aperture, by re-basing copies of the window
// one span at a time.
func ExtractTiled(w *Window, deviceOffset, frameLength uint32, width Width, out *FrameBuffer) error {
	sampleBytes := width.Bytes()
	if !width.Valid() || frameLength%sampleBytes != 0 {
		return &ConfigError{Kind: ErrLengthMismatch, Detail: fmt.Sprintf("frame of %d bytes is not a multiple of %d bit samples", frameLength, width)}
	}
	if uint64(w.Base())+uint64(deviceOffset)+uint64(frameLength) > 1<<32 {
		return &WindowOverrunError{Offset: deviceOffset, Length: frameLength, Span: w.Span()}
	}

	// tiles are aligned to whole samples so no access straddles two windows
	tileSpan := w.Span() - w.Span()%sampleBytes
	if tileSpan == 0 {
		return &WindowOverrunError{Offset: deviceOffset, Length: frameLength, Span: w.Span()}
	}

	out.Reset(width, int(frameLength/sampleBytes))
	sample := 0
	for done := uint32(0); done < frameLength; {
		tile, err := w.Rebase(w.Base() + deviceOffset + done)
		if err != nil {
			return fmt.Errorf("failed to re-base window: %w", err)
		}
		n := min(tileSpan, frameLength-done)
		for off := uint32(0); off < n; off += sampleBytes {
			value, err := tile.Read(off, width)
			if err != nil {
				return err
			}
			out.Samples[sample] = value
			sample++
		}
		done += n
	}
	return nil
}

func extractFrame(w *Window, frame int, base, frameLength uint32, width Width, out *FrameBuffer) error {
	if !width.Valid() {
		return fmt.Errorf("invalid sample width %d", width)
	}
	sampleBytes := width.Bytes()
	if frameLength%sampleBytes != 0 {
		return &ConfigError{Kind: ErrLengthMismatch, Detail: fmt.Sprintf("frame of %d bytes is not a multiple of %d bit samples", frameLength, width)}
	}
	if !w.Contains(base, frameLength) {
		return &WindowOverrunError{Frame: frame, Offset: base, Length: frameLength, Span: w.Span()}
	}
	if out == nil {
		return fmt.Errorf("no buffer for frame %d", frame)
	}

	out.Reset(width, int(frameLength/sampleBytes))
	for i := range out.Samples {
		value, err := w.Read(base+uint32(i)*sampleBytes, width)
		if err != nil {
			return fmt.Errorf("failed to extract frame %d: %w", frame, err)
		}
		out.Samples[i] = value
	}
	return nil
}
