// Package dump writes extracted samples sequentially, one record per sample,
// either as text lines or as a stream of msgpack records.
package dump

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jonas-koeritz/framegrab"
)

type Writer interface {
	WriteSample(offset, value uint32) error
	Flush() error
}

// Record is one msgpack encoded sample.
type Record struct {
	Offset uint32 `msgpack:"offset"`
	Value  uint32 `msgpack:"value"`
}

type TextWriter struct {
	w        *bufio.Writer
	annotate bool
}

// NewTextWriter writes one decimal value per line. With annotate set every
// line is prefixed with the sample's source offset.
func NewTextWriter(w io.Writer, annotate bool) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w), annotate: annotate}
}

func (t *TextWriter) WriteSample(offset, value uint32) error {
	var err error
	if t.annotate {
		_, err = fmt.Fprintf(t.w, "0x%08X %d\n", offset, value)
	} else {
		_, err = fmt.Fprintf(t.w, "%d\n", value)
	}
	return err
}

func (t *TextWriter) Flush() error {
	return t.w.Flush()
}

type MsgpackWriter struct {
	w   *bufio.Writer
	enc *msgpack.Encoder
}

func NewMsgpackWriter(w io.Writer) *MsgpackWriter {
	bw := bufio.NewWriter(w)
	return &MsgpackWriter{w: bw, enc: msgpack.NewEncoder(bw)}
}

func (m *MsgpackWriter) WriteSample(offset, value uint32) error {
	return m.enc.Encode(Record{Offset: offset, Value: value})
}

func (m *MsgpackWriter) Flush() error {
	return m.w.Flush()
}

// ReadRecords decodes every record of a msgpack dump.
func ReadRecords(r io.Reader) ([]Record, error) {
	dec := msgpack.NewDecoder(r)
	var records []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, fmt.Errorf("failed to decode record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}

// WriteFrame writes every sample of fb, annotated with its offset from base,
// and flushes.
func WriteFrame(w Writer, base uint32, fb *framegrab.FrameBuffer) error {
	step := fb.Width.Bytes()
	for i, s := range fb.Samples {
		if err := w.WriteSample(base+uint32(i)*step, s); err != nil {
			return fmt.Errorf("failed to write sample %d: %w", i, err)
		}
	}
	return w.Flush()
}
