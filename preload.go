package framegrab

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Preload copies words 32 bit words from r into the window starting at
// offset, decoding them in the given byte order. Every write is read back
// and compared.
func Preload(w *Window, offset uint32, r io.Reader, words int, order binary.ByteOrder) error {
	if !w.Contains(offset, uint32(words)*4) {
		return &OutOfRangeError{Offset: offset, Length: uint32(words) * 4, Span: w.Span()}
	}

	var buf [4]byte
	for i := 0; i < words; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return fmt.Errorf("failed to read word %d: %w", i, err)
		}
		addr := offset + uint32(i)*4
		value := order.Uint32(buf[:])
		if err := w.Write(addr, Width32, value); err != nil {
			return err
		}
		readback, err := w.Read(addr, Width32)
		if err != nil {
			return err
		}
		if readback != value {
			return fmt.Errorf("%w at offset 0x%08X: wrote 0x%08X, read 0x%08X", ErrVerify, addr, value, readback)
		}
	}
	return nil
}
