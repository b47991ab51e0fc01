package datagram

import (
	"encoding/binary"

	"github.com/mghost99/astron-md/errors"
)

// Framer accumulates bytes from a stream transport and slices off
// complete length-prefixed frames, grounded on NetworkClient.cpp's
// defragment_input. It is not safe for concurrent use; callers serialize
// access the same way the original serializes it under the connection's
// own mutex.
type Framer struct {
	buf []byte
}

// Feed appends newly read bytes and returns every complete frame body
// (the bytes following the u16_le length prefix) that can now be sliced
// off. It returns ErrZeroLengthFrame if a zero-length frame is seen,
// which the caller must treat as fatal to the connection — the framer
// does not attempt to resynchronize past it.
func (f *Framer) Feed(data []byte) ([][]byte, error) {
	// Fast path: an empty buffer plus a read that is itself exactly one
	// complete frame skips the accumulation buffer entirely, per
	// NetworkClient.cpp's process_datagram fast path.
	if len(f.buf) == 0 && len(data) >= LengthPrefixSize {
		declared := binary.LittleEndian.Uint16(data)
		if declared == 0 {
			return nil, errors.WrapInvalid(errors.ErrZeroLengthFrame, "datagram", "Feed", "check declared length")
		}
		if int(declared) == len(data)-LengthPrefixSize {
			body := make([]byte, declared)
			copy(body, data[LengthPrefixSize:])
			return [][]byte{body}, nil
		}
	}

	f.buf = append(f.buf, data...)
	return f.drain()
}

func (f *Framer) drain() ([][]byte, error) {
	var frames [][]byte

	for len(f.buf) >= LengthPrefixSize {
		declared := binary.LittleEndian.Uint16(f.buf)
		if declared == 0 {
			return frames, errors.WrapInvalid(errors.ErrZeroLengthFrame, "datagram", "drain", "check declared length")
		}

		total := LengthPrefixSize + int(declared)
		if len(f.buf) < total {
			break
		}

		body := make([]byte, declared)
		copy(body, f.buf[LengthPrefixSize:total])
		frames = append(frames, body)

		remaining := len(f.buf) - total
		if remaining > 0 {
			copy(f.buf, f.buf[total:])
		}
		f.buf = f.buf[:remaining]
	}

	return frames, nil
}

// Reset discards any partially-accumulated frame data.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// EncodeFrame prepends the u16_le length prefix to body, producing a
// complete wire frame ready to write.
func EncodeFrame(body []byte) []byte {
	if len(body) > MaxSize {
		panic("datagram: frame body exceeds MaxSize")
	}
	frame := make([]byte, LengthPrefixSize+len(body))
	binary.LittleEndian.PutUint16(frame, uint16(len(body)))
	copy(frame[LengthPrefixSize:], body)
	return frame
}
