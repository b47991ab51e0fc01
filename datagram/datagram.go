// Package datagram implements the Message Director's wire datagram: a
// list of destination channels followed by an opaque body, and the
// length-prefixed framing codec used to read and write it over a stream
// transport. Grounded on original_source/src/net/NetworkClient.cpp's
// defragment_input/process_datagram (framing) and
// original_source/src/util/Datagram.h-shaped receiver-count-prefixed
// wire format spec.md §2 describes.
package datagram

import (
	"encoding/binary"

	"github.com/mghost99/astron-md/channel"
	"github.com/mghost99/astron-md/errors"
)

// LengthPrefixSize is the size in bytes of the u16_le length prefix that
// precedes every datagram on the wire.
const LengthPrefixSize = 2

// MaxSize is the largest declared datagram length the codec accepts,
// matching a uint16 length field.
const MaxSize = 1<<16 - 1

// Datagram is a routable message: a set of destination channels and an
// opaque payload. The wire encoding of the receiver list is
// u8 count || count*u64_le channel; Body follows immediately after.
type Datagram struct {
	Receivers []channel.ID
	Body      []byte
}

// New builds a Datagram addressed to receivers with the given body. The
// body slice is retained, not copied.
func New(receivers []channel.ID, body []byte) *Datagram {
	return &Datagram{Receivers: receivers, Body: body}
}

// Encode serializes the datagram's receiver-prefixed wire body (without
// the outer length prefix — that is added by EncodeFrame).
func (d *Datagram) Encode() []byte {
	buf := make([]byte, 1+8*len(d.Receivers)+len(d.Body))
	buf[0] = byte(len(d.Receivers))
	off := 1
	for _, ch := range d.Receivers {
		binary.LittleEndian.PutUint64(buf[off:], uint64(ch))
		off += 8
	}
	copy(buf[off:], d.Body)
	return buf
}

// Decode parses a receiver-prefixed wire body into a Datagram. It
// returns ErrTruncatedDatagram if data is shorter than the declared
// receiver count implies.
func Decode(data []byte) (*Datagram, error) {
	if len(data) < 1 {
		return nil, errors.WrapInvalid(errors.ErrTruncatedDatagram, "datagram", "Decode", "read receiver count")
	}
	count := int(data[0])
	need := 1 + 8*count
	if len(data) < need {
		return nil, errors.WrapInvalid(errors.ErrTruncatedDatagram, "datagram", "Decode", "read receivers")
	}

	receivers := make([]channel.ID, count)
	off := 1
	for i := 0; i < count; i++ {
		receivers[i] = channel.ID(binary.LittleEndian.Uint64(data[off:]))
		off += 8
	}

	body := data[need:]
	return &Datagram{Receivers: receivers, Body: body}, nil
}
