// Package control decodes and dispatches control messages: datagrams
// addressed to channel.Control that carry a 16-bit type code and a
// type-specific body, per spec.md §4.5. Wire encoding of each body is
// this implementation's own choice (spec.md notes the exact codes are
// implementer-assigned, "what matters is stable, documented mapping"):
// a channel is u64_le, a string/blob is u32_le length followed by bytes,
// except the LOG_MESSAGE blob, which is the rest of the body with no
// length prefix.
package control

import (
	"encoding/binary"

	"github.com/mghost99/astron-md/channel"
	"github.com/mghost99/astron-md/errors"
)

// Type is a control message's 16-bit type code.
type Type uint16

const (
	AddChannel       Type = 9000
	RemoveChannel    Type = 9001
	AddRange         Type = 9002
	RemoveRange      Type = 9003
	AddPostRemove    Type = 9010
	ClearPostRemoves Type = 9011
	SetConName       Type = 9012
	SetConURL        Type = 9013
	LogMessage       Type = 9014
)

// Message is a decoded control datagram body.
type Message struct {
	Type    Type
	Channel channel.ID
	Lo, Hi  channel.ID
	Sender  channel.ID
	Blob    []byte
	Text    string
}

// Decode parses a control datagram's body. It returns ErrUnknownControl
// for an unrecognized type code and ErrTruncatedDatagram for a body
// shorter than its type requires.
func Decode(body []byte) (*Message, error) {
	if len(body) < 2 {
		return nil, errors.WrapInvalid(errors.ErrTruncatedDatagram, "control", "Decode", "read type code")
	}
	t := Type(binary.LittleEndian.Uint16(body))
	rest := body[2:]

	switch t {
	case AddChannel, RemoveChannel:
		ch, err := readChannel(rest)
		if err != nil {
			return nil, err
		}
		return &Message{Type: t, Channel: ch}, nil

	case AddRange, RemoveRange:
		if len(rest) < 16 {
			return nil, errors.WrapInvalid(errors.ErrTruncatedDatagram, "control", "Decode", "read range bounds")
		}
		lo := channel.ID(binary.LittleEndian.Uint64(rest))
		hi := channel.ID(binary.LittleEndian.Uint64(rest[8:]))
		return &Message{Type: t, Lo: lo, Hi: hi}, nil

	case AddPostRemove:
		sender, blob, err := readSenderBlob(rest)
		if err != nil {
			return nil, err
		}
		return &Message{Type: t, Sender: sender, Blob: blob}, nil

	case ClearPostRemoves:
		sender, err := readChannel(rest)
		if err != nil {
			return nil, err
		}
		return &Message{Type: t, Sender: sender}, nil

	case SetConName, SetConURL:
		text, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return &Message{Type: t, Text: text}, nil

	case LogMessage:
		return &Message{Type: t, Blob: append([]byte(nil), rest...)}, nil

	default:
		return nil, errors.WrapInvalid(errors.ErrUnknownControl, "control", "Decode", "match type code")
	}
}

func readChannel(rest []byte) (channel.ID, error) {
	if len(rest) < 8 {
		return 0, errors.WrapInvalid(errors.ErrTruncatedDatagram, "control", "readChannel", "read channel")
	}
	return channel.ID(binary.LittleEndian.Uint64(rest)), nil
}

func readSenderBlob(rest []byte) (channel.ID, []byte, error) {
	sender, err := readChannel(rest)
	if err != nil {
		return 0, nil, err
	}
	rest = rest[8:]
	if len(rest) < 4 {
		return 0, nil, errors.WrapInvalid(errors.ErrTruncatedDatagram, "control", "readSenderBlob", "read blob length")
	}
	n := binary.LittleEndian.Uint32(rest)
	rest = rest[4:]
	if uint32(len(rest)) < n {
		return 0, nil, errors.WrapInvalid(errors.ErrTruncatedDatagram, "control", "readSenderBlob", "read blob body")
	}
	return sender, append([]byte(nil), rest[:n]...), nil
}

func readString(rest []byte) (string, error) {
	if len(rest) < 4 {
		return "", errors.WrapInvalid(errors.ErrTruncatedDatagram, "control", "readString", "read string length")
	}
	n := binary.LittleEndian.Uint32(rest)
	rest = rest[4:]
	if uint32(len(rest)) < n {
		return "", errors.WrapInvalid(errors.ErrTruncatedDatagram, "control", "readString", "read string body")
	}
	return string(rest[:n]), nil
}

// Encode serializes a control message body, the inverse of Decode.
// Only the fields relevant to msg.Type are read.
func Encode(msg *Message) []byte {
	head := make([]byte, 2)
	binary.LittleEndian.PutUint16(head, uint16(msg.Type))

	switch msg.Type {
	case AddChannel, RemoveChannel:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(msg.Channel))
		return append(head, buf...)

	case AddRange, RemoveRange:
		buf := make([]byte, 16)
		binary.LittleEndian.PutUint64(buf, uint64(msg.Lo))
		binary.LittleEndian.PutUint64(buf[8:], uint64(msg.Hi))
		return append(head, buf...)

	case AddPostRemove:
		buf := make([]byte, 8+4+len(msg.Blob))
		binary.LittleEndian.PutUint64(buf, uint64(msg.Sender))
		binary.LittleEndian.PutUint32(buf[8:], uint32(len(msg.Blob)))
		copy(buf[12:], msg.Blob)
		return append(head, buf...)

	case ClearPostRemoves:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(msg.Sender))
		return append(head, buf...)

	case SetConName, SetConURL:
		buf := make([]byte, 4+len(msg.Text))
		binary.LittleEndian.PutUint32(buf, uint32(len(msg.Text)))
		copy(buf[4:], msg.Text)
		return append(head, buf...)

	case LogMessage:
		return append(head, msg.Blob...)

	default:
		return head
	}
}
