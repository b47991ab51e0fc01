// Package proxyproto parses the HAProxy PROXY protocol preamble
// (versions 1 and 2) that may precede normal framing on a downstream
// connection, grounded on original_source/src/net/HAProxyHandler.h's
// consume/parse_v1_block/parse_v2_block shape and spec.md §4.2's
// description of the two wire formats.
package proxyproto

import (
	"bytes"
	"encoding/binary"
	"net"
	"strconv"
	"strings"

	"github.com/mghost99/astron-md/errors"
)

// v2Signature is the fixed 12-byte binary preamble that identifies a
// PROXY protocol v2 header.
var v2Signature = []byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

const (
	v1MaxLen = 107
	v1MinLen = 8
	v2MinLen = 16
)

// Result holds the outcome of parsing a PROXY preamble: the addresses it
// asserts, whether the connection is a health-check probe with no real
// peer address, and any opaque v2 TLV bytes preserved for the caller.
type Result struct {
	Remote  net.Addr
	Local   net.Addr
	IsLocal bool
	TLV     []byte
	// Consumed is the number of bytes of the input that made up the
	// preamble; bytes after Consumed belong to normal framing.
	Consumed int
}

// Parse inspects the first bytes of a new connection and, if they form a
// valid PROXY v1 or v2 preamble, returns the addresses it carries and how
// many bytes it consumed. When data is too short to decide, it returns
// an error for which NeedsMore reports true. It returns
// ErrBadProxyPreamble for anything that isn't a recognized, supported
// preamble — the caller must
// disconnect on that error rather than fall back to normal framing,
// since a partial/ambiguous v1 line can't be safely un-consumed.
func Parse(data []byte) (*Result, error) {
	if len(data) >= len(v2Signature) && bytes.Equal(data[:len(v2Signature)], v2Signature) {
		return parseV2(data)
	}
	if len(data) >= 5 && string(data[:5]) == "PROXY" {
		return parseV1(data)
	}
	if len(data) < v2MinLen {
		// Not yet enough bytes to be sure; caller should wait for more.
		return nil, errNeedMore
	}
	return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "Parse", "match signature")
}

// errNeedMore is the sentinel Parse returns when it needs more bytes
// before it can decide; callers detect it with NeedsMore.
var errNeedMore = errors.WrapTransient(errors.ErrProtocolError, "proxyproto", "Parse", "await more preamble bytes")

// NeedsMore reports whether err indicates Parse needs additional bytes
// rather than having found an invalid preamble.
func NeedsMore(err error) bool {
	return err == errNeedMore
}

func parseV1(data []byte) (*Result, error) {
	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		if len(data) > v1MaxLen {
			return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "parseV1", "find CRLF terminator")
		}
		return nil, errNeedMore
	}
	if idx+2 < v1MinLen {
		return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "parseV1", "check minimum length")
	}

	line := string(data[:idx])
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "PROXY" {
		return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "parseV1", "parse header fields")
	}

	res := &Result{Consumed: idx + 2}

	switch fields[1] {
	case "UNKNOWN":
		res.IsLocal = true
		return res, nil
	case "TCP4", "TCP6":
		if len(fields) != 6 {
			return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "parseV1", "check TCP4/TCP6 field count")
		}
		srcIP := net.ParseIP(fields[2])
		dstIP := net.ParseIP(fields[3])
		if fields[1] == "TCP4" {
			srcIP, dstIP = srcIP.To4(), dstIP.To4()
		}
		srcPort, err1 := strconv.Atoi(fields[4])
		dstPort, err2 := strconv.Atoi(fields[5])
		if srcIP == nil || dstIP == nil || err1 != nil || err2 != nil {
			return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "parseV1", "parse TCP4/TCP6 addresses")
		}
		res.Remote = &net.TCPAddr{IP: srcIP, Port: srcPort}
		res.Local = &net.TCPAddr{IP: dstIP, Port: dstPort}
		return res, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "parseV1", "check family token")
	}
}

func parseV2(data []byte) (*Result, error) {
	if len(data) < v2MinLen {
		return nil, errNeedMore
	}

	verCmd := data[12]
	version := verCmd >> 4
	cmd := verCmd & 0x0F
	if version != 2 {
		return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "parseV2", "check version nibble")
	}

	famProto := data[13]
	family := famProto >> 4
	addrLen := binary.BigEndian.Uint16(data[14:16])

	total := v2MinLen + int(addrLen)
	if len(data) < total {
		return nil, errNeedMore
	}

	res := &Result{Consumed: total}

	if cmd == 0x00 {
		// LOCAL command: health-check probe with no real proxied address.
		res.IsLocal = true
		return res, nil
	}
	if cmd != 0x01 {
		return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "parseV2", "check command nibble")
	}

	body := data[v2MinLen:total]

	switch family {
	case 0x1: // AF_INET
		if len(body) < 12 {
			return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "parseV2", "check TCP4 body length")
		}
		res.Remote = &net.TCPAddr{IP: net.IP(body[0:4]), Port: int(binary.BigEndian.Uint16(body[8:10]))}
		res.Local = &net.TCPAddr{IP: net.IP(body[4:8]), Port: int(binary.BigEndian.Uint16(body[10:12]))}
		res.TLV = append([]byte(nil), body[12:]...)
	case 0x2: // AF_INET6
		if len(body) < 36 {
			return nil, errors.WrapInvalid(errors.ErrBadProxyPreamble, "proxyproto", "parseV2", "check TCP6 body length")
		}
		res.Remote = &net.TCPAddr{IP: net.IP(body[0:16]), Port: int(binary.BigEndian.Uint16(body[32:34]))}
		res.Local = &net.TCPAddr{IP: net.IP(body[16:32]), Port: int(binary.BigEndian.Uint16(body[34:36]))}
		res.TLV = append([]byte(nil), body[36:]...)
	default:
		// AF_UNSPEC or AF_UNIX: not TCP4/TCP6, treat as a LOCAL marker
		// per spec.md §4.2 ("others -> LOCAL marker").
		res.IsLocal = true
		res.TLV = append([]byte(nil), body...)
	}

	return res, nil
}
