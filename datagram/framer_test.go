package datagram

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mghost99/astron-md/channel"
)

func TestFramer_FastPathSingleFrame(t *testing.T) {
	var f Framer
	frame := EncodeFrame([]byte("hello"))

	frames, err := f.Feed(frame)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, "hello", string(frames[0]))
}

func TestFramer_AccumulatesPartialFrame(t *testing.T) {
	var f Framer
	frame := EncodeFrame([]byte("hello world"))

	frames, err := f.Feed(frame[:4])
	require.NoError(t, err)
	require.Empty(t, frames)

	frames, err = f.Feed(frame[4:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, "hello world", string(frames[0]))
}

func TestFramer_MultipleFramesInOneRead(t *testing.T) {
	var f Framer
	buf := append(EncodeFrame([]byte("a")), EncodeFrame([]byte("bb"))...)

	frames, err := f.Feed(buf)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, "a", string(frames[0]))
	require.Equal(t, "bb", string(frames[1]))
}

func TestFramer_ZeroLengthIsProtocolError(t *testing.T) {
	var f Framer
	_, err := f.Feed([]byte{0x00, 0x00})
	require.Error(t, err)
}

func TestEncodeDecodeDatagram_RoundTrip(t *testing.T) {
	dg := New([]channel.ID{500, 501}, []byte("payload"))
	wire := dg.Encode()

	decoded, err := Decode(wire)
	require.NoError(t, err)
	require.Equal(t, dg.Receivers, decoded.Receivers)
	require.Equal(t, dg.Body, decoded.Body)
}
