package control

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mghost99/astron-md/channel"
)

func TestEncodeDecode_AddChannel(t *testing.T) {
	msg := &Message{Type: AddChannel, Channel: 42}
	decoded, err := Decode(Encode(msg))
	require.NoError(t, err)
	require.Equal(t, channel.ID(42), decoded.Channel)
}

func TestEncodeDecode_AddRange(t *testing.T) {
	msg := &Message{Type: AddRange, Lo: 10, Hi: 20}
	decoded, err := Decode(Encode(msg))
	require.NoError(t, err)
	require.Equal(t, channel.ID(10), decoded.Lo)
	require.Equal(t, channel.ID(20), decoded.Hi)
}

func TestEncodeDecode_AddPostRemove(t *testing.T) {
	msg := &Message{Type: AddPostRemove, Sender: 7, Blob: []byte("bye")}
	decoded, err := Decode(Encode(msg))
	require.NoError(t, err)
	require.Equal(t, channel.ID(7), decoded.Sender)
	require.Equal(t, []byte("bye"), decoded.Blob)
}

func TestEncodeDecode_SetConName(t *testing.T) {
	msg := &Message{Type: SetConName, Text: "clientA"}
	decoded, err := Decode(Encode(msg))
	require.NoError(t, err)
	require.Equal(t, "clientA", decoded.Text)
}

func TestDecode_UnknownType(t *testing.T) {
	body := []byte{0xFF, 0xFF}
	_, err := Decode(body)
	require.Error(t, err)
}

func TestDecode_Truncated(t *testing.T) {
	_, err := Decode([]byte{0x01})
	require.Error(t, err)
}
