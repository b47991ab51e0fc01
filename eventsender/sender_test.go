package eventsender

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestSender_DisabledWithNoURL(t *testing.T) {
	s := New(Config{})
	require.False(t, s.Enabled())
	require.True(t, s.Health().Healthy)

	// Emit on a disabled sender is a no-op: it must not panic even though
	// no connection was ever established.
	s.Emit(1, []byte("blob"))
}

func TestSender_HealthUnhealthyBeforeStart(t *testing.T) {
	s := New(Config{URL: "nats://127.0.0.1:4222"})
	require.True(t, s.Enabled())
	require.False(t, s.Health().Healthy)
}

func TestSender_EmitBeforeStartDoesNothing(t *testing.T) {
	s := New(Config{URL: "nats://127.0.0.1:4222"})
	// Start was never called, so s.conn is nil; Emit must return without
	// attempting to publish or panicking.
	s.Emit(42, []byte("blob"))
}

func TestLogEnvelope_MsgpackRoundTrip(t *testing.T) {
	want := LogEnvelope{Sender: 500, Payload: []byte("hello"), Timestamp: time.Now().Truncate(time.Second)}

	data, err := msgpack.Marshal(&want)
	require.NoError(t, err)

	var got LogEnvelope
	require.NoError(t, msgpack.Unmarshal(data, &got))

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("log envelope diverges after msgpack round trip (-want +got):\n%s", diff)
	}
}
