//go:build integration
// +build integration

package eventsender

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vmihailenco/msgpack/v5"
)

// TestSenderIntegration_EmitPublishesToNATS spins up a real NATS
// container and asserts a LOG_MESSAGE control datagram's blob (spec.md
// §4.5) ends up on the configured subject, matching what control.Handler
// would have done for code 9014.
func TestSenderIntegration_EmitPublishesToNATS(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "nats:2-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start NATS container")
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate NATS container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)
	url := fmt.Sprintf("nats://%s:%s", host, port.Port())

	sub, err := nats.Connect(url)
	require.NoError(t, err, "failed to connect subscriber")
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	subscription, err := sub.ChanSubscribe("events.log", msgs)
	require.NoError(t, err)
	defer subscription.Unsubscribe()

	sender := New(Config{URL: url, Subject: "events.log"})
	require.NoError(t, sender.Start(ctx))
	defer sender.Stop(5 * time.Second)

	sender.Emit(7, []byte("log-message-blob"))

	select {
	case msg := <-msgs:
		var envelope LogEnvelope
		require.NoError(t, msgpack.Unmarshal(msg.Data, &envelope))
		require.Equal(t, uint64(7), envelope.Sender)
		require.Equal(t, []byte("log-message-blob"), envelope.Payload)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for published log envelope")
	}
}
