package control

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mghost99/astron-md/channel"
	"github.com/mghost99/astron-md/datagram"
	"github.com/mghost99/astron-md/participant"
	"github.com/mghost99/astron-md/subscription"
)

type discardSender struct{}

func (discardSender) Send([]byte) error { return nil }

func controlDatagram(t *testing.T, msg *Message) *datagram.Datagram {
	t.Helper()
	return datagram.New([]channel.ID{channel.Control}, Encode(msg))
}

func TestHandlerAddChannelSubscribesOrigin(t *testing.T) {
	idx := subscription.New(subscription.Hooks{})
	h := NewHandler(idx, nil, nil, nil)
	p := participant.New(1, "conn-1", discardSender{})

	require.NoError(t, h.Handle(p, controlDatagram(t, &Message{Type: AddChannel, Channel: 100})))

	subs := idx.Lookup([]channel.ID{100})
	_, ok := subs[p]
	require.True(t, ok)
}

func TestHandlerClearPostRemovesOnlyMatchingSender(t *testing.T) {
	idx := subscription.New(subscription.Hooks{})
	h := NewHandler(idx, nil, nil, nil)
	p := participant.New(1, "conn-1", discardSender{})

	require.NoError(t, h.Handle(p, controlDatagram(t, &Message{Type: AddPostRemove, Sender: 500, Blob: []byte("a")})))
	require.NoError(t, h.Handle(p, controlDatagram(t, &Message{Type: AddPostRemove, Sender: 600, Blob: []byte("b")})))
	require.NoError(t, h.Handle(p, controlDatagram(t, &Message{Type: ClearPostRemoves, Sender: 500})))

	remaining := p.TakePostRemoves()
	require.Len(t, remaining, 1)
	require.Equal(t, []byte("b"), remaining[0].Body)
}

func TestHandlerSetConName(t *testing.T) {
	idx := subscription.New(subscription.Hooks{})
	h := NewHandler(idx, nil, nil, nil)
	p := participant.New(1, "conn-1", discardSender{})

	require.NoError(t, h.Handle(p, controlDatagram(t, &Message{Type: SetConName, Text: "renamed"})))
	require.Equal(t, "renamed", p.Name())
}
