package control

import (
	"log/slog"

	"github.com/mghost99/astron-md/channel"
	"github.com/mghost99/astron-md/datagram"
	cerrors "github.com/mghost99/astron-md/errors"
	"github.com/mghost99/astron-md/participant"
	"github.com/mghost99/astron-md/subscription"
)

// EventSink receives LOG_MESSAGE blobs for forwarding, implemented by
// eventsender.Sender. sender is the originating participant's
// process-unique correlation id, 0 if the message arrived without a
// known origin.
type EventSink interface {
	Emit(sender uint64, blob []byte)
}

// PostRemoveReplicator replicates post-remove registrations to the
// parent MD, implemented by upstream.Link. This is spec.md §3's "also
// replicated upstream" half of ADD_POST_REMOVE/CLEAR_POST_REMOVES: if
// this MD dies, the parent still knows to emit the post-remove
// datagrams the way this MD itself would have.
type PostRemoveReplicator interface {
	PreroutePostRemove(sender channel.ID, blob []byte)
	RecallPostRemoves(sender channel.ID)
}

// Handler applies decoded control messages against the subscription
// index and the originating participant, matching
// MDParticipantInterface's control-message handling that the original
// implements per-participant rather than in the router itself.
type Handler struct {
	index    *subscription.Index
	log      *slog.Logger
	sink     EventSink
	upstream PostRemoveReplicator
}

// NewHandler creates a control message handler. upstream may be nil,
// matching a topology-root MD with no parent — post-remove registrations
// are then only kept locally.
func NewHandler(index *subscription.Index, sink EventSink, log *slog.Logger, upstream PostRemoveReplicator) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{index: index, log: log, sink: sink, upstream: upstream}
}

// Handle applies a single control datagram's effect on behalf of
// origin. dg's first receiver must be channel.Control — the
// caller is responsible for checking that before routing here (spec.md
// §4.5: "receiving a control datagram whose header's first receiver is
// not the control channel does not interpret the body as control").
func (h *Handler) Handle(origin *participant.Participant, dg *datagram.Datagram) error {
	if origin != nil && !origin.AllowControl() {
		h.log.Warn("dropping control message: rate limit exceeded", "participant", origin.ID())
		return cerrors.WrapTransient(cerrors.ErrRateLimited, "control", "Handle", "check participant control rate")
	}

	msg, err := Decode(dg.Body)
	if err != nil {
		return err
	}

	switch msg.Type {
	case AddChannel:
		h.index.SubscribeChannel(origin, msg.Channel)
	case RemoveChannel:
		h.index.UnsubscribeChannel(origin, msg.Channel)
	case AddRange:
		h.index.SubscribeRange(origin, channel.Range{Lo: msg.Lo, Hi: msg.Hi})
	case RemoveRange:
		h.index.UnsubscribeRange(origin, channel.Range{Lo: msg.Lo, Hi: msg.Hi})
	case AddPostRemove:
		origin.AddPostRemove(msg.Sender, datagram.New([]channel.ID{msg.Sender}, msg.Blob))
		if h.upstream != nil {
			h.upstream.PreroutePostRemove(msg.Sender, msg.Blob)
		}
	case ClearPostRemoves:
		origin.ClearPostRemoves(msg.Sender)
		if h.upstream != nil {
			h.upstream.RecallPostRemoves(msg.Sender)
		}
	case SetConName:
		h.log.Info("connection renamed", "old", origin.Name(), "new", msg.Text)
		origin.SetName(msg.Text)
	case SetConURL:
		h.log.Debug("connection url set", "name", origin.Name(), "url", msg.Text)
		origin.SetURL(msg.Text)
	case LogMessage:
		if h.sink != nil {
			var sender uint64
			if origin != nil {
				sender = origin.ID()
			}
			h.sink.Emit(sender, msg.Blob)
		}
	}
	return nil
}
