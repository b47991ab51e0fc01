package subscription

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/mghost99/astron-md/channel"
)

type fakeSubscriber uint64

func (f fakeSubscriber) ID() uint64 { return uint64(f) }

func TestChannelSubscribeLookupUnsubscribe(t *testing.T) {
	idx := New(Hooks{})
	a := fakeSubscriber(1)
	b := fakeSubscriber(2)

	idx.SubscribeChannel(a, 500)
	idx.SubscribeChannel(b, 500)

	subs := idx.Lookup([]channel.ID{500})
	require.Len(t, subs, 2)

	idx.UnsubscribeChannel(a, 500)
	subs = idx.Lookup([]channel.ID{500})
	require.Len(t, subs, 1)
	_, ok := subs[b]
	require.True(t, ok)
}

func TestFirstLastChannelHooksFire(t *testing.T) {
	var firstCalls, lastCalls []channel.ID
	idx := New(Hooks{
		OnFirstChannel: func(ch channel.ID) { firstCalls = append(firstCalls, ch) },
		OnLastChannel:  func(ch channel.ID) { lastCalls = append(lastCalls, ch) },
	})
	a := fakeSubscriber(1)
	b := fakeSubscriber(2)

	idx.SubscribeChannel(a, 10)
	idx.SubscribeChannel(b, 10)
	require.Equal(t, []channel.ID{10}, firstCalls)

	idx.UnsubscribeChannel(a, 10)
	require.Empty(t, lastCalls)

	idx.UnsubscribeChannel(b, 10)
	require.Equal(t, []channel.ID{10}, lastCalls)
}

func TestRangeSubscriptionCoversChannel(t *testing.T) {
	idx := New(Hooks{})
	a := fakeSubscriber(1)
	idx.SubscribeRange(a, channel.Range{Lo: 100, Hi: 200})

	subs := idx.Lookup([]channel.ID{150})
	require.Len(t, subs, 1)

	subs = idx.Lookup([]channel.ID{300})
	require.Empty(t, subs)
}

func TestOverlappingRangeSubscriptionsFireHooksOnCoverageNotIdentity(t *testing.T) {
	var firstCalls, lastCalls []channel.Range
	idx := New(Hooks{
		OnFirstRange: func(r channel.Range) { firstCalls = append(firstCalls, r) },
		OnLastRange:  func(r channel.Range) { lastCalls = append(lastCalls, r) },
	})
	a := fakeSubscriber(1)
	b := fakeSubscriber(2)

	idx.SubscribeRange(a, channel.Range{Lo: 100, Hi: 300})
	require.Equal(t, []channel.Range{{Lo: 100, Hi: 300}}, firstCalls)

	// b's range is fully covered by a's already-replicated range: must
	// not re-fire OnFirstRange for any part of it.
	idx.SubscribeRange(b, channel.Range{Lo: 100, Hi: 200})
	require.Equal(t, []channel.Range{{Lo: 100, Hi: 300}}, firstCalls)

	subs := idx.Lookup([]channel.ID{150})
	require.Len(t, subs, 2)

	// b unsubscribes: [100,200] stays fully covered by a's range, so no
	// OnLastRange fires.
	idx.UnsubscribeRange(b, channel.Range{Lo: 100, Hi: 200})
	require.Empty(t, lastCalls)

	// a unsubscribes: now the whole span is uncovered.
	idx.UnsubscribeRange(a, channel.Range{Lo: 100, Hi: 300})
	require.Equal(t, []channel.Range{{Lo: 100, Hi: 300}}, lastCalls)
}

func TestPartiallyOverlappingRangeSubscriptionFiresOnlyNewSpan(t *testing.T) {
	var firstCalls []channel.Range
	idx := New(Hooks{
		OnFirstRange: func(r channel.Range) { firstCalls = append(firstCalls, r) },
	})
	a := fakeSubscriber(1)
	b := fakeSubscriber(2)

	idx.SubscribeRange(a, channel.Range{Lo: 100, Hi: 200})
	require.Equal(t, []channel.Range{{Lo: 100, Hi: 200}}, firstCalls)

	// b's range overlaps [150,200] but extends new coverage to [201,250].
	idx.SubscribeRange(b, channel.Range{Lo: 150, Hi: 250})
	require.Equal(t, []channel.Range{{Lo: 100, Hi: 200}, {Lo: 201, Hi: 250}}, firstCalls)
}

func TestStats_SnapshotReflectsSubscribeAndUnsubscribeAll(t *testing.T) {
	idx := New(Hooks{})
	a := fakeSubscriber(1)
	b := fakeSubscriber(2)

	idx.SubscribeChannel(a, 1)
	idx.SubscribeChannel(b, 2)
	idx.SubscribeRange(a, channel.Range{Lo: 10, Hi: 20})

	got := idx.Stats()
	want := Stats{LiveParticipants: 2, ChannelSubs: 2, RangeSubs: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subscription snapshot diverges (-want +got):\n%s", diff)
	}

	idx.UnsubscribeAll(a)
	idx.UnsubscribeAll(b)

	got = idx.Stats()
	want = Stats{}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subscription snapshot after full unsubscribe diverges (-want +got):\n%s", diff)
	}
}

func TestUnsubscribeAllDropsEverythingAndFiresHooksOnce(t *testing.T) {
	var lastChannels []channel.ID
	var lastRanges []channel.Range
	idx := New(Hooks{
		OnLastChannel: func(ch channel.ID) { lastChannels = append(lastChannels, ch) },
		OnLastRange:   func(r channel.Range) { lastRanges = append(lastRanges, r) },
	})
	a := fakeSubscriber(1)
	idx.SubscribeChannel(a, 1)
	idx.SubscribeChannel(a, 2)
	idx.SubscribeRange(a, channel.Range{Lo: 10, Hi: 20})

	dropped, droppedRanges := idx.UnsubscribeAll(a)
	require.ElementsMatch(t, []channel.ID{1, 2}, dropped)
	require.Equal(t, []channel.Range{{Lo: 10, Hi: 20}}, droppedRanges)
	require.ElementsMatch(t, []channel.ID{1, 2}, lastChannels)
	require.Equal(t, []channel.Range{{Lo: 10, Hi: 20}}, lastRanges)

	require.Empty(t, idx.Lookup([]channel.ID{1, 2, 15}))
}
