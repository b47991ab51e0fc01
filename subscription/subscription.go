// Package subscription indexes which subscribers are registered on which
// channels and ranges, and answers "who receives channel X" lookups for
// the routing engine. Grounded on
// original_source/src/messagedirector/MessageDirector.cpp's
// lookup_channels/on_add_channel/on_add_range/unsubscribe_all shape,
// generalized from the original's unordered_map/boost::icl interval map
// into explicit Go types since the original headers implementing those
// containers were not part of the retrieved source.
package subscription

import (
	"sort"
	"sync"

	"github.com/mghost99/astron-md/channel"
)

// Subscriber is anything that can be registered against a channel or
// range and later looked up by the routing engine. participant.Participant
// implements this.
type Subscriber interface {
	ID() uint64
}

// Hooks lets the owner of an Index react to the first subscribe or last
// unsubscribe of a given channel/range, matching the original's
// on_add_channel/on_remove_channel/on_add_range/on_remove_range
// upstream-replication callbacks (§3's "first/last hooks").
//
// OnFirstRange/OnLastRange fire on interval coverage, not on exact
// channel.Range equality: subscribing a range that is already fully
// covered by other subscribers' ranges does not re-fire OnFirstRange,
// and unsubscribing a range only fires OnLastRange for the sub-spans
// that no longer have any covering subscriber. A single Subscribe or
// Unsubscribe call may therefore fire a hook zero, one, or several
// times — once per newly (un)covered contiguous span.
type Hooks struct {
	OnFirstChannel func(channel.ID)
	OnLastChannel  func(channel.ID)
	OnFirstRange   func(channel.Range)
	OnLastRange    func(channel.Range)
}

// Index is the subscription index: a channel map, a range list, and a
// reverse view keyed by subscriber for O(1) unsubscribe-all. Safe for
// concurrent use from multiple network-handling goroutines.
type Index struct {
	hooks Hooks

	mu          sync.RWMutex
	channelSubs map[channel.ID]map[Subscriber]struct{}
	rangeSubs   []rangeEntry
	reverse     map[Subscriber]*subscriberEntry
}

type rangeEntry struct {
	r    channel.Range
	subs map[Subscriber]struct{}
}

type subscriberEntry struct {
	channels map[channel.ID]struct{}
	ranges   map[channel.Range]struct{}
}

// New creates an empty subscription index. hooks may have nil fields;
// nil hook functions are simply not called.
func New(hooks Hooks) *Index {
	return &Index{
		hooks:       hooks,
		channelSubs: make(map[channel.ID]map[Subscriber]struct{}),
		reverse:     make(map[Subscriber]*subscriberEntry),
	}
}

func (idx *Index) entryFor(s Subscriber) *subscriberEntry {
	e, ok := idx.reverse[s]
	if !ok {
		e = &subscriberEntry{
			channels: make(map[channel.ID]struct{}),
			ranges:   make(map[channel.Range]struct{}),
		}
		idx.reverse[s] = e
	}
	return e
}

// SubscribeChannel registers s on ch. If s is the channel's first
// subscriber, SubscribeChannel fires OnFirstChannel itself, after
// releasing the index lock.
func (idx *Index) SubscribeChannel(s Subscriber, ch channel.ID) {
	idx.mu.Lock()
	subs, exists := idx.channelSubs[ch]
	if !exists {
		subs = make(map[Subscriber]struct{})
		idx.channelSubs[ch] = subs
	}
	subs[s] = struct{}{}
	idx.entryFor(s).channels[ch] = struct{}{}
	first := !exists
	idx.mu.Unlock()

	if first && idx.hooks.OnFirstChannel != nil {
		idx.hooks.OnFirstChannel(ch)
	}
}

// UnsubscribeChannel removes s from ch. If s was the last subscriber to
// ch, the channel entry is dropped and OnLastChannel fires.
func (idx *Index) UnsubscribeChannel(s Subscriber, ch channel.ID) {
	idx.mu.Lock()
	subs, ok := idx.channelSubs[ch]
	last := false
	if ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(idx.channelSubs, ch)
			last = true
		}
	}
	if e, ok := idx.reverse[s]; ok {
		delete(e.channels, ch)
	}
	idx.mu.Unlock()

	if last && idx.hooks.OnLastChannel != nil {
		idx.hooks.OnLastChannel(ch)
	}
}

// SubscribeRange registers s on the inclusive range r. OnFirstRange fires
// once for each contiguous sub-span of r that was not already covered by
// some other range subscription (see Hooks).
func (idx *Index) SubscribeRange(s Subscriber, r channel.Range) {
	idx.mu.Lock()
	existing := make([]channel.Range, 0, len(idx.rangeSubs))
	for i := range idx.rangeSubs {
		existing = append(existing, idx.rangeSubs[i].r)
	}
	newlyCovered := subtractRanges(r, unionRanges(existing))

	var entry *rangeEntry
	for i := range idx.rangeSubs {
		if idx.rangeSubs[i].r == r {
			entry = &idx.rangeSubs[i]
			break
		}
	}
	if entry == nil {
		idx.rangeSubs = append(idx.rangeSubs, rangeEntry{r: r, subs: make(map[Subscriber]struct{})})
		entry = &idx.rangeSubs[len(idx.rangeSubs)-1]
		sort.Slice(idx.rangeSubs, func(i, j int) bool { return idx.rangeSubs[i].r.Lo < idx.rangeSubs[j].r.Lo })
		// re-find entry pointer after sort invalidated it
		for i := range idx.rangeSubs {
			if idx.rangeSubs[i].r == r {
				entry = &idx.rangeSubs[i]
				break
			}
		}
	}
	entry.subs[s] = struct{}{}
	idx.entryFor(s).ranges[r] = struct{}{}
	idx.mu.Unlock()

	if idx.hooks.OnFirstRange != nil {
		for _, nr := range newlyCovered {
			idx.hooks.OnFirstRange(nr)
		}
	}
}

// UnsubscribeRange removes s from the range r. OnLastRange fires once for
// each contiguous sub-span of r that, after this removal, no longer has
// any covering subscriber (see Hooks).
func (idx *Index) UnsubscribeRange(s Subscriber, r channel.Range) {
	idx.mu.Lock()
	removed := false
	for i := range idx.rangeSubs {
		if idx.rangeSubs[i].r != r {
			continue
		}
		delete(idx.rangeSubs[i].subs, s)
		if len(idx.rangeSubs[i].subs) == 0 {
			idx.rangeSubs = append(idx.rangeSubs[:i], idx.rangeSubs[i+1:]...)
			removed = true
		}
		break
	}
	if e, ok := idx.reverse[s]; ok {
		delete(e.ranges, r)
	}

	var newlyUncovered []channel.Range
	if removed {
		remaining := make([]channel.Range, 0, len(idx.rangeSubs))
		for i := range idx.rangeSubs {
			remaining = append(remaining, idx.rangeSubs[i].r)
		}
		newlyUncovered = subtractRanges(r, unionRanges(remaining))
	}
	idx.mu.Unlock()

	if idx.hooks.OnLastRange != nil {
		for _, ur := range newlyUncovered {
			idx.hooks.OnLastRange(ur)
		}
	}
}

// unionRanges returns the sorted, merged, disjoint union of ranges.
// Touching ranges (e.g. [1,10] and [11,20]) are merged into one span.
func unionRanges(ranges []channel.Range) []channel.Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]channel.Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lo < sorted[j].Lo })

	merged := []channel.Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Lo <= last.Hi || (last.Hi != channel.Max && r.Lo == last.Hi+1) {
			if r.Hi > last.Hi {
				last.Hi = r.Hi
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// subtractRanges returns the sub-spans of r not covered by any range in
// covered (which must be sorted and disjoint, as returned by
// unionRanges).
func subtractRanges(r channel.Range, covered []channel.Range) []channel.Range {
	var result []channel.Range
	pos := r.Lo
	for _, c := range covered {
		if c.Hi < pos {
			continue
		}
		if c.Lo > r.Hi {
			break
		}
		if c.Lo > pos {
			hi := c.Lo - 1
			if hi > r.Hi {
				hi = r.Hi
			}
			result = append(result, channel.Range{Lo: pos, Hi: hi})
		}
		if c.Hi >= r.Hi {
			return result
		}
		pos = c.Hi + 1
	}
	if pos <= r.Hi {
		result = append(result, channel.Range{Lo: pos, Hi: r.Hi})
	}
	return result
}

// UnsubscribeAll removes every subscription s holds, matching the
// original's unsubscribe_all(p) called on participant removal. It fires
// the last-subscriber hooks itself for every channel and range that lost
// its last subscriber, and also returns those channels and ranges.
func (idx *Index) UnsubscribeAll(s Subscriber) (droppedChannels []channel.ID, droppedRanges []channel.Range) {
	idx.mu.Lock()
	e, ok := idx.reverse[s]
	if !ok {
		idx.mu.Unlock()
		return nil, nil
	}
	delete(idx.reverse, s)

	for ch := range e.channels {
		subs := idx.channelSubs[ch]
		delete(subs, s)
		if len(subs) == 0 {
			delete(idx.channelSubs, ch)
			droppedChannels = append(droppedChannels, ch)
		}
	}
	for r := range e.ranges {
		for i := range idx.rangeSubs {
			if idx.rangeSubs[i].r != r {
				continue
			}
			delete(idx.rangeSubs[i].subs, s)
			if len(idx.rangeSubs[i].subs) == 0 {
				idx.rangeSubs = append(idx.rangeSubs[:i], idx.rangeSubs[i+1:]...)
				droppedRanges = append(droppedRanges, r)
			}
			break
		}
	}

	var newlyUncovered []channel.Range
	if len(droppedRanges) > 0 {
		remaining := make([]channel.Range, 0, len(idx.rangeSubs))
		for i := range idx.rangeSubs {
			remaining = append(remaining, idx.rangeSubs[i].r)
		}
		covered := unionRanges(remaining)
		for _, r := range droppedRanges {
			newlyUncovered = append(newlyUncovered, subtractRanges(r, covered)...)
		}
	}
	idx.mu.Unlock()

	for _, ch := range droppedChannels {
		if idx.hooks.OnLastChannel != nil {
			idx.hooks.OnLastChannel(ch)
		}
	}
	for _, r := range newlyUncovered {
		if idx.hooks.OnLastRange != nil {
			idx.hooks.OnLastRange(r)
		}
	}
	return droppedChannels, droppedRanges
}

// Stats reports the index's current size, for the admin surface's
// /debug/participants introspection endpoint (spec.md §3.4).
type Stats struct {
	LiveParticipants int
	ChannelSubs      int
	RangeSubs        int
}

// Stats returns a snapshot of the index's current size.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		LiveParticipants: len(idx.reverse),
		ChannelSubs:      len(idx.channelSubs),
		RangeSubs:        len(idx.rangeSubs),
	}
}

// Lookup returns the set of distinct subscribers registered on any of
// the given channels, either directly or via a covering range, matching
// lookup_channels' fan-out over a batch of destination channels.
func (idx *Index) Lookup(channels []channel.ID) map[Subscriber]struct{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	result := make(map[Subscriber]struct{})
	for _, ch := range channels {
		for s := range idx.channelSubs[ch] {
			result[s] = struct{}{}
		}
		for i := range idx.rangeSubs {
			if idx.rangeSubs[i].r.Contains(ch) {
				for s := range idx.rangeSubs[i].subs {
					result[s] = struct{}{}
				}
			}
		}
	}
	return result
}
