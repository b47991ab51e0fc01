// Package channel defines the 64-bit channel identifier the Message
// Director routes on, grounded on original_source/src/core/types.h's
// channel_t (the 64-bit build: typedef uint64_t channel_t).
package channel

// ID is a 64-bit channel identifier. Channel 0 is reserved as Invalid;
// channel 1 is the well-known control channel every participant may send
// control messages to.
type ID uint64

// ZoneBits is the width, in bits, of the zone/doid half of a
// location/parent/database channel, matching types.h's
// ZONE_BITS (sizeof(zone_t) * 8 in the 32-bit doid/zone build the Go
// implementation targets).
const ZoneBits = 32

const (
	// Invalid is never a legal destination or subscription target.
	Invalid ID = 0
	// Control is the well-known channel control messages are addressed to.
	Control ID = 1
	// Max is the largest representable channel.
	Max ID = ^ID(0)

	// ParentPrefix and DatabasePrefix tag the upper half of a channel to
	// distinguish a parent's children-broadcast channel and a database
	// object's channel from an ordinary location channel — they never
	// collide with a real location's parent id because a real parent
	// occupies at most ZoneBits of the low half of the same word.
	ParentPrefix   ID = 1 << ZoneBits
	DatabasePrefix ID = 2 << ZoneBits
)

// LocationAsChannel builds the channel a distributed object's location
// (parent, zone) broadcasts on, matching types.h's location_as_channel:
// the parent id occupies the high ZoneBits bits, the zone the low ones.
// The MD never interprets this value; it only routes on it opaquely.
func LocationAsChannel(parent, zone uint32) ID {
	return ID(parent)<<ZoneBits | ID(zone)
}

// ParentToChildren builds the channel every child of parent listens on
// for broadcasts addressed to "all children of this parent", matching
// types.h's parent_to_children.
func ParentToChildren(parent uint32) ID {
	return ParentPrefix | ID(parent)
}

// DatabaseToObject builds the channel a database-backed object listens
// on for messages addressed to it by object id, matching types.h's
// database_to_object.
func DatabaseToObject(object uint32) ID {
	return DatabasePrefix | ID(object)
}

// Range is an inclusive [Lo, Hi] span of channels, used by range
// subscriptions (spec.md §3).
type Range struct {
	Lo ID
	Hi ID
}

// Contains reports whether id falls within [r.Lo, r.Hi] inclusive.
func (r Range) Contains(id ID) bool {
	return id >= r.Lo && id <= r.Hi
}

// Valid reports whether the range is well-formed (Lo <= Hi).
func (r Range) Valid() bool {
	return r.Lo <= r.Hi
}

// Overlaps reports whether r and other share at least one channel.
func (r Range) Overlaps(other Range) bool {
	return r.Lo <= other.Hi && other.Lo <= r.Hi
}
