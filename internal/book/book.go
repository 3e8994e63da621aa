// Package book implements the price-time-priority order book container:
// a fixed-capacity, side-aware ordered map from OrderId to RestingOrder,
// backed by github.com/tidwall/btree.
package book

import (
	"math/bits"

	"phoenix/internal/quantity"

	"github.com/tidwall/btree"
)

// Side identifies which side of the book an order rests on.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// EncodeSequence applies the bid bit-inversion: bids store the sequence
// number with all bits inverted, so an earlier bid has the larger encoded
// value and comes first under the bid comparator (descending price, then
// descending encoded sequence); asks keep the raw value and sort ascending
// on both. The top bit of the encoded value identifies the side.
func EncodeSequence(side Side, raw uint64) uint64 {
	if side == Bid {
		return ^raw
	}
	return raw
}

// SideFromSequence recovers the side from an encoded sequence number by
// inspecting its leading bit.
func SideFromSequence(encoded uint64) Side {
	if bits.LeadingZeros64(encoded) == 0 {
		return Bid
	}
	return Ask
}

// OrderId is the composite (price_in_ticks, sequence_number) key. For
// bids, SequenceNumber is already bit-inverted per EncodeSequence.
type OrderId struct {
	PriceInTicks   quantity.Ticks
	SequenceNumber uint64
}

// RestingOrder is a resting order's book-side state.
type RestingOrder struct {
	TraderIndex                     uint32
	NumBaseLots                     quantity.BaseLots
	LastValidSlot                   uint64 // 0 means unset
	LastValidUnixTimestampInSeconds uint64 // 0 means unset
}

// IsExpired reports whether the order's expiry fields are set and in the
// past relative to the given clock reading.
func (r RestingOrder) IsExpired(currentSlot, currentUnixTimestampInSeconds uint64) bool {
	return (r.LastValidSlot != 0 && r.LastValidSlot < currentSlot) ||
		(r.LastValidUnixTimestampInSeconds != 0 && r.LastValidUnixTimestampInSeconds < currentUnixTimestampInSeconds)
}

type entry struct {
	id    OrderId
	order RestingOrder
}

// Book is a fixed-capacity, side-aware ordered container of resting
// orders. Min() always returns the most aggressive price on that side;
// Max() the least aggressive.
type Book struct {
	side     Side
	capacity int
	tree     *btree.BTreeG[*entry]
}

// New constructs an empty book for the given side and capacity.
func New(side Side, capacity int) *Book {
	var less func(a, b *entry) bool
	if side == Bid {
		// Bids: descending price, then descending encoded sequence (the
		// encoding makes the earliest-placed order carry the larger
		// encoded value, see EncodeSequence).
		less = func(a, b *entry) bool {
			if a.id.PriceInTicks != b.id.PriceInTicks {
				return a.id.PriceInTicks > b.id.PriceInTicks
			}
			return a.id.SequenceNumber > b.id.SequenceNumber
		}
	} else {
		// Asks: ascending price, then ascending sequence.
		less = func(a, b *entry) bool {
			if a.id.PriceInTicks != b.id.PriceInTicks {
				return a.id.PriceInTicks < b.id.PriceInTicks
			}
			return a.id.SequenceNumber < b.id.SequenceNumber
		}
	}
	return &Book{
		side:     side,
		capacity: capacity,
		tree:     btree.NewBTreeG(less),
	}
}

func (b *Book) Side() Side         { return b.side }
func (b *Book) Len() int           { return b.tree.Len() }
func (b *Book) Capacity() int      { return b.capacity }
func (b *Book) IsEmpty() bool      { return b.tree.Len() == 0 }
func (b *Book) IsFull() bool       { return b.tree.Len() >= b.capacity }

// Insert adds a new resting order under id. ok is false iff the book is
// already at capacity; callers are responsible for evicting first.
func (b *Book) Insert(id OrderId, order RestingOrder) (ok bool) {
	if b.IsFull() {
		return false
	}
	b.tree.Set(&entry{id: id, order: order})
	return true
}

// Remove deletes the order at id, returning it if present.
func (b *Book) Remove(id OrderId) (RestingOrder, bool) {
	e, ok := b.tree.Delete(&entry{id: id})
	if !ok {
		return RestingOrder{}, false
	}
	return e.order, true
}

// Get returns a copy of the resting order at id.
func (b *Book) Get(id OrderId) (RestingOrder, bool) {
	e, ok := b.tree.Get(&entry{id: id})
	if !ok {
		return RestingOrder{}, false
	}
	return e.order, true
}

// Mutate applies fn to the resting order at id in place, returning false
// if id is absent.
func (b *Book) Mutate(id OrderId, fn func(*RestingOrder)) bool {
	e, ok := b.tree.GetMut(&entry{id: id})
	if !ok {
		return false
	}
	fn(&e.order)
	return true
}

// Min returns the most aggressive resting order on this side.
func (b *Book) Min() (OrderId, RestingOrder, bool) {
	e, ok := b.tree.Min()
	if !ok {
		return OrderId{}, RestingOrder{}, false
	}
	return e.id, e.order, true
}

// Max returns the least aggressive resting order on this side.
func (b *Book) Max() (OrderId, RestingOrder, bool) {
	e, ok := b.tree.Max()
	if !ok {
		return OrderId{}, RestingOrder{}, false
	}
	return e.id, e.order, true
}

// MutateMin applies fn to the most aggressive resting order in place, used
// by the matching loop to decrement a maker in place without a
// remove+reinsert round trip.
func (b *Book) MutateMin(fn func(OrderId, *RestingOrder)) bool {
	e, ok := b.tree.MinMut()
	if !ok {
		return false
	}
	fn(e.id, &e.order)
	return true
}

// Ascend calls fn for every order in priority order (most aggressive
// first), stopping early if fn returns false. Used by the ladder view,
// cancel-up-to, cancel-all, and the expiry scan.
func (b *Book) Ascend(fn func(OrderId, RestingOrder) bool) {
	b.tree.Scan(func(e *entry) bool {
		return fn(e.id, e.order)
	})
}
