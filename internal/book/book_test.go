package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoenix/internal/quantity"
)

func TestEncodeSequenceAndSideFromSequence(t *testing.T) {
	raw := uint64(42)

	bidEncoded := EncodeSequence(Bid, raw)
	assert.Equal(t, Bid, SideFromSequence(bidEncoded))

	askEncoded := EncodeSequence(Ask, raw)
	assert.Equal(t, raw, askEncoded)
	assert.Equal(t, Ask, SideFromSequence(askEncoded))
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, Ask, Bid.Opposite())
	assert.Equal(t, Bid, Ask.Opposite())
}

func TestBookBidOrdering(t *testing.T) {
	b := New(Bid, 10)
	// Lower sequence == placed earlier == higher priority at the same price.
	id1 := OrderId{PriceInTicks: 100, SequenceNumber: EncodeSequence(Bid, 1)}
	id2 := OrderId{PriceInTicks: 105, SequenceNumber: EncodeSequence(Bid, 2)}
	id3 := OrderId{PriceInTicks: 100, SequenceNumber: EncodeSequence(Bid, 3)}

	require.True(t, b.Insert(id1, RestingOrder{NumBaseLots: 1}))
	require.True(t, b.Insert(id2, RestingOrder{NumBaseLots: 2}))
	require.True(t, b.Insert(id3, RestingOrder{NumBaseLots: 3}))

	// Bids: best price is highest; id2 (105) must be Min().
	minID, _, ok := b.Min()
	require.True(t, ok)
	assert.Equal(t, id2, minID)

	// At the same price (100), earlier sequence (id1) ranks before id3.
	var order []quantity.BaseLots
	b.Ascend(func(_ OrderId, o RestingOrder) bool {
		order = append(order, o.NumBaseLots)
		return true
	})
	require.Len(t, order, 3)
	assert.Equal(t, quantity.BaseLots(2), order[0])
	assert.Equal(t, quantity.BaseLots(1), order[1])
	assert.Equal(t, quantity.BaseLots(3), order[2])
}

func TestBookAskOrdering(t *testing.T) {
	b := New(Ask, 10)
	id1 := OrderId{PriceInTicks: 100, SequenceNumber: EncodeSequence(Ask, 1)}
	id2 := OrderId{PriceInTicks: 95, SequenceNumber: EncodeSequence(Ask, 2)}

	require.True(t, b.Insert(id1, RestingOrder{NumBaseLots: 1}))
	require.True(t, b.Insert(id2, RestingOrder{NumBaseLots: 2}))

	minID, _, ok := b.Min()
	require.True(t, ok)
	assert.Equal(t, id2, minID) // asks: best price is lowest
}

func TestBookCapacity(t *testing.T) {
	b := New(Bid, 1)
	id1 := OrderId{PriceInTicks: 1, SequenceNumber: 1}
	id2 := OrderId{PriceInTicks: 2, SequenceNumber: 2}
	require.True(t, b.Insert(id1, RestingOrder{}))
	assert.True(t, b.IsFull())
	assert.False(t, b.Insert(id2, RestingOrder{}))
}

func TestBookRemoveAndGet(t *testing.T) {
	b := New(Bid, 10)
	id := OrderId{PriceInTicks: 10, SequenceNumber: 1}
	b.Insert(id, RestingOrder{NumBaseLots: 7})

	got, ok := b.Get(id)
	require.True(t, ok)
	assert.Equal(t, quantity.BaseLots(7), got.NumBaseLots)

	removed, ok := b.Remove(id)
	require.True(t, ok)
	assert.Equal(t, quantity.BaseLots(7), removed.NumBaseLots)
	assert.True(t, b.IsEmpty())

	_, ok = b.Remove(id)
	assert.False(t, ok)
}

func TestBookMutate(t *testing.T) {
	b := New(Bid, 10)
	id := OrderId{PriceInTicks: 10, SequenceNumber: 1}
	b.Insert(id, RestingOrder{NumBaseLots: 10})

	ok := b.Mutate(id, func(o *RestingOrder) { o.NumBaseLots -= 3 })
	require.True(t, ok)

	got, _ := b.Get(id)
	assert.Equal(t, quantity.BaseLots(7), got.NumBaseLots)

	ok = b.Mutate(OrderId{PriceInTicks: 999}, func(o *RestingOrder) {})
	assert.False(t, ok)
}

func TestRestingOrderIsExpired(t *testing.T) {
	r := RestingOrder{LastValidSlot: 100}
	assert.True(t, r.IsExpired(101, 0))
	assert.False(t, r.IsExpired(100, 0))
	assert.False(t, r.IsExpired(99, 0))

	r2 := RestingOrder{LastValidUnixTimestampInSeconds: 50}
	assert.True(t, r2.IsExpired(0, 51))
	assert.False(t, r2.IsExpired(0, 50))

	unset := RestingOrder{}
	assert.False(t, unset.IsExpired(1<<62, 1<<62))
}
