package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoenix/internal/quantity"
	"phoenix/internal/trader"
)

func TestConstructors(t *testing.T) {
	cid := quantity.ClientOrderIDFromUint64(1)
	var maker trader.ID
	maker[0] = 9

	place := Place(1, 100, 10, cid)
	assert.Equal(t, KindPlace, place.Kind)
	assert.Equal(t, quantity.BaseLots(10), place.BaseLotsPlaced)

	fill := Fill(maker, 1, 100, 5, 5)
	assert.Equal(t, KindFill, fill.Kind)
	assert.Equal(t, maker, fill.MakerID)
	assert.Equal(t, quantity.BaseLots(5), fill.BaseLotsFilled)

	reduce := Reduce(1, 100, 3, 2)
	assert.Equal(t, KindReduce, reduce.Kind)
	assert.Equal(t, quantity.BaseLots(3), reduce.BaseLotsRemoved)

	evict := Evict(maker, 1, 100, 7)
	assert.Equal(t, KindEvict, evict.Kind)
	assert.Equal(t, quantity.BaseLots(7), evict.BaseLotsEvicted)

	expired := ExpiredOrder(maker, 1, 100, 4)
	assert.Equal(t, KindExpiredOrder, expired.Kind)

	summary := FillSummary(cid, 10, 1000, 3)
	assert.Equal(t, KindFillSummary, summary.Kind)
	assert.Equal(t, quantity.QuoteLots(3), summary.TotalFeeInQuoteLots)

	fee := Fee(42)
	assert.Equal(t, KindFee, fee.Kind)
	assert.Equal(t, quantity.QuoteLots(42), fee.FeesCollectedInQuoteLots)

	tif := TimeInForce(1, 500, 600)
	assert.Equal(t, KindTimeInForce, tif.Kind)
	assert.Equal(t, uint64(500), tif.LastValidSlot)
}

func TestJournalRecordStampsIncreasingIndex(t *testing.T) {
	j := NewJournal()
	j.Record(Place(1, 1, 1, quantity.ClientOrderID{}))
	j.Record(Place(2, 1, 1, quantity.ClientOrderID{}))
	j.Record(Place(3, 1, 1, quantity.ClientOrderID{}))

	events := j.Events()
	require.Len(t, events, 3)
	assert.Equal(t, Uint16Index(0), events[0].Index)
	assert.Equal(t, Uint16Index(1), events[1].Index)
	assert.Equal(t, Uint16Index(2), events[2].Index)
}

func TestJournalReset(t *testing.T) {
	j := NewJournal()
	j.Record(Place(1, 1, 1, quantity.ClientOrderID{}))
	j.Reset()
	assert.Empty(t, j.Events())

	j.Record(Place(2, 1, 1, quantity.ClientOrderID{}))
	assert.Equal(t, Uint16Index(0), j.Events()[0].Index)
}
