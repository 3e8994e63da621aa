package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoenix/internal/quantity"
)

func idFor(b byte) ID {
	var id ID
	id[0] = b
	return id
}

func TestStateLockUnlockUseDeposit(t *testing.T) {
	var s State
	s.LockQuote(100)
	s.LockBase(10)
	assert.Equal(t, quantity.QuoteLots(100), s.QuoteLotsLocked)
	assert.Equal(t, quantity.BaseLots(10), s.BaseLotsLocked)

	s.UnlockQuote(40)
	assert.Equal(t, quantity.QuoteLots(60), s.QuoteLotsLocked)
	assert.Equal(t, quantity.QuoteLots(40), s.QuoteLotsFree)

	s.UseFreeQuote(10)
	assert.Equal(t, quantity.QuoteLots(30), s.QuoteLotsFree)

	s.DepositFreeBase(5)
	assert.Equal(t, quantity.BaseLots(5), s.BaseLotsFree)
}

func TestStateIsZero(t *testing.T) {
	var s State
	assert.True(t, s.IsZero())
	s.LockQuote(1)
	assert.False(t, s.IsZero())
}

func TestProcessLimitBuySell(t *testing.T) {
	var maker State
	maker.LockBase(10)
	maker.ProcessLimitSell(4, 40)
	assert.Equal(t, quantity.BaseLots(6), maker.BaseLotsLocked)
	assert.Equal(t, quantity.QuoteLots(40), maker.QuoteLotsFree)

	var buyer State
	buyer.LockQuote(100)
	buyer.ProcessLimitBuy(40, 4)
	assert.Equal(t, quantity.QuoteLots(60), buyer.QuoteLotsLocked)
	assert.Equal(t, quantity.BaseLots(4), buyer.BaseLotsFree)
}

func TestGetOrRegisterAndIndex(t *testing.T) {
	tab := New(2)
	id1 := idFor(1)
	id2 := idFor(2)

	idx1, ok := tab.GetOrRegister(id1)
	require.True(t, ok)
	assert.Equal(t, uint32(0), idx1)

	// Re-registering returns the same index.
	again, ok := tab.GetOrRegister(id1)
	require.True(t, ok)
	assert.Equal(t, idx1, again)

	idx2, ok := tab.GetOrRegister(id2)
	require.True(t, ok)
	assert.Equal(t, uint32(1), idx2)

	// Table is at capacity; a third distinct trader fails.
	_, ok = tab.GetOrRegister(idFor(3))
	assert.False(t, ok)

	got, ok := tab.Index(id1)
	require.True(t, ok)
	assert.Equal(t, idx1, got)

	assert.Equal(t, id2, tab.IDFromIndex(idx2))
}

func TestTryRemoveIfEmptyRecyclesIndex(t *testing.T) {
	tab := New(1)
	id := idFor(1)
	idx, ok := tab.GetOrRegister(id)
	require.True(t, ok)

	// Non-zero balance: not eligible for eviction.
	tab.StateByIndex(idx).LockBase(1)
	assert.False(t, tab.TryRemoveIfEmpty(id))

	tab.StateByIndex(idx).UnlockBase(1) // zero it back out
	tab.StateByIndex(idx).UseFreeBase(1)
	assert.True(t, tab.TryRemoveIfEmpty(id))
	assert.Equal(t, 0, tab.Len())

	// The freed index is available for the next registrant.
	newID := idFor(2)
	newIdx, ok := tab.GetOrRegister(newID)
	require.True(t, ok)
	assert.Equal(t, idx, newIdx)
}

func TestTryRemoveIndexIfEmpty(t *testing.T) {
	tab := New(2)
	id := idFor(9)
	idx, _ := tab.GetOrRegister(id)

	assert.True(t, tab.TryRemoveIndexIfEmpty(idx))
	_, ok := tab.Index(id)
	assert.False(t, ok)
}

func TestIDFromIndexPanicsOnEvictedIndex(t *testing.T) {
	tab := New(1)
	id := idFor(1)
	idx, _ := tab.GetOrRegister(id)
	tab.TryRemoveIfEmpty(id)

	assert.Panics(t, func() { tab.IDFromIndex(idx) })
}

func TestSentinelIndex(t *testing.T) {
	assert.Equal(t, uint32(1<<32-1), SentinelIndex)
}
