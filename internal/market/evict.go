package market

import (
	"phoenix/internal/book"
	"phoenix/internal/events"
)

// evictLeastAggressiveOrder removes the book's worst resting order to
// make room for placedOrderID, but only if placedOrderID is strictly
// more aggressive than what it would evict — a full book never evicts
// in favor of an equally or less aggressive order.
func (m *Market) evictLeastAggressiveOrder(side book.Side, placedOrderID book.OrderId) bool {
	b := m.bookFor(side)
	victimID, victim, ok := b.Max()
	if !ok {
		return false
	}
	notAggressiveEnough := false
	if side == book.Bid {
		notAggressiveEnough = victimID.PriceInTicks >= placedOrderID.PriceInTicks
	} else {
		notAggressiveEnough = victimID.PriceInTicks <= placedOrderID.PriceInTicks
	}
	if notAggressiveEnough {
		m.warnf("new order is not aggressive enough to evict an existing order")
		return false
	}
	if _, ok := b.Remove(victimID); !ok {
		return false
	}
	makerID := m.traders.IDFromIndex(victim.TraderIndex)
	m.record(events.Evict(makerID, victimID.SequenceNumber, victimID.PriceInTicks, victim.NumBaseLots))

	st := m.traders.StateByIndex(victim.TraderIndex)
	if side == book.Bid {
		quoteLotsToUnlock := quoteLotsForFill(victimID.PriceInTicks, m.params.TickSizeInQuoteLotsPerBaseUnit, victim.NumBaseLots, m.params.BaseLotsPerBaseUnit)
		st.UnlockQuote(quoteLotsToUnlock)
	} else {
		st.UnlockBase(victim.NumBaseLots)
	}
	return true
}
