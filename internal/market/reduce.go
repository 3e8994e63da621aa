package market

import (
	"phoenix/internal/book"
	"phoenix/internal/events"
	"phoenix/internal/quantity"
	"phoenix/internal/trader"
)

// reduceOrderInner shrinks or removes a resting order, unlocks the
// trader's corresponding locked funds, and optionally claims them back
// to the trader's withdrawable balance.
//
// size, when non-nil, caps how many base lots are removed; nil removes
// the whole order. orderIsExpired selects whether the Reduce or
// ExpiredOrder event is recorded — the only difference between a
// maker-initiated cancel and an expiry sweep.
func (m *Market) reduceOrderInner(traderIndex uint32, orderID book.OrderId, side book.Side, size *quantity.BaseLots, orderIsExpired, claimFunds bool) (Response, error) {
	makerID := m.traders.IDFromIndex(traderIndex)
	b := m.bookFor(side)

	order, ok := b.Get(orderID)
	if !ok {
		return Response{}, nil
	}
	if order.TraderIndex != traderIndex {
		return Response{}, ErrUnauthorizedReduce
	}

	baseLotsToRemove := order.NumBaseLots
	if size != nil && *size < baseLotsToRemove {
		baseLotsToRemove = *size
	}
	removeWhole := baseLotsToRemove == order.NumBaseLots

	var baseLotsRemaining quantity.BaseLots
	if removeWhole {
		b.Remove(orderID)
		baseLotsRemaining = 0
	} else {
		b.Mutate(orderID, func(o *book.RestingOrder) {
			o.NumBaseLots -= baseLotsToRemove
			baseLotsRemaining = o.NumBaseLots
		})
	}

	if orderIsExpired {
		m.record(events.ExpiredOrder(makerID, orderID.SequenceNumber, orderID.PriceInTicks, baseLotsToRemove))
	} else {
		m.record(events.Reduce(orderID.SequenceNumber, orderID.PriceInTicks, baseLotsToRemove, baseLotsRemaining))
	}

	st := m.traders.StateByIndex(traderIndex)
	var numQuoteLots quantity.QuoteLots
	var numBaseLots quantity.BaseLots
	if side == book.Bid {
		numQuoteLots = quoteLotsForFill(orderID.PriceInTicks, m.params.TickSizeInQuoteLotsPerBaseUnit, baseLotsToRemove, m.params.BaseLotsPerBaseUnit)
		st.UnlockQuote(numQuoteLots)
	} else {
		st.UnlockBase(baseLotsToRemove)
		numBaseLots = baseLotsToRemove
	}

	// An order removed mid self-trade, or at the caller's request, leaves
	// its freed funds parked rather than claimed.
	if !claimFunds {
		return Response{}, nil
	}
	return m.claimFundsInner(traderIndex, &numQuoteLots, &numBaseLots, false)
}

// claimFundsInner withdraws a trader's free balance (or as much of it as
// requested), optionally evicting the trader's seat once their balance
// is back to zero.
func (m *Market) claimFundsInner(traderIndex uint32, numQuoteLots *quantity.QuoteLots, numBaseLots *quantity.BaseLots, allowSeatEviction bool) (Response, error) {
	if m.sequenceNumber == 0 {
		return Response{}, ErrUninitialized
	}
	st := m.traders.StateByIndex(traderIndex)

	quoteLotsFree := st.QuoteLotsFree
	if numQuoteLots != nil && *numQuoteLots < quoteLotsFree {
		quoteLotsFree = *numQuoteLots
	}
	baseLotsFree := st.BaseLotsFree
	if numBaseLots != nil && *numBaseLots < baseLotsFree {
		baseLotsFree = *numBaseLots
	}
	st.QuoteLotsFree -= quoteLotsFree
	st.BaseLotsFree -= baseLotsFree
	isEmpty := st.IsZero()

	if isEmpty && allowSeatEviction {
		traderID := m.traders.IDFromIndex(traderIndex)
		m.traders.TryRemoveIfEmpty(traderID)
	}
	return NewWithdrawResponse(baseLotsFree, quoteLotsFree), nil
}

// ClaimFunds is the public entry point for withdrawing a trader's free
// balance.
func (m *Market) ClaimFunds(id trader.ID, numQuoteLots *quantity.QuoteLots, numBaseLots *quantity.BaseLots, allowSeatEviction bool) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.traders.Index(id)
	if !ok {
		return Response{}, ErrSeatUnavailable
	}
	return m.claimFundsInner(idx, numQuoteLots, numBaseLots, allowSeatEviction)
}

// ReduceOrder is the public entry point for shrinking or cancelling a
// resting order: it always targets a single order belonging to the
// caller.
func (m *Market) ReduceOrder(id trader.ID, orderID book.OrderId, side book.Side, size *quantity.BaseLots, claimFunds bool) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.status.ReduceAllowed() {
		return Response{}, ErrTransitionInvalid
	}
	idx, ok := m.traders.Index(id)
	if !ok {
		return Response{}, ErrSeatUnavailable
	}
	return m.reduceOrderInner(idx, orderID, side, size, false, claimFunds)
}

// CancelAllOrders cancels every resting order the trader owns on both
// sides of the book.
func (m *Market) CancelAllOrders(id trader.ID, claimFunds bool) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.status.ReduceAllowed() {
		return Response{}, ErrTransitionInvalid
	}
	idx, ok := m.traders.Index(id)
	if !ok {
		return Response{}, ErrSeatUnavailable
	}
	var toCancel []struct {
		id   book.OrderId
		side book.Side
	}
	for _, side := range []book.Side{book.Bid, book.Ask} {
		m.bookFor(side).Ascend(func(oid book.OrderId, o book.RestingOrder) bool {
			if o.TraderIndex == idx && o.NumBaseLots > 0 {
				toCancel = append(toCancel, struct {
					id   book.OrderId
					side book.Side
				}{oid, side})
			}
			return true
		})
	}
	return m.cancelMultipleOrdersByIDInner(idx, toCancel, claimFunds)
}

// CancelUpTo cancels resting orders on one side of the book up to the
// given tick limit and counts.
func (m *Market) CancelUpTo(id trader.ID, side book.Side, numOrdersToSearch, numOrdersToCancel *int, tickLimit *quantity.Ticks, claimFunds bool) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.status.ReduceAllowed() {
		return Response{}, ErrTransitionInvalid
	}
	idx, ok := m.traders.Index(id)
	if !ok {
		return Response{}, ErrSeatUnavailable
	}

	lastTick := quantity.MaxTicks
	if side == book.Bid {
		lastTick = 0
	}
	if tickLimit != nil {
		lastTick = *tickLimit
	}

	b := m.bookFor(side)
	searchBudget := b.Len()
	if numOrdersToSearch != nil {
		searchBudget = *numOrdersToSearch
	}
	cancelBudget := b.Len()
	if numOrdersToCancel != nil {
		cancelBudget = *numOrdersToCancel
	}

	var toCancel []struct {
		id   book.OrderId
		side book.Side
	}
	searched, cancelled := 0, 0
	b.Ascend(func(oid book.OrderId, o book.RestingOrder) bool {
		if searched >= searchBudget {
			return false
		}
		searched++
		if o.TraderIndex != idx {
			return true
		}
		withinLimit := false
		if side == book.Bid {
			withinLimit = oid.PriceInTicks >= lastTick
		} else {
			withinLimit = oid.PriceInTicks <= lastTick
		}
		if !withinLimit {
			return true
		}
		if cancelled >= cancelBudget {
			return false
		}
		toCancel = append(toCancel, struct {
			id   book.OrderId
			side book.Side
		}{oid, side})
		cancelled++
		return true
	})

	return m.cancelMultipleOrdersByIDInner(idx, toCancel, claimFunds)
}

// CancelMultipleByID cancels the specific resting orders named, deriving
// each order's side from its bit-inverted sequence number.
func (m *Market) CancelMultipleByID(id trader.ID, orderIDs []book.OrderId, claimFunds bool) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.status.ReduceAllowed() {
		return Response{}, ErrTransitionInvalid
	}
	idx, ok := m.traders.Index(id)
	if !ok {
		return Response{}, ErrSeatUnavailable
	}
	toCancel := make([]struct {
		id   book.OrderId
		side book.Side
	}, len(orderIDs))
	for i, oid := range orderIDs {
		toCancel[i] = struct {
			id   book.OrderId
			side book.Side
		}{oid, book.SideFromSequence(oid.SequenceNumber)}
	}
	return m.cancelMultipleOrdersByIDInner(idx, toCancel, claimFunds)
}

func (m *Market) cancelMultipleOrdersByIDInner(traderIndex uint32, orders []struct {
	id   book.OrderId
	side book.Side
}, claimFunds bool) (Response, error) {
	var quoteLotsReleased quantity.QuoteLots
	var baseLotsReleased quantity.BaseLots
	for _, o := range orders {
		resp, err := m.reduceOrderInner(traderIndex, o.id, o.side, nil, false, claimFunds)
		if err != nil {
			continue
		}
		quoteLotsReleased += resp.NumQuoteLotsOut
		baseLotsReleased += resp.NumBaseLotsOut
	}
	return NewWithdrawResponse(baseLotsReleased, quoteLotsReleased), nil
}
