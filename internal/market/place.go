package market

import (
	"phoenix/internal/book"
	"phoenix/internal/events"
	"phoenix/internal/matching"
	"phoenix/internal/orderpacket"
	"phoenix/internal/quantity"
	"phoenix/internal/trader"
)

// PlacedOrder describes the outcome of PlaceOrder: OrderID is set iff a
// resting order was actually posted to the book (never for IOC packets,
// and never for a limit order that matched in full). NoOp is set when
// the order failed its solvency pre-check and PlaceOrder returned
// without touching the book or any trader balance at all — this is a
// successful call, not a failure, and callers must treat it as one.
type PlacedOrder struct {
	OrderID  *book.OrderId
	Response Response
	NoOp     bool
}

// checkForCross determines whether a PostOnly order at numTicks would
// cross the book, sweeping expired orders out of the way as it looks.
// It returns the best unexpired opposing price if the order would cross,
// or ok=false if it wouldn't.
func (m *Market) checkForCross(side book.Side, numTicks quantity.Ticks, currentSlot, currentUnixTS uint64) (quantity.Ticks, bool, error) {
	opposite := side.Opposite()
	oppositeBook := m.bookFor(opposite)
	for {
		orderID, order, ok := oppositeBook.Min()
		if !ok {
			return 0, false, nil
		}
		crosses := false
		if opposite == book.Bid {
			crosses = orderID.PriceInTicks >= numTicks
		} else {
			crosses = orderID.PriceInTicks <= numTicks
		}
		if !crosses {
			return 0, false, nil
		}
		if order.NumBaseLots > 0 {
			if order.IsExpired(currentSlot, currentUnixTS) {
				if _, err := m.reduceOrderInner(order.TraderIndex, orderID, opposite, nil, true, false); err != nil {
					return 0, false, err
				}
				continue
			}
			return orderID.PriceInTicks, true, nil
		}
		m.warnf("empty order found in check_for_cross")
		oppositeBook.Remove(orderID)
	}
}

// PlaceOrder is the matching engine's single order-entry point: it
// validates the packet, matches it against the opposite book if it
// takes liquidity, and posts any remainder, all under one lock so the
// whole operation is atomic from a caller's perspective.
//
// atomsInTokenAccount is the trader's external token-account balance
// for the order's collateral currency (quote for a bid, base for an
// ask), as reported by whatever custodies deposits — pass 0 when that
// balance isn't available, which falls back to judging solvency from
// the trader's free balance alone.
func (m *Market) PlaceOrder(id trader.ID, packet *orderpacket.Packet, atomsInTokenAccount uint64) (PlacedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sequenceNumber == 0 {
		return PlacedOrder{}, ErrUninitialized
	}
	if m.sequenceNumber == 1<<63-1 {
		return PlacedOrder{}, ErrSequenceExhausted
	}
	// Every new-order entry point requires post_allowed, regardless of
	// packet kind; cross_allowed is checked once, after matching, and
	// only when the order withdraws tokens.
	if !m.status.PostAllowed() {
		return PlacedOrder{}, ErrTransitionInvalid
	}

	side := packet.Side
	switch side {
	case book.Bid:
		if packet.PriceInTicks == 0 {
			return PlacedOrder{}, ErrInvalidOrderParams
		}
	case book.Ask:
		if !packet.IsTakeOnly() && packet.PriceInTicks == 0 {
			packet.PriceInTicks = 1
		}
	}

	var traderIndex uint32
	if packet.IsTakeOnly() {
		idx, ok := m.traders.Index(id)
		if !ok {
			traderIndex = trader.SentinelIndex
		} else {
			traderIndex = idx
		}
	} else {
		idx, ok := m.traders.GetOrRegister(id)
		if !ok {
			return PlacedOrder{}, ErrSeatUnavailable
		}
		traderIndex = idx
	}

	if packet.NumBaseLots == 0 && packet.NumQuoteLots == 0 {
		return PlacedOrder{}, ErrInvalidOrderParams
	}
	if packet.IsIOC() {
		hasBase := packet.NumBaseLots > 0
		hasQuote := packet.NumQuoteLots > 0
		if hasBase == hasQuote {
			return PlacedOrder{}, ErrInvalidOrderParams
		}
	}

	currentSlot, currentUnixTS := m.clock.Now()
	if packet.IsExpired(currentSlot, currentUnixTS) {
		return PlacedOrder{}, ErrOrderExpired
	}

	// Solvency pre-check: an order that can rest must be backed by
	// funds before it touches the book. Take-only packets skip this —
	// they either fill against resting liquidity or are rejected by
	// the minimum-fill check below, never posting anything uncovered.
	if !packet.IsTakeOnly() {
		st := m.traders.StateByIndex(traderIndex)
		var available, required uint64
		switch side {
		case book.Ask:
			extra := uint64(0)
			if m.params.BaseLotSizeAtoms > 0 {
				extra = atomsInTokenAccount / m.params.BaseLotSizeAtoms
			}
			available = uint64(st.BaseLotsFree) + extra
			required = uint64(packet.NumBaseLots)
		case book.Bid:
			extra := uint64(0)
			if m.params.QuoteLotSizeAtoms > 0 {
				extra = atomsInTokenAccount / m.params.QuoteLotSizeAtoms
			}
			available = uint64(st.QuoteLotsFree) + extra
			required = uint64(quoteLotsForFill(packet.PriceInTicks, m.params.TickSizeInQuoteLotsPerBaseUnit, packet.NumBaseLots, m.params.BaseLotsPerBaseUnit))
		}
		if available < required {
			m.warnf("insufficient funds to place order: %d available, %d required", available, required)
			return PlacedOrder{NoOp: true}, nil
		}
	}

	var resting book.RestingOrder
	var resp Response

	if packet.IsPostOnly() {
		if ticks, crosses, err := m.checkForCross(side, packet.PriceInTicks, currentSlot, currentUnixTS); err != nil {
			return PlacedOrder{}, err
		} else if crosses {
			if packet.RejectPostOnly {
				return PlacedOrder{}, ErrPostOnlyCrosses
			}
			if side == book.Bid {
				if ticks <= 1 {
					return PlacedOrder{}, ErrPostOnlyCrosses
				}
				packet.PriceInTicks = ticks - 1
			} else {
				packet.PriceInTicks = ticks + 1
			}
		}
		resting = book.RestingOrder{
			TraderIndex:                     traderIndex,
			NumBaseLots:                     packet.NumBaseLots,
			LastValidSlot:                   derefOr(packet.LastValidSlot, 0),
			LastValidUnixTimestampInSeconds: derefOr(packet.LastValidUnixTS, 0),
		}
	} else {
		baseLotBudget := packet.BaseLotBudget()
		adjustedQuoteLotBudget := quantity.MaxAdjustedQuoteLots
		if quoteLotBudget, ok := packet.QuoteLotBudget(); ok {
			sizeAdj := quantity.AdjustedQuoteLots(uint64(quoteLotBudget) * uint64(m.params.BaseLotsPerBaseUnit))
			var derived quantity.AdjustedQuoteLots
			var deriveOK bool
			if side == book.Bid {
				derived, deriveOK = matching.BudgetForBuys(sizeAdj, m.params.TakerFeeBps)
			} else {
				derived, deriveOK = matching.BudgetForSells(sizeAdj, m.params.TakerFeeBps)
			}
			if deriveOK {
				adjustedQuoteLotBudget = derived
			}
		}

		inflight := &matching.InflightOrder{
			Side:                   side,
			SelfTradeBehavior:      packet.SelfTradeBehavior,
			LimitPriceInTicks:      packet.PriceInTicks,
			MatchLimit:             packet.EffectiveMatchLimit(),
			BaseLotBudget:          baseLotBudget,
			AdjustedQuoteLotBudget: adjustedQuoteLotBudget,
			LastValidSlot:          packet.LastValidSlot,
			LastValidUnixTS:        packet.LastValidUnixTS,
		}

		var err error
		resting, err = m.matchOrder(inflight, traderIndex, currentSlot, currentUnixTS)
		if err != nil {
			return PlacedOrder{}, err
		}

		var matchedQuoteLots quantity.QuoteLots
		if side == book.Bid {
			matchedQuoteLots = quantity.QuoteLots(uint64(matching.RoundAdjustedQuoteLotsUp(inflight.MatchedAdjustedQuoteLots, m.params.BaseLotsPerBaseUnit))/uint64(m.params.BaseLotsPerBaseUnit)) + inflight.QuoteLotFees
		} else {
			matchedQuoteLots = quantity.QuoteLots(uint64(matching.RoundAdjustedQuoteLotsDown(inflight.MatchedAdjustedQuoteLots, m.params.BaseLotsPerBaseUnit))/uint64(m.params.BaseLotsPerBaseUnit)) - inflight.QuoteLotFees
		}

		if side == book.Bid {
			resp = NewResponseFromBuy(matchedQuoteLots, inflight.MatchedBaseLots)
		} else {
			resp = NewResponseFromSell(inflight.MatchedBaseLots, matchedQuoteLots)
		}

		m.record(events.FillSummary(packet.ClientOrderID, inflight.MatchedBaseLots, matchedQuoteLots, inflight.QuoteLotFees))
	}

	var placedOrderID *book.OrderId

	if packet.IsIOC() {
		if resp.NumBaseLots() < packet.MinBaseLotsToFill || resp.NumQuoteLots() < packet.MinQuoteLotsToFill {
			return PlacedOrder{}, ErrIOCFillNotMet
		}
	} else {
		var orderID book.OrderId
		var bookFull bool
		if side == book.Bid {
			orderID = book.OrderId{PriceInTicks: packet.PriceInTicks, SequenceNumber: book.EncodeSequence(book.Bid, m.sequenceNumber)}
			bookFull = m.bids.IsFull()
		} else {
			orderID = book.OrderId{PriceInTicks: packet.PriceInTicks, SequenceNumber: book.EncodeSequence(book.Ask, m.sequenceNumber)}
			bookFull = m.asks.IsFull()
		}

		if resting.NumBaseLots > 0 {
			placedOrderID = &orderID
			if bookFull && !m.evictLeastAggressiveOrder(side, orderID) {
				return PlacedOrder{}, ErrEvictionFailed
			}
			if !m.bookFor(side).Insert(orderID, resting) {
				return PlacedOrder{}, errInsertFailed
			}

			st := m.traders.StateByIndex(traderIndex)
			switch side {
			case book.Bid:
				quoteLotsToLock := quoteLotsForFill(orderID.PriceInTicks, m.params.TickSizeInQuoteLotsPerBaseUnit, resting.NumBaseLots, m.params.BaseLotsPerBaseUnit)
				quoteLotsFreeToUse := quantity.MinQuoteLots(quoteLotsToLock, st.QuoteLotsFree)
				st.UseFreeQuote(quoteLotsFreeToUse)
				st.LockQuote(quoteLotsToLock)
				resp.PostQuoteLots(quoteLotsToLock)
				resp.UseFreeQuoteLots(quoteLotsFreeToUse)
			case book.Ask:
				baseLotsFreeToUse := quantity.MinBaseLots(resting.NumBaseLots, st.BaseLotsFree)
				st.UseFreeBase(baseLotsFreeToUse)
				st.LockBase(resting.NumBaseLots)
				resp.PostBaseLots(resting.NumBaseLots)
				resp.UseFreeBaseLots(baseLotsFreeToUse)
			}

			m.record(events.Place(orderID.SequenceNumber, orderID.PriceInTicks, resting.NumBaseLots, packet.ClientOrderID))
			if resting.LastValidSlot != 0 || resting.LastValidUnixTimestampInSeconds != 0 {
				m.record(events.TimeInForce(orderID.SequenceNumber, resting.LastValidSlot, resting.LastValidUnixTimestampInSeconds))
			}
			m.sequenceNumber++
		}
	}

	if traderIndex != trader.SentinelIndex {
		st := m.traders.StateByIndex(traderIndex)
		switch side {
		case book.Bid:
			quoteLotsFreeToUse := quantity.MinQuoteLots(st.QuoteLotsFree, resp.NumQuoteLots())
			st.UseFreeQuote(quoteLotsFreeToUse)
			resp.UseFreeQuoteLots(quoteLotsFreeToUse)
		case book.Ask:
			baseLotsFreeToUse := quantity.MinBaseLots(st.BaseLotsFree, resp.NumBaseLots())
			st.UseFreeBase(baseLotsFreeToUse)
			resp.UseFreeBaseLots(baseLotsFreeToUse)
		}

		if packet.NoDepositOrWithdrawal() {
			switch side {
			case book.Bid:
				st.DepositFreeBase(resp.NumBaseLotsOut)
				resp.NumBaseLotsOut = 0
			case book.Ask:
				st.DepositFreeQuote(resp.NumQuoteLotsOut)
				resp.NumQuoteLotsOut = 0
			}
			if !resp.VerifyNoDepositOrWithdrawal() {
				return PlacedOrder{}, ErrInsufficientDeposit
			}
		}
	}

	if resp.NumQuoteLotsOut > 0 || resp.NumBaseLotsOut > 0 {
		if !m.status.CrossAllowed() {
			return PlacedOrder{}, ErrTransitionInvalid
		}
	}

	return PlacedOrder{OrderID: placedOrderID, Response: resp}, nil
}
