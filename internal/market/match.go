package market

import (
	"phoenix/internal/book"
	"phoenix/internal/events"
	"phoenix/internal/matching"
	"phoenix/internal/orderpacket"
	"phoenix/internal/quantity"
)

// matchOrder walks the opposite side of the book on behalf of inflight,
// consuming resting orders until its budgets are exhausted, its match
// limit runs out, or it stops crossing the limit price. It returns the
// leftover (unfilled) resting order the caller may post, and an error
// only for SelfTradeBehavior Abort (which voids the whole operation).
func (m *Market) matchOrder(inflight *matching.InflightOrder, currentTraderIndex uint32, currentSlot, currentUnixTS uint64) (book.RestingOrder, error) {
	opposite := inflight.Side.Opposite()
	oppositeBook := m.bookFor(opposite)

	var totalMatchedAdjustedQuoteLots quantity.AdjustedQuoteLots

	for inflight.InProgress() {
		orderID, maker, ok := oppositeBook.Min()
		if !ok {
			break
		}

		crossed := false
		if inflight.Side == book.Bid {
			crossed = orderID.PriceInTicks <= inflight.LimitPriceInTicks
		} else {
			crossed = orderID.PriceInTicks >= inflight.LimitPriceInTicks
		}
		if !crossed {
			break
		}

		if maker.NumBaseLots == 0 {
			// A tombstoned order found mid-walk; this should never occur
			// in practice but the book must still be kept consistent.
			m.warnf("encountered tombstoned order during matching")
			oppositeBook.Remove(orderID)
			inflight.MatchLimit--
			continue
		}

		if maker.IsExpired(currentSlot, currentUnixTS) {
			if _, err := m.reduceOrderInner(maker.TraderIndex, orderID, opposite, nil, true, false); err != nil {
				return book.RestingOrder{}, err
			}
			inflight.MatchLimit--
			continue
		}

		if maker.TraderIndex == currentTraderIndex {
			switch inflight.SelfTradeBehavior {
			case orderpacket.Abort:
				return book.RestingOrder{}, ErrSelfTradeAbort
			case orderpacket.CancelProvide:
				if _, err := m.reduceOrderInner(currentTraderIndex, orderID, opposite, nil, false, false); err != nil {
					return book.RestingOrder{}, err
				}
				inflight.MatchLimit--
			case orderpacket.DecrementTake:
				denom := uint64(orderID.PriceInTicks) * uint64(m.params.TickSizeInQuoteLotsPerBaseUnit)
				byBudget := quantity.MaxBaseLots
				if denom != 0 {
					byBudget = quantity.BaseLots(uint64(inflight.AdjustedQuoteLotBudget) / denom)
				}
				baseLotsRemoved := quantity.MinBaseLots(quantity.MinBaseLots(inflight.BaseLotBudget, byBudget), maker.NumBaseLots)

				if _, err := m.reduceOrderInner(currentTraderIndex, orderID, opposite, &baseLotsRemoved, false, false); err != nil {
					return book.RestingOrder{}, err
				}
				inflight.BaseLotBudget = quantity.SaturatingSubBaseLots(inflight.BaseLotBudget, baseLotsRemoved)
				adjRemoved := quantity.AdjustedQuoteLotsForFill(orderID.PriceInTicks, m.params.TickSizeInQuoteLotsPerBaseUnit, baseLotsRemoved)
				inflight.AdjustedQuoteLotBudget = quantity.SaturatingSubAdjustedQuoteLots(inflight.AdjustedQuoteLotBudget, adjRemoved)
				inflight.MatchLimit--
				inflight.ShouldTerminate = baseLotsRemoved < maker.NumBaseLots
			}
			continue
		}

		numAdjustedQuoteLotsQuoted := quantity.AdjustedQuoteLotsForFill(orderID.PriceInTicks, m.params.TickSizeInQuoteLotsPerBaseUnit, maker.NumBaseLots)

		var matchedBaseLots quantity.BaseLots
		var matchedAdjustedQuoteLots quantity.AdjustedQuoteLots
		var orderRemainingBaseLots quantity.BaseLots

		hasRemainingAdjustedQuoteLots := numAdjustedQuoteLotsQuoted <= inflight.AdjustedQuoteLotBudget
		hasRemainingBaseLots := maker.NumBaseLots <= inflight.BaseLotBudget

		if hasRemainingBaseLots && hasRemainingAdjustedQuoteLots {
			oppositeBook.Remove(orderID)
			matchedBaseLots = maker.NumBaseLots
			matchedAdjustedQuoteLots = numAdjustedQuoteLotsQuoted
			orderRemainingBaseLots = 0
		} else {
			denom := uint64(orderID.PriceInTicks) * uint64(m.params.TickSizeInQuoteLotsPerBaseUnit)
			baseLotsToRemove := quantity.MaxBaseLots
			if denom != 0 {
				baseLotsToRemove = quantity.BaseLots(uint64(inflight.AdjustedQuoteLotBudget) / denom)
			}
			baseLotsToRemove = quantity.MinBaseLots(inflight.BaseLotBudget, baseLotsToRemove)
			adjustedQuoteLotsToRemove := quantity.AdjustedQuoteLotsForFill(orderID.PriceInTicks, m.params.TickSizeInQuoteLotsPerBaseUnit, baseLotsToRemove)

			oppositeBook.MutateMin(func(_ book.OrderId, o *book.RestingOrder) {
				o.NumBaseLots -= baseLotsToRemove
				orderRemainingBaseLots = o.NumBaseLots
			})
			inflight.ShouldTerminate = true
			matchedBaseLots = baseLotsToRemove
			matchedAdjustedQuoteLots = adjustedQuoteLotsToRemove
		}

		inflight.ProcessMatch(matchedAdjustedQuoteLots, matchedBaseLots)
		totalMatchedAdjustedQuoteLots += matchedAdjustedQuoteLots

		if matchedBaseLots != 0 {
			makerID := m.traders.IDFromIndex(maker.TraderIndex)
			m.record(events.Fill(makerID, orderID.SequenceNumber, orderID.PriceInTicks, matchedBaseLots, orderRemainingBaseLots))
		} else if !inflight.ShouldTerminate {
			m.warnf("should_terminate should always be true when matched_base_lots is zero")
		}

		makerState := m.traders.StateByIndex(maker.TraderIndex)
		quoteLotsForThisFill := quantity.QuoteLots(uint64(matchedAdjustedQuoteLots) / uint64(m.params.BaseLotsPerBaseUnit))
		if inflight.Side == book.Bid {
			makerState.ProcessLimitSell(matchedBaseLots, quoteLotsForThisFill)
		} else {
			makerState.ProcessLimitBuy(quoteLotsForThisFill, matchedBaseLots)
		}
	}

	inflight.QuoteLotFees = quantity.QuoteLots(uint64(matching.RoundAdjustedQuoteLotsUp(matching.ComputeFee(totalMatchedAdjustedQuoteLots, m.params.TakerFeeBps), m.params.BaseLotsPerBaseUnit)) / uint64(m.params.BaseLotsPerBaseUnit))
	m.unclaimedQuoteLotFees += inflight.QuoteLotFees

	return book.RestingOrder{
		TraderIndex:                     currentTraderIndex,
		NumBaseLots:                     inflight.BaseLotBudget,
		LastValidSlot:                   derefOr(inflight.LastValidSlot, 0),
		LastValidUnixTimestampInSeconds: derefOr(inflight.LastValidUnixTS, 0),
	}, nil
}

func derefOr(p *uint64, def uint64) uint64 {
	if p == nil {
		return def
	}
	return *p
}
