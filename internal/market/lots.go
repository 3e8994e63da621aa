package market

import "phoenix/internal/quantity"

// quoteLotsForFill computes (price * tickSize * numBaseLots) / B, the
// whole-quote-lots cost of numBaseLots at price. Used when locking,
// unlocking, and posting quote lots.
func quoteLotsForFill(price quantity.Ticks, tickSize quantity.QuoteLotsPerBaseUnitPerTick, numBaseLots quantity.BaseLots, b quantity.BaseLotsPerBaseUnit) quantity.QuoteLots {
	adj := quantity.AdjustedQuoteLotsForFill(price, tickSize, numBaseLots)
	return quantity.QuoteLots(uint64(adj) / uint64(b))
}
