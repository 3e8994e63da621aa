// Package matching implements the budgeted in-flight order: the
// fee-adjusted budget derivation and the walk state a taker carries
// across the opposite side of the book. The walk itself (which needs the
// book, trader table, and event journal) lives in internal/market, which
// composes this package with internal/book and internal/trader.
package matching

import (
	"math/big"
	"math/bits"

	"phoenix/internal/book"
	"phoenix/internal/orderpacket"
	"phoenix/internal/quantity"
)

// InflightOrder is the taker's mutable walk state over one matching call.
type InflightOrder struct {
	Side              book.Side
	SelfTradeBehavior orderpacket.SelfTradeBehavior
	ShouldTerminate   bool

	LimitPriceInTicks quantity.Ticks
	MatchLimit        uint64

	BaseLotBudget          quantity.BaseLots
	AdjustedQuoteLotBudget quantity.AdjustedQuoteLots

	MatchedBaseLots          quantity.BaseLots
	MatchedAdjustedQuoteLots quantity.AdjustedQuoteLots
	QuoteLotFees             quantity.QuoteLots

	LastValidSlot   *uint64
	LastValidUnixTS *uint64
}

// InProgress reports whether the matching loop can continue: both
// budgets remain positive, the match count hasn't been exhausted, and
// nothing has asked the walk to stop early.
func (o *InflightOrder) InProgress() bool {
	return o.BaseLotBudget > 0 && o.AdjustedQuoteLotBudget > 0 && o.MatchLimit > 0 && !o.ShouldTerminate
}

// ProcessMatch depletes the budgets by one match and decrements the
// match limit.
func (o *InflightOrder) ProcessMatch(matchedAdj quantity.AdjustedQuoteLots, matchedBase quantity.BaseLots) {
	if o.MatchLimit < 1 {
		return
	}
	o.BaseLotBudget -= matchedBase
	o.AdjustedQuoteLotBudget -= matchedAdj
	o.MatchedBaseLots += matchedBase
	o.MatchedAdjustedQuoteLots += matchedAdj
	o.MatchLimit--
}

// feeDenominatorBps is the fee rate's denominator (basis points out of
// 10_000).
const feeDenominatorBps = 10000

// ComputeFee rounds a fee up to the nearest adjusted quote lot:
// ceil(x * feeBps / 10_000). x*feeBps can exceed 64 bits, so the product
// and rounding addition are carried out with a 128-bit intermediate via
// math/bits, same as quantity.MulDiv128.
func ComputeFee(x quantity.AdjustedQuoteLots, feeBps uint64) quantity.AdjustedQuoteLots {
	hi, lo := bits.Mul64(uint64(x), feeBps)
	lo, carry := bits.Add64(lo, feeDenominatorBps-1, 0)
	hi, _ = bits.Add64(hi, 0, carry)
	q, _ := bits.Div64(hi, lo, feeDenominatorBps)
	return quantity.AdjustedQuoteLots(q)
}

// BudgetForBuys converts a requested quote-lot size (already multiplied
// by B) into the adjusted-quote-lot budget with the worst-case taker fee
// backed out: the result is
// sizeAdj / (1 + feeBps/10000), computed exactly as
// (sizeAdj * MAX) / (MAX + fee(MAX)). The divisor can need 65 bits when
// the fee rate is large, so the division falls back to math/big rather
// than the 64-bit-divisor-only quantity.MulDiv128. ok is false iff the
// result overflows 64 bits, in which case callers treat the budget as
// unbounded.
func BudgetForBuys(sizeAdj quantity.AdjustedQuoteLots, feeBps uint64) (quantity.AdjustedQuoteLots, bool) {
	feeAdjustment := uint64(ComputeFee(quantity.MaxAdjustedQuoteLots, feeBps))
	denom := new(big.Int).Add(maxU64Big(), new(big.Int).SetUint64(feeAdjustment))
	return mulDivBig(uint64(sizeAdj), ^uint64(0), denom)
}

// BudgetForSells is the sell-side counterpart: the result is
// sizeAdj / (1 - feeBps/10000), computed as
// (sizeAdj * MAX) / (MAX - fee(MAX)).
func BudgetForSells(sizeAdj quantity.AdjustedQuoteLots, feeBps uint64) (quantity.AdjustedQuoteLots, bool) {
	feeAdjustment := uint64(ComputeFee(quantity.MaxAdjustedQuoteLots, feeBps))
	denom := ^uint64(0) - feeAdjustment
	q, ok := quantity.MulDiv128(uint64(sizeAdj), ^uint64(0), denom)
	return quantity.AdjustedQuoteLots(q), ok
}

func maxU64Big() *big.Int {
	return new(big.Int).SetUint64(^uint64(0))
}

// mulDivBig computes (a*b)/denom exactly, reporting ok=false if the
// quotient doesn't fit in 64 bits.
func mulDivBig(a, b uint64, denom *big.Int) (quantity.AdjustedQuoteLots, bool) {
	num := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	q := new(big.Int).Quo(num, denom)
	if !q.IsUint64() {
		return 0, false
	}
	return quantity.AdjustedQuoteLots(q.Uint64()), true
}

// RoundAdjustedQuoteLotsUp rounds up to the nearest multiple of B.
func RoundAdjustedQuoteLotsUp(x quantity.AdjustedQuoteLots, b quantity.BaseLotsPerBaseUnit) quantity.AdjustedQuoteLots {
	return quantity.AdjustedQuoteLots((uint64(x) + uint64(b) - 1) / uint64(b) * uint64(b))
}

// RoundAdjustedQuoteLotsDown rounds down to the nearest multiple of B.
func RoundAdjustedQuoteLotsDown(x quantity.AdjustedQuoteLots, b quantity.BaseLotsPerBaseUnit) quantity.AdjustedQuoteLots {
	return quantity.AdjustedQuoteLots(uint64(x) / uint64(b) * uint64(b))
}
