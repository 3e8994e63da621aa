package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"phoenix/internal/quantity"
)

func TestInProgress(t *testing.T) {
	o := &InflightOrder{BaseLotBudget: 1, AdjustedQuoteLotBudget: 1, MatchLimit: 1}
	assert.True(t, o.InProgress())

	zeroBase := *o
	zeroBase.BaseLotBudget = 0
	assert.False(t, zeroBase.InProgress())

	zeroQuote := *o
	zeroQuote.AdjustedQuoteLotBudget = 0
	assert.False(t, zeroQuote.InProgress())

	zeroLimit := *o
	zeroLimit.MatchLimit = 0
	assert.False(t, zeroLimit.InProgress())

	terminated := *o
	terminated.ShouldTerminate = true
	assert.False(t, terminated.InProgress())
}

func TestProcessMatch(t *testing.T) {
	o := &InflightOrder{BaseLotBudget: 10, AdjustedQuoteLotBudget: 100, MatchLimit: 3}
	o.ProcessMatch(40, 4)

	assert.Equal(t, quantity.BaseLots(6), o.BaseLotBudget)
	assert.Equal(t, quantity.AdjustedQuoteLots(60), o.AdjustedQuoteLotBudget)
	assert.Equal(t, quantity.BaseLots(4), o.MatchedBaseLots)
	assert.Equal(t, quantity.AdjustedQuoteLots(40), o.MatchedAdjustedQuoteLots)
	assert.Equal(t, uint64(2), o.MatchLimit)
}

func TestProcessMatchNoopWhenLimitExhausted(t *testing.T) {
	o := &InflightOrder{BaseLotBudget: 10, AdjustedQuoteLotBudget: 100, MatchLimit: 0}
	o.ProcessMatch(40, 4)
	assert.Equal(t, quantity.BaseLots(10), o.BaseLotBudget)
	assert.Equal(t, uint64(0), o.MatchLimit)
}

func TestComputeFeeRoundsUp(t *testing.T) {
	// 100 lots at 10bps = 0.1, rounds up to 1.
	assert.Equal(t, quantity.AdjustedQuoteLots(1), ComputeFee(100, 10))
	// Exact multiple: no rounding needed.
	assert.Equal(t, quantity.AdjustedQuoteLots(10000), ComputeFee(10000, 10000))
	// Zero fee rate never charges.
	assert.Equal(t, quantity.AdjustedQuoteLots(0), ComputeFee(100000, 0))
}

func TestRoundAdjustedQuoteLotsUpDown(t *testing.T) {
	assert.Equal(t, quantity.AdjustedQuoteLots(10), RoundAdjustedQuoteLotsUp(7, 5))
	assert.Equal(t, quantity.AdjustedQuoteLots(10), RoundAdjustedQuoteLotsUp(10, 5))
	assert.Equal(t, quantity.AdjustedQuoteLots(5), RoundAdjustedQuoteLotsDown(7, 5))
	assert.Equal(t, quantity.AdjustedQuoteLots(10), RoundAdjustedQuoteLotsDown(10, 5))
}

func TestBudgetForBuysZeroFee(t *testing.T) {
	budget, ok := BudgetForBuys(1000, 0)
	assert.True(t, ok)
	assert.Equal(t, quantity.AdjustedQuoteLots(1000), budget)
}

func TestBudgetForSellsZeroFee(t *testing.T) {
	budget, ok := BudgetForSells(1000, 0)
	assert.True(t, ok)
	assert.Equal(t, quantity.AdjustedQuoteLots(1000), budget)
}

func TestBudgetForBuysWithFeeIsSmallerThanRequested(t *testing.T) {
	// With a positive taker fee, the pre-fee budget must be smaller than
	// the requested post-fee spend, since fees are added on top at match
	// time.
	budget, ok := BudgetForBuys(1_000_000, 30)
	assert.True(t, ok)
	assert.Less(t, uint64(budget), uint64(1_000_000))
}

func TestBudgetForSellsWithFeeIsLargerThanRequested(t *testing.T) {
	budget, ok := BudgetForSells(1_000_000, 30)
	assert.True(t, ok)
	assert.Greater(t, uint64(budget), uint64(1_000_000))
}
