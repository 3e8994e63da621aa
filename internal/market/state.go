// Package market implements the order book driver and market status
// lifecycle: a single instrument's books, trader seats, and fee
// accumulators, plus the operations (place, reduce, cancel, claim,
// collect fees) that mutate them.
package market

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"phoenix/internal/book"
	"phoenix/internal/events"
	"phoenix/internal/quantity"
	"phoenix/internal/trader"
)

var (
	ErrUninitialized       = errors.New("market: uninitialized")
	ErrSequenceExhausted   = errors.New("market: order sequence number exhausted")
	ErrInvalidOrderParams  = errors.New("market: invalid order parameters")
	ErrOrderExpired        = errors.New("market: order already expired")
	ErrPostOnlyCrosses     = errors.New("market: post-only order crosses the book and was rejected")
	ErrSelfTradeAbort      = errors.New("market: self trade aborted")
	ErrIOCFillNotMet       = errors.New("market: IOC order did not meet minimum fill requirements")
	ErrInsufficientDeposit = errors.New("market: insufficient deposited funds for order")
	ErrUnauthorizedReduce  = errors.New("market: order does not belong to trader")
	ErrSeatUnavailable     = errors.New("market: no free seat to register trader")
	ErrTransitionInvalid   = errors.New("market: invalid status transition")
	ErrEvictionFailed      = errors.New("market: book full and new order is not aggressive enough to evict")
	ErrInvalidSizeParams   = errors.New("market: (bids, asks, seats) capacity tuple is not an allowed size")
	errInsertFailed        = errors.New("market: failed to insert order into book")
)

// AllowedSizeParams is the closed set of (bidsCapacity, asksCapacity,
// traderCapacity) tuples a persisted market buffer is permitted to
// declare (spec §9). It is enforced by ValidateSizeParams, which a host
// wiring the engine to durable storage calls at account-initialization
// time — see cmd/main.go and DESIGN.md for why this lives outside
// New/SetInitialParams.
var AllowedSizeParams = map[[3]int]bool{
	{512, 512, 128}:    true,
	{512, 512, 1025}:   true,
	{512, 512, 1153}:   true,
	{1024, 1024, 128}:  true,
	{1024, 1024, 2049}: true,
	{1024, 1024, 2177}: true,
	{2048, 2048, 128}:  true,
	{2048, 2048, 4097}: true,
	{2048, 2048, 4225}: true,
	{4096, 4096, 128}:  true,
	{4096, 4096, 8193}: true,
	{4096, 4096, 8321}: true,
}

// ValidateSizeParams rejects any (bidsCapacity, asksCapacity,
// traderCapacity) tuple outside the closed set in AllowedSizeParams.
func ValidateSizeParams(bidsCapacity, asksCapacity, traderCapacity int) error {
	if !AllowedSizeParams[[3]int{bidsCapacity, asksCapacity, traderCapacity}] {
		return ErrInvalidSizeParams
	}
	return nil
}

// Clock abstracts the current slot and unix timestamp, the two clocks
// orders can expire against. Production callers wire this to whatever
// tracks network time; tests supply a fixed or stepped fake.
type Clock interface {
	Now() (slot uint64, unixTimestamp uint64)
}

// Params are the market's immutable sizing and economics, fixed once at
// initialization.
type Params struct {
	TickSizeInQuoteLotsPerBaseUnit quantity.QuoteLotsPerBaseUnitPerTick
	BaseLotsPerBaseUnit            quantity.BaseLotsPerBaseUnit
	TakerFeeBps                    uint64
	BidsCapacity                   int
	AsksCapacity                   int
	TraderCapacity                 int

	// BaseLotSizeAtoms and QuoteLotSizeAtoms convert an external token
	// account balance (atoms, the vault's native integer unit) into
	// lots for PlaceOrder's solvency pre-check. Zero means no
	// conversion is configured, so an account balance passed to
	// PlaceOrder contributes nothing beyond the trader's free balance.
	BaseLotSizeAtoms  uint64
	QuoteLotSizeAtoms uint64
}

// Market is one instrument's order book state: two price-time-priority
// books, a trader table, and the fee/sequence-number bookkeeping that
// ties them together. A Market is safe for concurrent use; every
// exported operation takes the lock for its duration.
type Market struct {
	mu sync.Mutex

	params Params
	status Status

	sequenceNumber uint64

	collectedQuoteLotFees  quantity.QuoteLots
	unclaimedQuoteLotFees  quantity.QuoteLots

	bids    *book.Book
	asks    *book.Book
	traders *trader.Table

	recorder events.Recorder
	clock    Clock
}

// New builds an uninitialized market of the given capacities. Callers
// must call SetInitialParams before any order can be placed.
func New(params Params, recorder events.Recorder, clock Clock) *Market {
	return &Market{
		params:   params,
		status:   Uninitialized,
		bids:     book.New(book.Bid, params.BidsCapacity),
		asks:     book.New(book.Ask, params.AsksCapacity),
		traders:  trader.New(params.TraderCapacity),
		recorder: recorder,
		clock:    clock,
	}
}

// SetInitialParams fixes the tick size and lot size and activates the
// sequence number. This may only run once — the sequence number
// starting at zero is what PlaceOrder checks to detect an uninitialized
// market.
func (m *Market) SetInitialParams(tickSize quantity.QuoteLotsPerBaseUnitPerTick, baseLotsPerBaseUnit quantity.BaseLotsPerBaseUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sequenceNumber != 0 {
		return errors.New("market: initial params already set")
	}
	if uint64(tickSize)%uint64(baseLotsPerBaseUnit) != 0 {
		return ErrInvalidOrderParams
	}
	m.params.TickSizeInQuoteLotsPerBaseUnit = tickSize
	m.params.BaseLotsPerBaseUnit = baseLotsPerBaseUnit
	m.sequenceNumber = 1
	m.status = PostOnly
	return nil
}

// SetStatus validates and applies a status transition.
func (m *Market) SetStatus(next Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.status.ValidTransition(next) {
		return ErrTransitionInvalid
	}
	m.status = next
	return nil
}

func (m *Market) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Market) SequenceNumber() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sequenceNumber
}

func (m *Market) CollectedFees() quantity.QuoteLots {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collectedQuoteLotFees
}

func (m *Market) UnclaimedFees() quantity.QuoteLots {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unclaimedQuoteLotFees
}

func (m *Market) bookFor(side book.Side) *book.Book {
	if side == book.Bid {
		return m.bids
	}
	return m.asks
}

func (m *Market) record(e events.Event) {
	if m.recorder != nil {
		m.recorder.Record(e)
	}
}

// CollectFees sweeps the unclaimed fee accumulator into the collected
// total and returns the amount collected.
func (m *Market) CollectFees() quantity.QuoteLots {
	m.mu.Lock()
	defer m.mu.Unlock()
	fees := m.unclaimedQuoteLotFees
	m.collectedQuoteLotFees += fees
	m.unclaimedQuoteLotFees = 0
	m.record(events.Fee(fees))
	return fees
}

func (m *Market) warnf(format string, args ...any) {
	log.Warn().Msgf(format, args...)
}
