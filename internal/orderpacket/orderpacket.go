// Package orderpacket implements the order-packet protocol: the three
// packet variants (PostOnly, Limit, ImmediateOrCancel), their metadata
// predicates, and a fixed-header binary wire codec.
package orderpacket

import (
	"phoenix/internal/book"
	"phoenix/internal/quantity"
)

// SelfTradeBehavior controls what happens when a taker crosses its own
// resting order.
type SelfTradeBehavior int

const (
	Abort SelfTradeBehavior = iota
	CancelProvide
	DecrementTake
)

// Kind identifies which packet variant is in play.
type Kind int

const (
	KindPostOnly Kind = iota
	KindLimit
	KindImmediateOrCancel
)

// Packet is the tagged union of order-packet variants. Every case
// carries Side, ClientOrderID, UseOnlyDepositedFunds, and the two
// optional expiry fields; Kind-specific fields are zero when unused.
type Packet struct {
	Kind Kind
	Side book.Side

	ClientOrderID         quantity.ClientOrderID
	UseOnlyDepositedFunds bool
	LastValidSlot         *uint64
	LastValidUnixTS       *uint64

	// PostOnly
	PriceInTicks    quantity.Ticks
	NumBaseLots     quantity.BaseLots
	RejectPostOnly  bool

	// Limit (also uses PriceInTicks/NumBaseLots above)
	SelfTradeBehavior SelfTradeBehavior
	MatchLimit        *uint64

	// ImmediateOrCancel: PriceInTicks above is optional (nil = market order)
	IOCPriceSet         bool
	NumQuoteLots        quantity.QuoteLots
	MinBaseLotsToFill   quantity.BaseLots
	MinQuoteLotsToFill  quantity.QuoteLots
}

// IsIOC reports whether the packet is an ImmediateOrCancel variant.
func (p *Packet) IsIOC() bool { return p.Kind == KindImmediateOrCancel }

// IsPostOnly reports whether the packet is a PostOnly variant.
func (p *Packet) IsPostOnly() bool { return p.Kind == KindPostOnly }

// IsFOK reports whether an IOC packet is Fill-or-Kill: either axis'
// minimum-fill requirement exactly equals its requested size.
func (p *Packet) IsFOK() bool {
	if p.Kind != KindImmediateOrCancel {
		return false
	}
	return (p.NumBaseLots > 0 && p.NumBaseLots == p.MinBaseLotsToFill) ||
		(p.NumQuoteLots > 0 && p.NumQuoteLots == p.MinQuoteLotsToFill)
}

// IsTakeOnly is an alias for IsIOC.
func (p *Packet) IsTakeOnly() bool { return p.IsIOC() }

// NoDepositOrWithdrawal mirrors UseOnlyDepositedFunds.
func (p *Packet) NoDepositOrWithdrawal() bool { return p.UseOnlyDepositedFunds }

// EffectiveMatchLimit returns MatchLimit if set, else "no limit"
// represented as the largest practical match count.
func (p *Packet) EffectiveMatchLimit() uint64 {
	if p.MatchLimit != nil {
		return *p.MatchLimit
	}
	return 1<<64 - 1
}

// BaseLotBudget returns the inflight order's starting base-lot budget:
// NumBaseLots if nonzero, else unbounded.
func (p *Packet) BaseLotBudget() quantity.BaseLots {
	if p.NumBaseLots > 0 {
		return p.NumBaseLots
	}
	return quantity.MaxBaseLots
}

// QuoteLotBudget returns the packet's requested quote-lot size, or
// ok=false if the axis is unset.
func (p *Packet) QuoteLotBudget() (quantity.QuoteLots, bool) {
	if p.Kind == KindImmediateOrCancel && p.NumQuoteLots > 0 {
		return p.NumQuoteLots, true
	}
	return 0, false
}

// IsExpired reports whether either expiry field is set and in the past
// relative to the given clock reading.
func (p *Packet) IsExpired(currentSlot, currentUnixTS uint64) bool {
	if p.LastValidSlot != nil && *p.LastValidSlot != 0 && *p.LastValidSlot < currentSlot {
		return true
	}
	if p.LastValidUnixTS != nil && *p.LastValidUnixTS != 0 && *p.LastValidUnixTS < currentUnixTS {
		return true
	}
	return false
}

func (p *Packet) lastValidSlotRaw() uint64 {
	if p.LastValidSlot == nil {
		return 0
	}
	return *p.LastValidSlot
}

func (p *Packet) lastValidUnixTSRaw() uint64 {
	if p.LastValidUnixTS == nil {
		return 0
	}
	return *p.LastValidUnixTS
}

// NewPostOnly builds a PostOnly packet.
func NewPostOnly(side book.Side, price quantity.Ticks, numBaseLots quantity.BaseLots, clientOrderID quantity.ClientOrderID, rejectPostOnly, useOnlyDeposited bool) *Packet {
	return &Packet{
		Kind:                  KindPostOnly,
		Side:                  side,
		PriceInTicks:          price,
		NumBaseLots:           numBaseLots,
		ClientOrderID:         clientOrderID,
		RejectPostOnly:        rejectPostOnly,
		UseOnlyDepositedFunds: useOnlyDeposited,
	}
}

// NewLimit builds a Limit packet.
func NewLimit(side book.Side, price quantity.Ticks, numBaseLots quantity.BaseLots, selfTrade SelfTradeBehavior, clientOrderID quantity.ClientOrderID, useOnlyDeposited bool) *Packet {
	return &Packet{
		Kind:                  KindLimit,
		Side:                  side,
		PriceInTicks:          price,
		NumBaseLots:           numBaseLots,
		SelfTradeBehavior:     selfTrade,
		ClientOrderID:         clientOrderID,
		UseOnlyDepositedFunds: useOnlyDeposited,
	}
}

// NewIOC builds an ImmediateOrCancel packet. priceInTicks == nil means an
// unbounded market order.
func NewIOC(side book.Side, priceInTicks *quantity.Ticks, numBaseLots quantity.BaseLots, numQuoteLots quantity.QuoteLots, minBase quantity.BaseLots, minQuote quantity.QuoteLots, selfTrade SelfTradeBehavior, clientOrderID quantity.ClientOrderID, useOnlyDeposited bool) *Packet {
	p := &Packet{
		Kind:                  KindImmediateOrCancel,
		Side:                  side,
		NumBaseLots:           numBaseLots,
		NumQuoteLots:          numQuoteLots,
		MinBaseLotsToFill:     minBase,
		MinQuoteLotsToFill:    minQuote,
		SelfTradeBehavior:     selfTrade,
		ClientOrderID:         clientOrderID,
		UseOnlyDepositedFunds: useOnlyDeposited,
	}
	if priceInTicks != nil {
		p.IOCPriceSet = true
		p.PriceInTicks = *priceInTicks
	} else if side == book.Bid {
		p.PriceInTicks = quantity.MaxTicks
	} else {
		p.PriceInTicks = 0
	}
	return p
}

// NewFOKBuy builds a Fill-or-Kill buy: num_base_lots == min_base_lots_to_fill.
// Both expiry fields are left unset (nil), matching every caller of this
// convenience constructor.
func NewFOKBuy(price quantity.Ticks, numBaseLots quantity.BaseLots, selfTrade SelfTradeBehavior, clientOrderID quantity.ClientOrderID) *Packet {
	return NewIOC(book.Bid, &price, numBaseLots, 0, numBaseLots, 0, selfTrade, clientOrderID, false)
}

// NewFOKSell is the sell-side counterpart of NewFOKBuy.
func NewFOKSell(price quantity.Ticks, numBaseLots quantity.BaseLots, selfTrade SelfTradeBehavior, clientOrderID quantity.ClientOrderID) *Packet {
	return NewIOC(book.Ask, &price, numBaseLots, 0, numBaseLots, 0, selfTrade, clientOrderID, false)
}
