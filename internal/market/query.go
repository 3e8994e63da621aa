package market

import (
	"phoenix/internal/book"
	"phoenix/internal/quantity"
	"phoenix/internal/trader"
)

// BookOrder is one resting order as exposed by Book().
type BookOrder struct {
	OrderID                         book.OrderId
	TraderID                        trader.ID
	NumBaseLots                     quantity.BaseLots
	LastValidSlot                   uint64
	LastValidUnixTimestampInSeconds uint64
}

// BookSnapshot is a read-only view of every resting order on both sides,
// in price-time priority (most aggressive first).
type BookSnapshot struct {
	Bids []BookOrder
	Asks []BookOrder
}

// Book returns a snapshot of every resting order on both sides of the
// book.
func (m *Market) Book() BookSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return BookSnapshot{
		Bids: m.snapshotSide(m.bids),
		Asks: m.snapshotSide(m.asks),
	}
}

func (m *Market) snapshotSide(b *book.Book) []BookOrder {
	out := make([]BookOrder, 0, b.Len())
	b.Ascend(func(id book.OrderId, order book.RestingOrder) bool {
		out = append(out, BookOrder{
			OrderID:                         id,
			TraderID:                        m.traders.IDFromIndex(order.TraderIndex),
			NumBaseLots:                     order.NumBaseLots,
			LastValidSlot:                   order.LastValidSlot,
			LastValidUnixTimestampInSeconds: order.LastValidUnixTimestampInSeconds,
		})
		return true
	})
	return out
}

// LadderLevel is one aggregated price level: every resting order at
// PriceInTicks on one side, summed into a single size.
type LadderLevel struct {
	PriceInTicks   quantity.Ticks
	SizeInBaseLots quantity.BaseLots
}

// Ladder is the book collapsed to at most levels distinct prices per
// side, each with its total resting size — the summary view a market
// data feed shows instead of every individual order.
type Ladder struct {
	Bids []LadderLevel
	Asks []LadderLevel
}

// Ladder returns the book collapsed to at most levels price levels per
// side.
func (m *Market) Ladder(levels uint64) Ladder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Ladder{
		Bids: ladderForSide(m.bids, levels),
		Asks: ladderForSide(m.asks, levels),
	}
}

func ladderForSide(b *book.Book, levels uint64) []LadderLevel {
	out := make([]LadderLevel, 0, levels)
	b.Ascend(func(id book.OrderId, order book.RestingOrder) bool {
		if n := len(out); n > 0 && out[n-1].PriceInTicks == id.PriceInTicks {
			out[n-1].SizeInBaseLots += order.NumBaseLots
			return true
		}
		if uint64(len(out)) >= levels {
			return false
		}
		out = append(out, LadderLevel{PriceInTicks: id.PriceInTicks, SizeInBaseLots: order.NumBaseLots})
		return true
	})
	return out
}

// RegisteredTrader pairs a trader's id with its current balances.
type RegisteredTrader struct {
	TraderID trader.ID
	State    trader.State
}

// RegisteredTraders returns every trader holding a seat in the market,
// in id order.
func (m *Market) RegisteredTraders() []RegisteredTrader {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RegisteredTrader, 0, m.traders.Len())
	m.traders.Ascend(func(id trader.ID, state trader.State) bool {
		out = append(out, RegisteredTrader{TraderID: id, State: state})
		return true
	})
	return out
}
