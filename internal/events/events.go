// Package events implements the event journal: a push-only sink of
// matching-engine mutations, stamped with a monotonically increasing
// in-batch index by the recorder. The engine never assumes events are
// durable until the caller flushes the journal.
package events

import (
	"phoenix/internal/quantity"
	"phoenix/internal/trader"
)

// Kind identifies an event's variant.
type Kind int

const (
	KindHeader Kind = iota
	KindPlace
	KindFill
	KindReduce
	KindEvict
	KindExpiredOrder
	KindFillSummary
	KindFee
	KindTimeInForce
)

// Event is a single journal entry. Only the fields relevant to Kind are
// populated; keeping it a flat struct rather than a tagged union is
// friendlier to a push-only Go sink than a type switch at every call
// site.
type Event struct {
	Index Uint16Index
	Kind  Kind

	// Fill, Evict, ExpiredOrder
	MakerID trader.ID

	// Place, Fill, Reduce, Evict, ExpiredOrder, TimeInForce (TimeInForce
	// sets OrderSequenceNumber only)
	OrderSequenceNumber uint64
	PriceInTicks        quantity.Ticks

	// Place (ClientOrderID also FillSummary)
	BaseLotsPlaced quantity.BaseLots
	ClientOrderID  quantity.ClientOrderID

	// Fill (BaseLotsRemaining also Reduce)
	BaseLotsFilled    quantity.BaseLots
	BaseLotsRemaining quantity.BaseLots

	// Reduce, ExpiredOrder
	BaseLotsRemoved quantity.BaseLots

	// Evict
	BaseLotsEvicted quantity.BaseLots

	// FillSummary
	TotalBaseLotsFilled  quantity.BaseLots
	TotalQuoteLotsFilled quantity.QuoteLots
	TotalFeeInQuoteLots  quantity.QuoteLots

	// Fee
	FeesCollectedInQuoteLots quantity.QuoteLots

	// TimeInForce
	LastValidSlot                   uint64
	LastValidUnixTimestampInSeconds uint64
}

// Uint16Index is the in-batch event index, a 16-bit sequence per
// audit-log batch.
type Uint16Index = uint16

func Place(orderSeq uint64, price quantity.Ticks, baseLotsPlaced quantity.BaseLots, clientOrderID quantity.ClientOrderID) Event {
	return Event{Kind: KindPlace, OrderSequenceNumber: orderSeq, PriceInTicks: price, BaseLotsPlaced: baseLotsPlaced, ClientOrderID: clientOrderID}
}

func Fill(maker trader.ID, orderSeq uint64, price quantity.Ticks, filled, remaining quantity.BaseLots) Event {
	return Event{Kind: KindFill, MakerID: maker, OrderSequenceNumber: orderSeq, PriceInTicks: price, BaseLotsFilled: filled, BaseLotsRemaining: remaining}
}

func Reduce(orderSeq uint64, price quantity.Ticks, removed, remaining quantity.BaseLots) Event {
	return Event{Kind: KindReduce, OrderSequenceNumber: orderSeq, PriceInTicks: price, BaseLotsRemoved: removed, BaseLotsRemaining: remaining}
}

func Evict(maker trader.ID, orderSeq uint64, price quantity.Ticks, evicted quantity.BaseLots) Event {
	return Event{Kind: KindEvict, MakerID: maker, OrderSequenceNumber: orderSeq, PriceInTicks: price, BaseLotsEvicted: evicted}
}

func ExpiredOrder(maker trader.ID, orderSeq uint64, price quantity.Ticks, removed quantity.BaseLots) Event {
	return Event{Kind: KindExpiredOrder, MakerID: maker, OrderSequenceNumber: orderSeq, PriceInTicks: price, BaseLotsRemoved: removed}
}

func FillSummary(clientOrderID quantity.ClientOrderID, totalBase quantity.BaseLots, totalQuote quantity.QuoteLots, fee quantity.QuoteLots) Event {
	return Event{Kind: KindFillSummary, ClientOrderID: clientOrderID, TotalBaseLotsFilled: totalBase, TotalQuoteLotsFilled: totalQuote, TotalFeeInQuoteLots: fee}
}

func Fee(collected quantity.QuoteLots) Event {
	return Event{Kind: KindFee, FeesCollectedInQuoteLots: collected}
}

func TimeInForce(orderSeq, lastValidSlot, lastValidUnixTS uint64) Event {
	return Event{Kind: KindTimeInForce, OrderSequenceNumber: orderSeq, LastValidSlot: lastValidSlot, LastValidUnixTimestampInSeconds: lastValidUnixTS}
}

// Recorder is the caller-provided push-only sink. Record is called once
// per event in causal order: Place precedes any later Reduce/Fill for
// the same order, and FillSummary is emitted after all Fill events for a
// single placement.
type Recorder interface {
	Record(Event)
}

// Journal is the reference in-process Recorder: an append-only slice
// that stamps each event with a strictly increasing in-batch index, the
// way a caller assembling one audit-log batch per instruction would.
type Journal struct {
	events []Event
	next   Uint16Index
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Record(e Event) {
	e.Index = j.next
	j.next++
	j.events = append(j.events, e)
}

// Events returns the events recorded so far, in causal order.
func (j *Journal) Events() []Event {
	return j.events
}

// Reset clears the journal, starting a fresh batch at index 0. Callers
// do this once per flushed instruction.
func (j *Journal) Reset() {
	j.events = nil
	j.next = 0
}
