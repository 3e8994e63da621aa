// Package trader implements the trader table: a fixed-capacity ordered
// map from a trader's opaque id to its TraderState, with stable indices
// that resting orders embed directly (an arena-plus-index discipline
// that avoids storing the full trader id on every resting order).
package trader

import (
	"phoenix/internal/quantity"

	"github.com/tidwall/btree"
)

// ID is an opaque 32-byte trader identifier (a wallet address, account id,
// or similar — the engine never interprets it).
type ID [32]byte

// SentinelIndex marks an IOC order placed by a trader who has not
// registered a seat.
const SentinelIndex uint32 = 1<<32 - 1

// State holds one trader's locked and free balances on both currencies.
// A zero State (all four fields zero) is eligible for eviction from the
// table.
type State struct {
	QuoteLotsLocked quantity.QuoteLots
	QuoteLotsFree   quantity.QuoteLots
	BaseLotsLocked  quantity.BaseLots
	BaseLotsFree    quantity.BaseLots
}

// IsZero reports whether all four balances are zero.
func (s State) IsZero() bool {
	return s.QuoteLotsLocked == 0 && s.QuoteLotsFree == 0 && s.BaseLotsLocked == 0 && s.BaseLotsFree == 0
}

func (s *State) LockQuote(n quantity.QuoteLots)   { s.QuoteLotsLocked += n }
func (s *State) LockBase(n quantity.BaseLots)     { s.BaseLotsLocked += n }
func (s *State) UnlockQuote(n quantity.QuoteLots) { s.QuoteLotsLocked -= n; s.QuoteLotsFree += n }
func (s *State) UnlockBase(n quantity.BaseLots)   { s.BaseLotsLocked -= n; s.BaseLotsFree += n }
func (s *State) UseFreeQuote(n quantity.QuoteLots) { s.QuoteLotsFree -= n }
func (s *State) UseFreeBase(n quantity.BaseLots)   { s.BaseLotsFree -= n }
func (s *State) DepositFreeQuote(n quantity.QuoteLots) { s.QuoteLotsFree += n }
func (s *State) DepositFreeBase(n quantity.BaseLots)   { s.BaseLotsFree += n }

// ProcessLimitSell applies a fill against a resting ask: the maker's
// locked base shrinks by what was taken, and it receives quote in free.
func (s *State) ProcessLimitSell(baseTaken quantity.BaseLots, quoteReceived quantity.QuoteLots) {
	s.BaseLotsLocked -= baseTaken
	s.QuoteLotsFree += quoteReceived
}

// ProcessLimitBuy applies a fill against a resting bid: the maker's
// locked quote shrinks by what was taken, and it receives base in free.
func (s *State) ProcessLimitBuy(quoteTaken quantity.QuoteLots, baseReceived quantity.BaseLots) {
	s.QuoteLotsLocked -= quoteTaken
	s.BaseLotsFree += baseReceived
}

type entry struct {
	id    ID
	index uint32
	state State
}

// Table is the fixed-capacity trader table. Indices are stable for the
// life of an entry: once assigned, an index is only recycled after the
// trader is fully evicted via TryRemoveIfEmpty.
type Table struct {
	capacity int
	byID     *btree.BTreeG[*entry]
	byIndex  []*entry // index -> entry; nil once removed
	free     []uint32 // recycled indices, LIFO
}

func New(capacity int) *Table {
	less := func(a, b *entry) bool {
		for i := range a.id {
			if a.id[i] != b.id[i] {
				return a.id[i] < b.id[i]
			}
		}
		return false
	}
	return &Table{
		capacity: capacity,
		byID:     btree.NewBTreeG(less),
		byIndex:  make([]*entry, 0, capacity),
	}
}

func (t *Table) Len() int      { return t.byID.Len() }
func (t *Table) Capacity() int { return t.capacity }

// Index returns the stable index for an already-registered trader.
func (t *Table) Index(id ID) (uint32, bool) {
	e, ok := t.byID.Get(&entry{id: id})
	if !ok {
		return 0, false
	}
	return e.index, true
}

// IDFromIndex recovers the trader id that owns an index. Panics if the
// index is unallocated — callers only ever pass indices embedded in
// resting orders or returned by GetOrRegister, both of which are
// guaranteed live.
func (t *Table) IDFromIndex(index uint32) ID {
	e := t.byIndex[index]
	if e == nil {
		panic("trader: index references an evicted trader")
	}
	return e.id
}

// State returns a copy of the trader's balances by id.
func (t *Table) State(id ID) (State, bool) {
	e, ok := t.byID.Get(&entry{id: id})
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// StateByIndex returns a mutable pointer to the trader's balances.
func (t *Table) StateByIndex(index uint32) *State {
	e := t.byIndex[index]
	if e == nil {
		panic("trader: index references an evicted trader")
	}
	return &e.state
}

// GetOrRegister returns the existing index for id, or inserts a
// zero-balance entry and returns its new index. ok is false iff the
// table is full and id was not already present.
func (t *Table) GetOrRegister(id ID) (index uint32, ok bool) {
	if e, found := t.byID.Get(&entry{id: id}); found {
		return e.index, true
	}
	if t.byID.Len() >= t.capacity {
		return 0, false
	}
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.byIndex))
		t.byIndex = append(t.byIndex, nil)
	}
	e := &entry{id: id, index: idx}
	t.byIndex[idx] = e
	t.byID.Set(e)
	return idx, true
}

// Ascend calls fn for every registered trader in id order, stopping
// early if fn returns false. Used by the registered-traders query.
func (t *Table) Ascend(fn func(id ID, state State) bool) {
	t.byID.Scan(func(e *entry) bool {
		return fn(e.id, e.state)
	})
}

// TryRemoveIfEmpty removes the trader iff its current state is the zero
// state, recycling its index. Returns whether it was removed.
func (t *Table) TryRemoveIfEmpty(id ID) bool {
	e, ok := t.byID.Get(&entry{id: id})
	if !ok || !e.state.IsZero() {
		return false
	}
	t.byID.Delete(&entry{id: id})
	t.byIndex[e.index] = nil
	t.free = append(t.free, e.index)
	return true
}

// TryRemoveIndexIfEmpty is TryRemoveIfEmpty addressed by index.
func (t *Table) TryRemoveIndexIfEmpty(index uint32) bool {
	e := t.byIndex[index]
	if e == nil || !e.state.IsZero() {
		return false
	}
	t.byID.Delete(&entry{id: e.id})
	t.byIndex[index] = nil
	t.free = append(t.free, index)
	return true
}
