// Package net carries the matching engine across a TCP wire: client
// requests (new/cancel/reduce/claim) in, execution reports and errors
// out, using a fixed-header binary encoding with the lot-and-tick
// domain replacing a float-quote/AssetType one.
package net

import (
	"encoding/binary"
	"errors"
	"fmt"

	"phoenix/internal/book"
	"phoenix/internal/events"
	"phoenix/internal/market"
	"phoenix/internal/orderpacket"
	"phoenix/internal/quantity"
	"phoenix/internal/trader"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	ReduceOrder
	ClaimFunds
	GetBook
	GetRegisteredTraders
	GetLadder
)

// ReportMessageType is the first byte of every frame the server sends a
// client. Server sends ExecutionReport and ErrorReport frames; the query
// frames built by serializeBookSnapshot, serializeLadder and
// serializeRegisteredTraders are defined here, but Server does not handle
// GetBook, GetLadder or GetRegisteredTraders requests and answers them
// with an ErrorReport for ErrInvalidMessageType.
type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
	BookReport
	LadderReport
	RegisteredTradersReport
)

type Message interface {
	GetType() MessageType
	GetTraderID() trader.ID
}

// baseMessageHeaderLen is type (2 bytes) + trader id (32 bytes).
const baseMessageHeaderLen = 2 + 32

type BaseMessage struct {
	TypeOf   MessageType
	TraderID trader.ID
}

func (m BaseMessage) GetType() MessageType   { return m.TypeOf }
func (m BaseMessage) GetTraderID() trader.ID { return m.TraderID }

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < baseMessageHeaderLen {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	var traderID trader.ID
	copy(traderID[:], msg[2:34])
	base := BaseMessage{TypeOf: typeOf, TraderID: traderID}
	rest := msg[34:]

	switch typeOf {
	case Heartbeat:
		return base, nil
	case NewOrder:
		return parseNewOrder(base, rest)
	case CancelOrder:
		return parseCancelOrder(base, rest)
	case ReduceOrder:
		return parseReduceOrder(base, rest)
	case ClaimFunds:
		return parseClaimFunds(base, rest)
	case GetBook:
		return GetBookMessage{BaseMessage: base}, nil
	case GetRegisteredTraders:
		return GetRegisteredTradersMessage{BaseMessage: base}, nil
	case GetLadder:
		return parseGetLadder(base, rest)
	default:
		return nil, ErrInvalidMessageType
	}
}

// NewOrderMessage carries a fully-formed order packet, serialized with
// orderpacket's own wire codec, plus an optional token-account balance
// used by the solvency pre-check (absent means the sender has no vault
// balance to report, falling back to free-balance-only accounting).
type NewOrderMessage struct {
	BaseMessage
	Packet              *orderpacket.Packet
	AtomsInTokenAccount uint64
}

func parseNewOrder(base BaseMessage, msg []byte) (NewOrderMessage, error) {
	rest, atoms, err := decodeOptionalAtoms(msg)
	if err != nil {
		return NewOrderMessage{}, err
	}
	p, err := orderpacket.Decode(rest)
	if err != nil {
		return NewOrderMessage{}, err
	}
	return NewOrderMessage{BaseMessage: base, Packet: p, AtomsInTokenAccount: atoms}, nil
}

func decodeOptionalAtoms(b []byte) ([]byte, uint64, error) {
	if len(b) < 1 {
		return nil, 0, ErrMessageTooShort
	}
	present := b[0] != 0
	b = b[1:]
	if !present {
		return b, 0, nil
	}
	if len(b) < 8 {
		return nil, 0, ErrMessageTooShort
	}
	return b[8:], binary.BigEndian.Uint64(b[0:8]), nil
}

// CancelOrderMessage cancels a single resting order by id. The side is
// not carried on the wire — it's recovered from the order id's
// bit-inverted sequence number by book.SideFromSequence.
type CancelOrderMessage struct {
	BaseMessage
	OrderID    book.OrderId
	ClaimFunds bool
}

const cancelOrderBodyLen = 8 + 8 + 1

func parseCancelOrder(base BaseMessage, msg []byte) (CancelOrderMessage, error) {
	if len(msg) < cancelOrderBodyLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	return CancelOrderMessage{
		BaseMessage: base,
		OrderID: book.OrderId{
			PriceInTicks:   quantity.Ticks(binary.BigEndian.Uint64(msg[0:8])),
			SequenceNumber: binary.BigEndian.Uint64(msg[8:16]),
		},
		ClaimFunds: msg[16] != 0,
	}, nil
}

// ReduceOrderMessage shrinks (or, with Size nil, fully cancels) a
// single resting order.
type ReduceOrderMessage struct {
	BaseMessage
	OrderID    book.OrderId
	Size       *quantity.BaseLots
	ClaimFunds bool
}

func parseReduceOrder(base BaseMessage, msg []byte) (ReduceOrderMessage, error) {
	if len(msg) < 16+1 {
		return ReduceOrderMessage{}, ErrMessageTooShort
	}
	orderID := book.OrderId{
		PriceInTicks:   quantity.Ticks(binary.BigEndian.Uint64(msg[0:8])),
		SequenceNumber: binary.BigEndian.Uint64(msg[8:16]),
	}
	rest, size, err := decodeOptionalBaseLots(msg[16:])
	if err != nil {
		return ReduceOrderMessage{}, err
	}
	if len(rest) < 1 {
		return ReduceOrderMessage{}, ErrMessageTooShort
	}
	return ReduceOrderMessage{BaseMessage: base, OrderID: orderID, Size: size, ClaimFunds: rest[0] != 0}, nil
}

// ClaimFundsMessage withdraws some or all of the trader's free balance.
type ClaimFundsMessage struct {
	BaseMessage
	NumQuoteLots      *quantity.QuoteLots
	NumBaseLots       *quantity.BaseLots
	AllowSeatEviction bool
}

func parseClaimFunds(base BaseMessage, msg []byte) (ClaimFundsMessage, error) {
	rest, quote, err := decodeOptionalQuoteLots(msg)
	if err != nil {
		return ClaimFundsMessage{}, err
	}
	rest, base2, err := decodeOptionalBaseLots(rest)
	if err != nil {
		return ClaimFundsMessage{}, err
	}
	if len(rest) < 1 {
		return ClaimFundsMessage{}, ErrMessageTooShort
	}
	return ClaimFundsMessage{BaseMessage: base, NumQuoteLots: quote, NumBaseLots: base2, AllowSeatEviction: rest[0] != 0}, nil
}

// GetBookMessage requests a snapshot of every resting order on both
// sides of the book.
type GetBookMessage struct{ BaseMessage }

// GetRegisteredTradersMessage requests every trader holding a seat in
// the market.
type GetRegisteredTradersMessage struct{ BaseMessage }

// GetLadderMessage requests the book collapsed to at most Levels price
// levels per side.
type GetLadderMessage struct {
	BaseMessage
	Levels uint64
}

func parseGetLadder(base BaseMessage, msg []byte) (GetLadderMessage, error) {
	if len(msg) < 8 {
		return GetLadderMessage{}, ErrMessageTooShort
	}
	return GetLadderMessage{BaseMessage: base, Levels: binary.BigEndian.Uint64(msg[0:8])}, nil
}

// bookOrderWireLen is order id (16) + trader id (32) + size (8) + the
// two expiry fields (8 + 8).
const bookOrderWireLen = 8 + 8 + 32 + 8 + 8 + 8

func putBookOrder(buf []byte, o market.BookOrder) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(o.OrderID.PriceInTicks))
	binary.BigEndian.PutUint64(buf[8:16], o.OrderID.SequenceNumber)
	copy(buf[16:48], o.TraderID[:])
	binary.BigEndian.PutUint64(buf[48:56], uint64(o.NumBaseLots))
	binary.BigEndian.PutUint64(buf[56:64], o.LastValidSlot)
	binary.BigEndian.PutUint64(buf[64:72], o.LastValidUnixTimestampInSeconds)
}

// serializeBookSnapshot encodes a market.BookSnapshot as
// [tag][bidCount][askCount][bids...][asks...].
func serializeBookSnapshot(snap market.BookSnapshot) []byte {
	buf := make([]byte, 1+4+4+bookOrderWireLen*(len(snap.Bids)+len(snap.Asks)))
	buf[0] = byte(BookReport)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(snap.Bids)))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(snap.Asks)))
	off := 9
	for _, o := range snap.Bids {
		putBookOrder(buf[off:off+bookOrderWireLen], o)
		off += bookOrderWireLen
	}
	for _, o := range snap.Asks {
		putBookOrder(buf[off:off+bookOrderWireLen], o)
		off += bookOrderWireLen
	}
	return buf
}

// ladderLevelWireLen is price (8) + aggregated size (8).
const ladderLevelWireLen = 8 + 8

func putLadderLevel(buf []byte, l market.LadderLevel) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(l.PriceInTicks))
	binary.BigEndian.PutUint64(buf[8:16], uint64(l.SizeInBaseLots))
}

// serializeLadder encodes a market.Ladder as
// [tag][bidLevels][askLevels][bids...][asks...].
func serializeLadder(ladder market.Ladder) []byte {
	buf := make([]byte, 1+4+4+ladderLevelWireLen*(len(ladder.Bids)+len(ladder.Asks)))
	buf[0] = byte(LadderReport)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(ladder.Bids)))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(ladder.Asks)))
	off := 9
	for _, l := range ladder.Bids {
		putLadderLevel(buf[off:off+ladderLevelWireLen], l)
		off += ladderLevelWireLen
	}
	for _, l := range ladder.Asks {
		putLadderLevel(buf[off:off+ladderLevelWireLen], l)
		off += ladderLevelWireLen
	}
	return buf
}

// registeredTraderWireLen is trader id (32) + the four balance fields
// (8 each).
const registeredTraderWireLen = 32 + 8 + 8 + 8 + 8

// serializeRegisteredTraders encodes a []market.RegisteredTrader as
// [tag][count][traders...].
func serializeRegisteredTraders(traders []market.RegisteredTrader) []byte {
	buf := make([]byte, 1+4+registeredTraderWireLen*len(traders))
	buf[0] = byte(RegisteredTradersReport)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(traders)))
	off := 5
	for _, t := range traders {
		copy(buf[off:off+32], t.TraderID[:])
		binary.BigEndian.PutUint64(buf[off+32:off+40], uint64(t.State.QuoteLotsLocked))
		binary.BigEndian.PutUint64(buf[off+40:off+48], uint64(t.State.QuoteLotsFree))
		binary.BigEndian.PutUint64(buf[off+48:off+56], uint64(t.State.BaseLotsLocked))
		binary.BigEndian.PutUint64(buf[off+56:off+64], uint64(t.State.BaseLotsFree))
		off += registeredTraderWireLen
	}
	return buf
}

func decodeOptionalBaseLots(b []byte) ([]byte, *quantity.BaseLots, error) {
	if len(b) < 1 {
		return nil, nil, ErrMessageTooShort
	}
	present := b[0] != 0
	b = b[1:]
	if !present {
		return b, nil, nil
	}
	if len(b) < 8 {
		return nil, nil, ErrMessageTooShort
	}
	v := quantity.BaseLots(binary.BigEndian.Uint64(b[0:8]))
	return b[8:], &v, nil
}

func decodeOptionalQuoteLots(b []byte) ([]byte, *quantity.QuoteLots, error) {
	if len(b) < 1 {
		return nil, nil, ErrMessageTooShort
	}
	present := b[0] != 0
	b = b[1:]
	if !present {
		return b, nil, nil
	}
	if len(b) < 8 {
		return nil, nil, ErrMessageTooShort
	}
	v := quantity.QuoteLots(binary.BigEndian.Uint64(b[0:8]))
	return b[8:], &v, nil
}

// Report is what the server sends back down the wire: either a journal
// event resulting from a request, or an error describing why the
// request was rejected. Mirrors the flat layout of events.Event itself
// rather than a tagged union, for the same reason events.go gives: it's
// friendlier to encode/decode once than to switch on every call site.
type Report struct {
	MessageType ReportMessageType
	Event       events.Event
	ErrStrLen   uint16
	Err         string
}

const reportFixedHeaderLen = 1 + 2 + 2 + 32 + 8 + 8 + 8 + 16 + 8 + 8 + 8 + 8 + 8 + 8 + 8 + 8 + 8 + 8 + 2

// Serialize converts the report to wire form.
func (r *Report) Serialize() ([]byte, error) {
	r.ErrStrLen = uint16(len(r.Err))
	buf := make([]byte, reportFixedHeaderLen+len(r.Err))
	buf[0] = byte(r.MessageType)
	binary.BigEndian.PutUint16(buf[1:3], r.Event.Index)
	binary.BigEndian.PutUint16(buf[3:5], uint16(r.Event.Kind))
	copy(buf[5:37], r.Event.MakerID[:])
	binary.BigEndian.PutUint64(buf[37:45], r.Event.OrderSequenceNumber)
	binary.BigEndian.PutUint64(buf[45:53], uint64(r.Event.PriceInTicks))
	binary.BigEndian.PutUint64(buf[53:61], uint64(r.Event.BaseLotsPlaced))
	copy(buf[61:77], r.Event.ClientOrderID[:])
	binary.BigEndian.PutUint64(buf[77:85], uint64(r.Event.BaseLotsFilled))
	binary.BigEndian.PutUint64(buf[85:93], uint64(r.Event.BaseLotsRemaining))
	binary.BigEndian.PutUint64(buf[93:101], uint64(r.Event.BaseLotsRemoved))
	binary.BigEndian.PutUint64(buf[101:109], uint64(r.Event.BaseLotsEvicted))
	binary.BigEndian.PutUint64(buf[109:117], uint64(r.Event.TotalBaseLotsFilled))
	binary.BigEndian.PutUint64(buf[117:125], uint64(r.Event.TotalQuoteLotsFilled))
	binary.BigEndian.PutUint64(buf[125:133], uint64(r.Event.TotalFeeInQuoteLots))
	binary.BigEndian.PutUint64(buf[133:141], uint64(r.Event.FeesCollectedInQuoteLots))
	binary.BigEndian.PutUint64(buf[141:149], r.Event.LastValidSlot)
	binary.BigEndian.PutUint64(buf[149:157], r.Event.LastValidUnixTimestampInSeconds)
	binary.BigEndian.PutUint16(buf[157:159], r.ErrStrLen)
	if r.ErrStrLen > 0 {
		copy(buf[reportFixedHeaderLen:], r.Err)
	}
	return buf, nil
}

func generateWireExecutionReport(e events.Event) ([]byte, error) {
	r := Report{MessageType: ExecutionReport, Event: e}
	return r.Serialize()
}

func generateWireErrorReport(err error) ([]byte, error) {
	r := Report{MessageType: ErrorReport, Err: fmt.Sprintf("%v", err)}
	return r.Serialize()
}
