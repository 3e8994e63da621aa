package net

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoenix/internal/book"
	"phoenix/internal/events"
	"phoenix/internal/orderpacket"
	"phoenix/internal/quantity"
	"phoenix/internal/trader"
)

func testTraderID(b byte) trader.ID {
	var id trader.ID
	id[0] = b
	return id
}

func buildHeader(mt MessageType, id trader.ID) []byte {
	buf := make([]byte, baseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(mt))
	copy(buf[2:34], id[:])
	return buf
}

func TestParseMessageHeartbeat(t *testing.T) {
	id := testTraderID(1)
	msg, err := parseMessage(buildHeader(Heartbeat, id))
	require.NoError(t, err)
	assert.Equal(t, Heartbeat, msg.GetType())
	assert.Equal(t, id, msg.GetTraderID())
}

func TestParseMessageTooShort(t *testing.T) {
	_, err := parseMessage(make([]byte, 10))
	assert.ErrorIs(t, err, ErrMessageTooShort)
}

func TestParseMessageInvalidType(t *testing.T) {
	_, err := parseMessage(buildHeader(MessageType(99), testTraderID(1)))
	assert.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestParseNewOrderRoundTrip(t *testing.T) {
	id := testTraderID(2)
	packet := orderpacket.NewPostOnly(book.Bid, 10, 5, quantity.ClientOrderIDFromUint64(9), true, false)
	wire := orderpacket.Encode(packet)
	raw := append(append(buildHeader(NewOrder, id), 0), wire...) // 0: no token-account atoms

	parsed, err := parseMessage(raw)
	require.NoError(t, err)
	m, ok := parsed.(NewOrderMessage)
	require.True(t, ok)
	assert.Equal(t, quantity.Ticks(10), m.Packet.PriceInTicks)
	assert.Equal(t, quantity.BaseLots(5), m.Packet.NumBaseLots)
	assert.Equal(t, id, m.GetTraderID())
}

func TestParseCancelOrder(t *testing.T) {
	body := make([]byte, cancelOrderBodyLen)
	binary.BigEndian.PutUint64(body[0:8], 100)
	binary.BigEndian.PutUint64(body[8:16], 777)
	body[16] = 1
	raw := append(buildHeader(CancelOrder, testTraderID(3)), body...)

	parsed, err := parseMessage(raw)
	require.NoError(t, err)
	m, ok := parsed.(CancelOrderMessage)
	require.True(t, ok)
	assert.Equal(t, quantity.Ticks(100), m.OrderID.PriceInTicks)
	assert.Equal(t, uint64(777), m.OrderID.SequenceNumber)
	assert.True(t, m.ClaimFunds)
}

func TestParseCancelOrderTooShort(t *testing.T) {
	raw := append(buildHeader(CancelOrder, testTraderID(3)), make([]byte, 5)...)
	_, err := parseMessage(raw)
	assert.ErrorIs(t, err, ErrMessageTooShort)
}

func TestParseReduceOrderWithSize(t *testing.T) {
	body := make([]byte, 0, 26)
	priceAndSeq := make([]byte, 16)
	binary.BigEndian.PutUint64(priceAndSeq[0:8], 50)
	binary.BigEndian.PutUint64(priceAndSeq[8:16], 3)
	body = append(body, priceAndSeq...)
	body = append(body, 1) // size present
	sizeBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(sizeBytes, 20)
	body = append(body, sizeBytes...)
	body = append(body, 1) // claim funds

	raw := append(buildHeader(ReduceOrder, testTraderID(4)), body...)
	parsed, err := parseMessage(raw)
	require.NoError(t, err)
	m, ok := parsed.(ReduceOrderMessage)
	require.True(t, ok)
	require.NotNil(t, m.Size)
	assert.Equal(t, quantity.BaseLots(20), *m.Size)
	assert.True(t, m.ClaimFunds)
}

func TestParseReduceOrderWithoutSize(t *testing.T) {
	body := make([]byte, 16)
	body = append(body, 0) // size absent
	body = append(body, 0) // claim funds false

	raw := append(buildHeader(ReduceOrder, testTraderID(4)), body...)
	parsed, err := parseMessage(raw)
	require.NoError(t, err)
	m, ok := parsed.(ReduceOrderMessage)
	require.True(t, ok)
	assert.Nil(t, m.Size)
	assert.False(t, m.ClaimFunds)
}

func TestParseClaimFundsWithOptionalFields(t *testing.T) {
	var body []byte
	body = append(body, 1) // quote present
	quoteBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(quoteBytes, 42)
	body = append(body, quoteBytes...)
	body = append(body, 0) // base absent
	body = append(body, 1) // allow seat eviction

	raw := append(buildHeader(ClaimFunds, testTraderID(5)), body...)
	parsed, err := parseMessage(raw)
	require.NoError(t, err)
	m, ok := parsed.(ClaimFundsMessage)
	require.True(t, ok)
	require.NotNil(t, m.NumQuoteLots)
	assert.Equal(t, quantity.QuoteLots(42), *m.NumQuoteLots)
	assert.Nil(t, m.NumBaseLots)
	assert.True(t, m.AllowSeatEviction)
}

func TestReportSerializeExecutionReport(t *testing.T) {
	var maker trader.ID
	maker[0] = 8
	e := events.Fill(maker, 5, 100, 3, 7)
	r := Report{MessageType: ExecutionReport, Event: e}

	wire, err := r.Serialize()
	require.NoError(t, err)
	assert.Len(t, wire, reportFixedHeaderLen)
	assert.Equal(t, byte(ExecutionReport), wire[0])
	assert.Equal(t, uint16(events.KindFill), binary.BigEndian.Uint16(wire[3:5]))
	assert.Equal(t, uint64(100), binary.BigEndian.Uint64(wire[45:53]))
}

func TestReportSerializeErrorReport(t *testing.T) {
	wire, err := generateWireErrorReport(errors.New("boom"))
	require.NoError(t, err)
	assert.Equal(t, byte(ErrorReport), wire[0])
	assert.Equal(t, uint16(4), binary.BigEndian.Uint16(wire[157:159]))
	assert.Equal(t, "boom", string(wire[reportFixedHeaderLen:]))
}

func TestGenerateWireExecutionReport(t *testing.T) {
	e := events.Reduce(1, 10, 5, 5)
	wire, err := generateWireExecutionReport(e)
	require.NoError(t, err)
	assert.Equal(t, byte(ExecutionReport), wire[0])
	assert.Len(t, wire, reportFixedHeaderLen)
}
