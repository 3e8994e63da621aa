package orderpacket

import (
	"encoding/binary"
	"errors"

	"phoenix/internal/book"
	"phoenix/internal/quantity"
)

var (
	ErrMessageTooShort    = errors.New("orderpacket: message too short")
	ErrInvalidKind        = errors.New("orderpacket: invalid packet kind")
	ErrExpiryFieldsPresent = errors.New("orderpacket: padded legacy decode still has expiry fields set")
)

// Wire layout (big-endian, fixed-header convention):
//
//	byte 0:       Kind (0=PostOnly, 1=Limit, 2=ImmediateOrCancel)
//	byte 1:       Side (0=Bid, 1=Ask)
//	bytes 2-17:   ClientOrderID (16 bytes)
//	byte 18:      UseOnlyDepositedFunds (0/1)
//	bytes 19-...: kind-specific payload
//	trailing:     two option-tagged u64 expiry fields (1 presence byte + 8
//	              value bytes each), treated as absent when missing from
//	              a legacy payload.
const fixedHeaderLen = 1 + 1 + 16 + 1

// Decode parses a wire packet, applying a backward-compatibility rule: a
// payload missing the two trailing expiry-option bytes is retried once
// with two zero bytes appended (interpreted as "both absent"); if that
// padded decode yields a packet with either expiry field present,
// decoding fails outright (the pad-and-retry must not manufacture a
// bogus expiry).
func Decode(msg []byte) (*Packet, error) {
	p, err := decodeOnce(msg)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrMessageTooShort) {
		return nil, err
	}
	padded := append(append([]byte{}, msg...), 0, 0)
	p, err = decodeOnce(padded)
	if err != nil {
		return nil, err
	}
	if p.LastValidSlot != nil || p.LastValidUnixTS != nil {
		return nil, ErrExpiryFieldsPresent
	}
	return p, nil
}

func decodeOnce(msg []byte) (*Packet, error) {
	if len(msg) < fixedHeaderLen {
		return nil, ErrMessageTooShort
	}
	kind := Kind(msg[0])
	side := book.Side(msg[1])
	var clientOrderID quantity.ClientOrderID
	copy(clientOrderID[:], msg[2:18])
	useOnlyDeposited := msg[18] != 0
	rest := msg[fixedHeaderLen:]

	p := &Packet{Kind: kind, Side: side, ClientOrderID: clientOrderID, UseOnlyDepositedFunds: useOnlyDeposited}

	var err error
	switch kind {
	case KindPostOnly:
		rest, err = decodePostOnlyBody(p, rest)
	case KindLimit:
		rest, err = decodeLimitBody(p, rest)
	case KindImmediateOrCancel:
		rest, err = decodeIOCBody(p, rest)
	default:
		return nil, ErrInvalidKind
	}
	if err != nil {
		return nil, err
	}

	rest, err = decodeOptionalU64(rest, &p.LastValidSlot)
	if err != nil {
		return nil, err
	}
	_, err = decodeOptionalU64(rest, &p.LastValidUnixTS)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func decodePostOnlyBody(p *Packet, b []byte) ([]byte, error) {
	if len(b) < 17 {
		return nil, ErrMessageTooShort
	}
	p.PriceInTicks = quantity.Ticks(binary.BigEndian.Uint64(b[0:8]))
	p.NumBaseLots = quantity.BaseLots(binary.BigEndian.Uint64(b[8:16]))
	p.RejectPostOnly = b[16] != 0
	return b[17:], nil
}

func decodeLimitBody(p *Packet, b []byte) ([]byte, error) {
	if len(b) < 18 {
		return nil, ErrMessageTooShort
	}
	p.PriceInTicks = quantity.Ticks(binary.BigEndian.Uint64(b[0:8]))
	p.NumBaseLots = quantity.BaseLots(binary.BigEndian.Uint64(b[8:16]))
	p.SelfTradeBehavior = SelfTradeBehavior(b[16])
	hasLimit := b[17] != 0
	b = b[18:]
	if hasLimit {
		if len(b) < 8 {
			return nil, ErrMessageTooShort
		}
		v := binary.BigEndian.Uint64(b[0:8])
		p.MatchLimit = &v
		b = b[8:]
	}
	return b, nil
}

func decodeIOCBody(p *Packet, b []byte) ([]byte, error) {
	if len(b) < 1 {
		return nil, ErrMessageTooShort
	}
	hasPrice := b[0] != 0
	b = b[1:]
	if hasPrice {
		if len(b) < 8 {
			return nil, ErrMessageTooShort
		}
		p.IOCPriceSet = true
		p.PriceInTicks = quantity.Ticks(binary.BigEndian.Uint64(b[0:8]))
		b = b[8:]
	} else if p.Side == book.Bid {
		// Same market-order default as NewIOC: an unpriced bid takes any price.
		p.PriceInTicks = quantity.MaxTicks
	}
	if len(b) < 32+1 {
		return nil, ErrMessageTooShort
	}
	p.NumBaseLots = quantity.BaseLots(binary.BigEndian.Uint64(b[0:8]))
	p.NumQuoteLots = quantity.QuoteLots(binary.BigEndian.Uint64(b[8:16]))
	p.MinBaseLotsToFill = quantity.BaseLots(binary.BigEndian.Uint64(b[16:24]))
	p.MinQuoteLotsToFill = quantity.QuoteLots(binary.BigEndian.Uint64(b[24:32]))
	p.SelfTradeBehavior = SelfTradeBehavior(b[32])
	b = b[33:]
	if len(b) < 1 {
		return nil, ErrMessageTooShort
	}
	hasLimit := b[0] != 0
	b = b[1:]
	if hasLimit {
		if len(b) < 8 {
			return nil, ErrMessageTooShort
		}
		v := binary.BigEndian.Uint64(b[0:8])
		p.MatchLimit = &v
		b = b[8:]
	}
	return b, nil
}

func decodeOptionalU64(b []byte, dst **uint64) ([]byte, error) {
	if len(b) < 1 {
		return nil, ErrMessageTooShort
	}
	present := b[0] != 0
	b = b[1:]
	if !present {
		*dst = nil
		return b, nil
	}
	if len(b) < 8 {
		return nil, ErrMessageTooShort
	}
	v := binary.BigEndian.Uint64(b[0:8])
	*dst = &v
	return b[8:], nil
}

// Encode serializes a packet back to wire form, primarily used by tests
// and the CLI client to round-trip packets.
func Encode(p *Packet) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(p.Kind), byte(p.Side))
	buf = append(buf, p.ClientOrderID[:]...)
	buf = appendBool(buf, p.UseOnlyDepositedFunds)

	switch p.Kind {
	case KindPostOnly:
		buf = appendU64(buf, uint64(p.PriceInTicks))
		buf = appendU64(buf, uint64(p.NumBaseLots))
		buf = appendBool(buf, p.RejectPostOnly)
	case KindLimit:
		buf = appendU64(buf, uint64(p.PriceInTicks))
		buf = appendU64(buf, uint64(p.NumBaseLots))
		buf = append(buf, byte(p.SelfTradeBehavior))
		buf = appendOptionalU64(buf, p.MatchLimit)
	case KindImmediateOrCancel:
		buf = appendBool(buf, p.IOCPriceSet)
		if p.IOCPriceSet {
			buf = appendU64(buf, uint64(p.PriceInTicks))
		}
		buf = appendU64(buf, uint64(p.NumBaseLots))
		buf = appendU64(buf, uint64(p.NumQuoteLots))
		buf = appendU64(buf, uint64(p.MinBaseLotsToFill))
		buf = appendU64(buf, uint64(p.MinQuoteLotsToFill))
		buf = append(buf, byte(p.SelfTradeBehavior))
		buf = appendOptionalU64(buf, p.MatchLimit)
	}
	buf = appendOptionalU64(buf, p.LastValidSlot)
	buf = appendOptionalU64(buf, p.LastValidUnixTS)
	return buf
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendOptionalU64(buf []byte, v *uint64) []byte {
	if v == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return appendU64(buf, *v)
}
