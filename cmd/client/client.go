// Command phoenix-client is a minimal CLI for exercising a running
// phoenixd instance: place, cancel, and claim against a market over its
// TCP wire protocol. It does not send ReduceOrder requests.
package main

import (
	"crypto/sha256"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"phoenix/internal/book"
	phxnet "phoenix/internal/net"
	"phoenix/internal/orderpacket"
	"phoenix/internal/quantity"
	"phoenix/internal/trader"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the phoenix server")
	owner := flag.String("owner", "", "trader identity (hashed into a 32-byte trader id)")
	action := flag.String("action", "place", "action: place, cancel, claim")

	side := flag.String("side", "buy", "buy or sell")
	kind := flag.String("kind", "limit", "postonly, limit, or ioc")
	price := flag.Uint64("price", 100, "limit price in ticks")
	baseLots := flag.Uint64("base-lots", 10, "order size in base lots")
	quoteLots := flag.Uint64("quote-lots", 0, "order size in quote lots (ioc only)")
	clientOrderID := flag.Uint64("client-order-id", 0, "client order id")

	orderSeq := flag.Uint64("order-seq", 0, "order sequence number to cancel")
	orderPrice := flag.Uint64("order-price", 0, "price in ticks of the order to cancel")
	claimAfter := flag.Bool("claim", false, "cancel: claim freed funds; claim: allow seat eviction")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is required.")
		flag.Usage()
		os.Exit(1)
	}
	traderID := traderIDFromOwner(*owner)

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s as %q\n", *serverAddr, *owner)

	go readReports(conn)

	switch strings.ToLower(*action) {
	case "place":
		if err := sendNewOrder(conn, traderID, *side, *kind, *price, *baseLots, *quoteLots, *clientOrderID); err != nil {
			log.Fatalf("place order failed: %v", err)
		}
		fmt.Println("-> sent new order")
	case "cancel":
		if err := sendCancelOrder(conn, traderID, *orderPrice, *orderSeq, *claimAfter); err != nil {
			log.Fatalf("cancel order failed: %v", err)
		}
		fmt.Println("-> sent cancel order")
	case "claim":
		if err := sendClaimFunds(conn, traderID, *claimAfter); err != nil {
			log.Fatalf("claim funds failed: %v", err)
		}
		fmt.Println("-> sent claim funds")
	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("listening for reports... (ctrl+c to exit)")
	select {}
}

func traderIDFromOwner(owner string) trader.ID {
	return trader.ID(sha256.Sum256([]byte(owner)))
}

func writeHeader(buf []byte, typeOf phxnet.MessageType, id trader.ID) {
	binary.BigEndian.PutUint16(buf[0:2], uint16(typeOf))
	copy(buf[2:34], id[:])
}

func sendNewOrder(conn net.Conn, id trader.ID, sideStr, kindStr string, price, numBaseLots, numQuoteLots, clientOrderID uint64) error {
	s := book.Bid
	if strings.ToLower(sideStr) == "sell" {
		s = book.Ask
	}
	coid := quantity.ClientOrderIDFromUint64(clientOrderID)

	var packet *orderpacket.Packet
	switch strings.ToLower(kindStr) {
	case "postonly":
		packet = orderpacket.NewPostOnly(s, quantity.Ticks(price), quantity.BaseLots(numBaseLots), coid, true, false)
	case "ioc":
		p := quantity.Ticks(price)
		packet = orderpacket.NewIOC(s, &p, quantity.BaseLots(numBaseLots), quantity.QuoteLots(numQuoteLots), 0, 0, orderpacket.CancelProvide, coid, false)
	default:
		packet = orderpacket.NewLimit(s, quantity.Ticks(price), quantity.BaseLots(numBaseLots), orderpacket.CancelProvide, coid, false)
	}

	body := orderpacket.Encode(packet)
	buf := make([]byte, 34+1+len(body))
	writeHeader(buf, phxnet.NewOrder, id)
	// buf[34] stays 0: no token-account atoms are reported.
	copy(buf[35:], body)

	_, err := conn.Write(buf)
	return err
}

func sendCancelOrder(conn net.Conn, id trader.ID, priceInTicks, sequenceNumber uint64, claimFunds bool) error {
	buf := make([]byte, 34+8+8+1)
	writeHeader(buf, phxnet.CancelOrder, id)
	binary.BigEndian.PutUint64(buf[34:42], priceInTicks)
	binary.BigEndian.PutUint64(buf[42:50], sequenceNumber)
	if claimFunds {
		buf[50] = 1
	}
	_, err := conn.Write(buf)
	return err
}

func sendClaimFunds(conn net.Conn, id trader.ID, allowSeatEviction bool) error {
	buf := make([]byte, 34+1+1+1)
	writeHeader(buf, phxnet.ClaimFunds, id)
	// Both optional quote/base lot fields absent means "claim everything".
	if allowSeatEviction {
		buf[36] = 1
	}
	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and prints execution/error reports
// from the server. Reports are fixed-length except for the trailing
// error string, whose length is carried in the last two header bytes.
func readReports(conn net.Conn) {
	const fixedLen = 159
	for {
		header := make([]byte, fixedLen)
		if _, err := io.ReadFull(conn, header); err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			return
		}

		msgType := phxnet.ReportMessageType(header[0])
		errStrLen := binary.BigEndian.Uint16(header[157:159])

		var errStr string
		if errStrLen > 0 {
			body := make([]byte, errStrLen)
			if _, err := io.ReadFull(conn, body); err != nil {
				log.Printf("error reading report body: %v", err)
				return
			}
			errStr = string(body)
		}

		if msgType == phxnet.ErrorReport {
			fmt.Printf("\n[ERROR] %s\n", errStr)
			continue
		}

		kind := binary.BigEndian.Uint16(header[3:5])
		orderSeq := binary.BigEndian.Uint64(header[37:45])
		price := binary.BigEndian.Uint64(header[45:53])
		fmt.Printf("\n[EVENT kind=%d] orderSeq=%d price=%d\n", kind, orderSeq, price)
	}
}
