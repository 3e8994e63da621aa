// Command phoenixd runs a single Phoenix market behind a TCP listener.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"phoenix/internal/events"
	"phoenix/internal/market"
	"phoenix/internal/net"
	"phoenix/internal/quantity"
)

func main() {
	address := flag.String("address", "0.0.0.0", "listen address")
	port := flag.Int("port", 9001, "listen port")
	tickSize := flag.Uint64("tick-size", 1, "quote lots per base unit per tick")
	baseLotsPerBaseUnit := flag.Uint64("base-lots-per-base-unit", 1, "base lots per whole base unit")
	takerFeeBps := flag.Uint64("taker-fee-bps", 0, "taker fee in basis points")
	bidsCapacity := flag.Int("bids-capacity", 4096, "resting bid capacity (must be part of an allowed (bids, asks, seats) tuple)")
	asksCapacity := flag.Int("asks-capacity", 4096, "resting ask capacity (must be part of an allowed (bids, asks, seats) tuple)")
	traderCapacity := flag.Int("trader-capacity", 8193, "registered trader seat capacity (must be part of an allowed (bids, asks, seats) tuple)")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := market.ValidateSizeParams(*bidsCapacity, *asksCapacity, *traderCapacity); err != nil {
		log.Fatal().Err(err).
			Int("bids-capacity", *bidsCapacity).
			Int("asks-capacity", *asksCapacity).
			Int("trader-capacity", *traderCapacity).
			Msg("refusing to start with a non-standard size tuple")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	srv := net.New(*address, *port)

	journal := events.NewJournal()
	recorder := broadcastRecorder{journal: journal, server: srv}

	params := market.Params{
		TickSizeInQuoteLotsPerBaseUnit: quantity.QuoteLotsPerBaseUnitPerTick(*tickSize),
		BaseLotsPerBaseUnit:            quantity.BaseLotsPerBaseUnit(*baseLotsPerBaseUnit),
		TakerFeeBps:                    *takerFeeBps,
		BidsCapacity:                   *bidsCapacity,
		AsksCapacity:                   *asksCapacity,
		TraderCapacity:                 *traderCapacity,
	}
	m := market.New(params, recorder, market.NewSystemClock())
	if err := m.SetInitialParams(params.TickSizeInQuoteLotsPerBaseUnit, params.BaseLotsPerBaseUnit); err != nil {
		log.Fatal().Err(err).Msg("unable to set initial market params")
	}
	if err := m.SetStatus(market.Active); err != nil {
		log.Fatal().Err(err).Msg("unable to activate market")
	}

	srv.AttachMarket(m)

	log.Info().Str("address", *address).Int("port", *port).Msg("starting phoenix")
	go srv.Run(ctx)
	<-ctx.Done()
}

// broadcastRecorder fans every event out to both the in-process journal
// (an in-memory, append-only record) and the TCP server's client broadcast.
type broadcastRecorder struct {
	journal *events.Journal
	server  *net.Server
}

func (r broadcastRecorder) Record(e events.Event) {
	r.journal.Record(e)
	r.server.Record(e)
}
