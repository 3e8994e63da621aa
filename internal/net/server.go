package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"phoenix/internal/book"
	"phoenix/internal/events"
	"phoenix/internal/market"
	"phoenix/internal/workerpool"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var ErrImproperConversion = errors.New("improper type conversion")

// ClientSession tracks one connected TCP session. SessionID exists
// independently of the remote address so that log lines survive a
// client reconnecting from the same address:port pair.
type ClientSession struct {
	conn      net.Conn
	sessionID uuid.UUID
}

// ClientMessage links a message to the connection it arrived on.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// Server is the TCP front end for a single market: it accepts
// connections, decodes requests into PlaceOrder/ReduceOrder/CancelOrder/
// ClaimFunds calls against the market, and broadcasts every resulting
// journal event to all connected clients as a market data feed.
type Server struct {
	address string
	port    int
	market  *market.Market
	pool    *workerpool.Pool

	cancel context.CancelFunc

	clientSessionsLock sync.Mutex
	clientSessions     map[string]ClientSession

	clientMessages chan ClientMessage
}

// New builds a server with no market attached yet. Since a market needs
// a recorder at construction and a server needs a market, callers must
// build the server first, pass it as the market's events.Recorder, then
// call AttachMarket before Run.
func New(address string, port int) *Server {
	return &Server{
		address:        address,
		port:           port,
		pool:           workerpool.New(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		clientMessages: make(chan ClientMessage, 1),
	}
}

// AttachMarket wires the market this server drives. Must be called
// before Run.
func (s *Server) AttachMarket(m *market.Market) {
	s.market = m
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

// Record implements events.Recorder: every market mutation is
// broadcast to every connected client as an execution report, the way
// a CLOB's public fill/order feed works.
func (s *Server) Record(e events.Event) {
	wire, err := generateWireExecutionReport(e)
	if err != nil {
		log.Error().Err(err).Msg("unable to serialize execution report")
		return
	}
	s.broadcast(wire)
}

func (s *Server) broadcast(wire []byte) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	for addr, sess := range s.clientSessions {
		if _, err := sess.conn.Write(wire); err != nil {
			log.Error().Err(err).Str("address", addr).Msg("unable to broadcast report")
		}
	}
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
			sessionID := s.addClientSession(conn)
			log.Info().Str("address", conn.RemoteAddr().String()).Str("session", sessionID.String()).Msg("new client connected")
			s.pool.AddTask(conn)
		}
	}
}

func (s *Server) ReportError(clientAddress string, reqErr error) {
	s.clientSessionsLock.Lock()
	client, ok := s.clientSessions[clientAddress]
	s.clientSessionsLock.Unlock()
	if !ok {
		return
	}
	wire, err := generateWireErrorReport(reqErr)
	if err != nil {
		log.Error().Err(err).Msg("unable to serialize error report")
		return
	}
	if _, err := client.conn.Write(wire); err != nil {
		log.Error().Err(err).Str("address", clientAddress).Msg("unable to send error report")
	}
}

func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().Err(err).Str("clientAddress", message.clientAddress).Msg("error handling message")
				s.ReportError(message.clientAddress, err)
			}
		}
	}
}

func (s *Server) handleMessage(msg ClientMessage) error {
	switch m := msg.message.(type) {
	case BaseMessage:
		// Heartbeat: nothing to do.
		return nil
	case NewOrderMessage:
		placed, err := s.market.PlaceOrder(m.TraderID, m.Packet, m.AtomsInTokenAccount)
		if err != nil {
			return err
		}
		if placed.NoOp {
			// Failed solvency pre-check: per the matching engine's
			// contract this is a successful call with no effect, not
			// an error report.
			log.Info().Str("clientAddress", msg.clientAddress).Msg("order placement was a silent no-op (insufficient funds)")
		}
		return nil
	case CancelOrderMessage:
		side := book.SideFromSequence(m.OrderID.SequenceNumber)
		_, err := s.market.ReduceOrder(m.TraderID, m.OrderID, side, nil, m.ClaimFunds)
		return err
	case ReduceOrderMessage:
		side := book.SideFromSequence(m.OrderID.SequenceNumber)
		_, err := s.market.ReduceOrder(m.TraderID, m.OrderID, side, m.Size, m.ClaimFunds)
		return err
	case ClaimFundsMessage:
		_, err := s.market.ClaimFunds(m.TraderID, m.NumQuoteLots, m.NumBaseLots, m.AllowSeatEviction)
		return err
	default:
		log.Error().Msg("invalid message type")
		return ErrInvalidMessageType
	}
}

// handleConnection reads one message off conn, hands it to the session
// handler, and re-queues the connection for its next message. A
// connection that errors or disconnects is dropped from the session
// table and not re-queued.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Str("address", conn.RemoteAddr().String()).Err(err).Msg("failed setting deadline")
		s.closeConnection(conn)
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			s.closeConnection(conn)
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error parsing message")
			s.ReportError(conn.RemoteAddr().String(), err)
			s.pool.AddTask(conn)
			return nil
		}

		s.clientMessages <- ClientMessage{
			message:       message,
			clientAddress: conn.RemoteAddr().String(),
		}
		s.pool.AddTask(conn)
	}
	return nil
}

func (s *Server) addClientSession(conn net.Conn) uuid.UUID {
	id := uuid.New()
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{conn: conn, sessionID: id}
	return id
}

func (s *Server) closeConnection(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	s.clientSessionsLock.Lock()
	sess, ok := s.clientSessions[addr]
	delete(s.clientSessions, addr)
	s.clientSessionsLock.Unlock()
	if err := conn.Close(); err != nil {
		log.Error().Str("address", addr).Err(err).Msg("unable to close connection")
	}
	if ok {
		log.Info().Str("address", addr).Str("session", sess.sessionID.String()).Msg("client disconnected")
	}
}
