package stream

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// outboxSize bounds how far a single client's writer goroutine may lag
// behind Publish before it is considered stalled and dropped (spec §5:
// the stream thread owns this I/O and must never let a slow client stall
// the pipeline thread).
const outboxSize = 4

// client pairs a connection with its own outbox and writer goroutine, so
// a slow socket only ever blocks that goroutine, never the caller of
// Publish. mu guards outbox against the send-after-close race between
// Publish (producer) and the writer goroutine closing it on a write error.
type client struct {
	conn   net.Conn
	outbox chan []byte

	mu     sync.Mutex
	closed bool
}

// offer queues framed for this client's writer goroutine; it returns false
// if the outbox is full or already closed, in which case the caller should
// drop the connection.
func (c *client) offer(framed []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.outbox <- framed:
		return true
	default:
		return false
	}
}

// close marks the client closed and closes outbox, safe to call more than
// once and safe to race against offer.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbox)
}

// Server is the optional debug-stream TCP collaborator (spec §6): it
// accepts any number of readers and fans out length-prefixed JSON frames.
// A send failure drops that connection and the server keeps listening
// (spec §7 StreamError); the pipeline thread is never blocked by this I/O
// because Publish only ever does a non-blocking channel send per client —
// the actual conn.Write happens on each client's own writer goroutine.
type Server struct {
	addr string

	mu      sync.Mutex
	clients map[net.Conn]*client

	sendEveryN int
	frameCount uint64

	sent    uint64
	dropped uint64
}

// NewServer constructs a debug-stream server that emits every sendEveryN
// processed frames (spec §6 "send_every_n_frames").
func NewServer(addr string, sendEveryN int) *Server {
	if sendEveryN < 1 {
		sendEveryN = 1
	}
	return &Server{
		addr:       addr,
		clients:    make(map[net.Conn]*client),
		sendEveryN: sendEveryN,
	}
}

// Start listens on addr and accepts connections until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}

	slog.Info("debug stream server listening", "addr", s.addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			slog.Info("debug stream listener closed", "error", err)
			return
		}

		c := &client{conn: conn, outbox: make(chan []byte, outboxSize)}
		s.mu.Lock()
		s.clients[conn] = c
		s.mu.Unlock()
		slog.Info("debug stream client connected", "remote", conn.RemoteAddr())

		go s.writeLoop(c)
	}
}

// writeLoop is the stream thread for one client: it owns every blocking
// conn.Write for that connection, draining c.outbox until it's closed by
// dropConn or the channel send side gives up on a full buffer.
func (s *Server) writeLoop(c *client) {
	for framed := range c.outbox {
		if _, err := c.conn.Write(framed); err != nil {
			s.dropConn(c.conn, err)
			return
		}
		s.mu.Lock()
		s.sent++
		s.mu.Unlock()
	}
}

// Publish offers one frame's payload to the stream; it is only actually
// sent every sendEveryN calls (spec §6 emission cadence). It never blocks:
// each client receives the framed payload over a buffered channel, and a
// client whose writer goroutine can't keep up is dropped rather than
// letting its full buffer back up into this call.
func (s *Server) Publish(p Payload) {
	s.mu.Lock()
	s.frameCount++
	if s.frameCount%uint64(s.sendEveryN) != 0 {
		s.mu.Unlock()
		return
	}
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("debug stream marshal failed", "error", err)
		return
	}

	framed := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(framed, uint32(len(data)))
	copy(framed[4:], data)

	for _, c := range clients {
		if !c.offer(framed) {
			s.dropConn(c.conn, fmt.Errorf("client outbox full, writer goroutine stalled"))
		}
	}
}

func (s *Server) dropConn(conn net.Conn, err error) {
	s.mu.Lock()
	c, ok := s.clients[conn]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, conn)
	s.dropped++
	s.mu.Unlock()

	slog.Warn("debug stream send failed, dropping connection", "remote", conn.RemoteAddr(), "error", err)
	conn.Close()
	c.close()
}

// Stats returns the server's send/drop counters and current client count.
func (s *Server) Stats() (sent, dropped uint64, clients int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.dropped, len(s.clients)
}

// Stop closes all connected clients.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, c := range s.clients {
		conn.Close()
		c.close()
		delete(s.clients, conn)
	}
}
