package stream

import (
	"net"
	"testing"
	"time"
)

func TestClientOfferFullOutboxReturnsFalse(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	c := &client{conn: serverConn, outbox: make(chan []byte, 2)}

	if !c.offer([]byte("a")) {
		t.Fatal("expected first offer to succeed")
	}
	if !c.offer([]byte("b")) {
		t.Fatal("expected second offer to succeed")
	}
	if c.offer([]byte("c")) {
		t.Fatal("expected offer to fail once outbox is full")
	}
}

func TestClientOfferAfterCloseReturnsFalse(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	c := &client{conn: serverConn, outbox: make(chan []byte, 2)}
	c.close()

	if c.offer([]byte("a")) {
		t.Fatal("expected offer to fail on a closed client")
	}
	// A second close must not panic (close-of-closed-channel protection).
	c.close()
}

// TestPublishDoesNotBlockOnStalledClient simulates a client whose writer
// goroutine isn't running (as if its conn.Write were hung): Publish must
// still return promptly, dropping the client instead of blocking on the
// network the way the pipeline thread never may (spec §5).
func TestPublishDoesNotBlockOnStalledClient(t *testing.T) {
	s := NewServer("127.0.0.1:0", 1)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	c := &client{conn: serverConn, outbox: make(chan []byte, outboxSize)}
	s.clients[serverConn] = c
	// No writeLoop goroutine is started, so the outbox fills and then every
	// further Publish call must drop the connection rather than block.

	done := make(chan struct{})
	go func() {
		for i := 0; i < outboxSize+5; i++ {
			s.Publish(Payload{GridSize: 1, CellStates: []uint8{0}, CellElevations: []int8{0}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled client instead of dropping it")
	}

	_, dropped, clients := s.Stats()
	if dropped == 0 {
		t.Errorf("expected at least one dropped connection, got 0")
	}
	if clients != 0 {
		t.Errorf("expected the stalled client to be removed, got %d remaining", clients)
	}
}
