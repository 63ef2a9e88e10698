package netio

import (
	"errors"
	"net"
	"sync"
	"time"
)

// datagram is one buffered message in a FakeConn's inbox.
type datagram struct {
	data []byte
	from net.Addr
}

// FakeAddr is a trivial net.Addr for FakeConn pairs.
type FakeAddr string

func (a FakeAddr) Network() string { return "fake" }
func (a FakeAddr) String() string  { return string(a) }

// FakeConn is an in-memory PacketConn used to drive the loss,
// duplication and corruption scenarios from the specification's
// testable-properties section without a real network. Pair two with
// NewFakePair and wire a Drop/Corrupt hook on whichever side should
// simulate an unreliable link.
type FakeConn struct {
	addr FakeAddr
	peer *FakeConn

	mu       sync.Mutex
	inbox    []datagram
	closed   bool
	deadline time.Time
	notify   chan struct{}
	dropSeq  map[int]bool // 1-based send index -> drop
	corrupt  map[int]bool // 1-based send index -> flip a payload bit
	sendN    int
}

// NewFakePair returns two connected FakeConns, each other's peer.
func NewFakePair(addrA, addrB string) (*FakeConn, *FakeConn) {
	a := &FakeConn{addr: FakeAddr(addrA), notify: make(chan struct{}, 1)}
	b := &FakeConn{addr: FakeAddr(addrB), notify: make(chan struct{}, 1)}
	a.peer = b
	b.peer = a
	return a, b
}

// DropNth arranges for the n-th datagram (1-based) this conn writes to
// the peer to vanish instead of being delivered.
func (c *FakeConn) DropNth(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropSeq == nil {
		c.dropSeq = make(map[int]bool)
	}
	c.dropSeq[n] = true
}

// CorruptNth arranges for the n-th datagram (1-based) this conn writes
// to flip one payload bit before delivery.
func (c *FakeConn) CorruptNth(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.corrupt == nil {
		c.corrupt = make(map[int]bool)
	}
	c.corrupt[n] = true
}

func (c *FakeConn) WriteTo(buf []byte, _ net.Addr) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, errors.New("netio: write on closed FakeConn")
	}
	c.sendN++
	n := c.sendN
	drop := c.dropSeq[n]
	corrupt := c.corrupt[n]
	c.mu.Unlock()

	if drop {
		return len(buf), nil
	}

	out := make([]byte, len(buf))
	copy(out, buf)
	if corrupt && len(out) > 0 {
		out[len(out)/2] ^= 0x01
	}

	peer := c.peer
	peer.mu.Lock()
	if peer.closed {
		peer.mu.Unlock()
		return len(buf), nil
	}
	peer.inbox = append(peer.inbox, datagram{data: out, from: c.addr})
	peer.mu.Unlock()
	select {
	case peer.notify <- struct{}{}:
	default:
	}
	return len(buf), nil
}

func (c *FakeConn) ReadFrom(buf []byte) (int, net.Addr, error) {
	deadline := c.readDeadline()
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return 0, nil, errors.New("netio: read on closed FakeConn")
		}
		if len(c.inbox) > 0 {
			dg := c.inbox[0]
			c.inbox = c.inbox[1:]
			c.mu.Unlock()
			n := copy(buf, dg.data)
			return n, dg.from, nil
		}
		c.mu.Unlock()

		if deadline.IsZero() {
			<-c.notify
			continue
		}
		timeout := time.Until(deadline)
		if timeout <= 0 {
			return 0, nil, timeoutError{}
		}
		select {
		case <-c.notify:
		case <-time.After(timeout):
			return 0, nil, timeoutError{}
		}
	}
}

func (c *FakeConn) readDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "netio: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func (c *FakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

func (c *FakeConn) LocalAddr() net.Addr { return c.addr }

func (c *FakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}
