package mempipe

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Addr identifies an endpoint on the in-memory "mempipe" network.
// Every Conn gets a unique address so test assertions can tell the two
// ends of a connection apart.
type Addr string

// Network returns the fixed network name "mempipe".
func (Addr) Network() string { return "mempipe" }

// String returns the unique endpoint identity.
func (a Addr) String() string { return string(a) }

// Conn adapts a Pipe endpoint to the net.Conn interface so in-memory
// pipes can stand in for network sockets. Read and Write honor
// absolute deadlines instead of the Pipe's relative timeouts; timeout
// failures surface as os.ErrDeadlineExceeded, as net.Conn callers
// expect.
//
// Deadlines are converted to wait budgets when a call starts. Setting
// a deadline therefore applies to subsequent calls; it does not
// interrupt a Read or Write already blocked.
type Conn struct {
	pipe   *Pipe
	local  Addr
	remote Addr

	mu            sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time
}

var (
	_ net.Conn = (*Conn)(nil)
	_ net.Addr = Addr("")
)

// ConnPair creates two connected net.Conn endpoints backed by a Pair
// of pipes, each direction buffering up to capacity bytes. Bytes
// written to one side are read from the other.
func ConnPair(capacity int) (*Conn, *Conn, error) {
	p1, p2, err := Pair(capacity)
	if err != nil {
		return nil, nil, err
	}
	a1 := newAddr()
	a2 := newAddr()
	c1 := &Conn{pipe: p1, local: a1, remote: a2}
	c2 := &Conn{pipe: p2, local: a2, remote: a1}
	return c1, c2, nil
}

func newAddr() Addr {
	return Addr("mempipe/" + uuid.New().String())
}

// Pipe returns the underlying Pipe endpoint, exposing its buffer
// inspection helpers (Buffered, Pending) to tests.
func (c *Conn) Pipe() *Pipe {
	return c.pipe
}

// Read reads from the connection, blocking until at least one byte is
// available, the read deadline passes, or the peer closes. An expired
// deadline fails with os.ErrDeadlineExceeded; a closed peer yields
// io.EOF after buffered bytes drain.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	deadline := c.readDeadline
	c.mu.Unlock()

	d, err := deadlineBudget(deadline)
	if err != nil {
		return 0, err
	}
	n, err := c.pipe.in.PopWait(p, d)
	return n, mapDeadlineErr(err)
}

// Write writes all of p to the connection, blocking for buffer space
// as needed. The write deadline bounds the whole call: each wait round
// recomputes the remaining time, and an expired deadline fails with
// os.ErrDeadlineExceeded alongside the bytes written so far.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	deadline := c.writeDeadline
	c.mu.Unlock()

	wn := 0
	for wn < len(p) {
		d, err := deadlineBudget(deadline)
		if err != nil {
			return wn, err
		}
		n, err := c.pipe.out.PushWait(p[wn:], d)
		wn += n
		if err != nil {
			return wn, mapDeadlineErr(err)
		}
	}
	return wn, nil
}

// Close closes the connection: the peer drains buffered bytes and then
// reads io.EOF, and its writes fail with io.ErrClosedPipe. Close is
// idempotent.
func (c *Conn) Close() error {
	return c.pipe.Close()
}

// LocalAddr returns this end's unique address.
func (c *Conn) LocalAddr() net.Addr { return c.local }

// RemoteAddr returns the peer's unique address.
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// SetDeadline sets both the read and the write deadline. A zero value
// means no deadline. The deadline applies to calls started after this
// one returns.
func (c *Conn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	c.writeDeadline = t
	return nil
}

// SetReadDeadline sets the deadline for subsequent Read calls.
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

// SetWriteDeadline sets the deadline for subsequent Write calls.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDeadline = t
	return nil
}

// deadlineBudget converts an absolute deadline to the wait budget for
// one call round. A zero deadline waits indefinitely; an already
// expired one fails immediately.
func deadlineBudget(deadline time.Time) (time.Duration, error) {
	if deadline.IsZero() {
		return NoTimeout, nil
	}
	d := time.Until(deadline)
	if d <= 0 {
		return 0, os.ErrDeadlineExceeded
	}
	return d, nil
}

// mapDeadlineErr rewrites pipe timeout errors to the sentinel net.Conn
// callers test against.
func mapDeadlineErr(err error) error {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrWouldBlock) {
		return os.ErrDeadlineExceeded
	}
	return err
}
