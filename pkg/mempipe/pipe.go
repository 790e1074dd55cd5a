package mempipe

import (
	"io"
	"sync"
	"time"
)

// Pipe is one endpoint of an in-memory byte stream. It reads from an
// inbound Buffer and writes to an outbound Buffer; Loopback wires both
// to the same buffer, Pair cross-wires two buffers into a full-duplex
// channel.
//
// Pipe implements io.Reader, io.Writer, and io.Closer, so it can stand
// in anywhere a conventional blocking byte stream is expected. Read
// and write timeouts are independent, mutable at any time, and
// snapshotted once at the start of each call: changing a timeout never
// affects a call already in flight. The default is NoTimeout, matching
// the blocking behavior of io.Pipe and net.Pipe.
//
// A Pipe abandoned without Close leaves peers blocked forever, exactly
// as an unclosed io.Pipe would; closing is the caller's
// responsibility.
type Pipe struct {
	in  *Buffer // filled by the peer, drained by Read
	out *Buffer // filled by Write, drained by the peer

	mu           sync.Mutex
	readTimeout  time.Duration
	writeTimeout time.Duration
}

var _ io.ReadWriteCloser = (*Pipe)(nil)

// Loopback creates an endpoint wired to itself: every byte written is
// read back by the same endpoint, in order, through a single shared
// buffer of the given capacity.
//
// Because one buffer serves both directions, a Write that fills the
// buffer can only proceed after the same endpoint Reads; writing more
// than the capacity with NoTimeout set and no concurrent reader
// deadlocks by construction.
func Loopback(capacity int) (*Pipe, error) {
	b, err := NewBuffer(capacity)
	if err != nil {
		return nil, err
	}
	return newPipe(b, b), nil
}

// Pair creates two endpoints cross-wired into a full-duplex channel:
// bytes written to one endpoint are read by the other. Each direction
// has its own buffer of the given capacity, so traffic in one
// direction never blocks or reorders traffic in the other.
func Pair(capacity int) (*Pipe, *Pipe, error) {
	ab, err := NewBuffer(capacity)
	if err != nil {
		return nil, nil, err
	}
	ba, err := NewBuffer(capacity)
	if err != nil {
		return nil, nil, err
	}
	return newPipe(ba, ab), newPipe(ab, ba), nil
}

func newPipe(in, out *Buffer) *Pipe {
	return &Pipe{
		in:           in,
		out:          out,
		readTimeout:  NoTimeout,
		writeTimeout: NoTimeout,
	}
}

// Read reads buffered bytes from the peer into p, blocking until at
// least one byte is available or the read timeout applies. It returns
// the number of bytes read, which may be less than len(p) when fewer
// are buffered. A zero-length p returns immediately.
//
// Read returns io.EOF after the peer closed and all buffered bytes
// were drained, ErrTimeout when a bounded wait expired, and
// ErrWouldBlock when the timeout is zero and nothing is buffered.
func (p *Pipe) Read(buf []byte) (int, error) {
	return p.in.PopWait(buf, p.ReadTimeout())
}

// Write writes all of buf to the peer, blocking for space as needed.
// The write timeout bounds each wait for space rather than the whole
// call; every round pushes what fits, so a slow but steady reader
// never times a Write out. On failure Write returns the number of
// bytes it managed to transfer along with the error, per the io.Writer
// contract.
func (p *Pipe) Write(buf []byte) (int, error) {
	d := p.WriteTimeout()
	wn := 0
	for wn < len(buf) {
		n, err := p.out.PushWait(buf[wn:], d)
		wn += n
		if err != nil {
			return wn, err
		}
	}
	return wn, nil
}

// Flush blocks until every byte this endpoint has written has been
// consumed by the peer, bounded by the write timeout. It is meant for
// the writing side: with a zero timeout it reports ErrWouldBlock while
// bytes are still pending, and with NoTimeout it waits until the peer
// drains everything. A pipe closed with bytes still pending fails the
// flush instead.
func (p *Pipe) Flush() error {
	return p.out.waitEmpty(p.WriteTimeout())
}

// SetReadTimeout sets the timeout applied by each subsequent Read:
// NoTimeout (or any negative value) blocks indefinitely, zero makes
// reads non-blocking, a positive value bounds each read's wait.
// In-flight reads keep the timeout they started with.
func (p *Pipe) SetReadTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = d
}

// SetWriteTimeout sets the timeout applied by each wait round of
// subsequent Writes, with the same encoding as SetReadTimeout.
// In-flight writes keep the timeout they started with.
func (p *Pipe) SetWriteTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeTimeout = d
}

// SetTimeout sets both the read and the write timeout to d.
func (p *Pipe) SetTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = d
	p.writeTimeout = d
}

// ReadTimeout returns the current read timeout.
func (p *Pipe) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readTimeout
}

// WriteTimeout returns the current write timeout.
func (p *Pipe) WriteTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeTimeout
}

// Buffered returns the number of bytes waiting to be read from this
// endpoint.
func (p *Pipe) Buffered() int {
	return p.in.Len()
}

// Pending returns the number of bytes written by this endpoint that
// the peer has not read yet.
func (p *Pipe) Pending() int {
	return p.out.Len()
}

// Capacity returns the capacity of each direction's buffer.
func (p *Pipe) Capacity() int {
	return p.out.Cap()
}

// ResetRead discards any bytes waiting to be read by this endpoint,
// freeing space for the peer to write into.
func (p *Pipe) ResetRead() {
	p.in.Reset()
}

// ResetWrite discards any written bytes the peer has not read yet.
func (p *Pipe) ResetWrite() {
	p.out.Reset()
}

// Reset discards buffered bytes in both directions.
func (p *Pipe) Reset() {
	p.in.Reset()
	p.out.Reset()
}

// Close closes the endpoint. The outbound direction is closed for
// writing, so the peer drains any buffered bytes and then reads
// io.EOF; the inbound direction is abandoned, so subsequent peer
// writes fail with io.ErrClosedPipe, as do this endpoint's own reads.
// Blocked operations on either side wake immediately. Close is
// idempotent.
func (p *Pipe) Close() error {
	p.out.CloseWrite()
	p.in.CloseRead()
	return nil
}

// CloseWithError hard-closes both directions with err: blocked and
// subsequent operations on either endpoint fail with it, with no EOF
// drain grace. The first close error sticks. A nil err defaults to
// io.ErrClosedPipe.
func (p *Pipe) CloseWithError(err error) error {
	p.out.CloseWithError(err)
	p.in.CloseWithError(err)
	return nil
}
