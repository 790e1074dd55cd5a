package mempipe

import (
	"context"
	"net"
	"sync"
)

// Listener is an in-memory net.Listener. Each Dial creates a connected
// Conn pair, delivers one side to Accept, and returns the other, so
// client/server code written against net interfaces can run without
// opening sockets.
type Listener struct {
	addr      Addr
	capacity  int
	connCh    chan *Conn
	closeOnce sync.Once
	closeCh   chan struct{}
}

var _ net.Listener = (*Listener)(nil)

// backlog bounds how many dialed connections may queue for Accept.
const backlog = 16

// Listen creates a Listener whose connections buffer up to capacity
// bytes per direction.
func Listen(capacity int) (*Listener, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Listener{
		addr:     newAddr(),
		capacity: capacity,
		connCh:   make(chan *Conn, backlog),
		closeCh:  make(chan struct{}),
	}, nil
}

// Accept waits for and returns the server side of the next dialed
// connection. After Close it returns net.ErrClosed.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-l.closeCh:
		return nil, net.ErrClosed
	}
}

// Close closes the listener, waking pending Accept and Dial calls.
// Already accepted connections are unaffected. Close is idempotent.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeCh)
	})
	return nil
}

// Addr returns the listener's unique in-memory address.
func (l *Listener) Addr() net.Addr {
	return l.addr
}

// Dial connects to the listener, blocking until the connection is
// queued for Accept. It fails with net.ErrClosed if the listener is
// closed.
func (l *Listener) Dial() (net.Conn, error) {
	return l.DialContext(context.Background())
}

// DialContext connects to the listener like Dial, additionally failing
// with the context's error if ctx is done first.
func (l *Listener) DialContext(ctx context.Context) (net.Conn, error) {
	select {
	case <-l.closeCh:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	server, client, err := ConnPair(l.capacity)
	if err != nil {
		return nil, err
	}
	select {
	case l.connCh <- server:
		return client, nil
	case <-l.closeCh:
		client.Close()
		server.Close()
		return nil, net.ErrClosed
	case <-ctx.Done():
		client.Close()
		server.Close()
		return nil, ctx.Err()
	}
}
