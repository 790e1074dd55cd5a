package mempipe

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"time"
)

// NoTimeout makes a blocking operation wait indefinitely. Any negative
// timeout is treated the same way.
const NoTimeout time.Duration = -1

// Buffer is a thread-safe fixed-capacity circular byte buffer. It is
// the transport primitive under Pipe, and can be used on its own when
// a bounded FIFO byte queue is all that is needed.
//
// Push and Pop never block: they move as many bytes as the buffer
// state allows and report the count, which may be zero. PushWait and
// PopWait block until at least one byte can move, bounded by a timeout
// (see NoTimeout for the encoding). All operations preserve strict
// FIFO order; bytes are never reordered, duplicated, or dropped.
//
// The buffer uses head and tail counters over a fixed slice. Waiters
// block on per-direction notification channels and re-check the buffer
// state after every wakeup, recomputing the remaining timeout from a
// deadline so that spurious wakeups never extend the budget.
//
// Shutdown follows the half-close model: CloseWrite stops pushes while
// letting pops drain remaining bytes before reporting io.EOF;
// CloseRead abandons the buffer from the consuming side, failing both
// directions; CloseWithError fails both directions with a caller
// error. All blocked operations are woken by any close.
type Buffer struct {
	canRead  chan struct{} // signaled when bytes arrive
	canWrite chan struct{} // signaled when space frees
	emptied  chan struct{} // signaled when the buffer drains to empty

	mu         sync.Mutex
	buf        []byte
	head, tail int64
	closeRead  bool
	closeWrite bool
	closeErr   error
	chClosed   bool
}

// NewBuffer creates a Buffer with the given fixed capacity in bytes.
// The capacity never changes for the lifetime of the buffer. A zero or
// negative capacity fails with ErrInvalidCapacity.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{
		canRead:  make(chan struct{}, 1),
		canWrite: make(chan struct{}, 1),
		emptied:  make(chan struct{}, 1),
		buf:      make([]byte, capacity),
	}, nil
}

// Push copies as many bytes of p as currently fit and returns the
// count. A full buffer returns 0. Push never blocks; a zero-length p
// returns immediately regardless of buffer state.
//
// Returns an error if the buffer is closed in either direction.
func (b *Buffer) Push(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.pushErrLocked(); err != nil {
		return 0, err
	}
	return b.pushLocked(p), nil
}

// Pop removes up to len(p) bytes in FIFO order, copies them into p,
// and returns the count. An empty buffer returns 0. Pop never blocks;
// a zero-length p returns immediately regardless of buffer state.
//
// Returns io.EOF once the buffer is closed for writing and fully
// drained, or an error if the buffer was otherwise closed.
func (b *Buffer) Pop(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.popErrLocked(); err != nil {
		return 0, err
	}
	n := b.popLocked(p)
	if n == 0 && b.closeWrite {
		return 0, io.EOF
	}
	return n, nil
}

// PushWait pushes like Push but blocks while the buffer is full. It
// transfers bytes in a single round: once at least one byte of space
// is available it pushes what fits and returns, even if that is less
// than len(p).
//
// The timeout bounds the wait: NoTimeout (or any negative value)
// blocks indefinitely, zero fails immediately with ErrWouldBlock when
// the buffer is full, and a positive value fails with ErrTimeout once
// it elapses with the buffer still full. A round that times out
// transfers nothing. The remaining budget is recomputed after every
// wakeup from a deadline fixed at call start, so wakeups that find the
// buffer still full never reset it.
func (b *Buffer) PushWait(p []byte, timeout time.Duration) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if err := b.pushErrLocked(); err != nil {
			return 0, err
		}
		if int(b.tail-b.head) < len(b.buf) {
			return b.pushLocked(p), nil
		}
		switch {
		case timeout == 0:
			return 0, ErrWouldBlock
		case timeout > 0:
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, ErrTimeout
			}
			b.waitSignal(b.canWrite, remaining)
		default:
			b.waitSignal(b.canWrite, NoTimeout)
		}
	}
}

// PopWait pops like Pop but blocks while the buffer is empty. It
// transfers bytes in a single round: once at least one byte is
// buffered it pops up to len(p) and returns.
//
// The timeout follows the same encoding as PushWait: NoTimeout blocks
// indefinitely, zero fails immediately with ErrWouldBlock when the
// buffer is empty, and a positive value fails with ErrTimeout once it
// elapses with the buffer still empty. A round that times out
// transfers nothing.
func (b *Buffer) PopWait(p []byte, timeout time.Duration) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if err := b.popErrLocked(); err != nil {
			return 0, err
		}
		if b.tail != b.head {
			return b.popLocked(p), nil
		}
		if b.closeWrite {
			return 0, io.EOF
		}
		switch {
		case timeout == 0:
			return 0, ErrWouldBlock
		case timeout > 0:
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, ErrTimeout
			}
			b.waitSignal(b.canRead, remaining)
		default:
			b.waitSignal(b.canRead, NoTimeout)
		}
	}
}

// Discard removes and discards the next n buffered bytes without
// reading them. If n exceeds the buffered count, the buffer is
// emptied. A non-positive n returns immediately regardless of buffer
// state. The freed space wakes blocked writers.
//
// Returns an error if the buffer has been closed with an error.
func (b *Buffer) Discard(n int) error {
	if n <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return fmt.Errorf("mempipe: discard from closed buffer: %w", b.closeErr)
	}
	if n > int(b.tail-b.head) {
		b.head = b.tail
	} else {
		b.head += int64(n)
	}
	b.signalLocked(b.canWrite)
	if b.tail == b.head {
		b.signalLocked(b.emptied)
	}
	return nil
}

// Reset discards all buffered bytes, freeing the full capacity and
// waking blocked writers. Reset does not reopen a closed buffer.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.tail = 0
	b.signalLocked(b.canWrite)
	b.signalLocked(b.emptied)
}

// Len returns the number of buffered bytes. The value is always
// between 0 and Cap().
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.tail - b.head)
}

// Cap returns the fixed capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Free returns the number of bytes that can be pushed without
// blocking.
func (b *Buffer) Free() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf) - int(b.tail-b.head)
}

// Bytes returns a copy of the buffered bytes in FIFO order without
// consuming them.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	avail := int(b.tail - b.head)
	if avail == 0 {
		return nil
	}
	head := int(b.head % int64(len(b.buf)))
	if head+avail <= len(b.buf) {
		return slices.Clone(b.buf[head : head+avail])
	}
	return slices.Concat(b.buf[head:], b.buf[:head+avail-len(b.buf)])
}

// CloseWrite closes the buffer for pushing. Subsequent pushes fail
// with io.ErrClosedPipe; pops continue to drain buffered bytes and
// then return io.EOF. All blocked operations are woken.
//
// Returns nil if the write side was already closed.
func (b *Buffer) CloseWrite() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeWrite {
		return nil
	}
	b.closeWrite = true
	b.closeChannelsLocked()
	return nil
}

// CloseRead abandons the buffer from the consuming side. Buffered
// bytes are discarded and both pushes and pops fail with
// io.ErrClosedPipe afterwards, since nothing will ever drain the
// buffer again. All blocked operations are woken.
//
// Returns nil if the read side was already closed.
func (b *Buffer) CloseRead() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeRead {
		return nil
	}
	b.closeRead = true
	b.head = b.tail
	b.closeChannelsLocked()
	return nil
}

// Close fully closes the buffer in both directions, discarding any
// buffered bytes. Subsequent operations fail with io.ErrClosedPipe.
//
// This method implements the io.Closer interface.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeWrite = true
	b.closeRead = true
	b.head = b.tail
	b.closeChannelsLocked()
	return nil
}

// CloseWithError closes both directions of the buffer with the given
// error. All pending and subsequent operations fail with err. If err
// is nil, io.ErrClosedPipe is used. The first close error sticks;
// later calls do not overwrite it.
//
// Returns nil if the buffer was already closed with an error.
func (b *Buffer) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return nil
	}
	b.closeErr = err
	b.closeWrite = true
	b.closeRead = true
	b.closeChannelsLocked()
	return nil
}

// Error returns the error the buffer was closed with, or nil if the
// buffer is open or was closed without one.
func (b *Buffer) Error() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeErr
}

// pushLocked copies as much of p as fits, advances tail, and signals
// waiters. Caller holds mu and has checked the close state.
func (b *Buffer) pushLocked(p []byte) int {
	free := len(b.buf) - int(b.tail-b.head)
	if free == 0 {
		return 0
	}
	tail := int(b.tail % int64(len(b.buf)))

	var n int
	if tail+free <= len(b.buf) {
		n = copy(b.buf[tail:tail+free], p)
	} else {
		n = copy(b.buf[tail:], p)
		n += copy(b.buf[:free-n], p[n:])
	}

	b.tail += int64(n)
	b.signalLocked(b.canRead)
	if int(b.tail-b.head) < len(b.buf) {
		b.signalLocked(b.canWrite)
	}
	return n
}

// popLocked moves up to len(p) bytes into p, advances head, and
// signals waiters. Caller holds mu and has checked the close state.
func (b *Buffer) popLocked(p []byte) int {
	avail := int(b.tail - b.head)
	if avail == 0 {
		return 0
	}
	head := int(b.head % int64(len(b.buf)))

	var n int
	if head+avail <= len(b.buf) {
		n = copy(p, b.buf[head:head+avail])
	} else {
		n = copy(p, b.buf[head:])
		n += copy(p[n:], b.buf[:avail-n])
	}

	b.head += int64(n)
	b.signalLocked(b.canWrite)
	if b.tail != b.head {
		b.signalLocked(b.canRead)
	} else {
		b.signalLocked(b.emptied)
	}
	return n
}

func (b *Buffer) pushErrLocked() error {
	if b.closeErr != nil {
		return fmt.Errorf("mempipe: push to closed buffer: %w", b.closeErr)
	}
	if b.closeRead || b.closeWrite {
		return fmt.Errorf("mempipe: push to closed buffer: %w", io.ErrClosedPipe)
	}
	return nil
}

func (b *Buffer) popErrLocked() error {
	if b.closeErr != nil {
		return fmt.Errorf("mempipe: pop from closed buffer: %w", b.closeErr)
	}
	if b.closeRead {
		return fmt.Errorf("mempipe: pop from closed buffer: %w", io.ErrClosedPipe)
	}
	return nil
}

// waitEmpty blocks until the buffer drains to empty, bounded by the
// given timeout per the usual encoding. An already drained buffer
// reports success even after a close; otherwise any close fails the
// wait.
func (b *Buffer) waitEmpty(timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if b.tail == b.head {
			// Hand the drain signal on to any other waiter.
			b.signalLocked(b.emptied)
			return nil
		}
		if b.closeErr != nil {
			return fmt.Errorf("mempipe: flush closed buffer: %w", b.closeErr)
		}
		if b.closeRead || b.closeWrite {
			return fmt.Errorf("mempipe: flush closed buffer: %w", io.ErrClosedPipe)
		}
		switch {
		case timeout == 0:
			return ErrWouldBlock
		case timeout > 0:
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrTimeout
			}
			b.waitSignal(b.emptied, remaining)
		default:
			b.waitSignal(b.emptied, NoTimeout)
		}
	}
}

// waitSignal blocks until ch delivers or is closed, or until the
// budget elapses (a negative budget waits indefinitely). Caller holds
// mu; the lock is released for the duration of the wait and reacquired
// before returning. Wakeups may be spurious, so callers re-check state
// in a loop.
func (b *Buffer) waitSignal(ch <-chan struct{}, budget time.Duration) {
	b.mu.Unlock()
	defer b.mu.Lock()
	if budget < 0 {
		<-ch
		return
	}
	t := time.NewTimer(budget)
	defer t.Stop()
	select {
	case <-ch:
	case <-t.C:
	}
}

// signalLocked delivers a non-blocking wakeup token on ch. Tokens are
// dropped when one is already pending. Caller holds mu.
func (b *Buffer) signalLocked(ch chan struct{}) {
	if b.chClosed {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// closeChannelsLocked permanently wakes every current and future
// waiter. Called once by whichever close transition happens first;
// caller holds mu.
func (b *Buffer) closeChannelsLocked() {
	if b.chClosed {
		return
	}
	b.chClosed = true
	close(b.canRead)
	close(b.canWrite)
	close(b.emptied)
}
