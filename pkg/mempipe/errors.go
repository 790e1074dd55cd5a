package mempipe

import (
	"errors"
	"net"
)

// ErrInvalidCapacity is returned by constructors when the requested
// buffer capacity is zero or negative. A buffer that can never hold a
// byte cannot make progress, so the configuration is rejected up front.
var ErrInvalidCapacity = errors.New("mempipe: buffer capacity must be positive")

// ErrTimeout is returned when a bounded wait expires before any bytes
// could be transferred. The operation performed no partial transfer in
// that round and may be retried. ErrTimeout satisfies net.Error with
// Timeout() == true.
var ErrTimeout error = &netError{msg: "mempipe: i/o timeout", timeout: true}

// ErrWouldBlock is returned by an operation with a zero timeout when no
// bytes are immediately transferable. The operation may be retried.
var ErrWouldBlock error = &netError{msg: "mempipe: operation would block"}

// netError carries the timeout classification the net package expects
// from transport errors.
type netError struct {
	msg     string
	timeout bool
}

func (e *netError) Error() string   { return e.msg }
func (e *netError) Timeout() bool   { return e.timeout }
func (e *netError) Temporary() bool { return true }

var _ net.Error = (*netError)(nil)
