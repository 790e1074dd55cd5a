// Package mempipe provides in-memory, thread-safe, bidirectional byte
// pipes for tests that need a stand-in for sockets, serial ports, or OS
// pipes without touching real I/O.
//
// The package offers three layers, each building on the one below:
//
//   - Buffer: A fixed-capacity circular byte buffer with non-blocking
//     Push/Pop and timeout-bounded PushWait/PopWait. Strict FIFO,
//     partial transfers reported through byte counts.
//
//   - Pipe: A stream endpoint over one or two Buffers. Loopback wires
//     an endpoint to itself; Pair produces two cross-wired endpoints
//     forming a full-duplex channel. Pipes implement io.Reader and
//     io.Writer with independently configurable read and write
//     timeouts.
//
//   - Conn and Listener: net.Conn and net.Listener adapters over Pipe
//     pairs, so code written against the net interfaces can run
//     entirely in memory.
//
// Blocking operations accept three timeout regimes: NoTimeout waits
// indefinitely, zero makes the operation non-blocking (failing with
// ErrWouldBlock when nothing can move), and a positive duration bounds
// the wait (failing with ErrTimeout on expiry). Timeouts are snapshots
// taken when a call starts; changing them never affects calls already
// in flight.
//
// Example usage:
//
//	// A pair of connected endpoints, 4KB each direction.
//	client, server, _ := mempipe.Pair(4096)
//
//	go server.Write([]byte("hello"))
//
//	buf := make([]byte, 5)
//	io.ReadFull(client, buf)
//
//	client.Close()
//	server.Close()
package mempipe
