// Package transport provides the channel-based peer endpoints the core
// protocol polls: an Endpoint interface describing the non-blocking
// send/receive contract every node depends on, and a Go-channel-backed
// implementation suitable for an in-process simulation.
package transport

import "errors"

// ErrClosed is returned by TryRecv when the endpoint's receive channel has
// been closed. ChannelEndpoint.Close does not close that channel; it only
// makes later Sends on the closed endpoint fail.
var ErrClosed = errors.New("transport: endpoint closed")

// RecvStatus classifies the outcome of a non-blocking receive.
type RecvStatus int

const (
	// RecvOK indicates a message was returned.
	RecvOK RecvStatus = iota
	// RecvEmpty indicates no message was available; not an error.
	RecvEmpty
	// RecvError indicates the channel is closed or otherwise unusable.
	RecvError
)

// Endpoint is a bidirectional, per-pair message channel. A non-blocking
// receive returns one of {ok, empty, error}; a send returns whether it
// succeeded, and a failed send is always discardable (never fatal to the
// caller).
type Endpoint interface {
	// TryRecv performs a non-blocking receive. It never blocks.
	TryRecv() (msg any, status RecvStatus, err error)
	// Send attempts to hand off msg to the peer. ok is false if the
	// message was dropped (buffer full, peer gone); callers MUST treat a
	// false return the same as a lossy network and move on.
	Send(msg any) (ok bool)
	// Close releases the endpoint. Safe to call once by the owner.
	Close()
}

// ChannelEndpoint is a Go-channel backed Endpoint: one end of a
// peer-to-peer pair. Two ChannelEndpoints wired to each other's channels
// form the bidirectional link a node holds per peer.
type ChannelEndpoint struct {
	recv   <-chan any
	send   chan<- any
	closed chan struct{}
}

// NewPair builds two ChannelEndpoints that are each other's mirror: sends on
// a are received on b and vice versa. bufSize controls how many
// in-flight messages each direction tolerates before Send starts dropping.
func NewPair(bufSize int) (a, b *ChannelEndpoint) {
	ab := make(chan any, bufSize)
	ba := make(chan any, bufSize)
	a = &ChannelEndpoint{recv: ba, send: ab, closed: make(chan struct{})}
	b = &ChannelEndpoint{recv: ab, send: ba, closed: make(chan struct{})}
	return a, b
}

// TryRecv implements Endpoint.
func (c *ChannelEndpoint) TryRecv() (any, RecvStatus, error) {
	select {
	case msg, ok := <-c.recv:
		if !ok {
			return nil, RecvError, ErrClosed
		}
		return msg, RecvOK, nil
	default:
		return nil, RecvEmpty, nil
	}
}

// Send implements Endpoint. A full buffer or a Close on this endpoint both
// count as a dropped, discardable send: the caller swallows the failure and
// moves on. A Close on the peer endpoint is not detected here.
func (c *ChannelEndpoint) Send(msg any) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close implements Endpoint.
func (c *ChannelEndpoint) Close() {
	select {
	case <-c.closed:
		// already closed
	default:
		close(c.closed)
	}
}
