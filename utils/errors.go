// Package utils holds small sentinel errors shared across the protocol
// packages.
package utils

import "errors"

// ErrAlreadyJoined is returned by the coordinator's join calls; ErrTimeout
// is not returned by any package. Recoverable protocol conditions (channel
// empty, vote timeout, decision timeout, result timeout) are converted to a
// counter increment rather than surfaced as an error value.
var (
	// ErrTimeout marks a deadline that elapsed waiting for a peer.
	ErrTimeout = errors.New("twopcsim: timeout")
	// ErrAlreadyJoined marks a duplicate registration under the same name.
	ErrAlreadyJoined = errors.New("twopcsim: peer already joined")
)
