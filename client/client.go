// Package client implements the client side of the two-phase commit
// protocol: it issues a fixed number of sequential transaction requests to
// the coordinator, polling for each result with a non-blocking receive and
// a short sleep, checking the shared shutdown flag throughout.
package client

import (
	"fmt"
	"sync/atomic"
	"time"

	"twopcsim/configs"
	"twopcsim/message"
	"twopcsim/transport"
)

// Client drives a fixed number of sequential transaction requests against
// the coordinator, tallying outcomes.
type Client struct {
	ID      string
	running *atomic.Bool
	ep      transport.Endpoint

	numRequests uint64

	successfulOps uint64
	failedOps     uint64
	unknownOps    uint64
}

// New constructs a Client ready for Protocol. running is the process-wide
// shutdown flag; ep is this client's endpoint to the coordinator.
func New(id string, running *atomic.Bool, ep transport.Endpoint) *Client {
	return &Client{ID: id, running: running, ep: ep}
}

// Protocol runs the client side of the 2PC protocol for nRequests
// transactions, then waits for the coordinator's exit signal and reports
// status.
func (c *Client) Protocol(nRequests uint32) {
	c.RunRequests(nRequests)
	c.WaitForExitSignal()
	c.ReportStatus()
}

// RunRequests issues up to nRequests sequential transactions, stopping
// early if the shutdown flag clears. It is split out from Protocol so a
// harness driving many clients can detect when request issuance is done
// without waiting on the subsequent exit-signal drain, which only
// unblocks once the harness itself decides to shut the simulation down.
func (c *Client) RunRequests(nRequests uint32) {
	for i := uint32(0); i < nRequests; i++ {
		if !c.running.Load() {
			break
		}
		c.sendNextOperation()
		c.recvResult()
	}
}

// sendNextOperation increments the local counter and sends a ClientRequest
// with txid "<id>_op_<k>". A send failure is swallowed: the subsequent
// recvResult times out and counts it as unknown.
func (c *Client) sendNextOperation() {
	c.numRequests++
	txid := fmt.Sprintf("%s_op_%d", c.ID, c.numRequests)
	msg := message.Generate(message.ClientRequest, txid, c.ID, c.numRequests)
	configs.Tracef("%s: sending operation #%d", c.ID, c.numRequests)
	if !c.ep.Send(msg) {
		configs.Tracef("%s: failed to send operation #%d", c.ID, c.numRequests)
	}
}

// recvResult polls for up to ResultWaitTimeout. A commit or abort result
// terminates the wait; an exit signal, channel error, cleared shutdown
// flag, or expired deadline all count as unknown.
func (c *Client) recvResult() {
	deadline := time.Now().Add(configs.ResultWaitTimeout)

	for {
		if time.Now().After(deadline) {
			configs.Tracef("%s: timeout waiting for result", c.ID)
			c.unknownOps++
			return
		}
		if !c.running.Load() {
			c.unknownOps++
			return
		}

		msg, status, err := c.ep.TryRecv()
		switch status {
		case transport.RecvOK:
			pm := msg.(message.ProtocolMessage)
			switch pm.MType {
			case message.ClientResultCommit:
				c.successfulOps++
				return
			case message.ClientResultAbort:
				c.failedOps++
				return
			case message.CoordinatorExit:
				c.unknownOps++
				return
			}
			// any other message type observed here is not meaningful to the
			// client and is discarded.
		case transport.RecvError:
			_ = err
			c.unknownOps++
			return
		case transport.RecvEmpty:
			time.Sleep(1 * time.Millisecond)
		}
	}
}

// WaitForExitSignal drains the channel until CoordinatorExit arrives, the
// shutdown flag clears, or the channel errors.
func (c *Client) WaitForExitSignal() {
	configs.Tracef("%s: waiting for exit signal", c.ID)
	for {
		msg, status, _ := c.ep.TryRecv()
		switch status {
		case transport.RecvOK:
			pm := msg.(message.ProtocolMessage)
			if pm.MType == message.CoordinatorExit {
				return
			}
		case transport.RecvError:
			return
		case transport.RecvEmpty:
			if !c.running.Load() {
				return
			}
			time.Sleep(configs.ExitDrainPollInterval)
		}
	}
}

// ReportStatus emits the single-line status report.
func (c *Client) ReportStatus() {
	fmt.Printf("%s:\tC:%d\tA:%d\tU:%d\n", c.ID, c.successfulOps, c.failedOps, c.unknownOps)
}

// Counts returns the current (successful, failed, unknown) tally.
func (c *Client) Counts() (successful, failed, unknown uint64) {
	return c.successfulOps, c.failedOps, c.unknownOps
}
