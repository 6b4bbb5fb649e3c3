// Package coordinator implements the coordinator side of the two-phase
// commit protocol: it collects a client request, proposes it to every
// participant, tallies votes, decides, and disseminates the global
// decision, logging the decision durably before it is sent.
package coordinator

import (
	"fmt"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set"
	golock "github.com/viney-shih/go-lock"

	"twopcsim/configs"
	"twopcsim/message"
	"twopcsim/oplog"
	"twopcsim/transport"
	"twopcsim/utils"
)

// State is the coordinator's 2PC state machine. The field advances through
// each transaction's phases but is never reset back to Quiescent once a
// transaction completes. No protocol decision depends on it; the only check
// of it is the Quiescent guard in ParticipantJoin/ClientJoin, which
// therefore refuses every registration once the first transaction has
// started.
type State int

const (
	Quiescent State = iota
	ReceivedRequest
	ProposalSent
	ReceivedVotesAbort
	ReceivedVotesCommit
	SentGlobalDecision
)

// Manager runs the coordinator side of the protocol. It serializes
// transactions one at a time, so vote/decision correlation by txid alone
// is sufficient -- there is never more than one outstanding transaction to
// confuse a late message with.
type Manager struct {
	state State
	log   *oplog.OpLog

	// mu guards participants/clients: ParticipantJoin/ClientJoin can race
	// the protocol loop's iteration over these maps when peers register
	// from a separate goroutine.
	mu           golock.RWMutex
	participants map[string]transport.Endpoint
	clients      map[string]transport.Endpoint

	running *atomic.Bool

	successfulOps uint64
	failedOps     uint64
}

// New constructs a Manager in state Quiescent, logging decisions to log.
func New(running *atomic.Bool, log *oplog.OpLog) *Manager {
	return &Manager{
		state:        Quiescent,
		log:          log,
		mu:           golock.NewCASMutex(),
		participants: map[string]transport.Endpoint{},
		clients:      map[string]transport.Endpoint{},
		running:      running,
	}
}

// State returns the coordinator's current (cosmetic, see type doc) state.
func (c *Manager) State() State { return c.state }

// ParticipantJoin registers a participant endpoint. Valid only while the
// coordinator is in Quiescent; any other call is a programmer error and
// panics. Names are unique strings within their kind; a duplicate name
// returns utils.ErrAlreadyJoined.
func (c *Manager) ParticipantJoin(name string, ep transport.Endpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	configs.Assert(c.state == Quiescent, "participant_join called outside Quiescent")
	if _, exists := c.participants[name]; exists {
		return utils.ErrAlreadyJoined
	}
	c.participants[name] = ep
	return nil
}

// ClientJoin registers a client endpoint. Valid only while the coordinator
// is in Quiescent; any other call is a programmer error and panics. Names
// are unique strings within their kind; a duplicate name returns
// utils.ErrAlreadyJoined.
func (c *Manager) ClientJoin(name string, ep transport.Endpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	configs.Assert(c.state == Quiescent, "client_join called outside Quiescent")
	if _, exists := c.clients[name]; exists {
		return utils.ErrAlreadyJoined
	}
	c.clients[name] = ep
	return nil
}

// pendingRequest identifies an in-flight client request being serviced.
type pendingRequest struct {
	txid     string
	opid     uint64
	clientID string
}

// Protocol runs the coordinator's main loop while the shutdown flag is set,
// then disseminates exit messages and reports status.
func (c *Manager) Protocol() {
	for c.running.Load() {
		req, ok := c.pickupRequest()
		if !ok {
			time.Sleep(configs.HotPollInterval)
			continue
		}

		c.runTransaction(req)
	}

	c.disseminateExit()
	time.Sleep(configs.ShutdownGracePeriod)
	c.ReportStatus()
}

// pickupRequest iterates registered clients in map order and returns the
// first ClientRequest observed via a non-blocking receive. Empty or
// errored channels are skipped, not removed.
func (c *Manager) pickupRequest() (pendingRequest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, ep := range c.clients {
		msg, status, err := ep.TryRecv()
		if status != transport.RecvOK {
			_ = err
			continue
		}
		pm := msg.(message.ProtocolMessage)
		if pm.MType != message.ClientRequest {
			continue
		}
		configs.Tracef("coordinator: received request from %s", name)
		return pendingRequest{txid: pm.TxID, opid: pm.OpID, clientID: name}, true
	}
	return pendingRequest{}, false
}

// runTransaction drives one transaction through phase 1 (propose, collect
// votes), the decision, and phase 2 (disseminate, reply to client).
func (c *Manager) runTransaction(req pendingRequest) {
	c.state = ProposalSent
	configs.Tracef("coordinator: sending proposal for txid %s", req.txid)

	propose := message.Generate(message.CoordinatorPropose, req.txid, "coordinator", req.opid)
	c.broadcastToParticipants(propose)

	votesCommit, votesAbort, numParticipants := c.collectVotes(req)

	commit := votesCommit == numParticipants && votesAbort == 0

	var decisionType, resultType message.Type
	if commit {
		c.successfulOps++
		c.state = ReceivedVotesCommit
		decisionType = message.CoordinatorCommit
		resultType = message.ClientResultCommit
		configs.Tracef("coordinator: decided COMMIT for txid %s", req.txid)
	} else {
		c.failedOps++
		c.state = ReceivedVotesAbort
		decisionType = message.CoordinatorAbort
		resultType = message.ClientResultAbort
		configs.Tracef("coordinator: decided ABORT for txid %s", req.txid)
	}

	// Log the decision before sending it: a crash after logging but before
	// broadcast still leaves a durable record of what was decided.
	if _, err := c.log.Append(decisionType, req.txid, "coordinator", req.opid); err != nil {
		configs.Warnf("coordinator: failed to log decision for txid %s: %v", req.txid, err)
	}

	decision := message.Generate(decisionType, req.txid, "coordinator", req.opid)
	c.broadcastToParticipants(decision)

	result := message.Generate(resultType, req.txid, "coordinator", req.opid)
	c.replyToClient(req.clientID, result)

	c.state = SentGlobalDecision
}

// collectVotes aggregates participant votes for req until every
// participant has voted, the vote-collection deadline elapses, the
// shutdown flag clears, or any abort vote is observed (early-abort
// optimization: one abort vote is enough to decide without waiting out
// the rest).
func (c *Manager) collectVotes(req pendingRequest) (votesCommit, votesAbort, numParticipants int) {
	c.mu.RLock()
	numParticipants = len(c.participants)
	c.mu.RUnlock()

	seen := mapset.NewSet()
	deadline := time.Now().Add(configs.VoteCollectionTimeout)

	for votesCommit+votesAbort < numParticipants {
		if time.Now().After(deadline) {
			configs.Tracef("coordinator: timeout waiting for votes on txid %s", req.txid)
			break
		}
		if !c.running.Load() {
			break
		}
		if votesAbort > 0 {
			configs.Tracef("coordinator: early abort detected for txid %s", req.txid)
			break
		}

		c.mu.RLock()
		for name, ep := range c.participants {
			msg, status, err := ep.TryRecv()
			if status != transport.RecvOK {
				_ = err
				continue
			}
			pm := msg.(message.ProtocolMessage)
			if pm.TxID != req.txid {
				continue // cannot belong to a future transaction; discard
			}
			if seen.Contains(name) {
				continue // duplicate/redelivered vote; count once
			}
			switch pm.MType {
			case message.ParticipantVoteCommit:
				seen.Add(name)
				votesCommit++
			case message.ParticipantVoteAbort:
				seen.Add(name)
				votesAbort++
			}
		}
		c.mu.RUnlock()

		time.Sleep(configs.HotPollInterval)
	}

	return votesCommit, votesAbort, numParticipants
}

// broadcastToParticipants sends msg to every registered participant,
// swallowing send failures.
func (c *Manager) broadcastToParticipants(msg message.ProtocolMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, ep := range c.participants {
		if !ep.Send(msg) {
			configs.Tracef("coordinator: dropped send to participant %s", name)
		}
	}
}

// replyToClient sends msg to the named client, swallowing send failures.
func (c *Manager) replyToClient(clientID string, msg message.ProtocolMessage) {
	c.mu.RLock()
	ep, ok := c.clients[clientID]
	c.mu.RUnlock()
	if !ok {
		return
	}
	if !ep.Send(msg) {
		configs.Tracef("coordinator: dropped result send to client %s", clientID)
	}
}

// disseminateExit broadcasts CoordinatorExit to every client and
// participant.
func (c *Manager) disseminateExit() {
	exit := message.Generate(message.CoordinatorExit, "exit", "coordinator", 0)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, ep := range c.clients {
		if !ep.Send(exit) {
			configs.Tracef("coordinator: dropped exit send to client %s", name)
		}
	}
	for name, ep := range c.participants {
		if !ep.Send(exit) {
			configs.Tracef("coordinator: dropped exit send to participant %s", name)
		}
	}
}

// ReportStatus emits the single-line status report. The coordinator always
// reports under id "coordinator".
func (c *Manager) ReportStatus() {
	fmt.Printf("coordinator:\tC:%d\tA:%d\tU:%d\n", c.successfulOps, c.failedOps, uint64(0))
}

// Counts returns the current (successful, failed) tally. The coordinator
// never records an "unknown" outcome of its own -- every transaction it
// drives to completion ends decided one way or the other.
func (c *Manager) Counts() (successful, failed uint64) {
	return c.successfulOps, c.failedOps
}
