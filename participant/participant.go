// Package participant implements the participant side of the two-phase
// commit protocol: it votes on a proposed transaction via a local
// success/failure trial, then waits for the coordinator's global decision,
// durably logging its commit votes and the eventual decision.
package participant

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"twopcsim/configs"
	"twopcsim/message"
	"twopcsim/oplog"
	"twopcsim/transport"
)

// State is the participant's 2PC state machine. Initial and terminal state
// is Quiescent.
type State int

const (
	Quiescent State = iota
	ReceivedP1
	VotedAbort
	VotedCommit
	AwaitingGlobalDecision
)

// Participant services proposals from a single coordinator, voting on each
// transaction via a Bernoulli trial and durably logging its commit votes
// and the eventual global decision. Abort votes are not logged.
type Participant struct {
	ID      string
	running *atomic.Bool
	ep      transport.Endpoint
	log     *oplog.OpLog

	sendSuccessProb      float64
	operationSuccessProb float64
	rng                  *rand.Rand

	state State

	successfulOps uint64
	failedOps     uint64
	unknownOps    uint64
}

// New constructs a Participant. sendSuccessProb and operationSuccessProb are
// independently-sampled Bernoulli knobs in [0,1].
func New(id string, running *atomic.Bool, ep transport.Endpoint, log *oplog.OpLog, sendSuccessProb, operationSuccessProb float64) *Participant {
	return &Participant{
		ID:                   id,
		running:              running,
		ep:                   ep,
		log:                  log,
		sendSuccessProb:      sendSuccessProb,
		operationSuccessProb: operationSuccessProb,
		rng:                  rand.New(rand.NewSource(time.Now().UnixNano())),
		state:                Quiescent,
	}
}

// State returns the participant's current state, for tests and observers.
func (p *Participant) State() State { return p.state }

// send attempts to deliver pm to the coordinator, dropping it silently with
// probability (1 - sendSuccessProb).
func (p *Participant) send(pm message.ProtocolMessage) {
	if p.rng.Float64() <= p.sendSuccessProb {
		if !p.ep.Send(pm) {
			configs.Tracef("%s: send failed at transport layer", p.ID)
		}
		return
	}
	configs.Tracef("%s: vote dropped by send_success_prob", p.ID)
}

// performOperation is the Bernoulli trial deciding the local vote. The
// proposal's contents are never consulted -- only the probability knob
// determines the outcome.
func (p *Participant) performOperation() bool {
	return p.rng.Float64() <= p.operationSuccessProb
}

// Protocol runs the participant's main loop until the shutdown flag clears
// or a CoordinatorExit message arrives, then drains for a late exit signal
// and reports status.
func (p *Participant) Protocol() {
	for p.running.Load() {
		msg, status, err := p.ep.TryRecv()
		switch status {
		case transport.RecvOK:
			pm := msg.(message.ProtocolMessage)
			if pm.MType == message.CoordinatorExit {
				goto exit
			}
			if pm.MType == message.CoordinatorPropose {
				p.handleProposal(pm)
			}
			// any other message type is not meaningful in Quiescent and is
			// discarded.
		case transport.RecvError:
			_ = err
			goto exit
		case transport.RecvEmpty:
			time.Sleep(configs.ParticipantDecisionPollInterval)
		}
	}

exit:
	p.waitForExitSignal()
	p.ReportStatus()
}

// handleProposal runs one full transaction from ReceivedP1 through the
// decision wait, back to Quiescent.
func (p *Participant) handleProposal(propose message.ProtocolMessage) {
	p.state = ReceivedP1
	configs.Tracef("%s: received proposal for txid %s", p.ID, propose.TxID)

	success := p.performOperation()

	var vote message.ProtocolMessage
	if success {
		p.state = VotedCommit
		if _, err := p.log.Append(message.ParticipantVoteCommit, propose.TxID, p.ID, propose.OpID); err != nil {
			configs.Warnf("%s: failed to log vote commit: %v", p.ID, err)
		}
		vote = message.Generate(message.ParticipantVoteCommit, propose.TxID, p.ID, propose.OpID)
	} else {
		p.state = VotedAbort
		vote = message.Generate(message.ParticipantVoteAbort, propose.TxID, p.ID, propose.OpID)
	}

	p.send(vote)
	p.state = AwaitingGlobalDecision

	p.awaitGlobalDecision(propose)

	p.state = Quiescent
}

// awaitGlobalDecision polls for the coordinator's CoordinatorCommit /
// CoordinatorAbort matching txid, discarding non-exit messages of any other
// txid -- a late message for a prior transaction must never be mistaken for
// this one's decision. A CoordinatorExit ends the wait as unknown.
func (p *Participant) awaitGlobalDecision(propose message.ProtocolMessage) {
	deadline := time.Now().Add(configs.DecisionWaitTimeout)

	for time.Now().Before(deadline) {
		if !p.running.Load() {
			p.unknownOps++
			return
		}

		msg, status, err := p.ep.TryRecv()
		switch status {
		case transport.RecvOK:
			pm := msg.(message.ProtocolMessage)
			if pm.MType != message.CoordinatorExit && pm.TxID != propose.TxID {
				continue // stale message for a different transaction; discard
			}
			switch pm.MType {
			case message.CoordinatorCommit:
				p.successfulOps++
				if _, err := p.log.Append(message.CoordinatorCommit, propose.TxID, p.ID, propose.OpID); err != nil {
					configs.Warnf("%s: failed to log commit decision: %v", p.ID, err)
				}
				return
			case message.CoordinatorAbort:
				p.failedOps++
				if _, err := p.log.Append(message.CoordinatorAbort, propose.TxID, p.ID, propose.OpID); err != nil {
					configs.Warnf("%s: failed to log abort decision: %v", p.ID, err)
				}
				return
			case message.CoordinatorExit:
				p.unknownOps++
				return
			}
		case transport.RecvError:
			_ = err
			p.unknownOps++
			return
		case transport.RecvEmpty:
			time.Sleep(configs.ParticipantDecisionPollInterval)
		}
	}

	configs.Tracef("%s: timeout waiting for decision on txid %s", p.ID, propose.TxID)
	p.unknownOps++
}

// waitForExitSignal drains the channel until CoordinatorExit arrives, the
// shutdown flag clears, or the channel errors.
func (p *Participant) waitForExitSignal() {
	for {
		msg, status, _ := p.ep.TryRecv()
		switch status {
		case transport.RecvOK:
			pm := msg.(message.ProtocolMessage)
			if pm.MType == message.CoordinatorExit {
				return
			}
		case transport.RecvError:
			return
		case transport.RecvEmpty:
			if !p.running.Load() {
				return
			}
			time.Sleep(configs.ExitDrainPollInterval)
		}
	}
}

// ReportStatus emits the single-line status report.
func (p *Participant) ReportStatus() {
	fmt.Printf("%s:\tC:%d\tA:%d\tU:%d\n", p.ID, p.successfulOps, p.failedOps, p.unknownOps)
}

// Counts returns the current (successful, failed, unknown) tally.
func (p *Participant) Counts() (successful, failed, unknown uint64) {
	return p.successfulOps, p.failedOps, p.unknownOps
}
