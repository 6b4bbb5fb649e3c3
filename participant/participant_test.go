package participant

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twopcsim/message"
	"twopcsim/oplog"
	"twopcsim/transport"
)

func newTestParticipant(t *testing.T, running *atomic.Bool, sendProb, opProb float64) (*Participant, transport.Endpoint) {
	t.Helper()
	coordSide, partSide := transport.NewPair(8)
	t.Cleanup(coordSide.Close)
	t.Cleanup(partSide.Close)

	log, err := oplog.Open(filepath.Join(t.TempDir(), "participant1"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	p := New("participant1", running, partSide, log, sendProb, opProb)
	return p, coordSide
}

func TestHandleProposalCommitsAndLogs(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	p, coordSide := newTestParticipant(t, &running, 1.0, 1.0)

	propose := message.Generate(message.CoordinatorPropose, "client1_op_1", "coordinator", 1)

	done := make(chan struct{})
	go func() {
		p.handleProposal(propose)
		close(done)
	}()

	vote := recvFrom(t, coordSide)
	assert.Equal(t, message.ParticipantVoteCommit, vote.MType)

	coordSide.Send(message.Generate(message.CoordinatorCommit, propose.TxID, "coordinator", 1))
	<-done

	assert.Equal(t, Quiescent, p.State())
	successful, failed, unknown := p.Counts()
	assert.EqualValues(t, 1, successful)
	assert.EqualValues(t, 0, failed)
	assert.EqualValues(t, 0, unknown)

	entries, err := p.log.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, message.ParticipantVoteCommit, entries[0].Message.MType)
	assert.Equal(t, message.CoordinatorCommit, entries[1].Message.MType)
	assert.Equal(t, propose.TxID, entries[1].Message.TxID)
}

func TestHandleProposalAbortsWhenOperationAlwaysFails(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	p, coordSide := newTestParticipant(t, &running, 1.0, 0.0)

	propose := message.Generate(message.CoordinatorPropose, "client1_op_1", "coordinator", 1)

	done := make(chan struct{})
	go func() {
		p.handleProposal(propose)
		close(done)
	}()

	vote := recvFrom(t, coordSide)
	assert.Equal(t, message.ParticipantVoteAbort, vote.MType)

	coordSide.Send(message.Generate(message.CoordinatorAbort, propose.TxID, "coordinator", 1))
	<-done

	successful, failed, _ := p.Counts()
	assert.EqualValues(t, 0, successful)
	assert.EqualValues(t, 1, failed)
}

func TestAwaitGlobalDecisionDiscardsStaleTxID(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	p, coordSide := newTestParticipant(t, &running, 1.0, 1.0)

	propose := message.Generate(message.CoordinatorPropose, "client1_op_2", "coordinator", 2)
	p.state = AwaitingGlobalDecision

	done := make(chan struct{})
	go func() {
		p.awaitGlobalDecision(propose)
		close(done)
	}()

	// A decision for a different (stale) txid must be ignored.
	coordSide.Send(message.Generate(message.CoordinatorCommit, "client1_op_1", "coordinator", 1))
	time.Sleep(20 * time.Millisecond)
	coordSide.Send(message.Generate(message.CoordinatorCommit, propose.TxID, "coordinator", 2))
	<-done

	successful, _, _ := p.Counts()
	assert.EqualValues(t, 1, successful)
}

func recvFrom(t *testing.T, ep transport.Endpoint) message.ProtocolMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg, status, _ := ep.TryRecv()
		if status == transport.RecvOK {
			return msg.(message.ProtocolMessage)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for message")
	return message.ProtocolMessage{}
}
