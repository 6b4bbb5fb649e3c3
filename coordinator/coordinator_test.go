package coordinator

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

func newTestManager(t *testing.T) (*Manager, *atomic.Bool) {
	t.Helper()
	log, err := oplog.Open(filepath.Join(t.TempDir(), "coordinator"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	var running atomic.Bool
	running.Store(true)
	return New(&running, log), &running
}

func TestParticipantJoinAfterQuiescentPanics(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.state = ProposalSent

	assert.Panics(t, func() {
		_, side := transport.NewPair(1)
		mgr.ParticipantJoin("late", side)
	})
}

func TestRunTransactionCommitsWhenAllVote(t *testing.T) {
	mgr, _ := newTestManager(t)

	coordP1, partEp1 := transport.NewPair(8)
	coordP2, partEp2 := transport.NewPair(8)
	mgr.ParticipantJoin("p1", coordP1)
	mgr.ParticipantJoin("p2", coordP2)

	coordC, clientEp := transport.NewPair(8)
	mgr.ClientJoin("c1", coordC)

	go autoVote(partEp1, message.ParticipantVoteCommit)
	go autoVote(partEp2, message.ParticipantVoteCommit)

	req := pendingRequest{txid: "c1_op_1", opid: 1, clientID: "c1"}
	mgr.runTransaction(req)

	result := recvFromT(t, clientEp)
	assert.Equal(t, message.ClientResultCommit, result.MType)

	successful, failed := mgr.Counts()
	assert.EqualValues(t, 1, successful)
	assert.EqualValues(t, 0, failed)

	entries, err := mgr.log.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, message.CoordinatorCommit, entries[0].Message.MType)
}

func TestRunTransactionAbortsOnAnyAbortVote(t *testing.T) {
	mgr, _ := newTestManager(t)

	coordP1, partEp1 := transport.NewPair(8)
	coordP2, partEp2 := transport.NewPair(8)
	mgr.ParticipantJoin("p1", coordP1)
	mgr.ParticipantJoin("p2", coordP2)

	coordC, clientEp := transport.NewPair(8)
	mgr.ClientJoin("c1", coordC)

	go autoVote(partEp1, message.ParticipantVoteCommit)
	go autoVote(partEp2, message.ParticipantVoteAbort)

	req := pendingRequest{txid: "c1_op_1", opid: 1, clientID: "c1"}
	mgr.runTransaction(req)

	result := recvFromT(t, clientEp)
	assert.Equal(t, message.ClientResultAbort, result.MType)

	successful, failed := mgr.Counts()
	assert.EqualValues(t, 0, successful)
	assert.EqualValues(t, 1, failed)
}

func TestRunTransactionAbortsOnVoteTimeout(t *testing.T) {
	mgr, _ := newTestManager(t)

	coordP1, _ := transport.NewPair(8) // never votes
	mgr.ParticipantJoin("p1", coordP1)

	coordC, clientEp := transport.NewPair(8)
	mgr.ClientJoin("c1", coordC)

	req := pendingRequest{txid: "c1_op_1", opid: 1, clientID: "c1"}
	mgr.runTransaction(req)

	result := recvFromT(t, clientEp)
	assert.Equal(t, message.ClientResultAbort, result.MType)
}

// autoVote receives a CoordinatorPropose and immediately replies with vote.
func autoVote(ep transport.Endpoint, vote message.Type) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg, status, _ := ep.TryRecv()
		if status == transport.RecvOK {
			pm := msg.(message.ProtocolMessage)
			if pm.MType == message.CoordinatorPropose {
				ep.Send(message.Generate(vote, pm.TxID, "participant", pm.OpID))
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
}

func recvFromT(t *testing.T, ep transport.Endpoint) message.ProtocolMessage {
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
