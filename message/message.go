// Package message defines the wire-level record exchanged between every
// pair of nodes in the simulated two-phase commit protocol.
package message

import "fmt"

// Type identifies the kind of a ProtocolMessage. The set is closed; each
// node switches only on the types it acts on and discards the rest.
type Type int

const (
	// ClientRequest is sent by a client asking the coordinator to commit a
	// new transaction.
	ClientRequest Type = iota
	// CoordinatorPropose is the phase-1 prepare broadcast to a participant.
	CoordinatorPropose
	// ParticipantVoteCommit is a participant's phase-1 commit vote.
	ParticipantVoteCommit
	// ParticipantVoteAbort is a participant's phase-1 abort vote.
	ParticipantVoteAbort
	// CoordinatorCommit is the phase-2 global commit decision.
	CoordinatorCommit
	// CoordinatorAbort is the phase-2 global abort decision.
	CoordinatorAbort
	// ClientResultCommit is the coordinator's commit reply to a client.
	ClientResultCommit
	// ClientResultAbort is the coordinator's abort reply to a client.
	ClientResultAbort
	// CoordinatorExit is the termination signal propagated to all peers.
	CoordinatorExit
)

func (t Type) String() string {
	switch t {
	case ClientRequest:
		return "ClientRequest"
	case CoordinatorPropose:
		return "CoordinatorPropose"
	case ParticipantVoteCommit:
		return "ParticipantVoteCommit"
	case ParticipantVoteAbort:
		return "ParticipantVoteAbort"
	case CoordinatorCommit:
		return "CoordinatorCommit"
	case CoordinatorAbort:
		return "CoordinatorAbort"
	case ClientResultCommit:
		return "ClientResultCommit"
	case ClientResultAbort:
		return "ClientResultAbort"
	case CoordinatorExit:
		return "CoordinatorExit"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ProtocolMessage is the only inter-node exchange. It is value-typed and
// freely copyable; equality is structural (comparable via ==).
type ProtocolMessage struct {
	MType    Type
	TxID     string
	SenderID string
	OpID     uint64
}

// Generate builds a ProtocolMessage from its fields, mirroring the
// constructor shape the reference implementation names "generate".
func Generate(mtype Type, txid string, senderID string, opid uint64) ProtocolMessage {
	return ProtocolMessage{
		MType:    mtype,
		TxID:     txid,
		SenderID: senderID,
		OpID:     opid,
	}
}

func (m ProtocolMessage) String() string {
	return fmt.Sprintf("%s(txid=%s, sender=%s, opid=%d)", m.MType, m.TxID, m.SenderID, m.OpID)
}
