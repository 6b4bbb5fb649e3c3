// Package oplog implements the per-node append-only decision log backing
// each participant's and the coordinator's durable record of votes and
// decisions, storing one entry per ProtocolMessage in a
// github.com/tidwall/wal log keyed by WAL index as the sequence number.
package oplog

import (
	"sync"

	json "github.com/goccy/go-json"
	"github.com/tidwall/wal"

	"twopcsim/message"
)

// Entry is a single durable record: a ProtocolMessage plus the sequence
// number it was assigned on append.
type Entry struct {
	SeqNo   uint64
	Message message.ProtocolMessage
}

// entryWire is the on-disk encoding of an Entry; SeqNo is recovered from the
// WAL index on read, so only the message fields are persisted.
type entryWire struct {
	MType    message.Type `json:"mtype"`
	TxID     string       `json:"txid"`
	SenderID string       `json:"senderid"`
	OpID     uint64       `json:"opid"`
}

// OpLog is bound to a single WAL directory at construction and accessed by one
// node only; there is no cross-node sharing.
type OpLog struct {
	mu  sync.Mutex
	log *wal.Log
}

// Open creates or reopens the log at dir. The log is append-only: existing
// entries from a prior run at the same path are preserved and observed by
// ReadAll.
func Open(dir string) (*OpLog, error) {
	l, err := wal.Open(dir, nil)
	if err != nil {
		return nil, err
	}
	return &OpLog{log: l}, nil
}

// Append constructs a ProtocolMessage, assigns the next sequence number, and
// durably records it before returning.
func (o *OpLog) Append(mtype message.Type, txid string, senderID string, opid uint64) (Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	wire := entryWire{MType: mtype, TxID: txid, SenderID: senderID, OpID: opid}
	data, err := json.Marshal(wire)
	if err != nil {
		return Entry{}, err
	}

	idx, err := o.log.LastIndex()
	if err != nil {
		return Entry{}, err
	}
	seqno := idx + 1

	if err := o.log.Write(seqno, data); err != nil {
		return Entry{}, err
	}

	return Entry{SeqNo: seqno, Message: message.Generate(mtype, txid, senderID, opid)}, nil
}

// ReadAll returns the ordered list of entries durably recorded so far.
func (o *OpLog) ReadAll() ([]Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	first, err := o.log.FirstIndex()
	if err != nil {
		return nil, err
	}
	last, err := o.log.LastIndex()
	if err != nil {
		return nil, err
	}
	if first == 0 || last == 0 || first > last {
		return nil, nil
	}

	entries := make([]Entry, 0, last-first+1)
	for idx := first; idx <= last; idx++ {
		data, err := o.log.Read(idx)
		if err != nil {
			return nil, err
		}
		var wire entryWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			SeqNo:   idx,
			Message: message.Generate(wire.MType, wire.TxID, wire.SenderID, wire.OpID),
		})
	}
	return entries, nil
}

// Close releases the underlying WAL file handle.
func (o *OpLog) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.log.Close()
}
