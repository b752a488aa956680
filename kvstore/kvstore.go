// Package kvstore is the example state machine replicated by the raft
// cluster: a flat string key-value store with compare-and-swap, driven
// through raft.StateMachine's byte-command interface.
package kvstore

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/aecra/raftcore/raft"
)

// Operation names accepted in a Command.
const (
	OpPut    = "put"
	OpGet    = "get"
	OpDelete = "delete"
	OpSwap   = "swap"
)

// Command is the wire format a client submits via Op: gob-encode it with
// EncodeCommand before calling raft.Replica.Op.
type Command struct {
	Op    string
	Key   string
	Value string
	// Prev is the expected current value for OpSwap; the swap is
	// rejected when it does not match.
	Prev string
}

// Reply is the value returned by Apply (and, once the owning entry
// commits, surfaced as Result.Value from raft.Op). Value carries the
// read or written value, or for a failed swap the value actually found.
type Reply struct {
	OK    bool
	Value string
}

// EncodeCommand gob-encodes c for use as a raft.LogEntry's Op payload.
func EncodeCommand(c Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Store holds the replicated key space. Access is guarded by a mutex
// even though raft.Replica only ever calls Apply from its own single
// event-loop goroutine, because tests and any observability code reading
// the store directly run on other goroutines.
type Store struct {
	mu   sync.Mutex
	data map[string]string
}

// New returns an empty Store as a raft.StateMachine.
func New() raft.StateMachine {
	return &Store{data: make(map[string]string)}
}

// Apply decodes cmd as a Command and dispatches it. An undecodable or
// unrecognized command yields a failed Reply rather than a panic, since
// by the time an entry commits there is no client left to report a
// decode error to synchronously.
func (s *Store) Apply(cmd []byte) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Command
	if err := gob.NewDecoder(bytes.NewReader(cmd)).Decode(&c); err != nil {
		return Reply{}
	}

	switch c.Op {
	case OpPut:
		s.data[c.Key] = c.Value
		return Reply{OK: true, Value: c.Value}
	case OpGet:
		v, ok := s.data[c.Key]
		return Reply{OK: ok, Value: v}
	case OpDelete:
		v, ok := s.data[c.Key]
		if ok {
			delete(s.data, c.Key)
		}
		return Reply{OK: ok, Value: v}
	case OpSwap:
		v := s.data[c.Key]
		if v != c.Prev {
			return Reply{OK: false, Value: v}
		}
		s.data[c.Key] = c.Value
		return Reply{OK: true, Value: c.Value}
	default:
		return Reply{}
	}
}
