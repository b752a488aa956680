// Package storage provides raft.Log implementations: an in-memory log
// for tests and a durable BoltDB-backed log for a real deployment.
package storage

import (
	"sync"

	"github.com/aecra/raftcore/raft"
)

// MemLog is an in-memory raft.Log. Entries are 1-indexed: entries[0]
// holds the entry at log index 1. It is safe for concurrent use so tests
// may inspect it from outside the owning Replica's goroutine.
type MemLog struct {
	mu          sync.Mutex
	entries     []raft.LogEntry
	currentTerm uint64
	votedFor    raft.PeerID
	hasVotedFor bool
}

// NewMemLog returns an empty in-memory log.
func NewMemLog() *MemLog {
	return &MemLog{}
}

func (l *MemLog) GetLastIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.entries))
}

func (l *MemLog) GetLastTerm() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

func (l *MemLog) GetEntry(index uint64) (raft.LogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index == 0 || index > uint64(len(l.entries)) {
		return raft.LogEntry{}, false
	}
	return l.entries[index-1], true
}

func (l *MemLog) GetTerm(index uint64) uint64 {
	e, ok := l.GetEntry(index)
	if !ok {
		return 0
	}
	return e.Term
}

func (l *MemLog) Append(entries []raft.LogEntry) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entries...)
	return uint64(len(l.entries)), nil
}

func (l *MemLog) Truncate(prevIndex uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prevIndex < uint64(len(l.entries)) {
		l.entries = l.entries[:prevIndex]
	}
	return nil
}

func (l *MemLog) GetCurrentTerm() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTerm, nil
}

func (l *MemLog) GetVotedFor() (raft.PeerID, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.votedFor, l.hasVotedFor, nil
}

func (l *MemLog) SetTermAndVotedFor(term uint64, votedFor raft.PeerID, hasVotedFor bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentTerm = term
	l.votedFor = votedFor
	l.hasVotedFor = hasVotedFor
	return nil
}
