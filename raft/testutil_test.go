package raft

import "sync"

// fakeLog is a minimal in-memory raft.Log kept inside the raft package's
// own test files to avoid an import cycle with storage (which imports
// raft). It mirrors storage.MemLog's 1-indexed slice shape.
type fakeLog struct {
	mu          sync.Mutex
	entries     []LogEntry
	currentTerm uint64
	votedFor    PeerID
	hasVotedFor bool
}

func newFakeLog() *fakeLog { return &fakeLog{} }

func (l *fakeLog) GetLastIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.entries))
}

func (l *fakeLog) GetLastTerm() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

func (l *fakeLog) GetEntry(index uint64) (LogEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index == 0 || index > uint64(len(l.entries)) {
		return LogEntry{}, false
	}
	return l.entries[index-1], true
}

func (l *fakeLog) GetTerm(index uint64) uint64 {
	e, ok := l.GetEntry(index)
	if !ok {
		return 0
	}
	return e.Term
}

func (l *fakeLog) Append(entries []LogEntry) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entries...)
	return uint64(len(l.entries)), nil
}

func (l *fakeLog) Truncate(prevIndex uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prevIndex < uint64(len(l.entries)) {
		l.entries = l.entries[:prevIndex]
	}
	return nil
}

func (l *fakeLog) GetCurrentTerm() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTerm, nil
}

func (l *fakeLog) GetVotedFor() (PeerID, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.votedFor, l.hasVotedFor, nil
}

func (l *fakeLog) SetTermAndVotedFor(term uint64, votedFor PeerID, hasVotedFor bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentTerm = term
	l.votedFor = votedFor
	l.hasVotedFor = hasVotedFor
	return nil
}

// fakeTransport records every message handed to Send instead of putting
// it on a wire, so a test can inspect exactly what a Replica tried to
// broadcast.
type fakeTransport struct {
	mu  sync.Mutex
	out []sentMsg
}

type sentMsg struct {
	to  PeerID
	msg any
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (t *fakeTransport) Send(to PeerID, msg any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out = append(t.out, sentMsg{to: to, msg: msg})
}

func (t *fakeTransport) sent() []sentMsg {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sentMsg, len(t.out))
	copy(out, t.out)
	return out
}

func (t *fakeTransport) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out = nil
}

// fakeSM is a deterministic StateMachine: it appends every applied
// command to a slice and echoes it back as the result.
type fakeSM struct {
	mu      sync.Mutex
	applied [][]byte
}

func newFakeSM() *fakeSM { return &fakeSM{} }

func (s *fakeSM) Apply(cmd []byte) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, cmd)
	return string(cmd)
}

func (s *fakeSM) appliedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

// newTestReplica builds a Follower Replica wired to fakeLog/fakeTransport
// with the given stable configuration, without starting its run
// goroutine: tests that want white-box access call the unexported
// handlers directly instead of going through the inbox channel.
func newTestReplica(me PeerID, servers []PeerID) (*Replica, *fakeLog, *fakeTransport, *fakeSM) {
	log := newFakeLog()
	tr := newFakeTransport()
	sm := newFakeSM()
	r := NewReplica(me, log, tr, sm, WithInitialConfig(StableConfig(servers)))
	return r, log, tr, sm
}
