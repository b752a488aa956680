package raft

import "testing"

func TestCandidateLogUpToDate(t *testing.T) {
	r, log, _, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	log.Append([]LogEntry{{Term: 2, Type: EntryOp}, {Term: 3, Type: EntryOp}})
	// r's log: last index 2, last term 3.

	cases := []struct {
		name              string
		candTerm, candIdx uint64
		want              bool
	}{
		{"higher term wins regardless of index", 4, 0, true},
		{"lower term loses regardless of index", 2, 100, false},
		{"equal term, equal or greater index wins", 3, 2, true},
		{"equal term, greater index wins", 3, 5, true},
		{"equal term, lower index loses", 3, 1, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := r.candidateLogUpToDate(c.candTerm, c.candIdx)
			if got != c.want {
				t.Fatalf("candidateLogUpToDate(%d,%d) = %v, want %v", c.candTerm, c.candIdx, got, c.want)
			}
		})
	}
}

func TestBecomeCandidateBumpsTermAndVotesForSelf(t *testing.T) {
	r, log, tr, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	r.becomeCandidate()

	if r.role != Candidate {
		t.Fatalf("expected role Candidate, got %v", r.role)
	}
	if r.term != 1 {
		t.Fatalf("expected term to bump to 1, got %d", r.term)
	}
	if !r.hasVotedFor || r.votedFor != "a" {
		t.Fatal("a candidate must vote for itself in its own term")
	}
	if term, err := log.GetCurrentTerm(); err != nil || term != 1 {
		t.Fatalf("expected persisted term 1, got %d (err=%v)", term, err)
	}
	if !r.votesGranted["a"] {
		t.Fatal("self-vote must be recorded in votesGranted")
	}

	sent := tr.sent()
	if len(sent) != 2 {
		t.Fatalf("expected RequestVote sent to the 2 other peers, got %d messages", len(sent))
	}
	for _, m := range sent {
		rv, ok := m.msg.(RequestVote)
		if !ok {
			t.Fatalf("expected a RequestVote, got %T", m.msg)
		}
		if rv.Term != 1 || rv.From != "a" {
			t.Fatalf("unexpected RequestVote contents: %+v", rv)
		}
	}
}

func TestBecomeCandidateSinglePeerClusterWinsImmediately(t *testing.T) {
	r, _, _, _ := newTestReplica("a", []PeerID{"a"})
	r.becomeCandidate()
	if r.role != Leader {
		t.Fatalf("a lone voter should win its own election immediately, got role %v", r.role)
	}
	if r.leaderID != "a" {
		t.Fatalf("expected self to be recorded as leader, got %q", r.leaderID)
	}
}

func TestHandleVoteQuorumPromotesToLeader(t *testing.T) {
	r, _, _, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	r.becomeCandidate() // term becomes 1, self-vote recorded

	r.handleVote(Vote{Term: 1, From: "b", Success: true})
	if r.role != Leader {
		t.Fatalf("2-of-3 votes should win the election, got role %v", r.role)
	}
	if r.leaderID != "a" {
		t.Fatalf("expected self as leader, got %q", r.leaderID)
	}
	if _, ok := r.nextIndex["b"]; !ok {
		t.Fatal("expected followers map to include peer b")
	}
	if _, ok := r.nextIndex["c"]; !ok {
		t.Fatal("expected followers map to include peer c")
	}
}

func TestHandleVoteStaleTermIgnored(t *testing.T) {
	r, _, _, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	r.becomeCandidate() // term 1
	r.handleVote(Vote{Term: 0, From: "b", Success: true})
	if r.role != Candidate {
		t.Fatal("a vote from a stale term must not affect the current election")
	}
	if r.votesGranted["b"] {
		t.Fatal("a stale-term vote must not be recorded")
	}
}

func TestHandleVoteIgnoredWhenNotCandidate(t *testing.T) {
	r, _, _, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	// still a fresh Follower.
	r.handleVote(Vote{Term: 1, From: "b", Success: true})
	if r.role != Follower {
		t.Fatal("a Vote delivered to a Follower must be a no-op")
	}
}

func TestHandleRequestVoteGrantsWhenUnvoted(t *testing.T) {
	r, log, tr, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	r.handleRequestVote(RequestVote{Term: 1, From: "b", LastLogIndex: 0, LastLogTerm: 0})

	if !r.hasVotedFor || r.votedFor != "b" {
		t.Fatal("expected vote to be granted and recorded for b")
	}
	if vf, has, _ := log.GetVotedFor(); !has || vf != "b" {
		t.Fatal("expected vote to be durably persisted")
	}
	sent := tr.sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one Vote reply, got %d", len(sent))
	}
	v := sent[0].msg.(Vote)
	if !v.Success {
		t.Fatal("expected a granted vote")
	}
}

func TestHandleRequestVoteDeniesSecondCandidateSameTerm(t *testing.T) {
	r, _, tr, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	r.handleRequestVote(RequestVote{Term: 1, From: "b", LastLogIndex: 0, LastLogTerm: 0})
	tr.reset()

	r.handleRequestVote(RequestVote{Term: 1, From: "c", LastLogIndex: 0, LastLogTerm: 0})
	sent := tr.sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(sent))
	}
	v := sent[0].msg.(Vote)
	if v.Success {
		t.Fatal("a second candidate in the same term must be denied")
	}
}

func TestHandleRequestVoteDeniesStaleTerm(t *testing.T) {
	r, _, tr, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	r.persistTermVote(5, "", false)

	r.handleRequestVote(RequestVote{Term: 3, From: "b"})
	sent := tr.sent()
	if len(sent) != 1 || sent[0].msg.(Vote).Success {
		t.Fatal("a RequestVote with a stale term must be denied")
	}
	if r.term != 5 {
		t.Fatalf("term must not regress, got %d", r.term)
	}
}

func TestHandleRequestVoteDeniesStaleCandidateLog(t *testing.T) {
	r, log, tr, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	log.Append([]LogEntry{{Term: 3, Type: EntryOp}})

	r.handleRequestVote(RequestVote{Term: 5, From: "b", LastLogIndex: 0, LastLogTerm: 0})
	sent := tr.sent()
	if len(sent) != 1 || sent[0].msg.(Vote).Success {
		t.Fatal("a candidate with an older log must be denied even in a newer term")
	}
}

func TestStepDownClearsRoleState(t *testing.T) {
	r, _, _, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	r.becomeCandidate()
	r.handleVote(Vote{Term: 1, From: "b", Success: true})
	if r.role != Leader {
		t.Fatal("setup: expected leader")
	}

	r.stepDown(5)
	if r.role != Follower {
		t.Fatalf("expected Follower after stepDown, got %v", r.role)
	}
	if r.term != 5 {
		t.Fatalf("expected term 5, got %d", r.term)
	}
	if r.hasVotedFor {
		t.Fatal("stepDown must clear votedFor")
	}
	if r.hasLeader {
		t.Fatal("stepDown must clear known leader")
	}
	if r.matchIndex != nil || r.nextIndex != nil {
		t.Fatal("stepDown must discard leader-only per-role state")
	}
}

func TestDispatchRPCStepsDownOnHigherTerm(t *testing.T) {
	r, _, _, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	r.becomeCandidate() // term 1, Candidate

	r.dispatchRPC(AppendEntries{Term: 9, From: "b", PrevLogIndex: 0, PrevLogTerm: 0, CommitIndex: 0})
	if r.role != Follower {
		t.Fatalf("expected step-down to Follower on higher-term AppendEntries, got %v", r.role)
	}
	if r.term != 9 {
		t.Fatalf("expected term to adopt 9, got %d", r.term)
	}
}

func TestBecomeLeaderAppendsNoopInOwnTerm(t *testing.T) {
	r, log, _, _ := newTestReplica("a", []PeerID{"a", "b", "c"})
	r.becomeCandidate()
	r.handleVote(Vote{Term: 1, From: "b", Success: true})

	if got := log.GetLastIndex(); got != 1 {
		t.Fatalf("expected the no-op entry to be appended at index 1, got %d", got)
	}
	entry, ok := log.GetEntry(1)
	if !ok || entry.Type != EntryNoop || entry.Term != 1 {
		t.Fatalf("expected a no-op entry in the new leader's own term, got %+v (ok=%v)", entry, ok)
	}
}
