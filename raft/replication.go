package raft

func messageTerm(msg any) uint64 {
	switch m := msg.(type) {
	case RequestVote:
		return m.Term
	case Vote:
		return m.Term
	case AppendEntries:
		return m.Term
	case AppendEntriesReply:
		return m.Term
	default:
		return 0
	}
}

// dispatchRPC applies the term-catch-up rule common to every inbound
// RPC (a message term above ours demotes us to Follower under the new
// term before any role-specific handling), then routes to a per-message
// handler, with one exception below.
func (r *Replica) dispatchRPC(msg any) {
	if ae, ok := msg.(AppendEntries); ok && r.role == Candidate && ae.Term >= r.term {
		// A Candidate that hears from a leader at least as current as
		// itself steps down and drops the message, relying on the
		// leader's heartbeat retry rather than re-processing it as a
		// fresh Follower in the same step.
		r.stepDown(ae.Term)
		return
	}

	if term := messageTerm(msg); term > r.term {
		r.stepDown(term)
	}

	switch m := msg.(type) {
	case RequestVote:
		r.handleRequestVote(m)
	case Vote:
		r.handleVote(m)
	case AppendEntries:
		r.handleAppendEntriesEvent(m)
	case AppendEntriesReply:
		r.handleAppendEntriesReplyEvent(m)
	}
}

func (r *Replica) handleAppendEntriesEvent(m AppendEntries) {
	if r.role == Leader {
		// A higher term already stepped this replica down before we got
		// here, so this message's term is lower than or equal to ours. A
		// same-term AppendEntries arriving while still Leader would mean
		// two leaders in one term, which election safety rules out; in
		// both cases reject rather than accept foreign entries.
		r.transport.Send(m.From, AppendEntriesReply{Term: r.term, From: r.me, Success: false})
		return
	}
	r.handleAppendEntries(m)
}

// handleAppendEntries runs the log-matching consistency check and, on
// success, appends new entries, adopts any Config entry among them, and
// advances commitIndex. Called for a Follower, and for a Candidate only
// with a stale-term message, which it rejects.
func (r *Replica) handleAppendEntries(m AppendEntries) {
	if m.Term < r.term {
		r.transport.Send(m.From, AppendEntriesReply{Term: r.term, From: r.me, Success: false})
		return
	}

	r.armElectionTimer()

	ok := m.PrevLogIndex == 0
	if !ok {
		entry, found := r.logFacade.GetEntry(m.PrevLogIndex)
		ok = found && entry.Term == m.PrevLogTerm
	}
	if !ok {
		r.metrics.AppendRejected()
		r.transport.Send(m.From, AppendEntriesReply{Term: r.term, From: r.me, Success: false})
		return
	}

	if err := r.logFacade.Truncate(m.PrevLogIndex); err != nil {
		r.logger.Errorw("failed to truncate log", "prevIndex", m.PrevLogIndex, "err", err)
	}
	lastIndex, err := r.logFacade.Append(m.Entries)
	if err != nil {
		r.logger.Errorw("failed to append entries", "err", err)
	}

	for i := len(m.Entries) - 1; i >= 0; i-- {
		if m.Entries[i].Type == EntryConfig {
			r.config = m.Entries[i].Config
			break
		}
	}

	r.leaderID = m.From
	r.hasLeader = true

	if m.CommitIndex > r.commitIndex {
		newCommit := m.CommitIndex
		if lastIndex < newCommit {
			newCommit = lastIndex
		}
		if newCommit > r.commitIndex {
			r.commitEntries(newCommit)
		}
	}

	r.metrics.AppendAccepted()
	r.transport.Send(m.From, AppendEntriesReply{Term: r.term, From: r.me, Success: true, Index: lastIndex})
}

func (r *Replica) handleAppendEntriesReplyEvent(m AppendEntriesReply) {
	if r.role != Leader {
		return // stale: not (or no longer) leading
	}
	r.handleAppendEntriesReply(m)
}

func (r *Replica) handleAppendEntriesReply(m AppendEntriesReply) {
	if !m.Success {
		// Only walk nextIndex back for a rejection that matches our
		// current term, so a reply that crossed in flight from a stale
		// round can't force a needless decrement-and-resend cycle.
		if m.Term == r.term {
			ni := r.nextIndex[m.From]
			if ni > 1 {
				ni--
			}
			r.nextIndex[m.From] = ni
			r.sendEntry(m.From, ni)
		}
		return
	}
	if m.Term < r.term {
		return
	}
	if m.Index > r.matchIndex[m.From] {
		r.matchIndex[m.From] = m.Index
		r.tryAdvanceCommit()
	}
	r.nextIndex[m.From] = m.Index + 1
	// Only chase a caught-up follower when there is a real next entry;
	// re-sending a bare heartbeat here would make every ack breed another
	// round trip.
	if _, ok := r.logFacade.GetEntry(r.nextIndex[m.From]); ok {
		r.sendEntry(m.From, r.nextIndex[m.From])
	}
}

// sendEntry sends the single entry at index (or a bare heartbeat if the
// log ends before index) with the correct preceding-entry term for the
// log-matching check.
func (r *Replica) sendEntry(peer PeerID, index uint64) {
	var prevIndex, prevTerm uint64
	if index > 1 {
		prevIndex = index - 1
		prevTerm = r.logFacade.GetTerm(prevIndex)
	}
	var entries []LogEntry
	if e, ok := r.logFacade.GetEntry(index); ok {
		entries = []LogEntry{e}
	}
	r.transport.Send(peer, AppendEntries{
		Term:         r.term,
		From:         r.me,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		CommitIndex:  r.commitIndex,
	})
	r.metrics.AppendSent()
}

func (r *Replica) heartbeatAll() {
	for p, ni := range r.nextIndex {
		r.sendEntry(p, ni)
	}
}

// replicateNow triggers an immediate replication attempt to every
// follower at its current nextIndex, used right after a leader appends a
// new entry so a client doesn't wait for the next heartbeat tick. The
// commit check runs too: with no voting peers besides the leader itself
// (a single-node cluster), the append alone already constitutes a
// quorum and no ack will ever arrive to trigger it.
func (r *Replica) replicateNow() {
	r.heartbeatAll()
	r.tryAdvanceCommit()
}
