package raft

// onTimeout handles the single FSM timer firing. A Follower's timeout
// starts a new election; so does a Candidate's, when its election timer
// expires with no winner: a split vote retries the same entry procedure
// with a bumped term.
func (r *Replica) onTimeout() {
	switch r.role {
	case Follower, Candidate:
		r.becomeCandidate()
	case Leader:
		r.heartbeatAll()
		r.armHeartbeatTimer()
	}
}

func (r *Replica) becomeCandidate() {
	r.persistTermVote(r.term+1, r.me, true)
	r.role = Candidate
	r.leaderID = ""
	r.hasLeader = false
	r.votesGranted = map[PeerID]bool{r.me: true}
	r.matchIndex = nil
	r.nextIndex = nil
	r.armElectionTimer()
	r.metrics.SetRole(int(Candidate))
	r.logger.Debugw("starting election", "term", r.term)

	lastIndex := r.logFacade.GetLastIndex()
	lastTerm := r.logFacade.GetLastTerm()
	req := RequestVote{Term: r.term, From: r.me, LastLogIndex: lastIndex, LastLogTerm: lastTerm}
	for _, p := range r.votingPeers() {
		if p == r.me {
			continue
		}
		r.transport.Send(p, req)
	}

	if r.quorum.HasQuorum(r.config, r.votesGranted) {
		r.becomeLeader()
	}
}

func (r *Replica) becomeLeader() {
	r.role = Leader
	r.leaderID = r.me
	r.hasLeader = true
	r.votesGranted = nil
	r.matchIndex = map[PeerID]uint64{}
	r.nextIndex = map[PeerID]uint64{}

	last := r.logFacade.GetLastIndex()
	for _, p := range r.votingPeers() {
		if p == r.me {
			continue
		}
		r.nextIndex[p] = last + 1
		r.matchIndex[p] = 0
	}
	r.metrics.SetRole(int(Leader))
	r.metrics.ElectionWon()

	// A new leader appends a no-op entry in its own term, so the
	// commit-rule term restriction (only entries from the current term
	// are ever counted for commit) cannot stall on an otherwise-idle
	// leader.
	r.logFacade.Append([]LogEntry{{Term: r.term, Type: EntryNoop}})

	r.logger.Infow("won election", "term", r.term)
	r.armHeartbeatTimer()
	r.replicateNow()
}

// stepDown demotes the replica to Follower under newTerm, clearing all
// role-specific bookkeeping. Called both for a strict term bump and for
// a Candidate that discovers a legitimate leader in its own term.
func (r *Replica) stepDown(newTerm uint64) {
	r.persistTermVote(newTerm, "", false)
	r.leaderID = ""
	r.hasLeader = false
	r.votesGranted = nil
	r.matchIndex = nil
	r.nextIndex = nil
	r.role = Follower
	r.metrics.SetRole(int(Follower))
	r.logger.Debugw("stepping down", "term", newTerm)
	r.armElectionTimer()
}

func (r *Replica) handleVote(m Vote) {
	if r.role != Candidate {
		return // stale: Follower and Leader always ignore Vote messages
	}
	if m.Term < r.term {
		return
	}
	r.votesGranted[m.From] = m.Success
	if m.Success {
		r.metrics.VoteGranted()
	} else {
		r.metrics.VoteDenied()
	}
	if m.Success && r.quorum.HasQuorum(r.config, r.votesGranted) {
		r.becomeLeader()
	}
}

func (r *Replica) handleRequestVote(m RequestVote) {
	if m.Term < r.term {
		r.transport.Send(m.From, Vote{Term: r.term, From: r.me, Success: false})
		return
	}
	grant := (!r.hasVotedFor || r.votedFor == m.From) && r.candidateLogUpToDate(m.LastLogTerm, m.LastLogIndex)
	if grant {
		r.persistTermVote(r.term, m.From, true)
		r.armElectionTimer()
	}
	r.logger.Debugw("vote decided", "candidate", m.From, "term", r.term, "granted", grant)
	r.transport.Send(m.From, Vote{Term: r.term, From: r.me, Success: grant})
}

func (r *Replica) candidateLogUpToDate(candidateLastTerm, candidateLastIndex uint64) bool {
	myLastIndex := r.logFacade.GetLastIndex()
	myLastTerm := r.logFacade.GetLastTerm()
	if candidateLastTerm != myLastTerm {
		return candidateLastTerm > myLastTerm
	}
	return candidateLastIndex >= myLastIndex
}
