package raft

// tryAdvanceCommit recomputes the quorum-acknowledged index and commits
// up to it, but only if the entry at that index was written in the
// current term (the commit-rule term restriction: a leader never commits
// an entry from an earlier term by counting replicas alone, only by
// committing a later entry of its own term that covers it).
func (r *Replica) tryAdvanceCommit() {
	lastIndex := r.logFacade.GetLastIndex()
	candidate := r.quorum.QuorumMinIndex(r.config, r.matchIndex, r.me, lastIndex)
	if candidate <= r.commitIndex {
		return
	}
	entry, ok := r.logFacade.GetEntry(candidate)
	if !ok || entry.Term != r.term {
		return
	}
	r.logger.Debugw("advancing commit", "from", r.commitIndex, "to", candidate)
	r.commitEntries(candidate)
}

// commitEntries applies every entry up to and including newCommit, in
// order. A committed Config{Transitional} entry is stabilized by the
// leader (a new Config{Stable} entry is appended and any client_req
// waiting on the Transitional entry is retargeted at the new entry's
// index, so it resolves with the Stable config as its value once that
// entry itself commits). Any client_req registered at a given index is
// resolved once that index commits.
func (r *Replica) commitEntries(newCommit uint64) {
	// commitIndex is bumped before each entry's effects run, and the loop
	// re-reads it on every pass: stabilizing a Transitional entry can
	// trigger a nested commit attempt (a single-node leader commits its
	// own appends immediately), and that nested call must observe the
	// indexes already handled here rather than re-apply them.
	for r.commitIndex < newCommit {
		idx := r.commitIndex + 1
		entry, ok := r.logFacade.GetEntry(idx)
		if !ok {
			break
		}
		r.commitIndex = idx
		r.lastApplied = idx
		r.metrics.SetCommitIndex(idx)

		var result any
		switch entry.Type {
		case EntryOp:
			result = r.sm.Apply(entry.Op)
		case EntryNoop:
			// No state-machine effect.
		case EntryConfig:
			result = entry.Config
			if r.role == Leader && entry.Config.Kind == ConfigTransitional {
				stable := StableConfig(entry.Config.NewServers)
				stableEntry := LogEntry{Term: r.term, Type: EntryConfig, Config: stable}
				stableIndex, err := r.logFacade.Append([]LogEntry{stableEntry})
				if err != nil {
					r.logger.Errorw("failed to append stabilizing config entry", "err", err)
				} else {
					r.config = stable
					r.rebuildFollowersForConfig()
					if req := r.clientReqAt(idx); req != nil {
						req.LogIndex = stableIndex
					}
					r.replicateNow()
				}
			}
		}

		if r.role == Leader {
			if req := r.clientReqAt(idx); req != nil {
				r.resolveClientReq(req, Result{ID: req.ID, OK: true, Value: result})
			}
		}
	}
}
