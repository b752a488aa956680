package raft

// allowConfig reports whether a SetConfig request may proceed from the
// current configuration: only from Blank (first assignment) or Stable
// (no reconfiguration already in flight), and only to a genuinely
// different server set.
func allowConfig(current Config, newServers []PeerID) bool {
	switch current.Kind {
	case ConfigBlank:
		return true
	case ConfigStable:
		return !sameServerSet(current.OldServers, newServers)
	default: // ConfigTransitional: one change at a time
		return false
	}
}

// reconfig builds the Transitional configuration a SetConfig call
// installs: the old group is whatever the leader currently serves.
func reconfig(current Config, newServers []PeerID) Config {
	return TransitionalConfig(current.OldServers, newServers)
}

func sameServerSet(a, b []PeerID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[PeerID]bool, len(a))
	for _, p := range a {
		set[p] = true
	}
	for _, p := range b {
		if !set[p] {
			return false
		}
	}
	return true
}

// votingPeers returns every peer with a vote in the current
// configuration (union of old and new groups under joint consensus),
// in a stable order.
func (r *Replica) votingPeers() []PeerID {
	switch r.config.Kind {
	case ConfigStable:
		return r.config.OldServers
	case ConfigTransitional:
		seen := make(map[PeerID]bool, len(r.config.OldServers)+len(r.config.NewServers))
		out := make([]PeerID, 0, len(r.config.OldServers)+len(r.config.NewServers))
		for _, p := range r.config.OldServers {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
		for _, p := range r.config.NewServers {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

// rebuildFollowersForConfig keeps nextIndex/matchIndex exactly in sync
// with the voting peer set of the current configuration (invariant: a
// Leader's followers map contains exactly the current configuration's
// voting peers). Newly added peers start at the leader's own last index
// + 1, matching how becomeLeader seeds them.
func (r *Replica) rebuildFollowersForConfig() {
	if r.role != Leader {
		return
	}
	want := make(map[PeerID]bool)
	for _, p := range r.votingPeers() {
		if p == r.me {
			continue
		}
		want[p] = true
	}
	last := r.logFacade.GetLastIndex()
	for p := range want {
		if _, ok := r.nextIndex[p]; !ok {
			r.nextIndex[p] = last + 1
			r.matchIndex[p] = 0
		}
	}
	for p := range r.nextIndex {
		if !want[p] {
			delete(r.nextIndex, p)
			delete(r.matchIndex, p)
		}
	}
}
