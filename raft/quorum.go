package raft

import "sort"

// DefaultQuorum implements the standard majority rules: a plain
// majority over a Stable configuration, and a majority of each group
// over a Transitional one. Every Replica uses it unless a test supplies
// a different QuorumHelper.
type DefaultQuorum struct{}

func (DefaultQuorum) HasQuorum(cfg Config, granted map[PeerID]bool) bool {
	switch cfg.Kind {
	case ConfigStable:
		return isMajority(cfg.OldServers, granted)
	case ConfigTransitional:
		return isMajority(cfg.OldServers, granted) && isMajority(cfg.NewServers, granted)
	default: // ConfigBlank
		return false
	}
}

func isMajority(servers []PeerID, granted map[PeerID]bool) bool {
	if len(servers) == 0 {
		return false
	}
	count := 0
	for _, s := range servers {
		if granted[s] {
			count++
		}
	}
	return count*2 > len(servers)
}

func (DefaultQuorum) QuorumMinIndex(cfg Config, matchIndex map[PeerID]uint64, self PeerID, selfIndex uint64) uint64 {
	all := make(map[PeerID]uint64, len(matchIndex)+1)
	for p, idx := range matchIndex {
		all[p] = idx
	}
	all[self] = selfIndex

	switch cfg.Kind {
	case ConfigStable:
		return groupQuorumIndex(cfg.OldServers, all)
	case ConfigTransitional:
		a := groupQuorumIndex(cfg.OldServers, all)
		b := groupQuorumIndex(cfg.NewServers, all)
		if a < b {
			return a
		}
		return b
	default:
		return 0
	}
}

// groupQuorumIndex returns the highest index acknowledged by a majority
// of servers: sort their indices descending and take the one at the
// majority offset. Missing entries default to 0 (not yet replicated).
func groupQuorumIndex(servers []PeerID, indices map[PeerID]uint64) uint64 {
	if len(servers) == 0 {
		return 0
	}
	vals := make([]uint64, len(servers))
	for i, s := range servers {
		vals[i] = indices[s]
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] > vals[j] })
	majority := len(vals)/2 + 1
	return vals[majority-1]
}
