package raft

import "time"

func (r *Replica) onClientOp(req *clientOpRequest) {
	switch r.role {
	case Leader:
		entry := LogEntry{Term: r.term, Type: EntryOp, Op: req.cmd}
		lastIndex, err := r.logFacade.Append([]LogEntry{entry})
		if err != nil {
			req.reply <- Result{ID: req.id, OK: false, Err: err}
			return
		}
		r.registerClientReq(req.id, ReqOp, lastIndex, r.term, req.reply)
		r.replicateNow()
	case Candidate:
		req.reply <- Result{ID: req.id, OK: false, Err: ErrElectionInProgress}
	default: // Follower
		if r.hasLeader {
			req.reply <- Result{ID: req.id, OK: false, Err: &RedirectError{Leader: r.leaderID}}
		} else {
			req.reply <- Result{ID: req.id, OK: false, Err: ErrElectionInProgress}
		}
	}
}

func (r *Replica) onClientSetConfig(req *clientSetConfigRequest) {
	switch r.role {
	case Leader:
		if !allowConfig(r.config, req.newServers) {
			req.reply <- Result{ID: req.id, OK: false, Err: ErrConfigInProgress}
			return
		}
		newCfg := reconfig(r.config, req.newServers)
		entry := LogEntry{Term: r.term, Type: EntryConfig, Config: newCfg}
		lastIndex, err := r.logFacade.Append([]LogEntry{entry})
		if err != nil {
			req.reply <- Result{ID: req.id, OK: false, Err: err}
			return
		}
		// A leader adopts its own appended configuration immediately,
		// the same pre-commit visibility rule followers apply on
		// receipt.
		r.config = newCfg
		r.rebuildFollowersForConfig()
		r.registerClientReq(req.id, ReqSetConfig, lastIndex, r.term, req.reply)
		r.replicateNow()
	case Candidate:
		req.reply <- Result{ID: req.id, OK: false, Err: ErrElectionInProgress}
	default: // Follower
		if r.hasLeader {
			req.reply <- Result{ID: req.id, OK: false, Err: &RedirectError{Leader: r.leaderID}}
		} else {
			req.reply <- Result{ID: req.id, OK: false, Err: ErrElectionInProgress}
		}
	}
}

func (r *Replica) registerClientReq(id string, kind ClientReqKind, index, term uint64, reply chan Result) {
	r.clientReqs = append(r.clientReqs, &ClientReq{
		ID:       id,
		Kind:     kind,
		LogIndex: index,
		Term:     term,
		Reply:    reply,
		Deadline: time.Now().Add(ClientReqTimeout),
	})
}

func (r *Replica) clientReqAt(index uint64) *ClientReq {
	for _, cr := range r.clientReqs {
		if cr.LogIndex == index {
			return cr
		}
	}
	return nil
}

func (r *Replica) removeClientReq(target *ClientReq) bool {
	for i, cr := range r.clientReqs {
		if cr == target {
			r.clientReqs = append(r.clientReqs[:i], r.clientReqs[i+1:]...)
			return true
		}
	}
	return false
}

// resolveClientReq replies to cr and drops it. A request that is no
// longer outstanding (already resolved) is left alone.
func (r *Replica) resolveClientReq(cr *ClientReq, res Result) {
	if !r.removeClientReq(cr) {
		return
	}
	select {
	case cr.Reply <- res:
	default:
	}
	r.metrics.ClientRequestResolved(res.OK)
}

// checkClientTimeouts scans the (typically tiny) list of outstanding
// client requests once per event-loop iteration rather than arming one
// time.Timer per request; cheaper, and deterministic under test.
func (r *Replica) checkClientTimeouts() {
	now := time.Now()
	var expired []*ClientReq
	for _, cr := range r.clientReqs {
		if !now.Before(cr.Deadline) {
			expired = append(expired, cr)
		}
	}
	for _, cr := range expired {
		r.resolveClientReq(cr, Result{ID: cr.ID, OK: false, Err: ErrTimeout})
	}
}

// failAllClientReqs resolves every outstanding request with err, so no
// caller is left blocked when the replica shuts down.
func (r *Replica) failAllClientReqs(err error) {
	for len(r.clientReqs) > 0 {
		r.resolveClientReq(r.clientReqs[0], Result{ID: r.clientReqs[0].ID, OK: false, Err: err})
	}
}
