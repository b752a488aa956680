package raft

import "errors"

// Sentinel errors returned from Op/SetConfig: a small fixed set of
// comparable values plus one wrapping type for the case that carries a
// payload.
var (
	// ErrElectionInProgress is returned when a replica has no leader to
	// serve or redirect a client request to.
	ErrElectionInProgress = errors.New("raft: election in progress, no leader")
	// ErrConfigInProgress is returned when a SetConfig call is rejected
	// because a reconfiguration is already underway, or because the
	// requested membership is identical to the current one.
	ErrConfigInProgress = errors.New("raft: reconfiguration already in progress")
	// ErrTimeout is returned when a client request's deadline elapses
	// before its entry commits.
	ErrTimeout = errors.New("raft: client request timed out")
	// ErrRedirect is the comparison target for RedirectError; test with
	// errors.Is(err, raft.ErrRedirect).
	ErrRedirect = errors.New("raft: not the leader")
	// ErrStopped is returned for requests made to, or still outstanding
	// on, a replica whose event loop has shut down.
	ErrStopped = errors.New("raft: replica stopped")
)

// RedirectError is returned by a follower that knows the current leader.
// Callers recover the leader's identity for retry via errors.As.
type RedirectError struct {
	Leader PeerID
}

func (e *RedirectError) Error() string {
	return "raft: not the leader, redirect to " + string(e.Leader)
}

// Is lets errors.Is(err, ErrRedirect) match any *RedirectError.
func (e *RedirectError) Is(target error) bool {
	return target == ErrRedirect
}
