package raft

import (
	"math/rand"
	"time"
)

// Timing constants, exported as package vars so a cluster test can
// shrink them.
var (
	ElectionTimeoutMin = 150 * time.Millisecond
	ElectionTimeoutMax = 300 * time.Millisecond
	HeartbeatInterval  = 75 * time.Millisecond
	ClientReqTimeout   = 2 * time.Second
)

func randomElectionTimeout() time.Duration {
	span := ElectionTimeoutMax - ElectionTimeoutMin
	if span <= 0 {
		return ElectionTimeoutMin
	}
	return ElectionTimeoutMin + time.Duration(rand.Int63n(int64(span)))
}

// armTimer stops any previously armed timer and starts a new one. It is
// only ever called from the replica's own run goroutine.
func (r *Replica) armTimer(d time.Duration) {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.NewTimer(d)
	r.timerC = r.timer.C
}

func (r *Replica) armElectionTimer() {
	r.armTimer(randomElectionTimeout())
}

func (r *Replica) armHeartbeatTimer() {
	r.armTimer(HeartbeatInterval)
}
