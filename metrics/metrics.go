// Package metrics instruments a raft.Replica with Prometheus counters
// and gauges: term, role, election outcomes, replication traffic, commit
// progress, and client-request resolution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the instrumentation facade a raft.Replica calls into. The
// zero-cost Noop implementation lets a Replica run with no metrics
// backend at all, which is the default.
type Recorder interface {
	SetTerm(term uint64)
	SetRole(role int)
	VoteGranted()
	VoteDenied()
	ElectionWon()
	AppendSent()
	AppendAccepted()
	AppendRejected()
	SetCommitIndex(index uint64)
	ClientRequestResolved(ok bool)
}

type noop struct{}

func (noop) SetTerm(uint64)             {}
func (noop) SetRole(int)                {}
func (noop) VoteGranted()               {}
func (noop) VoteDenied()                {}
func (noop) ElectionWon()               {}
func (noop) AppendSent()                {}
func (noop) AppendAccepted()            {}
func (noop) AppendRejected()            {}
func (noop) SetCommitIndex(uint64)      {}
func (noop) ClientRequestResolved(bool) {}

// Noop is the default Recorder: every call is a no-op.
var Noop Recorder = noop{}

// Prometheus is the production Recorder. Replicas may share one
// prometheus.Registerer: the peer const label keeps each replica's metric
// set distinct. Registering the same peer twice under one Registerer
// panics.
type Prometheus struct {
	term           prometheus.Gauge
	role           prometheus.Gauge
	votesGranted   prometheus.Counter
	votesDenied    prometheus.Counter
	electionsWon   prometheus.Counter
	appendSent     prometheus.Counter
	appendAccepted prometheus.Counter
	appendRejected prometheus.Counter
	commitIndex    prometheus.Gauge
	reqOK          prometheus.Counter
	reqErr         prometheus.Counter
}

// NewPrometheus registers the raft metric set for peer under reg.
func NewPrometheus(reg prometheus.Registerer, peer string) *Prometheus {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"peer": peer}
	return &Prometheus{
		term: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "raft", Name: "term", Help: "Current term.", ConstLabels: labels,
		}),
		role: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "raft", Name: "role", Help: "0=follower, 1=candidate, 2=leader.", ConstLabels: labels,
		}),
		votesGranted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "votes_granted_total", Help: "Votes received in our favor.", ConstLabels: labels,
		}),
		votesDenied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "votes_denied_total", Help: "Votes received against us.", ConstLabels: labels,
		}),
		electionsWon: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "elections_won_total", Help: "Times this replica became leader.", ConstLabels: labels,
		}),
		appendSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "append_entries_sent_total", Help: "AppendEntries RPCs sent.", ConstLabels: labels,
		}),
		appendAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "append_entries_accepted_total", Help: "AppendEntries RPCs accepted as a follower.", ConstLabels: labels,
		}),
		appendRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "append_entries_rejected_total", Help: "AppendEntries RPCs rejected by the consistency check.", ConstLabels: labels,
		}),
		commitIndex: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "raft", Name: "commit_index", Help: "Highest committed log index.", ConstLabels: labels,
		}),
		reqOK: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "client_requests_committed_total", Help: "Client requests resolved successfully.", ConstLabels: labels,
		}),
		reqErr: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raft", Name: "client_requests_failed_total", Help: "Client requests resolved with an error.", ConstLabels: labels,
		}),
	}
}

func (p *Prometheus) SetTerm(term uint64)         { p.term.Set(float64(term)) }
func (p *Prometheus) SetRole(role int)            { p.role.Set(float64(role)) }
func (p *Prometheus) VoteGranted()                { p.votesGranted.Inc() }
func (p *Prometheus) VoteDenied()                 { p.votesDenied.Inc() }
func (p *Prometheus) ElectionWon()                { p.electionsWon.Inc() }
func (p *Prometheus) AppendSent()                 { p.appendSent.Inc() }
func (p *Prometheus) AppendAccepted()             { p.appendAccepted.Inc() }
func (p *Prometheus) AppendRejected()             { p.appendRejected.Inc() }
func (p *Prometheus) SetCommitIndex(index uint64) { p.commitIndex.Set(float64(index)) }

func (p *Prometheus) ClientRequestResolved(ok bool) {
	if ok {
		p.reqOK.Inc()
		return
	}
	p.reqErr.Inc()
}
