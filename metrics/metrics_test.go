package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNoopRecorderNeverPanics(t *testing.T) {
	Noop.SetTerm(1)
	Noop.SetRole(2)
	Noop.VoteGranted()
	Noop.VoteDenied()
	Noop.ElectionWon()
	Noop.AppendSent()
	Noop.AppendAccepted()
	Noop.AppendRejected()
	Noop.SetCommitIndex(10)
	Noop.ClientRequestResolved(true)
	Noop.ClientRequestResolved(false)
}

func TestPrometheusRecorderUpdatesGaugesAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "peer-0")

	p.SetTerm(3)
	require.Equal(t, float64(3), gaugeValue(t, p.term))

	p.SetRole(2)
	require.Equal(t, float64(2), gaugeValue(t, p.role))

	p.VoteGranted()
	p.VoteGranted()
	require.Equal(t, float64(2), counterValue(t, p.votesGranted))

	p.VoteDenied()
	require.Equal(t, float64(1), counterValue(t, p.votesDenied))

	p.ElectionWon()
	require.Equal(t, float64(1), counterValue(t, p.electionsWon))

	p.AppendSent()
	p.AppendSent()
	p.AppendSent()
	require.Equal(t, float64(3), counterValue(t, p.appendSent))

	p.AppendAccepted()
	require.Equal(t, float64(1), counterValue(t, p.appendAccepted))

	p.AppendRejected()
	require.Equal(t, float64(1), counterValue(t, p.appendRejected))

	p.SetCommitIndex(42)
	require.Equal(t, float64(42), gaugeValue(t, p.commitIndex))

	p.ClientRequestResolved(true)
	p.ClientRequestResolved(false)
	p.ClientRequestResolved(false)
	require.Equal(t, float64(1), counterValue(t, p.reqOK))
	require.Equal(t, float64(2), counterValue(t, p.reqErr))
}

func TestNewPrometheusRegistersDistinctPeerLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheus(reg, "peer-0")
	// registering a second peer under the same registry must not collide,
	// since ConstLabels disambiguates them by peer.
	require.NotPanics(t, func() { NewPrometheus(reg, "peer-1") })
}
