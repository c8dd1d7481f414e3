// Package metrics exposes a prometheus.Registry of counters and gauges
// for the events that matter for operating a node: blocks processed
// (by result), elections confirmed, unchecked-buffer depth, votes
// generated, and blocks pruned. It replaces the teacher's hand-rolled
// datx/metrics.go meters (metrics.NewMeter(name), *Meter.Mark(n)) with
// github.com/prometheus/client_golang's CounterVec/Gauge: one
// Mark-equivalent method per event. The counters advance only when a
// caller invokes those methods; the node's subsystems do not call them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nanocurrency/nanogod/ledgertypes"
)

// Metrics groups every counter/gauge the node updates. A nil *Metrics is
// not valid; use Noop() where no collection is wanted (e.g. in tests
// that don't want to register into the default registry repeatedly).
type Metrics struct {
	registry *prometheus.Registry

	blocksProcessed  *prometheus.CounterVec
	electionsStarted prometheus.Counter
	electionsConfirmed prometheus.Counter
	uncheckedDepth   prometheus.Gauge
	votesGenerated   prometheus.Counter
	votesIngested    *prometheus.CounterVec
	blocksPruned     prometheus.Counter
	bootstrapPulls   prometheus.Counter
}

// New builds a Metrics registered into a fresh prometheus.Registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		blocksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nanogod", Subsystem: "blockprocessor", Name: "blocks_processed_total",
			Help: "Blocks processed by result.",
		}, []string{"result"}),
		electionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nanogod", Subsystem: "election", Name: "elections_started_total",
			Help: "Elections started.",
		}),
		electionsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nanogod", Subsystem: "election", Name: "elections_confirmed_total",
			Help: "Elections that reached quorum and confirmed.",
		}),
		uncheckedDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nanogod", Subsystem: "unchecked", Name: "depth",
			Help: "Number of blocks currently waiting on a missing dependency.",
		}),
		votesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nanogod", Subsystem: "vote", Name: "votes_generated_total",
			Help: "Votes generated for a confirm_req.",
		}),
		votesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nanogod", Subsystem: "vote", Name: "votes_ingested_total",
			Help: "Votes ingested by outcome.",
		}, []string{"outcome"}),
		blocksPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nanogod", Subsystem: "prune", Name: "blocks_pruned_total",
			Help: "Blocks swept by the pruner.",
		}),
		bootstrapPulls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nanogod", Subsystem: "wireapi", Name: "bootstrap_pulls_total",
			Help: "Bootstrap bulk_pull attempts started.",
		}),
	}
	reg.MustRegister(
		m.blocksProcessed, m.electionsStarted, m.electionsConfirmed,
		m.uncheckedDepth, m.votesGenerated, m.votesIngested,
		m.blocksPruned, m.bootstrapPulls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Noop returns a Metrics whose collectors exist but are never exposed
// via a registry, for callers (tests, one-shot tools) that want the same
// call sites without paying for registration.
func Noop() *Metrics {
	return &Metrics{
		blocksProcessed:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "blocks_processed_total"}, []string{"result"}),
		electionsStarted:   prometheus.NewCounter(prometheus.CounterOpts{Name: "elections_started_total"}),
		electionsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{Name: "elections_confirmed_total"}),
		uncheckedDepth:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "unchecked_depth"}),
		votesGenerated:     prometheus.NewCounter(prometheus.CounterOpts{Name: "votes_generated_total"}),
		votesIngested:      prometheus.NewCounterVec(prometheus.CounterOpts{Name: "votes_ingested_total"}, []string{"outcome"}),
		blocksPruned:       prometheus.NewCounter(prometheus.CounterOpts{Name: "blocks_pruned_total"}),
		bootstrapPulls:     prometheus.NewCounter(prometheus.CounterOpts{Name: "bootstrap_pulls_total"}),
	}
}

// Handler serves the registry in the Prometheus exposition format, or
// nil if m was built with Noop (nothing to expose).
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BlockProcessed marks one ledger.Process outcome under its result
// label.
func (m *Metrics) BlockProcessed(result ledgertypes.ProcessResult) {
	m.blocksProcessed.WithLabelValues(result.String()).Inc()
}

// ElectionStarted marks one election.Manager.electionForLocked creating
// a new election.
func (m *Metrics) ElectionStarted() {
	m.electionsStarted.Inc()
}

// ElectionConfirmed marks one election.Manager.confirmElection reaching
// quorum.
func (m *Metrics) ElectionConfirmed() {
	m.electionsConfirmed.Inc()
}

// SetUncheckedDepth reports unchecked.Buffer's current size, sampled
// wherever a caller already holds that count (e.g. after Put/Release).
func (m *Metrics) SetUncheckedDepth(n int) {
	m.uncheckedDepth.Set(float64(n))
}

// VoteGenerated marks one vote.Processor.Generate/CachedOrGenerate call.
func (m *Metrics) VoteGenerated() {
	m.votesGenerated.Inc()
}

// VoteIngested marks one vote.Processor.ProcessVote outcome ("claimed",
// "unclaimed", "stale", "rejected" - whatever label the caller passes).
func (m *Metrics) VoteIngested(outcome string) {
	m.votesIngested.WithLabelValues(outcome).Inc()
}

// BlockPruned marks one block swept by prune.Pruner.
func (m *Metrics) BlockPruned() {
	m.blocksPruned.Inc()
}

// BootstrapPullStarted marks one wireapi.BulkPullClient.PullAccount
// attempt.
func (m *Metrics) BootstrapPullStarted() {
	m.bootstrapPulls.Inc()
}
