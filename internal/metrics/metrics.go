// metrics.go - Prometheus collectors for wallet synchronisation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "zeth"

// Miss reasons.
const (
	MissDecryption = "decryption"
	MissFormat     = "format"
	MissCommitment = "commitment"
)

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	eventsProcessed *prometheus.CounterVec
	notesAccepted   prometheus.Counter
	notesMissed     *prometheus.CounterVec
	syncedBlock     prometheus.Gauge
	treeLeaves      prometheus.Gauge
	batchDuration   *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "events_processed_total",
				Help:      "Mixer events processed, by kind",
			},
			// kind: mix/note
			[]string{"kind"},
		),
		notesAccepted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wallet",
				Name:      "notes_accepted_total",
				Help:      "Notes decrypted, verified and stored",
			},
		),
		notesMissed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wallet",
				Name:      "notes_missed_total",
				Help:      "Encrypted notes skipped, by reason",
			},
			[]string{"reason"},
		),
		syncedBlock: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "next_block",
				Help:      "First block not yet reconciled",
			},
		),
		treeLeaves: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "merkle",
				Name:      "leaves",
				Help:      "Populated leaves of the local Merkle tree",
			},
		),
		batchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "batch_duration_seconds",
				Help:      "Duration of one block batch",
				Buckets:   prometheus.DefBuckets,
			},
			// status: success/error
			[]string{"status"},
		),
	}
}

func (m *Metrics) MixProcessed(notes int) {
	if m == nil {
		return
	}
	m.eventsProcessed.WithLabelValues("mix").Inc()
	m.eventsProcessed.WithLabelValues("note").Add(float64(notes))
}

func (m *Metrics) NoteAccepted() {
	if m == nil {
		return
	}
	m.notesAccepted.Inc()
}

func (m *Metrics) NoteMissed(reason string) {
	if m == nil {
		return
	}
	m.notesMissed.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetNextBlock(block uint64) {
	if m == nil {
		return
	}
	m.syncedBlock.Set(float64(block))
}

func (m *Metrics) SetTreeLeaves(n uint64) {
	if m == nil {
		return
	}
	m.treeLeaves.Set(float64(n))
}

// ObserveBatch records the time since start under the batch outcome.
func (m *Metrics) ObserveBatch(start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.batchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
