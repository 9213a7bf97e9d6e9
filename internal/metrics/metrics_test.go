package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MixProcessed(2)
	m.MixProcessed(1)
	m.NoteAccepted()
	m.NoteMissed(MissDecryption)
	m.NoteMissed(MissDecryption)
	m.NoteMissed(MissCommitment)
	m.SetNextBlock(42)
	m.SetTreeLeaves(3)
	m.ObserveBatch(time.Now(), nil)
	m.ObserveBatch(time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsProcessed.WithLabelValues("mix")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.eventsProcessed.WithLabelValues("note")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notesAccepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notesMissed.WithLabelValues(MissDecryption)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notesMissed.WithLabelValues(MissCommitment)))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.syncedBlock))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.treeLeaves))
	assert.Equal(t, 2, testutil.CollectAndCount(m.batchDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MixProcessed(1)
		m.NoteAccepted()
		m.NoteMissed(MissFormat)
		m.SetNextBlock(1)
		m.SetTreeLeaves(1)
		m.ObserveBatch(time.Now(), nil)
	})
}
