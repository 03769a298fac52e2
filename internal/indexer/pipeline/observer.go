package pipeline

import (
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/metrics"
)

// Observer is notified of run progress. Methods are called concurrently from
// crawler and worker goroutines and must not block.
type Observer interface {
	// FileDiscovered is called for each accepted file before it is queued.
	FileDiscovered(path string)
	// FileDequeued is called when a worker takes a file.
	FileDequeued(path string)
	// FileIndexed is called once a file's tokens are in the index.
	FileIndexed(path string, tokens int)
	// StateChanged is called on each coordinator transition.
	StateChanged(from, to State)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) FileDiscovered(string)     {}
func (NopObserver) FileDequeued(string)       {}
func (NopObserver) FileIndexed(string, int)   {}
func (NopObserver) StateChanged(State, State) {}

type multiObserver []Observer

// Observers fans notifications out to each non-nil observer.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) FileDiscovered(path string) {
	for _, o := range m {
		o.FileDiscovered(path)
	}
}

func (m multiObserver) FileDequeued(path string) {
	for _, o := range m {
		o.FileDequeued(path)
	}
}

func (m multiObserver) FileIndexed(path string, tokens int) {
	for _, o := range m {
		o.FileIndexed(path, tokens)
	}
}

func (m multiObserver) StateChanged(from, to State) {
	for _, o := range m {
		o.StateChanged(from, to)
	}
}

// MetricsObserver feeds Prometheus collectors. It is also a report.Sink so
// item failures are counted by kind.
type MetricsObserver struct {
	m *metrics.Metrics
}

// NewMetricsObserver returns an observer writing to m.
func NewMetricsObserver(m *metrics.Metrics) *MetricsObserver {
	return &MetricsObserver{m: m}
}

func (o *MetricsObserver) FileDiscovered(string) {
	o.m.FilesDiscoveredTotal.Inc()
	o.m.QueueDepth.Inc()
}

func (o *MetricsObserver) FileDequeued(string) {
	o.m.QueueDepth.Dec()
}

func (o *MetricsObserver) FileIndexed(_ string, tokens int) {
	o.m.FilesIndexedTotal.Inc()
	o.m.TokensIndexedTotal.Add(float64(tokens))
}

func (o *MetricsObserver) StateChanged(_, to State) {
	o.m.PipelineState.Set(float64(to))
	if to == StateCrawling {
		o.m.QueueDepth.Set(0)
	}
}

// Report implements report.Sink.
func (o *MetricsObserver) Report(err *apperrors.ItemError) {
	o.m.ItemErrorsTotal.WithLabelValues(apperrors.KindLabel(err)).Inc()
}

// RunFinished records the outcome of a run and the size of its index.
func (o *MetricsObserver) RunFinished(res *Result) {
	outcome := "completed"
	if res.Interrupted {
		outcome = "interrupted"
	}
	o.m.RunsTotal.WithLabelValues(outcome).Inc()
	o.m.RunDuration.Observe(res.Duration.Seconds())
	o.m.QueueDepth.Set(0)
	recordIndex(o.m, res.Index.Stats())
}

func recordIndex(m *metrics.Metrics, s index.Stats) {
	m.IndexTerms.Set(float64(s.Terms))
	m.IndexFiles.Set(float64(s.Files))
}
