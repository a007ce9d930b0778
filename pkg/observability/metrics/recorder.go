package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder collects data-access metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	commits        *prometheus.CounterVec
	commitDuration prometheus.Histogram
	flushed        *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	documentOps    *prometheus.CounterVec
}

// NewRecorder creates the collectors under namespace. Register them with Collectors().
func NewRecorder(namespace string) *Recorder {
	return &Recorder{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_of_work_commits_total",
			Help:      "Unit of work commits by result",
		}, []string{"result"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_of_work_commit_duration_seconds",
			Help:      "Time spent flushing staged mutations",
			Buckets:   prometheus.DefBuckets,
		}),
		flushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_of_work_flushed_changes_total",
			Help:      "Staged mutations persisted by successful commits, by entity state",
		}, []string{"state"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_of_work_rejected_changes_total",
			Help:      "Staged mutations discarded by RejectAllChanges, by entity state",
		}, []string{"state"}),
		documentOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_operations_total",
			Help:      "Document writer operations by operation, collection and result",
		}, []string{"operation", "collection", "result"}),
	}
}

// Collectors returns every collector owned by the recorder.
func (r *Recorder) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.commits, r.commitDuration, r.flushed, r.rejected, r.documentOps}
}

// ObserveCommit records one commit attempt. flushed maps entity state names to counts and is only
// counted on success.
func (r *Recorder) ObserveCommit(err error, duration time.Duration, flushed map[string]int) {
	if r == nil {
		return
	}
	r.commitDuration.Observe(duration.Seconds())
	if err != nil {
		r.commits.WithLabelValues(ResultFailure).Inc()
		return
	}
	r.commits.WithLabelValues(ResultSuccess).Inc()
	for state, n := range flushed {
		r.flushed.WithLabelValues(state).Add(float64(n))
	}
}

// ObserveReject records mutations discarded by a rollback-to-clean.
func (r *Recorder) ObserveReject(rejected map[string]int) {
	if r == nil {
		return
	}
	for state, n := range rejected {
		r.rejected.WithLabelValues(state).Add(float64(n))
	}
}

// ObserveDocumentOp records one document writer call.
func (r *Recorder) ObserveDocumentOp(operation, collection string, err error) {
	if r == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	r.documentOps.WithLabelValues(operation, collection, result).Inc()
}
