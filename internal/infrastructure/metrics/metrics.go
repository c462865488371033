package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// report outcomes
const (
	ResultApplied  = "applied"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Registry progress-tracking counters, registered on a dedicated prometheus registry
type Registry struct {
	reg *prometheus.Registry

	ProgressReports     *prometheus.CounterVec
	LessonCompletions   *prometheus.CounterVec
	ModuleCompletions   prometheus.Counter
	CourseCompletions   prometheus.Counter
	CertificatesIssued  prometheus.Counter
	ArtifactFailures    prometheus.Counter
	PlaybackReportsSent *prometheus.CounterVec
}

// NewRegistry create and register all collectors
func NewRegistry(namespace string) *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		ProgressReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_reports_total",
			Help:      "Lesson progress patches received, by outcome.",
		}, []string{"result"}),
		LessonCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lesson_completions_total",
			Help:      "Lesson completion transitions, by lesson type.",
		}, []string{"type"}),
		ModuleCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_completions_total",
			Help:      "Module completion writes issued by the cascade.",
		}),
		CourseCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "course_completions_total",
			Help:      "Enrollment completion transitions.",
		}),
		CertificatesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_issued_total",
			Help:      "Certificate rows created.",
		}),
		ArtifactFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificate_artifact_failures_total",
			Help:      "Certificate artifact rendering calls that failed.",
		}),
		PlaybackReportsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_reports_total",
			Help:      "Reports emitted by the playback relay, by trigger.",
		}, []string{"trigger"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		r.ProgressReports,
		r.LessonCompletions,
		r.ModuleCompletions,
		r.CourseCompletions,
		r.CertificatesIssued,
		r.ArtifactFailures,
		r.PlaybackReportsSent,
	)
	return r
}

// Gatherer expose the registry for the /metrics handler
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
