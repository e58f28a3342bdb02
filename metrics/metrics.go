package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels shared by the stage counters.
const (
	ResultOK       = "ok"
	ResultDegraded = "degraded"
	ResultError    = "error"
	ResultSkipped  = "skipped"
)

var (
	once sync.Once

	// ClassificationsTotal counts /analyze outcomes. Degraded means the default
	// classification was returned.
	ClassificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sahayak",
		Subsystem: "classifier",
		Name:      "requests_total",
		Help:      "Total number of image classifications, labeled by result.",
	}, []string{"result"})

	// ClassificationDurationSeconds is the time spent normalizing and classifying one image.
	ClassificationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sahayak",
		Subsystem: "classifier",
		Name:      "duration_seconds",
		Help:      "Time to normalize and classify an uploaded image.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 60},
	})

	// CategoriesTotal counts the categories the classifier produced.
	CategoriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sahayak",
		Subsystem: "classifier",
		Name:      "categories_total",
		Help:      "Total number of classified reports, labeled by category.",
	}, []string{"category"})

	// GeocodeTotal counts locality lookups. Skipped means no usable coordinates.
	GeocodeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sahayak",
		Subsystem: "geocoder",
		Name:      "lookups_total",
		Help:      "Total number of reverse geocoding lookups, labeled by result.",
	}, []string{"result"})

	// AuthorityMatchesTotal counts whether a detected place matched a registry key.
	AuthorityMatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sahayak",
		Subsystem: "registry",
		Name:      "matches_total",
		Help:      "Total number of authority lookups by detected place, labeled by matched.",
	}, []string{"matched"})

	// DraftsTotal counts draft generation outcomes.
	DraftsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sahayak",
		Subsystem: "drafts",
		Name:      "requests_total",
		Help:      "Total number of complaint draft generations, labeled by result.",
	}, []string{"result"})

	// EmailsTotal counts send attempts by transport and result.
	EmailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sahayak",
		Subsystem: "email",
		Name:      "sent_total",
		Help:      "Total number of complaint emails attempted, labeled by transport and result.",
	}, []string{"transport", "result"})

	EventPublishErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sahayak",
		Subsystem: "events",
		Name:      "publish_error_total",
		Help:      "Total number of report event publish errors.",
	})

	// RegistryAuthorities is the number of authorities in the active registry.
	RegistryAuthorities = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sahayak",
		Subsystem: "registry",
		Name:      "authorities",
		Help:      "Number of authorities in the currently loaded registry.",
	})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ClassificationsTotal,
			ClassificationDurationSeconds,
			CategoriesTotal,
			GeocodeTotal,
			AuthorityMatchesTotal,
			DraftsTotal,
			EmailsTotal,
			EventPublishErrorTotal,
			RegistryAuthorities,
		)
	})
}
