package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics, registered on the default Prometheus registry and
// exposed on the API's /metrics endpoint.
var (
	BackupsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craftops_backups_created_total",
		Help: "Backups created, by kind",
	}, []string{"kind"})

	BackupsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "craftops_backups_failed_total",
		Help: "Backup creations that failed",
	})

	BackupsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "craftops_backups_deleted_total",
		Help: "Backups deleted by callers or retention",
	})

	RetentionPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "craftops_retention_pruned_total",
		Help: "Backup records pruned by retention policies",
	})

	ArchiveBuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "craftops_archive_build_seconds",
		Help:    "Time spent building backup archives",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	UpdateChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craftops_update_checks_total",
		Help: "Version checks against the release feed, by outcome",
	}, []string{"outcome"})

	UpdateDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craftops_update_downloads_total",
		Help: "Update binary downloads, by outcome",
	}, []string{"outcome"})

	UpdateInstalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craftops_update_installs_total",
		Help: "Update installations, by outcome",
	}, []string{"outcome"})
)
