package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playerid",
		Name:      "frames_resolved_total",
		Help:      "Total number of frames fully arbitrated",
	}, []string{"video_id"})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playerid",
		Name:      "decisions_total",
		Help:      "Identity decisions by source (anchor, route_locked, gallery, unassigned)",
	}, []string{"source"})

	DuplicateConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "playerid",
		Name:      "duplicate_conflicts_total",
		Help:      "Tracks forced back to unassigned after a duplicate-identity grace window",
	})

	HardNegativesMined = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "playerid",
		Name:      "hard_negatives_mined_total",
		Help:      "Hard negative vectors mined into player profiles",
	})

	PruneRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "playerid",
		Name:      "prune_runs_total",
		Help:      "Reference-set pruning passes executed",
	})

	GalleryProfiles = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "playerid",
		Name:      "gallery_profiles",
		Help:      "Number of player profiles in the gallery",
	})

	ResolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "playerid",
		Name:      "resolve_duration_seconds",
		Help:      "Duration of resolution stages",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"stage"})

	CheckpointDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "playerid",
		Name:      "checkpoint_duration_seconds",
		Help:      "Duration of gallery checkpoint writes",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "playerid",
		Name:      "queue_depth",
		Help:      "Number of pending observation tasks in queue",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "playerid",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "playerid",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
