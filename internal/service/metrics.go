package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rules_status_transitions_total",
			Help: "Status changes of rules, adoptions and chapter rules",
		},
		[]string{"entity", "status"},
	)

	propagatedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rules_chapter_propagations_total",
			Help: "Chapter rule records written by propagation",
		},
	)

	quotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rules_quota_rejections_total",
			Help: "Publications refused because the creator's quota was exhausted",
		},
	)
)
