package biz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysisTotal 话语分析计数
	AnalysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_engine",
			Subsystem: "sentiment",
			Name:      "analysis_total",
			Help:      "Total number of message analyses",
		},
		[]string{"sender", "outcome"},
	)

	// SatisfactionImpact 单次分析的满意度冲击分布
	SatisfactionImpact = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signal_engine",
			Subsystem: "sentiment",
			Name:      "satisfaction_impact",
			Help:      "Satisfaction impact per accepted analysis",
			Buckets:   []float64{-35, -20, -10, -5, -1, 0, 1, 5, 10, 20, 35},
		},
	)

	// NodeCreatedTotal 推理节点创建计数
	NodeCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_engine",
			Subsystem: "reasoning",
			Name:      "node_created_total",
			Help:      "Total number of reasoning nodes created",
		},
		[]string{"source"},
	)

	// NodeSuppressedTotal 被抑制的节点计数
	NodeSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_engine",
			Subsystem: "reasoning",
			Name:      "node_suppressed_total",
			Help:      "Total number of reasoning nodes suppressed",
		},
		[]string{"event", "reason"},
	)

	// InsightGeneratedTotal 洞察生成计数
	InsightGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_engine",
			Subsystem: "insight",
			Name:      "generated_total",
			Help:      "Total number of insights generated",
		},
		[]string{"type"},
	)

	// RemoteScoreTotal 远端评分结果计数
	RemoteScoreTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_engine",
			Subsystem: "remote",
			Name:      "score_total",
			Help:      "Total number of remote scoring calls",
		},
		[]string{"outcome"},
	)

	// RemoteScoreDuration 远端评分耗时
	RemoteScoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signal_engine",
			Subsystem: "remote",
			Name:      "score_duration_seconds",
			Help:      "Remote scoring call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
	)

	// ActiveSessions 活跃会话数
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signal_engine",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of active sessions",
		},
	)
)
