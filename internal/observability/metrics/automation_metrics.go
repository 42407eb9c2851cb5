package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AutomationMetrics tracks automation runs, outbound notifications,
// block/unblock transitions and webhook deliveries.
type AutomationMetrics struct {
	runDuration   *prometheus.HistogramVec
	runsTotal     *prometheus.CounterVec
	runsSkipped   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
}

var (
	automationMetricsOnce sync.Once
	automationMetrics     *AutomationMetrics
)

// Automation returns the process-wide instance registered on the default registerer.
func Automation(cfg Config) *AutomationMetrics {
	automationMetricsOnce.Do(func() {
		automationMetrics = NewAutomationMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return automationMetrics
}

func NewAutomationMetrics(registerer prometheus.Registerer, cfg Config) *AutomationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "noty"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &AutomationMetrics{
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "noty_automation_run_duration_seconds",
				Help:        "Duration of automation runs by type and final status.",
				Buckets:     []float64{0.5, 1, 5, 15, 30, 60, 180, 600},
				ConstLabels: constLabels,
			},
			[]string{"type", "status"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "noty_automation_runs_total",
				Help:        "Automation runs by type, trigger and final status.",
				ConstLabels: constLabels,
			},
			[]string{"type", "trigger", "status"},
		),
		runsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "noty_automation_runs_skipped_total",
				Help:        "Automation invocations skipped because a run of the same type was in flight.",
				ConstLabels: constLabels,
			},
			[]string{"type", "trigger"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "noty_notifications_total",
				Help:        "Outbound notification attempts by message type and terminal status.",
				ConstLabels: constLabels,
			},
			[]string{"type", "status"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "noty_tracking_transitions_total",
				Help:        "Block/unblock transitions on the tracking platform.",
				ConstLabels: constLabels,
			},
			[]string{"action", "result"}, // block|unblock, success|failed
		),
		webhooks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "noty_webhook_events_total",
				Help:        "Billing webhook deliveries by event and outcome.",
				ConstLabels: constLabels,
			},
			[]string{"event", "status"},
		),
	}

	registerer.MustRegister(
		m.runDuration,
		m.runsTotal,
		m.runsSkipped,
		m.notifications,
		m.transitions,
		m.webhooks,
	)
	return m
}

func (m *AutomationMetrics) ObserveRun(automationType, trigger, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(automationType, status).Observe(elapsed.Seconds())
	m.runsTotal.WithLabelValues(automationType, trigger, status).Inc()
}

func (m *AutomationMetrics) IncRunSkipped(automationType, trigger string) {
	if m == nil {
		return
	}
	m.runsSkipped.WithLabelValues(automationType, trigger).Inc()
}

func (m *AutomationMetrics) IncNotification(messageType, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(messageType, status).Inc()
}

func (m *AutomationMetrics) IncTransition(action, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, result).Inc()
}

func (m *AutomationMetrics) IncWebhook(event, status string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(event, status).Inc()
}
