// Package metrics реализует экспорт метрик в Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"coldchain-service/internal/models"
)

// Prometheus метрики
var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldchain_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coldchain_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint", "method"},
	)

	// ReadingsReceived количество полученных показаний по источнику
	ReadingsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldchain_readings_received_total",
			Help: "Total number of readings received",
		},
		[]string{"source"},
	)

	// ReadingsRejected показания, не прошедшие проверку
	ReadingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldchain_readings_rejected_total",
			Help: "Total number of readings rejected at validation",
		},
		[]string{"source"},
	)

	// ReadingsDropped показания, отброшенные из-за переполненной очереди
	ReadingsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coldchain_readings_dropped_total",
			Help: "Total number of readings dropped because the queue was full",
		},
	)

	// AnomaliesDetected количество аномалий по уровню
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldchain_anomalies_detected_total",
			Help: "Total number of anomalous readings",
		},
		[]string{"severity", "pattern"},
	)

	// AlertsRaised созданные предупреждения
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldchain_alerts_raised_total",
			Help: "Total number of quality alerts raised",
		},
		[]string{"type", "severity"},
	)

	// AlertsResolved решенные предупреждения
	AlertsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldchain_alerts_resolved_total",
			Help: "Total number of quality alerts resolved",
		},
		[]string{"resolver"},
	)

	// StatusTransitions смены статуса партий
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldchain_status_transitions_total",
			Help: "Batch quality status transitions",
		},
		[]string{"from", "to"},
	)

	// ZScoreTemperature последний z-score температуры
	ZScoreTemperature = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coldchain_zscore_temperature",
			Help: "Temperature z-score of the last classified reading",
		},
	)

	// ZScoreHumidity последний z-score влажности
	ZScoreHumidity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coldchain_zscore_humidity",
			Help: "Humidity z-score of the last classified reading",
		},
	)

	// QueueDepth глубина очередей воркеров
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coldchain_queue_depth",
			Help: "Readings waiting in worker queues",
		},
	)

	// StoreErrors ошибки хранилища
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldchain_store_errors_total",
			Help: "Total number of store operation failures",
		},
		[]string{"op"},
	)

	// ActiveGoroutines количество активных горутин
	ActiveGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coldchain_active_goroutines",
			Help: "Number of active goroutines",
		},
	)

	// ClassificationLatency время обработки одного показания
	ClassificationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coldchain_classification_latency_seconds",
			Help:    "Reading processing latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)
)

// ObserveResult обновляет метрики классификации
func ObserveResult(res models.AnomalyResult) {
	ZScoreTemperature.Set(res.TempZScore)
	ZScoreHumidity.Set(res.HumZScore)
	if res.IsAnomaly {
		AnomaliesDetected.WithLabelValues(string(res.Severity), res.Reasons.Pattern).Inc()
	}
}

// ObserveAlert учитывает новое предупреждение
func ObserveAlert(a *models.QualityAlert) {
	if a == nil {
		return
	}
	AlertsRaised.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
}

// ObserveTransition учитывает смену статуса партии
func ObserveTransition(from, to models.QualityStatus) {
	if from == to {
		return
	}
	StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
}
