// Package handlers содержит HTTP обработчики для API
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"coldchain-service/internal/metrics"
	"coldchain-service/internal/models"
	"coldchain-service/internal/monitor"
	"coldchain-service/internal/quality"
	"coldchain-service/internal/tolerance"
)

const (
	defaultHistoryCount = 50
	maxHistoryCount     = 1000
	maxBodyBytes        = 1 << 20
	pingTimeout         = 2 * time.Second
)

// Backend описывает хранилище для /health
type Backend string

const (
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// Handler содержит зависимости для HTTP обработчиков
type Handler struct {
	monitor   *monitor.Monitor
	registry  *tolerance.Registry
	backend   Backend
	log       *zap.Logger
	startTime time.Time
}

// NewHandler создает новый обработчик
func NewHandler(mon *monitor.Monitor, registry *tolerance.Registry, backend Backend, log *zap.Logger) *Handler {
	return &Handler{
		monitor:   mon,
		registry:  registry,
		backend:   backend,
		log:       log,
		startTime: time.Now(),
	}
}

// Register регистрирует маршруты API
func (h *Handler) Register(router *mux.Router) {
	h.route(router, "/readings", http.MethodPost, h.ReadingHandler)
	h.route(router, "/readings/batch", http.MethodPost, h.BatchReadingsHandler)
	h.route(router, "/batches", http.MethodGet, h.BatchesHandler)
	h.route(router, "/batches/{id}/readings", http.MethodGet, h.HistoryHandler)
	h.route(router, "/batches/{id}/quality", http.MethodGet, h.QualityHandler)
	h.route(router, "/batches/{id}/alerts", http.MethodPost, h.RaiseAlertHandler)
	h.route(router, "/batches/{id}/alerts/{alertId}/resolve", http.MethodPost, h.ResolveAlertHandler)
	h.route(router, "/tolerance", http.MethodGet, h.ToleranceListHandler)
	h.route(router, "/tolerance/{name}", http.MethodGet, h.ToleranceHandler)
	h.route(router, "/health", http.MethodGet, h.HealthHandler)
	h.route(router, "/stats", http.MethodGet, h.StatsHandler)
}

// route оборачивает обработчик в метрики запроса
func (h *Handler) route(router *mux.Router, path, method string, fn http.HandlerFunc) {
	router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(metrics.RequestDuration.WithLabelValues(path, r.Method))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		metrics.RequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).Inc()
	}).Methods(method)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// ReadingHandler обрабатывает POST /readings - прием одного показания.
// С ?async=true показание ставится в очередь и возвращается 202.
func (h *Handler) ReadingHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.respondError(w, "Invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	reading, err := models.DecodeReading(body, "")
	if err != nil {
		h.respondMonitorError(w, err)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		if err := h.monitor.Submit(reading); err != nil {
			h.respondMonitorError(w, err)
			return
		}
		metrics.ReadingsReceived.WithLabelValues("http").Inc()
		h.respondJSON(w, map[string]string{"status": "queued", "batchId": reading.BatchID}, http.StatusAccepted)
		return
	}

	result, err := h.monitor.Process(r.Context(), reading)
	if err != nil {
		h.respondMonitorError(w, err)
		return
	}
	metrics.ReadingsReceived.WithLabelValues("http").Inc()
	h.respondJSON(w, result, http.StatusOK)
}

// BatchReadingsHandler обрабатывает POST /readings/batch - массовая загрузка
func (h *Handler) BatchReadingsHandler(w http.ResponseWriter, r *http.Request) {
	var batch models.ReadingsBatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&batch); err != nil {
		h.respondError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	results := make([]models.IngestResult, 0, len(batch.Readings))
	rejected := make([]map[string]interface{}, 0)
	anomaliesCount := 0

	for i, raw := range batch.Readings {
		reading, err := models.DecodeReading(raw, "")
		if err != nil {
			metrics.ReadingsRejected.WithLabelValues("http").Inc()
			rejected = append(rejected, map[string]interface{}{"index": i, "error": err.Error()})
			continue
		}
		result, err := h.monitor.Process(r.Context(), reading)
		if err != nil {
			if !errors.Is(err, models.ErrInvalidReading) {
				h.respondMonitorError(w, err)
				return
			}
			metrics.ReadingsRejected.WithLabelValues("http").Inc()
			rejected = append(rejected, map[string]interface{}{"index": i, "error": err.Error()})
			continue
		}
		metrics.ReadingsReceived.WithLabelValues("http").Inc()
		results = append(results, result)
		if result.Result.IsAnomaly {
			anomaliesCount++
		}
	}

	response := map[string]interface{}{
		"processed":       len(results),
		"anomalies_found": anomaliesCount,
		"rejected":        rejected,
		"results":         results,
	}
	h.respondJSON(w, response, http.StatusOK)
}

// BatchesHandler обрабатывает GET /batches - документы всех партий
func (h *Handler) BatchesHandler(w http.ResponseWriter, r *http.Request) {
	batches, err := h.monitor.Batches(r.Context())
	if err != nil {
		h.respondMonitorError(w, err)
		return
	}
	h.respondJSON(w, batches, http.StatusOK)
}

// HistoryHandler возвращает последние показания партии
func (h *Handler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	count := defaultHistoryCount
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		if c, err := strconv.Atoi(countStr); err == nil && c > 0 && c <= maxHistoryCount {
			count = c
		}
	}

	readings, err := h.monitor.History(r.Context(), mux.Vars(r)["id"], count)
	if err != nil {
		h.respondMonitorError(w, err)
		return
	}
	h.respondJSON(w, readings, http.StatusOK)
}

// QualityHandler обрабатывает GET /batches/{id}/quality
func (h *Handler) QualityHandler(w http.ResponseWriter, r *http.Request) {
	q, err := h.monitor.Quality(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondMonitorError(w, err)
		return
	}
	h.respondJSON(w, q, http.StatusOK)
}

type raiseAlertRequest struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// RaiseAlertHandler обрабатывает POST /batches/{id}/alerts - ручное предупреждение
func (h *Handler) RaiseAlertHandler(w http.ResponseWriter, r *http.Request) {
	var req raiseAlertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	severity, ok := models.ParseAlertSeverity(strings.ToLower(req.Severity))
	if !ok {
		h.respondError(w, "severity must be one of low, medium, high", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.respondError(w, "message is required", http.StatusBadRequest)
		return
	}

	q, alert, err := h.monitor.RaiseManual(r.Context(), mux.Vars(r)["id"], severity, req.Message)
	if err != nil {
		h.respondMonitorError(w, err)
		return
	}
	h.respondJSON(w, map[string]interface{}{"alert": alert, "quality": q}, http.StatusCreated)
}

type resolveRequest struct {
	ResolvedBy string `json:"resolvedBy"`
}

// ResolveAlertHandler обрабатывает POST /batches/{id}/alerts/{alertId}/resolve
func (h *Handler) ResolveAlertHandler(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ResolvedBy) == "" {
		h.respondError(w, "resolvedBy is required", http.StatusBadRequest)
		return
	}

	vars := mux.Vars(r)
	q, err := h.monitor.Resolve(r.Context(), vars["id"], vars["alertId"], strings.TrimSpace(req.ResolvedBy))
	if err != nil {
		h.respondMonitorError(w, err)
		return
	}
	h.respondJSON(w, q, http.StatusOK)
}

// ToleranceListHandler список моделей допусков
func (h *Handler) ToleranceListHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, map[string]interface{}{
		"models":  h.registry.Names(),
		"default": h.registry.Default(),
	}, http.StatusOK)
}

// ToleranceHandler модель, выбранная для идентификатора партии или лекарства
func (h *Handler) ToleranceHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, h.registry.Lookup(mux.Vars(r)["name"]), http.StatusOK)
}

// HealthHandler обрабатывает GET /health - проверка здоровья
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	redisStatus := "disabled"
	if h.backend == BackendRedis {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		redisStatus = "disconnected"
		if h.monitor.Ping(ctx) == nil {
			redisStatus = "connected"
		}
	}

	status := models.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Redis:     redisStatus,
		Uptime:    time.Since(h.startTime).String(),
	}

	h.respondJSON(w, status, http.StatusOK)
}

// StatsHandler обрабатывает GET /stats - статистика сервиса
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))
	h.respondJSON(w, h.monitor.Stats(r.Context()), http.StatusOK)
}

// respondMonitorError переводит ошибку монитора в HTTP статус
func (h *Handler) respondMonitorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidReading):
		metrics.ReadingsRejected.WithLabelValues("http").Inc()
		h.respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, quality.ErrAlertNotFound):
		h.respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, quality.ErrAlertResolved):
		h.respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, monitor.ErrQueueFull), errors.Is(err, monitor.ErrNotRunning):
		h.respondError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.log.Error("request_failed", zap.Error(err))
		h.respondError(w, "internal error", http.StatusInternalServerError)
	}
}

// respondJSON отправляет JSON ответ
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError отправляет ошибку в JSON формате
func (h *Handler) respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
