// Package monitor связывает классификатор, агрегатор качества и хранилище.
// Показания одной партии обрабатываются строго последовательно: асинхронные
// показания распределяются по воркерам по хэшу партии, а синхронные вызовы
// берут ту же блокировку партии.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"coldchain-service/internal/analytics"
	"coldchain-service/internal/cache"
	"coldchain-service/internal/metrics"
	"coldchain-service/internal/models"
	"coldchain-service/internal/quality"
)

const lockStripes = 256

var (
	// ErrQueueFull очередь воркера переполнена
	ErrQueueFull = errors.New("reading queue is full")
	// ErrNotRunning воркеры не запущены или уже остановлены
	ErrNotRunning = errors.New("monitor is not running")
)

// Monitor обрабатывает показания партий
type Monitor struct {
	classifier  *analytics.Classifier
	aggregator  *quality.Aggregator
	store       cache.Store
	log         *zap.Logger
	historySize int
	bufferSize  int

	locks       [lockStripes]sync.Mutex
	queues      []chan models.Reading
	resultsChan chan models.IngestResult
	stopChan    chan struct{}
	runMu       sync.RWMutex
	running     bool
	wg          sync.WaitGroup
	now         func() time.Time
}

// New создает монитор. bufferSize - емкость очереди каждого воркера.
func New(classifier *analytics.Classifier, aggregator *quality.Aggregator, store cache.Store, log *zap.Logger, historySize, bufferSize int) *Monitor {
	if historySize <= 0 {
		historySize = cache.DefaultHistorySize
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Monitor{
		classifier:  classifier,
		aggregator:  aggregator,
		store:       store,
		log:         log,
		historySize: historySize,
		bufferSize:  bufferSize,
		resultsChan: make(chan models.IngestResult, bufferSize),
		stopChan:    make(chan struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start запускает горутины для обработки показаний
func (m *Monitor) Start(numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	m.queues = make([]chan models.Reading, numWorkers)
	for i := range m.queues {
		m.queues[i] = make(chan models.Reading, m.bufferSize)
		m.wg.Add(1)
		go m.worker(m.queues[i])
	}

	m.runMu.Lock()
	m.running = true
	m.runMu.Unlock()
}

// worker горутина одного шарда партий
func (m *Monitor) worker(queue chan models.Reading) {
	defer m.wg.Done()
	for {
		select {
		case r := <-queue:
			m.handle(r)
		case <-m.stopChan:
			// дорабатываем то, что уже принято в очередь
			for {
				select {
				case r := <-queue:
					m.handle(r)
				default:
					return
				}
			}
		}
	}
}

func (m *Monitor) handle(r models.Reading) {
	metrics.QueueDepth.Dec()
	result, err := m.Process(context.Background(), r)
	if err != nil {
		m.log.Error("reading_processing_failed",
			zap.String("batch_id", r.BatchID),
			zap.String("device_id", r.DeviceID),
			zap.Error(err),
		)
		return
	}
	select {
	case m.resultsChan <- result:
	default:
		// Канал результатов переполнен, пропускаем
	}
}

// Submit ставит показание в очередь воркера его партии
func (m *Monitor) Submit(r models.Reading) error {
	if err := r.Validate(); err != nil {
		return err
	}

	m.runMu.RLock()
	defer m.runMu.RUnlock()
	if !m.running {
		return ErrNotRunning
	}
	queue := m.queues[shard(r.BatchID, len(m.queues))]
	metrics.QueueDepth.Inc()
	select {
	case queue <- r:
		return nil
	default:
		metrics.QueueDepth.Dec()
		metrics.ReadingsDropped.Inc()
		return ErrQueueFull
	}
}

// Process синхронно классифицирует показание и обновляет документ партии
func (m *Monitor) Process(ctx context.Context, r models.Reading) (models.IngestResult, error) {
	if err := r.Validate(); err != nil {
		return models.IngestResult{}, err
	}
	start := time.Now()
	if r.Timestamp.IsZero() {
		r.Timestamp = m.now()
	}

	mu := m.lockFor(r.BatchID)
	mu.Lock()
	defer mu.Unlock()

	history, err := m.store.History(ctx, r.BatchID, m.historySize)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("history").Inc()
		return models.IngestResult{}, fmt.Errorf("load history for %s: %w", r.BatchID, err)
	}
	batch, err := m.loadQuality(ctx, r.BatchID)
	if err != nil {
		return models.IngestResult{}, err
	}

	res := m.classifier.ClassifyReading(r, history)
	updated, alert := m.aggregator.Apply(batch, r, res)

	if err := m.store.Commit(ctx, r, updated); err != nil {
		metrics.StoreErrors.WithLabelValues("commit").Inc()
		return models.IngestResult{}, fmt.Errorf("commit reading for %s: %w", r.BatchID, err)
	}

	m.count(ctx, cache.ReadingsCounter)
	metrics.ObserveResult(res)
	metrics.ObserveTransition(batch.Status, updated.Status)
	metrics.ClassificationLatency.Observe(time.Since(start).Seconds())

	if res.IsAnomaly {
		m.count(ctx, cache.AnomaliesCounter)
		m.log.Warn("anomaly_detected",
			zap.String("batch_id", r.BatchID),
			zap.String("device_id", r.DeviceID),
			zap.Float64("temperature", r.Temperature),
			zap.Float64("humidity", r.Humidity),
			zap.String("severity", string(res.Severity)),
			zap.String("pattern", res.Reasons.Pattern),
			zap.Float64("confidence", res.Confidence),
			zap.String("model", res.Model),
		)
	}
	if alert != nil {
		m.count(ctx, cache.AlertsCounter)
		metrics.ObserveAlert(alert)
	}
	if batch.Status != updated.Status {
		m.log.Info("batch_status_changed",
			zap.String("batch_id", r.BatchID),
			zap.String("from", string(batch.Status)),
			zap.String("to", string(updated.Status)),
		)
	}

	return models.IngestResult{
		Reading: r,
		Result:  res,
		Alert:   alert,
		Quality: updated,
	}, nil
}

// Quality документ партии; для неизвестной партии статус unknown
func (m *Monitor) Quality(ctx context.Context, batchID string) (models.BatchQuality, error) {
	return m.loadQuality(ctx, batchID)
}

// Batches документы всех известных партий
func (m *Monitor) Batches(ctx context.Context) ([]models.BatchQuality, error) {
	ids, err := m.store.Batches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	out := make([]models.BatchQuality, 0, len(ids))
	for _, id := range ids {
		q, err := m.loadQuality(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// History последние n показаний партии
func (m *Monitor) History(ctx context.Context, batchID string, n int) ([]models.Reading, error) {
	return m.store.History(ctx, batchID, n)
}

// Resolve решает предупреждение партии от имени оператора
func (m *Monitor) Resolve(ctx context.Context, batchID, alertID, resolvedBy string) (models.BatchQuality, error) {
	mu := m.lockFor(batchID)
	mu.Lock()
	defer mu.Unlock()

	batch, err := m.store.GetQuality(ctx, batchID)
	if errors.Is(err, cache.ErrNotFound) {
		return models.BatchQuality{}, fmt.Errorf("%w: batch %s has no alerts", quality.ErrAlertNotFound, batchID)
	}
	if err != nil {
		return models.BatchQuality{}, fmt.Errorf("load quality for %s: %w", batchID, err)
	}

	updated, err := m.aggregator.Resolve(batch, alertID, resolvedBy)
	if err != nil {
		return models.BatchQuality{}, err
	}
	if err := m.store.SaveQuality(ctx, updated); err != nil {
		metrics.StoreErrors.WithLabelValues("save_quality").Inc()
		return models.BatchQuality{}, fmt.Errorf("save quality for %s: %w", batchID, err)
	}

	metrics.AlertsResolved.WithLabelValues(resolvedBy).Inc()
	metrics.ObserveTransition(batch.Status, updated.Status)
	m.log.Info("alert_resolved",
		zap.String("batch_id", batchID),
		zap.String("alert_id", alertID),
		zap.String("resolved_by", resolvedBy),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// RaiseManual добавляет предупреждение оператора
func (m *Monitor) RaiseManual(ctx context.Context, batchID string, severity models.AlertSeverity, message string) (models.BatchQuality, models.QualityAlert, error) {
	mu := m.lockFor(batchID)
	mu.Lock()
	defer mu.Unlock()

	batch, err := m.loadQuality(ctx, batchID)
	if err != nil {
		return models.BatchQuality{}, models.QualityAlert{}, err
	}
	updated, alert := m.aggregator.RaiseManual(batch, severity, message)
	if err := m.store.SaveQuality(ctx, updated); err != nil {
		metrics.StoreErrors.WithLabelValues("save_quality").Inc()
		return models.BatchQuality{}, models.QualityAlert{}, fmt.Errorf("save quality for %s: %w", batchID, err)
	}

	m.count(ctx, cache.AlertsCounter)
	metrics.ObserveAlert(&alert)
	metrics.ObserveTransition(batch.Status, updated.Status)
	m.log.Info("manual_alert_raised",
		zap.String("batch_id", batchID),
		zap.String("alert_id", alert.ID),
		zap.String("severity", string(severity)),
	)
	return updated, alert, nil
}

// Stats счетчики сервиса
func (m *Monitor) Stats(ctx context.Context) models.StatsResponse {
	readings, _ := m.store.GetCounter(ctx, cache.ReadingsCounter)
	anomalies, _ := m.store.GetCounter(ctx, cache.AnomaliesCounter)
	alerts, _ := m.store.GetCounter(ctx, cache.AlertsCounter)
	return models.StatsResponse{
		TotalReadings:  readings,
		AnomaliesCount: anomalies,
		AlertsRaised:   alerts,
		QueueDepth:     m.QueueDepth(),
		Workers:        len(m.queues),
	}
}

// QueueDepth количество показаний в очередях
func (m *Monitor) QueueDepth() int {
	n := 0
	for _, q := range m.queues {
		n += len(q)
	}
	return n
}

// Results возвращает канал результатов асинхронной обработки
func (m *Monitor) Results() <-chan models.IngestResult {
	return m.resultsChan
}

// Stop останавливает воркеров, дождавшись обработки принятых показаний
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	m.runMu.Unlock()

	close(m.stopChan)
	m.wg.Wait()
	close(m.resultsChan)
}

func (m *Monitor) loadQuality(ctx context.Context, batchID string) (models.BatchQuality, error) {
	q, err := m.store.GetQuality(ctx, batchID)
	if errors.Is(err, cache.ErrNotFound) {
		return models.NewBatchQuality(batchID), nil
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get_quality").Inc()
		return models.BatchQuality{}, fmt.Errorf("load quality for %s: %w", batchID, err)
	}
	return q, nil
}

func (m *Monitor) count(ctx context.Context, key string) {
	if _, err := m.store.IncrementCounter(ctx, key); err != nil {
		m.log.Debug("counter_increment_failed", zap.String("key", key), zap.Error(err))
	}
}

func (m *Monitor) lockFor(batchID string) *sync.Mutex {
	return &m.locks[shard(batchID, lockStripes)]
}

// shard номер шарда партии
func shard(batchID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(batchID))
	return int(h.Sum32() % uint32(n))
}

// Ping проверяет доступность хранилища
func (m *Monitor) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
