// Package main запускает сервис контроля условий хранения партий лекарств.
// Сервис реализует:
// - HTTP API для приема показаний температуры/влажности
// - Прием показаний из Kafka и MQTT
// - Адаптивный базовый уровень партии (окно 50 показаний, z-score > 2σ)
// - Поиск скачков и дрейфа, классификацию аномалий и статус качества партии
// - Хранение истории и предупреждений в Redis
// - Экспорт метрик в Prometheus
package main

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"coldchain-service/internal/analytics"
	"coldchain-service/internal/cache"
	"coldchain-service/internal/config"
	"coldchain-service/internal/handlers"
	"coldchain-service/internal/ingest"
	"coldchain-service/internal/logging"
	"coldchain-service/internal/metrics"
	"coldchain-service/internal/monitor"
	"coldchain-service/internal/quality"
	"coldchain-service/internal/tolerance"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting coldchain service",
		zap.String("go_version", runtime.Version()),
		zap.Int("num_cpu", runtime.NumCPU()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := tolerance.WithBuiltin(cfg.ToleranceModels...)
	if err != nil {
		log.Fatal("invalid tolerance models", zap.Error(err))
	}

	store, backend := connectStore(ctx, cfg, log)

	mon := monitor.New(
		analytics.NewClassifier(registry),
		quality.NewAggregator(cfg.AutoResolve),
		store,
		log.Named("monitor"),
		cfg.HistorySize,
		cfg.BufferSize,
	)
	mon.Start(cfg.WorkerCount)
	log.Info("monitor started", zap.Int("workers", cfg.WorkerCount), zap.Strings("models", registry.Names()))

	handler := handlers.NewHandler(mon, registry, backend, log.Named("http"))

	// Настраиваем маршруты
	router := mux.NewRouter()
	handler.Register(router)

	// Prometheus метрики
	router.Handle("/prometheus", promhttp.Handler())

	// pprof для профилирования
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(cfg.AllowedOrigins),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type"}),
	)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      gorillahandlers.LoggingHandler(os.Stdout, cors(router)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Запускаем горутину для обновления метрик
	go updateMetricsLoop(ctx)

	// Запускаем горутину для обработки результатов асинхронного приема
	resultsDone := make(chan struct{})
	go func() {
		defer close(resultsDone)
		processResults(mon, log.Named("results"))
	}()

	consumer := startKafka(ctx, cfg, mon, log.Named("kafka"))
	subscriber := startMQTT(cfg, mon, log.Named("mqtt"))

	go func() {
		log.Info("server listening", zap.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Сначала прекращаем прием, затем дорабатываем очереди
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}
	if subscriber != nil {
		subscriber.Stop()
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error("kafka close error", zap.Error(err))
		}
	}

	mon.Stop()
	<-resultsDone

	if err := store.Close(); err != nil {
		log.Error("store close error", zap.Error(err))
	}

	log.Info("server stopped")
}

// connectStore подключается к Redis с повторами; при неудаче работает в памяти
func connectStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.Store, handlers.Backend) {
	var lastErr error
	for i := 0; i < cfg.RedisRetries; i++ {
		store, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.HistorySize)
		if err == nil {
			log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
			return store, handlers.BackendRedis
		}
		lastErr = err
		log.Warn("redis connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < cfg.RedisRetries-1 {
			select {
			case <-ctx.Done():
				i = cfg.RedisRetries
			case <-time.After(time.Duration(i+1) * time.Second):
			}
		}
	}

	log.Warn("running with in-memory store", zap.Error(lastErr))
	return cache.NewMemoryStore(cfg.HistorySize), handlers.BackendMemory
}

func startKafka(ctx context.Context, cfg *config.Config, mon *monitor.Monitor, log *zap.Logger) *ingest.KafkaConsumer {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	consumer, err := ingest.NewKafkaConsumer(ingest.KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroup,
	}, mon, log)
	if err != nil {
		log.Error("kafka consumer disabled", zap.Error(err))
		return nil
	}
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("kafka consumer stopped", zap.Error(err))
		}
	}()
	return consumer
}

func startMQTT(cfg *config.Config, mon *monitor.Monitor, log *zap.Logger) *ingest.MQTTSubscriber {
	if cfg.MQTTBroker == "" {
		return nil
	}
	sub, err := ingest.NewMQTTSubscriber(ingest.MQTTConfig{
		Broker:   cfg.MQTTBroker,
		Topic:    cfg.MQTTTopic,
		ClientID: cfg.MQTTClientID,
		QoS:      1,
	}, mon, log)
	if err != nil {
		log.Error("mqtt subscriber disabled", zap.Error(err))
		return nil
	}
	if err := sub.Start(10 * time.Second); err != nil {
		// клиент продолжает переподключаться в фоне
		log.Warn("mqtt broker not reachable yet", zap.Error(err))
	}
	return sub
}

// updateMetricsLoop периодически обновляет метрики Prometheus
func updateMetricsLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ActiveGoroutines.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// processResults логирует результаты асинхронной обработки
func processResults(mon *monitor.Monitor, log *zap.Logger) {
	for result := range mon.Results() {
		if result.Alert != nil {
			log.Info("alert raised",
				zap.String("batch_id", result.Reading.BatchID),
				zap.String("alert_id", result.Alert.ID),
				zap.String("type", string(result.Alert.Type)),
				zap.String("severity", string(result.Alert.Severity)),
				zap.String("status", string(result.Quality.Status)),
			)
		}
	}
}
