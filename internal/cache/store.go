// Package cache реализует хранилище истории показаний и документов качества
// партий: Redis для работы в кластере и память для запуска без Redis и тестов
package cache

import (
	"context"
	"errors"

	"coldchain-service/internal/models"
)

const (
	// DefaultHistorySize сколько последних показаний партии хранится
	DefaultHistorySize = 50

	// Ключи счетчиков
	ReadingsCounter  = "readings:total"
	AnomaliesCounter = "anomalies:total"
	AlertsCounter    = "alerts:total"
)

// ErrNotFound запись отсутствует
var ErrNotFound = errors.New("not found")

// Store хранилище, которым пользуется монитор. История каждой партии
// ограничена последними HistorySize показаниями.
type Store interface {
	// Commit атомарно добавляет показание в историю партии и сохраняет
	// обновленный документ качества: либо записано и то и другое, либо ничего
	Commit(ctx context.Context, r models.Reading, q models.BatchQuality) error
	// History возвращает до n последних показаний, от старых к новым
	History(ctx context.Context, batchID string, n int) ([]models.Reading, error)
	// GetQuality возвращает документ партии или ErrNotFound
	GetQuality(ctx context.Context, batchID string) (models.BatchQuality, error)
	SaveQuality(ctx context.Context, q models.BatchQuality) error
	// Batches список известных партий
	Batches(ctx context.Context) ([]string, error)
	IncrementCounter(ctx context.Context, key string) (int64, error)
	GetCounter(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
