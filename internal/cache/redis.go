package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"coldchain-service/internal/models"
)

const (
	// ReadingsKeyPrefix префикс списков истории показаний
	ReadingsKeyPrefix = "readings:"
	// QualityKeyPrefix префикс документов качества
	QualityKeyPrefix = "quality:"
	// BatchesKey множество известных партий
	BatchesKey = "batches"
	// HistoryTTL время жизни истории партии без новых показаний
	HistoryTTL = 7 * 24 * time.Hour
)

// RedisStore реализует Store поверх Redis
type RedisStore struct {
	client      *redis.Client
	historySize int
}

// NewRedisStore создает новое подключение к Redis
func NewRedisStore(ctx context.Context, addr, password string, db, historySize int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if historySize <= 0 {
		historySize = DefaultHistorySize
	}

	return &RedisStore{
		client:      client,
		historySize: historySize,
	}, nil
}

// Commit одной транзакцией MULTI/EXEC кладет показание в голову списка,
// обрезает список до historySize и сохраняет документ партии
func (s *RedisStore) Commit(ctx context.Context, r models.Reading, q models.BatchQuality) error {
	reading, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quality: %w", err)
	}

	key := ReadingsKeyPrefix + r.BatchID

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, reading)
	pipe.LTrim(ctx, key, 0, int64(s.historySize-1))
	pipe.Expire(ctx, key, HistoryTTL)
	pipe.Set(ctx, QualityKeyPrefix+q.BatchID, doc, 0)
	pipe.SAdd(ctx, BatchesKey, r.BatchID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to commit reading: %w", err)
	}
	return nil
}

// History возвращает последние n показаний партии в хронологическом порядке
func (s *RedisStore) History(ctx context.Context, batchID string, n int) ([]models.Reading, error) {
	if n <= 0 || n > s.historySize {
		n = s.historySize
	}
	data, err := s.client.LRange(ctx, ReadingsKeyPrefix+batchID, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	readings := make([]models.Reading, 0, len(data))
	// в списке новые показания идут первыми
	for i := len(data) - 1; i >= 0; i-- {
		var r models.Reading
		if err := json.Unmarshal([]byte(data[i]), &r); err != nil {
			continue
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// GetQuality читает документ партии
func (s *RedisStore) GetQuality(ctx context.Context, batchID string) (models.BatchQuality, error) {
	data, err := s.client.Get(ctx, QualityKeyPrefix+batchID).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.BatchQuality{}, ErrNotFound
	}
	if err != nil {
		return models.BatchQuality{}, fmt.Errorf("failed to get quality: %w", err)
	}

	var q models.BatchQuality
	if err := json.Unmarshal(data, &q); err != nil {
		return models.BatchQuality{}, fmt.Errorf("failed to unmarshal quality: %w", err)
	}
	return q, nil
}

// SaveQuality сохраняет документ партии. Документ не истекает: предупреждения
// не удаляются.
func (s *RedisStore) SaveQuality(ctx context.Context, q models.BatchQuality) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quality: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, QualityKeyPrefix+q.BatchID, data, 0)
	pipe.SAdd(ctx, BatchesKey, q.BatchID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save quality: %w", err)
	}
	return nil
}

// Batches возвращает отсортированный список партий
func (s *RedisStore) Batches(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, BatchesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// IncrementCounter увеличивает счетчик
func (s *RedisStore) IncrementCounter(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

// GetCounter возвращает значение счетчика
func (s *RedisStore) GetCounter(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// Ping проверяет соединение с Redis
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает соединение
func (s *RedisStore) Close() error {
	return s.client.Close()
}
