package cache

import (
	"context"
	"sort"
	"sync"

	"coldchain-service/internal/models"
)

// MemoryStore реализует Store в памяти процесса
type MemoryStore struct {
	mu          sync.RWMutex
	historySize int
	readings    map[string][]models.Reading
	quality     map[string]models.BatchQuality
	counters    map[string]int64
}

// NewMemoryStore создает хранилище в памяти
func NewMemoryStore(historySize int) *MemoryStore {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &MemoryStore{
		historySize: historySize,
		readings:    make(map[string][]models.Reading),
		quality:     make(map[string]models.BatchQuality),
		counters:    make(map[string]int64),
	}
}

// Commit добавляет показание, вытесняя самое старое при переполнении, и
// сохраняет документ партии под одной блокировкой
func (s *MemoryStore) Commit(_ context.Context, r models.Reading, q models.BatchQuality) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.readings[r.BatchID], r)
	if len(buf) > s.historySize {
		buf = append([]models.Reading(nil), buf[len(buf)-s.historySize:]...)
	}
	s.readings[r.BatchID] = buf
	q.Alerts = append([]models.QualityAlert(nil), q.Alerts...)
	s.quality[q.BatchID] = q
	return nil
}

// History возвращает копию последних n показаний
func (s *MemoryStore) History(_ context.Context, batchID string, n int) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.readings[batchID]
	if n > 0 && len(buf) > n {
		buf = buf[len(buf)-n:]
	}
	out := make([]models.Reading, len(buf))
	copy(out, buf)
	return out, nil
}

// GetQuality возвращает копию документа партии
func (s *MemoryStore) GetQuality(_ context.Context, batchID string) (models.BatchQuality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quality[batchID]
	if !ok {
		return models.BatchQuality{}, ErrNotFound
	}
	q.Alerts = append([]models.QualityAlert(nil), q.Alerts...)
	return q, nil
}

// SaveQuality сохраняет копию документа партии
func (s *MemoryStore) SaveQuality(_ context.Context, q models.BatchQuality) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q.Alerts = append([]models.QualityAlert(nil), q.Alerts...)
	s.quality[q.BatchID] = q
	return nil
}

// Batches возвращает отсортированный список партий
func (s *MemoryStore) Batches(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.readings)+len(s.quality))
	for id := range s.readings {
		seen[id] = struct{}{}
	}
	for id := range s.quality {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// IncrementCounter увеличивает счетчик
func (s *MemoryStore) IncrementCounter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

// GetCounter возвращает значение счетчика
func (s *MemoryStore) GetCounter(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[key], nil
}

// Ping всегда успешен
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close ничего не освобождает
func (s *MemoryStore) Close() error {
	return nil
}
