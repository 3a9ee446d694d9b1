package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"coldchain-service/internal/analytics"
	"coldchain-service/internal/cache"
	"coldchain-service/internal/models"
	"coldchain-service/internal/quality"
	"coldchain-service/internal/tolerance"
)

func newTestMonitor(t *testing.T, store cache.Store, bufferSize int) *Monitor {
	t.Helper()
	return New(
		analytics.NewClassifier(tolerance.Builtin()),
		quality.NewAggregator(0),
		store,
		zaptest.NewLogger(t),
		cache.DefaultHistorySize,
		bufferSize,
	)
}

func reading(batch string, temp, hum float64) models.Reading {
	return models.Reading{
		BatchID:     batch,
		DeviceID:    "sensor-7",
		Temperature: temp,
		Humidity:    hum,
		Timestamp:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestProcess_AnomalyRaisesAlertAndResolveRestoresGood(t *testing.T) {
	ctx := context.Background()
	m := newTestMonitor(t, cache.NewMemoryStore(0), 10)

	q, err := m.Quality(ctx, "INSULIN-42")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnknown, q.Status)

	out, err := m.Process(ctx, reading("INSULIN-42", 5, 45))
	require.NoError(t, err)
	assert.False(t, out.Result.IsAnomaly)
	assert.Equal(t, models.StatusGood, out.Quality.Status)

	out, err = m.Process(ctx, reading("INSULIN-42", 15, 35))
	require.NoError(t, err)
	require.NotNil(t, out.Alert)
	assert.Equal(t, models.SeverityHigh, out.Result.Severity)
	assert.Equal(t, models.AlertTemperature, out.Alert.Type)
	assert.Equal(t, models.StatusCompromised, out.Quality.Status)

	q, err = m.Resolve(ctx, "INSULIN-42", out.Alert.ID, "qa-lead")
	require.NoError(t, err)
	assert.Equal(t, models.StatusGood, q.Status)

	stored, err := m.Quality(ctx, "INSULIN-42")
	require.NoError(t, err)
	assert.Equal(t, models.StatusGood, stored.Status)
	assert.EqualValues(t, 2, stored.ReadingCount)

	stats := m.Stats(ctx)
	assert.EqualValues(t, 2, stats.TotalReadings)
	assert.EqualValues(t, 1, stats.AnomaliesCount)
	assert.EqualValues(t, 1, stats.AlertsRaised)
}

func TestProcess_RejectsInvalidReading(t *testing.T) {
	m := newTestMonitor(t, cache.NewMemoryStore(0), 10)

	_, err := m.Process(context.Background(), models.Reading{Temperature: 5})
	assert.ErrorIs(t, err, models.ErrInvalidReading)
}

func TestProcess_FillsMissingTimestamp(t *testing.T) {
	m := newTestMonitor(t, cache.NewMemoryStore(0), 10)
	r := reading("b", 20, 50)
	r.Timestamp = time.Time{}

	out, err := m.Process(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, out.Reading.Timestamp.IsZero())
}

func TestProcess_UsesBaselineOnceHistoryIsLongEnough(t *testing.T) {
	ctx := context.Background()
	m := newTestMonitor(t, cache.NewMemoryStore(0), 10)

	for i := 0; i < 11; i++ {
		_, err := m.Process(ctx, reading("lot-9", 20+float64(i%2), 50))
		require.NoError(t, err)
	}

	out, err := m.Process(ctx, reading("lot-9", 23, 50))
	require.NoError(t, err)
	assert.True(t, out.Result.BaselineActive)
	assert.True(t, out.Result.Reasons.Temperature)
}

func TestResolve_UnknownBatchOrAlert(t *testing.T) {
	ctx := context.Background()
	m := newTestMonitor(t, cache.NewMemoryStore(0), 10)

	_, err := m.Resolve(ctx, "nope", "a1", "op")
	assert.ErrorIs(t, err, quality.ErrAlertNotFound)

	_, err = m.Process(ctx, reading("b", 20, 50))
	require.NoError(t, err)
	_, err = m.Resolve(ctx, "b", "a1", "op")
	assert.ErrorIs(t, err, quality.ErrAlertNotFound)
}

func TestRaiseManual(t *testing.T) {
	ctx := context.Background()
	m := newTestMonitor(t, cache.NewMemoryStore(0), 10)

	q, alert, err := m.RaiseManual(ctx, "aspirin-7", models.AlertHigh, "package damaged")
	require.NoError(t, err)
	assert.Equal(t, models.AlertManual, alert.Type)
	assert.Equal(t, models.StatusCompromised, q.Status)

	batches, err := m.Batches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "aspirin-7", batches[0].BatchID)
}

func TestSubmit_SerializesPerBatch(t *testing.T) {
	store := cache.NewMemoryStore(0)
	m := newTestMonitor(t, store, 1000)
	m.Start(4)

	const perBatch = 100
	batches := []string{"insulin-a", "insulin-b", "lot-c"}

	var wg sync.WaitGroup
	for _, b := range batches {
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func(batch string) {
				defer wg.Done()
				for i := 0; i < perBatch/2; i++ {
					assert.NoError(t, m.Submit(reading(batch, 5, 45)))
				}
			}(b)
		}
	}
	wg.Wait()

	go func() {
		for range m.Results() {
		}
	}()
	m.Stop()

	ctx := context.Background()
	for _, b := range batches {
		q, err := store.GetQuality(ctx, b)
		require.NoError(t, err)
		assert.EqualValues(t, perBatch, q.ReadingCount, b)

		h, err := store.History(ctx, b, 0)
		require.NoError(t, err)
		assert.Len(t, h, cache.DefaultHistorySize)
	}
}

func TestSubmit_NotRunningAndQueueFull(t *testing.T) {
	m := newTestMonitor(t, cache.NewMemoryStore(0), 1)
	assert.ErrorIs(t, m.Submit(reading("b", 5, 45)), ErrNotRunning)
	assert.ErrorIs(t, m.Submit(models.Reading{}), models.ErrInvalidReading)

	// workers are started but the single-slot queue is filled directly
	m.Start(1)
	defer m.Stop()
	m.runMu.Lock()
	m.queues[0] = make(chan models.Reading, 1)
	m.queues[0] <- reading("b", 5, 45)
	m.runMu.Unlock()

	assert.ErrorIs(t, m.Submit(reading("b", 5, 45)), ErrQueueFull)
}

func TestResults_DeliveredForAsyncReadings(t *testing.T) {
	m := newTestMonitor(t, cache.NewMemoryStore(0), 10)
	m.Start(2)
	defer m.Stop()

	require.NoError(t, m.Submit(reading("vaccine-1", 20, 50)))

	select {
	case res := <-m.Results():
		assert.Equal(t, "vaccine-1", res.Reading.BatchID)
		assert.True(t, res.Result.IsAnomaly)
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
	}
}

func TestShard_Stable(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("batch-%d", i)
		s := shard(id, 8)
		assert.Equal(t, s, shard(id, 8))
		assert.True(t, s >= 0 && s < 8)
	}
}

func BenchmarkProcess(b *testing.B) {
	m := New(
		analytics.NewClassifier(tolerance.Builtin()),
		quality.NewAggregator(0),
		cache.NewMemoryStore(0),
		zaptest.NewLogger(b),
		cache.DefaultHistorySize,
		1,
	)
	ctx := context.Background()
	r := reading("insulin-bench", 5, 45)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Process(ctx, r)
	}
}

// flakyStore отказывает в записи, пока down == true
type flakyStore struct {
	*cache.MemoryStore
	down bool
}

func (s *flakyStore) Commit(ctx context.Context, r models.Reading, q models.BatchQuality) error {
	if s.down {
		return errors.New("redis down")
	}
	return s.MemoryStore.Commit(ctx, r, q)
}

func TestProcess_FailedCommitLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: cache.NewMemoryStore(0), down: true}
	m := newTestMonitor(t, store, 10)

	r := reading("INSULIN-1", 15, 45)
	_, err := m.Process(ctx, r)
	require.Error(t, err)

	h, err := store.History(ctx, "INSULIN-1", 0)
	require.NoError(t, err)
	assert.Empty(t, h)
	_, err = store.GetQuality(ctx, "INSULIN-1")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	// повтор после восстановления записывает показание ровно один раз
	store.down = false
	res, err := m.Process(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, res.Alert)
	assert.Equal(t, models.StatusCompromised, res.Quality.Status)

	h, err = store.History(ctx, "INSULIN-1", 0)
	require.NoError(t, err)
	assert.Len(t, h, 1)

	q, err := store.GetQuality(ctx, "INSULIN-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, q.ReadingCount)
	assert.Len(t, q.Alerts, 1)
}
