package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldchain-service/internal/models"
)

// commit записывает показание вместе с минимальным документом партии
func commit(t *testing.T, s Store, r models.Reading) {
	t.Helper()
	q := models.NewBatchQuality(r.BatchID)
	q.Status = models.StatusGood
	require.NoError(t, s.Commit(context.Background(), r, q))
}

// testStoreContract общие проверки для всех реализаций Store
func testStoreContract(t *testing.T, newStore func(t *testing.T, historySize int) Store) {
	t.Run("history is oldest first and capped", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, DefaultHistorySize)
		defer s.Close()

		base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
		for i := 0; i < DefaultHistorySize+10; i++ {
			commit(t, s, models.Reading{
				BatchID:     "INSULIN-1",
				Temperature: 2 + float64(i)*0.1,
				Humidity:    45,
				Timestamp:   base.Add(time.Duration(i) * time.Minute),
			})
		}

		h, err := s.History(ctx, "INSULIN-1", DefaultHistorySize)
		require.NoError(t, err)
		require.Len(t, h, DefaultHistorySize)
		for i := 1; i < len(h); i++ {
			assert.True(t, h[i].Timestamp.After(h[i-1].Timestamp), "readings must be in chronological order")
		}
		assert.Equal(t, base.Add(10*time.Minute), h[0].Timestamp)
		assert.Equal(t, base.Add(time.Duration(DefaultHistorySize+9)*time.Minute), h[len(h)-1].Timestamp)

		last, err := s.History(ctx, "INSULIN-1", 3)
		require.NoError(t, err)
		require.Len(t, last, 3)
		assert.Equal(t, h[len(h)-3:], last)
	})

	t.Run("missing quality is not found", func(t *testing.T) {
		s := newStore(t, DefaultHistorySize)
		defer s.Close()

		_, err := s.GetQuality(context.Background(), "never-seen")
		assert.ErrorIs(t, err, ErrNotFound)

		h, err := s.History(context.Background(), "never-seen", 10)
		require.NoError(t, err)
		assert.Empty(t, h)
	})

	t.Run("commit writes reading and quality together", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, DefaultHistorySize)
		defer s.Close()

		r := models.Reading{BatchID: "VAC-3", Temperature: 12, Humidity: 50, Timestamp: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
		q := models.NewBatchQuality("VAC-3")
		q.Status = models.StatusCompromised
		q.ReadingCount = 1
		q.Alerts = append(q.Alerts, models.QualityAlert{ID: "a1", Type: models.AlertTemperature, Severity: models.AlertHigh})
		require.NoError(t, s.Commit(ctx, r, q))

		h, err := s.History(ctx, "VAC-3", 10)
		require.NoError(t, err)
		require.Len(t, h, 1)
		assert.Equal(t, 12.0, h[0].Temperature)

		got, err := s.GetQuality(ctx, "VAC-3")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompromised, got.Status)
		assert.EqualValues(t, 1, got.ReadingCount)
		require.Len(t, got.Alerts, 1)
		assert.Equal(t, "a1", got.Alerts[0].ID)

		ids, err := s.Batches(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"VAC-3"}, ids)
	})

	t.Run("counters", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, DefaultHistorySize)
		defer s.Close()

		v, err := s.GetCounter(ctx, AlertsCounter)
		require.NoError(t, err)
		assert.Zero(t, v)

		_, err = s.IncrementCounter(ctx, AlertsCounter)
		require.NoError(t, err)
		v, err = s.IncrementCounter(ctx, AlertsCounter)
		require.NoError(t, err)
		assert.EqualValues(t, 2, v)
	})
}
