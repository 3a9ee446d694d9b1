package models

import "time"

// AlertType источник предупреждения
type AlertType string

const (
	AlertTemperature AlertType = "temperature"
	AlertHumidity    AlertType = "humidity"
	AlertManual      AlertType = "manual"
)

// AlertSeverity уровень предупреждения в документе партии
type AlertSeverity string

const (
	AlertLow    AlertSeverity = "low"
	AlertMedium AlertSeverity = "medium"
	AlertHigh   AlertSeverity = "high"
)

// ParseAlertSeverity разбирает уровень, заданный оператором
func ParseAlertSeverity(s string) (AlertSeverity, bool) {
	switch AlertSeverity(s) {
	case AlertLow, AlertMedium, AlertHigh:
		return AlertSeverity(s), true
	}
	return "", false
}

// QualityAlert предупреждение о качестве партии
type QualityAlert struct {
	ID         string        `json:"id"`
	Type       AlertType     `json:"type"`
	Severity   AlertSeverity `json:"severity"`
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
	Resolved   bool          `json:"resolved"`
	ResolvedAt *time.Time    `json:"resolvedAt,omitempty"`
	ResolvedBy string        `json:"resolvedBy,omitempty"`
}

// QualityStatus итоговый статус партии
type QualityStatus string

const (
	StatusGood        QualityStatus = "good"
	StatusCompromised QualityStatus = "compromised"
	StatusUnknown     QualityStatus = "unknown"
)

// BatchQuality документ партии: предупреждения и производный статус
type BatchQuality struct {
	BatchID       string         `json:"batchId"`
	Status        QualityStatus  `json:"status"`
	Alerts        []QualityAlert `json:"alerts"`
	ReadingCount  int64          `json:"readingCount"`
	NormalStreak  int            `json:"normalStreak"`
	LastReadingAt *time.Time     `json:"lastReadingAt,omitempty"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// NewBatchQuality создает документ для партии, по которой еще нет данных
func NewBatchQuality(batchID string) BatchQuality {
	return BatchQuality{
		BatchID: batchID,
		Status:  StatusUnknown,
		Alerts:  []QualityAlert{},
	}
}

// Unresolved возвращает количество нерешенных предупреждений
func (b BatchQuality) Unresolved() int {
	n := 0
	for _, a := range b.Alerts {
		if !a.Resolved {
			n++
		}
	}
	return n
}

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Redis     string    `json:"redis"`
	Uptime    string    `json:"uptime"`
}

// StatsResponse содержит статистику сервиса
type StatsResponse struct {
	TotalReadings  int64 `json:"total_readings"`
	AnomaliesCount int64 `json:"anomalies_count"`
	AlertsRaised   int64 `json:"alerts_raised"`
	QueueDepth     int   `json:"queue_depth"`
	Workers        int   `json:"workers"`
}
