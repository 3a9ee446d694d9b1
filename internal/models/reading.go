// Package models содержит структуры данных для показаний датчиков, результатов
// классификации и состояния качества партий
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidReading возвращается для показаний, которые нельзя классифицировать
var ErrInvalidReading = errors.New("invalid reading")

// Reading представляет одно показание температуры/влажности для партии
type Reading struct {
	BatchID     string    `json:"batchId"`
	DeviceID    string    `json:"deviceId"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
}

// Validate проверяет показание на границе приема
func (r Reading) Validate() error {
	if strings.TrimSpace(r.BatchID) == "" {
		return fmt.Errorf("%w: batchId is required", ErrInvalidReading)
	}
	if math.IsNaN(r.Temperature) || math.IsInf(r.Temperature, 0) {
		return fmt.Errorf("%w: temperature is not a finite number", ErrInvalidReading)
	}
	if math.IsNaN(r.Humidity) || math.IsInf(r.Humidity, 0) {
		return fmt.Errorf("%w: humidity is not a finite number", ErrInvalidReading)
	}
	return nil
}

// readingEnvelope отличает отсутствующее поле от нуля
type readingEnvelope struct {
	BatchID     string     `json:"batchId"`
	DeviceID    string     `json:"deviceId"`
	Temperature *float64   `json:"temperature"`
	Humidity    *float64   `json:"humidity"`
	Timestamp   *time.Time `json:"timestamp"`
}

// DecodeReading разбирает JSON показания с любого входа (HTTP, Kafka, MQTT).
// Отсутствующие temperature/humidity - ошибка, а не ноль. fallbackBatch
// используется, если batchId не задан в теле.
func DecodeReading(raw []byte, fallbackBatch string) (Reading, error) {
	var env readingEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Reading{}, fmt.Errorf("%w: decode payload: %v", ErrInvalidReading, err)
	}
	if env.Temperature == nil {
		return Reading{}, fmt.Errorf("%w: temperature missing", ErrInvalidReading)
	}
	if env.Humidity == nil {
		return Reading{}, fmt.Errorf("%w: humidity missing", ErrInvalidReading)
	}

	r := Reading{
		BatchID:     strings.TrimSpace(env.BatchID),
		DeviceID:    strings.TrimSpace(env.DeviceID),
		Temperature: *env.Temperature,
		Humidity:    *env.Humidity,
	}
	if r.BatchID == "" {
		r.BatchID = fallbackBatch
	}
	if env.Timestamp != nil {
		r.Timestamp = env.Timestamp.UTC()
	}
	if err := r.Validate(); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// ReadingsBatch представляет пакет показаний для массовой загрузки
type ReadingsBatch struct {
	Readings []json.RawMessage `json:"readings"`
}

// Severity уровень опасности аномалии
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Метки паттерна в порядке приоритета
const (
	PatternSuddenSpike        = "sudden_spike"
	PatternGradualDrift       = "gradual_drift"
	PatternThresholdViolation = "threshold_violation"
	PatternNormal             = "normal"
)

// Reasons описывает, какие проверки сработали
type Reasons struct {
	Temperature  bool   `json:"temperature"`
	Humidity     bool   `json:"humidity"`
	SuddenChange bool   `json:"suddenChange"`
	GradualDrift bool   `json:"gradualDrift"`
	Pattern      string `json:"pattern"`
}

// Prediction прогноз на один шаг вперед
type Prediction struct {
	NextTemperature float64 `json:"nextTemperature"`
	NextHumidity    float64 `json:"nextHumidity"`
	RiskLevel       float64 `json:"riskLevel"`
}

// AnomalyResult результат классификации одного показания.
// TemperatureAxis показывает, что аномалию вызвала температура (порог или паттерн).
type AnomalyResult struct {
	IsAnomaly       bool       `json:"isAnomaly"`
	Severity        Severity   `json:"severity"`
	Confidence      float64    `json:"confidence"`
	Reasons         Reasons    `json:"reasons"`
	Prediction      Prediction `json:"prediction"`
	TempZScore      float64    `json:"tempZScore"`
	HumZScore       float64    `json:"humZScore"`
	BaselineActive  bool       `json:"baselineActive"`
	Model           string     `json:"model"`
	TemperatureAxis bool       `json:"temperatureAxis"`
}

// IngestResult ответ на прием одного показания
type IngestResult struct {
	Reading Reading       `json:"reading"`
	Result  AnomalyResult `json:"result"`
	Alert   *QualityAlert `json:"alert,omitempty"`
	Quality BatchQuality  `json:"quality"`
}
