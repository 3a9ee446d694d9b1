// Package quality сводит предупреждения партии в итоговый статус качества.
//
// Политика статуса: партия good, только если у нее нет нерешенных
// предупреждений. Любое нерешенное предупреждение, независимо от уровня,
// делает партию compromised.
package quality

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"coldchain-service/internal/models"
)

var (
	// ErrAlertNotFound предупреждение с таким id у партии нет
	ErrAlertNotFound = errors.New("alert not found")
	// ErrAlertResolved предупреждение уже решено
	ErrAlertResolved = errors.New("alert already resolved")
)

// SystemResolver имя, которым помечаются автоматически решенные предупреждения
const SystemResolver = "system"

// Aggregator создает и решает предупреждения, пересчитывая статус партии
type Aggregator struct {
	// AutoResolveAfter число подряд нормальных показаний, после которого
	// нерешенные предупреждения уровня low решаются автоматически. 0 отключает.
	AutoResolveAfter int

	now   func() time.Time
	newID func() string
}

// NewAggregator создает агрегатор
func NewAggregator(autoResolveAfter int) *Aggregator {
	return &Aggregator{
		AutoResolveAfter: autoResolveAfter,
		now:              func() time.Time { return time.Now().UTC() },
		newID:            uuid.NewString,
	}
}

// RecomputeStatus good при нуле нерешенных предупреждений, иначе compromised
func RecomputeStatus(alerts []models.QualityAlert) models.QualityStatus {
	for _, a := range alerts {
		if !a.Resolved {
			return models.StatusCompromised
		}
	}
	return models.StatusGood
}

// OnAnomalyDetected создает предупреждение для аномального показания.
// Для нормального показания возвращает nil.
func (g *Aggregator) OnAnomalyDetected(batch models.BatchQuality, r models.Reading, res models.AnomalyResult) *models.QualityAlert {
	if !res.IsAnomaly {
		return nil
	}

	alertType := models.AlertHumidity
	if res.TemperatureAxis || res.Reasons.Temperature {
		alertType = models.AlertTemperature
	}

	return &models.QualityAlert{
		ID:        g.newID(),
		Type:      alertType,
		Severity:  alertSeverity(res.Severity),
		Message:   alertMessage(alertType, r, res),
		Timestamp: alertTime(r, g.now),
	}
}

// Apply применяет результат классификации к документу партии и возвращает
// новый документ. Исходный документ не изменяется.
func (g *Aggregator) Apply(batch models.BatchQuality, r models.Reading, res models.AnomalyResult) (models.BatchQuality, *models.QualityAlert) {
	out := clone(batch)
	if out.BatchID == "" {
		out.BatchID = r.BatchID
	}
	out.ReadingCount++
	ts := alertTime(r, g.now)
	out.LastReadingAt = &ts

	alert := g.OnAnomalyDetected(batch, r, res)
	if alert != nil {
		out.Alerts = append(out.Alerts, *alert)
		out.NormalStreak = 0
	} else {
		out.NormalStreak++
		g.autoResolve(&out)
	}

	out.Status = RecomputeStatus(out.Alerts)
	out.UpdatedAt = g.now()
	return out, alert
}

// Resolve помечает предупреждение решенным оператором
func (g *Aggregator) Resolve(batch models.BatchQuality, alertID, resolvedBy string) (models.BatchQuality, error) {
	out := clone(batch)
	for i := range out.Alerts {
		a := &out.Alerts[i]
		if a.ID != alertID {
			continue
		}
		if a.Resolved {
			return batch, fmt.Errorf("%w: %s", ErrAlertResolved, alertID)
		}
		now := g.now()
		a.Resolved = true
		a.ResolvedAt = &now
		a.ResolvedBy = resolvedBy
		out.Status = RecomputeStatus(out.Alerts)
		out.UpdatedAt = now
		return out, nil
	}
	return batch, fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
}

// RaiseManual добавляет предупреждение, поднятое оператором
func (g *Aggregator) RaiseManual(batch models.BatchQuality, severity models.AlertSeverity, message string) (models.BatchQuality, models.QualityAlert) {
	out := clone(batch)
	now := g.now()
	alert := models.QualityAlert{
		ID:        g.newID(),
		Type:      models.AlertManual,
		Severity:  severity,
		Message:   strings.TrimSpace(message),
		Timestamp: now,
	}
	out.Alerts = append(out.Alerts, alert)
	out.Status = RecomputeStatus(out.Alerts)
	out.UpdatedAt = now
	return out, alert
}

func (g *Aggregator) autoResolve(b *models.BatchQuality) {
	if g.AutoResolveAfter <= 0 || b.NormalStreak < g.AutoResolveAfter {
		return
	}
	now := g.now()
	for i := range b.Alerts {
		a := &b.Alerts[i]
		if a.Resolved || a.Severity != models.AlertLow || a.Type == models.AlertManual {
			continue
		}
		a.Resolved = true
		a.ResolvedAt = &now
		a.ResolvedBy = SystemResolver
	}
}

func alertSeverity(s models.Severity) models.AlertSeverity {
	switch s {
	case models.SeverityHigh:
		return models.AlertHigh
	case models.SeverityMedium:
		return models.AlertMedium
	}
	return models.AlertLow
}

func alertMessage(t models.AlertType, r models.Reading, res models.AnomalyResult) string {
	if t == models.AlertTemperature {
		return fmt.Sprintf("Temperature anomaly: %.1f°C (%s, %s model)", r.Temperature, res.Reasons.Pattern, res.Model)
	}
	return fmt.Sprintf("Humidity anomaly: %.1f%% (%s, %s model)", r.Humidity, res.Reasons.Pattern, res.Model)
}

func alertTime(r models.Reading, now func() time.Time) time.Time {
	if r.Timestamp.IsZero() {
		return now()
	}
	return r.Timestamp
}

// clone копирует документ вместе со списком предупреждений
func clone(b models.BatchQuality) models.BatchQuality {
	out := b
	out.Alerts = make([]models.QualityAlert, len(b.Alerts), len(b.Alerts)+1)
	copy(out.Alerts, b.Alerts)
	return out
}
