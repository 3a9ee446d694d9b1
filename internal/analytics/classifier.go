package analytics

import (
	"math"

	"coldchain-service/internal/models"
	"coldchain-service/internal/tolerance"
)

const (
	// MaxConfidence верхняя граница уверенности
	MaxConfidence = 0.95

	// Смещения ниже минимума диапазона для HIGH и MEDIUM
	tempHighBelow = 5.0
	tempMedBelow  = 2.0
	humHighBelow  = 10.0
	humMedBelow   = 5.0
)

// Classifier классифицирует показания по моделям допусков, базовому уровню и
// паттернам. Реестр моделей задается при создании.
type Classifier struct {
	registry *tolerance.Registry
}

// NewClassifier создает классификатор с заданным реестром моделей
func NewClassifier(registry *tolerance.Registry) *Classifier {
	return &Classifier{registry: registry}
}

// Registry возвращает реестр моделей классификатора
func (c *Classifier) Registry() *tolerance.Registry {
	return c.registry
}

// ClassifyReading классифицирует показание по истории партии (без текущего
// показания). Модель допусков выбирается по идентификатору партии.
func (c *Classifier) ClassifyReading(r models.Reading, history []models.Reading) models.AnomalyResult {
	model := c.registry.Lookup(r.BatchID)
	baseline := ComputeBaseline(history)
	patterns := DetectPatterns(history, r)
	return Classify(r, model, baseline, patterns, history)
}

// Classify объединяет пороги модели, z-score базового уровня и паттерны.
// При активном базовом уровне и истории длиннее MinBaselineSamples ось
// считается аномальной по |z| > ZScoreThreshold, иначе по диапазону модели.
func Classify(r models.Reading, model tolerance.Model, baseline *Baseline, p Patterns, history []models.Reading) models.AnomalyResult {
	res := models.AnomalyResult{
		Model:    model.Name,
		Severity: models.SeverityLow,
	}

	var tempZ, humZ float64
	if baseline != nil {
		res.BaselineActive = true
		tempZ = baseline.TempZ(r.Temperature)
		humZ = baseline.HumZ(r.Humidity)
	}
	res.TempZScore = tempZ
	res.HumZScore = humZ

	var tempOut, humOut bool
	if baseline != nil && len(history) > MinBaselineSamples {
		tempOut = math.Abs(tempZ) > ZScoreThreshold
		humOut = math.Abs(humZ) > ZScoreThreshold
	} else {
		tempOut = !model.TemperatureRange.Contains(r.Temperature)
		humOut = !model.HumidityRange.Contains(r.Humidity)
	}

	res.Reasons = models.Reasons{
		Temperature:  tempOut,
		Humidity:     humOut,
		SuddenChange: p.SuddenChange(),
		GradualDrift: p.GradualDrift(),
		Pattern:      patternLabel(tempOut || humOut, p),
	}
	res.IsAnomaly = tempOut || humOut || p.SuddenChange() || p.GradualDrift()
	res.TemperatureAxis = tempOut || p.TempSpike || p.TempDrift
	res.Severity = severity(r, model, tempZ, humZ)
	res.Confidence = confidence(r, model, baseline, tempZ, humZ)
	res.Prediction = Forecast(history, r, model)

	return res
}

// severity первое сработавшее правило: HIGH, затем MEDIUM, иначе LOW
func severity(r models.Reading, m tolerance.Model, tempZ, humZ float64) models.Severity {
	tr, hr := m.TemperatureRange, m.HumidityRange
	tt, ht := m.CriticalThresholds.Temperature, m.CriticalThresholds.Humidity

	switch {
	case r.Temperature >= tt.Critical,
		r.Temperature < tr.Min-tempHighBelow,
		r.Humidity >= ht.Critical,
		r.Humidity < hr.Min-humHighBelow:
		return models.SeverityHigh
	case r.Temperature >= tt.Danger,
		r.Temperature < tr.Min-tempMedBelow,
		r.Humidity >= ht.Danger,
		r.Humidity < hr.Min-humMedBelow,
		math.Abs(tempZ) > SevereZScore,
		math.Abs(humZ) > SevereZScore:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

func patternLabel(thresholdViolated bool, p Patterns) string {
	switch {
	case p.SuddenChange():
		return models.PatternSuddenSpike
	case p.GradualDrift():
		return models.PatternGradualDrift
	case thresholdViolated:
		return models.PatternThresholdViolation
	}
	return models.PatternNormal
}

func confidence(r models.Reading, m tolerance.Model, baseline *Baseline, tempZ, humZ float64) float64 {
	var c float64
	if baseline != nil {
		c = 0.5 + (math.Abs(tempZ)+math.Abs(humZ))/10
	} else {
		tempDev := deviationRatio(r.Temperature, m.TemperatureRange)
		humDev := deviationRatio(r.Humidity, m.HumidityRange)
		c = 0.3 + math.Max(tempDev, humDev)
	}
	return clamp(c, 0, MaxConfidence)
}

// deviationRatio |value - optimal| / (max - min)
func deviationRatio(v float64, rng tolerance.Range) float64 {
	w := rng.Width()
	if w <= 0 {
		return 0
	}
	return math.Abs(v-rng.Optimal) / w
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
