package analytics

import (
	"math"

	"coldchain-service/internal/models"
	"coldchain-service/internal/tolerance"
)

const (
	// ForecastMinHistory минимальная история для прогноза по тренду
	ForecastMinHistory = 5
	// DefaultRiskLevel риск при недостаточной истории
	DefaultRiskLevel = 0.1

	forecastAvgWindow   = 3
	forecastTrendWindow = 10
)

// Forecast прогноз на один шаг: скользящее среднее по 3 точкам плюс наклон
// МНК по последним 10 точкам (история + текущее показание).
func Forecast(history []models.Reading, current models.Reading, m tolerance.Model) models.Prediction {
	if len(history) < ForecastMinHistory {
		return models.Prediction{
			NextTemperature: current.Temperature,
			NextHumidity:    current.Humidity,
			RiskLevel:       DefaultRiskLevel,
		}
	}

	recent := tail(history, forecastTrendWindow-1)
	series := make([]models.Reading, 0, len(recent)+1)
	series = append(series, recent...)
	series = append(series, current)

	temps, hums := split(series)
	nextTemp := movingAverage(temps, forecastAvgWindow) + slope(temps)
	nextHum := movingAverage(hums, forecastAvgWindow) + slope(hums)

	risk := math.Max(
		deviationRatio(nextTemp, m.TemperatureRange),
		deviationRatio(nextHum, m.HumidityRange),
	)

	return models.Prediction{
		NextTemperature: nextTemp,
		NextHumidity:    nextHum,
		RiskLevel:       clamp(risk, 0, 1),
	}
}

// movingAverage среднее последних n значений
func movingAverage(vs []float64, n int) float64 {
	if len(vs) == 0 {
		return 0
	}
	if len(vs) > n {
		vs = vs[len(vs)-n:]
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
