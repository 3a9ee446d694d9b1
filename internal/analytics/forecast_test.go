package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"coldchain-service/internal/tolerance"
)

func TestForecast_InsufficientHistory(t *testing.T) {
	m := tolerance.DefaultModel()
	history := constant("b", ForecastMinHistory-1, 18, 40)

	p := Forecast(history, reading("b", 21, 44), m)

	assert.Equal(t, 21.0, p.NextTemperature)
	assert.Equal(t, 44.0, p.NextHumidity)
	assert.Equal(t, DefaultRiskLevel, p.RiskLevel)
}

func TestForecast_TrendFollowsSlope(t *testing.T) {
	m := tolerance.DefaultModel() // optimal 20 / 50, width 10 / 40
	history := series("b", ramp(10, 1, 9), fill(50, 9))

	p := Forecast(history, reading("b", 19, 50), m)

	// moving average of 17,18,19 plus slope 1
	assert.InDelta(t, 19.0, p.NextTemperature, 1e-9)
	assert.InDelta(t, 50.0, p.NextHumidity, 1e-9)
	assert.InDelta(t, 0.1, p.RiskLevel, 1e-9)
}

func TestForecast_RiskClamped(t *testing.T) {
	m := tolerance.DefaultModel()
	history := series("b", ramp(30, 5, 10), fill(50, 10))

	p := Forecast(history, reading("b", 80, 50), m)

	assert.Equal(t, 1.0, p.RiskLevel)
}

func TestForecast_DoesNotMutateHistory(t *testing.T) {
	m := tolerance.DefaultModel()
	history := constant("b", 12, 20, 50)
	snapshot := append(history[:0:0], history...)

	Forecast(history[:10], reading("b", 40, 90), m)

	assert.Equal(t, snapshot, history)
}
