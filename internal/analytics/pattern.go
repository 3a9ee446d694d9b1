package analytics

import (
	"math"

	"coldchain-service/internal/models"
)

// Пороги паттернов фиксированы и не зависят от модели лекарства
const (
	SpikeWindow    = 3
	SpikeTempDelta = 5.0
	SpikeHumDelta  = 15.0
	DriftWindow    = 10
	DriftTempSlope = 0.5
	DriftHumSlope  = 2.0
)

// Patterns флаги скачка и дрейфа по осям
type Patterns struct {
	TempSpike bool
	HumSpike  bool
	TempDrift bool
	HumDrift  bool
	TempSlope float64
	HumSlope  float64
}

// SuddenChange true, если есть скачок хотя бы по одной оси
func (p Patterns) SuddenChange() bool {
	return p.TempSpike || p.HumSpike
}

// GradualDrift true, если есть дрейф хотя бы по одной оси
func (p Patterns) GradualDrift() bool {
	return p.TempDrift || p.HumDrift
}

// DetectPatterns ищет резкий скачок и постепенный дрейф. history не включает
// текущее показание.
func DetectPatterns(history []models.Reading, current models.Reading) Patterns {
	var p Patterns

	if len(history) >= SpikeWindow {
		last := tail(history, SpikeWindow)
		tempMean, humMean := means(last)
		p.TempSpike = math.Abs(current.Temperature-tempMean) > SpikeTempDelta
		p.HumSpike = math.Abs(current.Humidity-humMean) > SpikeHumDelta
	}

	if len(history) >= DriftWindow {
		last := tail(history, DriftWindow)
		temps, hums := split(last)
		p.TempSlope = slope(temps)
		p.HumSlope = slope(hums)
		p.TempDrift = math.Abs(p.TempSlope) > DriftTempSlope
		p.HumDrift = math.Abs(p.HumSlope) > DriftHumSlope
	}

	return p
}

func means(rs []models.Reading) (temp, hum float64) {
	if len(rs) == 0 {
		return 0, 0
	}
	for _, r := range rs {
		temp += r.Temperature
		hum += r.Humidity
	}
	n := float64(len(rs))
	return temp / n, hum / n
}

func split(rs []models.Reading) (temps, hums []float64) {
	temps = make([]float64, len(rs))
	hums = make([]float64, len(rs))
	for i, r := range rs {
		temps[i] = r.Temperature
		hums[i] = r.Humidity
	}
	return temps, hums
}

// slope наклон МНК по индексам 0..n-1
func slope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	var yMean float64
	for _, y := range ys {
		yMean += y
	}
	yMean /= float64(n)

	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	return num / den
}
