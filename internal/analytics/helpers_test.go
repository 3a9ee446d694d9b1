package analytics

import (
	"time"

	"coldchain-service/internal/models"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func reading(batch string, temp, hum float64) models.Reading {
	return models.Reading{
		BatchID:     batch,
		DeviceID:    "sensor-1",
		Temperature: temp,
		Humidity:    hum,
		Timestamp:   t0,
	}
}

// series builds a history from parallel temperature/humidity values
func series(batch string, temps, hums []float64) []models.Reading {
	out := make([]models.Reading, len(temps))
	for i := range temps {
		out[i] = reading(batch, temps[i], hums[i])
		out[i].Timestamp = t0.Add(time.Duration(i) * time.Minute)
	}
	return out
}

func constant(batch string, n int, temp, hum float64) []models.Reading {
	temps := make([]float64, n)
	hums := make([]float64, n)
	for i := range temps {
		temps[i] = temp
		hums[i] = hum
	}
	return series(batch, temps, hums)
}

func ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func fill(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
