package analytics

import "coldchain-service/internal/models"

// Baseline скользящий базовый уровень партии
type Baseline struct {
	TempMean float64 `json:"tempMean"`
	TempStd  float64 `json:"tempStd"`
	HumMean  float64 `json:"humMean"`
	HumStd   float64 `json:"humStd"`
	Samples  int     `json:"samples"`
}

// ComputeBaseline считает базовый уровень по последним WindowSize показаниям
// истории. Возвращает nil (базовый уровень неактивен), если показаний меньше
// MinBaselineSamples. Пересчитывается на каждое показание: окно сдвигается.
func ComputeBaseline(history []models.Reading) *Baseline {
	if len(history) < MinBaselineSamples {
		return nil
	}

	recent := tail(history, WindowSize)
	temp := NewSlidingWindow(WindowSize)
	hum := NewSlidingWindow(WindowSize)
	for _, r := range recent {
		temp.Add(r.Temperature)
		hum.Add(r.Humidity)
	}

	return &Baseline{
		TempMean: temp.Mean(),
		TempStd:  temp.StdDev(),
		HumMean:  hum.Mean(),
		HumStd:   hum.StdDev(),
		Samples:  temp.Count(),
	}
}

// TempZ z-score температуры
func (b *Baseline) TempZ(v float64) float64 {
	return zScore(v, b.TempMean, b.TempStd)
}

// HumZ z-score влажности
func (b *Baseline) HumZ(v float64) float64 {
	return zScore(v, b.HumMean, b.HumStd)
}

// tail последние n элементов без копирования
func tail(history []models.Reading, n int) []models.Reading {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
