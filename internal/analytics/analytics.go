// Package analytics реализует статистический анализ показаний партии:
// скользящий базовый уровень (mean/std), z-score, поиск скачков и дрейфа,
// классификацию аномалий и краткосрочный прогноз.
//
// Все функции пакета чистые: история партии передается снаружи, а результат
// возвращается вызывающей стороне для сохранения.
package analytics

import "math"

const (
	// WindowSize размер окна базового уровня (50 последних показаний)
	WindowSize = 50
	// MinBaselineSamples минимальная история для активации базового уровня
	MinBaselineSamples = 10
	// ZScoreThreshold порог аномалии по z-score (> 2σ)
	ZScoreThreshold = 2.0
	// SevereZScore z-score, повышающий уровень до MEDIUM (> 3σ)
	SevereZScore = 3.0

	// stdEpsilon std ниже этого значения считается нулевым
	stdEpsilon = 1e-9
)

// SlidingWindow реализует скользящее окно для хранения значений
type SlidingWindow struct {
	values []float64
	size   int
	index  int
	count  int
	sum    float64
}

// NewSlidingWindow создает новое скользящее окно заданного размера
func NewSlidingWindow(size int) *SlidingWindow {
	return &SlidingWindow{
		values: make([]float64, size),
		size:   size,
	}
}

// Add добавляет новое значение в окно
func (sw *SlidingWindow) Add(value float64) {
	if sw.count >= sw.size {
		// Удаляем старое значение из суммы
		sw.sum -= sw.values[sw.index]
	} else {
		sw.count++
	}

	sw.values[sw.index] = value
	sw.sum += value

	sw.index = (sw.index + 1) % sw.size
}

// Mean возвращает среднее значение
func (sw *SlidingWindow) Mean() float64 {
	if sw.count == 0 {
		return 0
	}
	return sw.sum / float64(sw.count)
}

// StdDev возвращает стандартное отклонение генеральной совокупности.
// Считается в два прохода по окну, чтобы постоянный ряд давал ровно 0.
func (sw *SlidingWindow) StdDev() float64 {
	if sw.count < 2 {
		return 0
	}
	mean := sw.Mean()
	var sq float64
	for _, v := range sw.values[:sw.count] {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(sw.count))
	if std < stdEpsilon {
		return 0
	}
	return std
}

// ZScore вычисляет z-score для заданного значения
func (sw *SlidingWindow) ZScore(value float64) float64 {
	return zScore(value, sw.Mean(), sw.StdDev())
}

// Count возвращает количество элементов в окне
func (sw *SlidingWindow) Count() int {
	return sw.count
}

// zScore z-score относительно mean/std; при std == 0 равен 0
func zScore(value, mean, std float64) float64 {
	if std < stdEpsilon {
		return 0
	}
	return (value - mean) / std
}
