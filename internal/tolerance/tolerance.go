// Package tolerance содержит модели допустимых условий хранения для классов
// лекарств и реестр для их поиска по идентификатору партии
package tolerance

import (
	"fmt"
	"strings"
)

// Range допустимый диапазон по одной оси
type Range struct {
	Min     float64 `json:"min" mapstructure:"min"`
	Max     float64 `json:"max" mapstructure:"max"`
	Optimal float64 `json:"optimal" mapstructure:"optimal"`
}

// Width ширина диапазона
func (r Range) Width() float64 {
	return r.Max - r.Min
}

// Contains true, если значение лежит в [Min, Max]
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Threshold пороги опасности по одной оси
type Threshold struct {
	Danger   float64 `json:"danger" mapstructure:"danger"`
	Critical float64 `json:"critical" mapstructure:"critical"`
}

// CriticalThresholds пороги по обеим осям
type CriticalThresholds struct {
	Temperature Threshold `json:"temperature" mapstructure:"temperature"`
	Humidity    Threshold `json:"humidity" mapstructure:"humidity"`
}

// Model модель допусков для класса лекарств
type Model struct {
	Name               string             `json:"name" mapstructure:"name"`
	TemperatureRange   Range              `json:"temperatureRange" mapstructure:"temperature_range"`
	HumidityRange      Range              `json:"humidityRange" mapstructure:"humidity_range"`
	CriticalThresholds CriticalThresholds `json:"criticalThresholds" mapstructure:"critical_thresholds"`
}

// Validate проверяет инварианты min < optimal < max и danger < critical
func (m Model) Validate() error {
	check := func(axis string, r Range, t Threshold) error {
		if !(r.Min < r.Optimal && r.Optimal < r.Max) {
			return fmt.Errorf("model %q: %s range must satisfy min < optimal < max", m.Name, axis)
		}
		if !(t.Danger < t.Critical) {
			return fmt.Errorf("model %q: %s danger must be below critical", m.Name, axis)
		}
		return nil
	}
	if err := check("temperature", m.TemperatureRange, m.CriticalThresholds.Temperature); err != nil {
		return err
	}
	return check("humidity", m.HumidityRange, m.CriticalThresholds.Humidity)
}

// Registry неизменяемый набор моделей. Поиск идет в порядке регистрации.
type Registry struct {
	fallback Model
	models   []Model
	keys     []string
}

// NewRegistry создает реестр из модели по умолчанию и именованных моделей
func NewRegistry(fallback Model, models ...Model) (*Registry, error) {
	if err := fallback.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		fallback: fallback,
		models:   make([]Model, 0, len(models)),
		keys:     make([]string, 0, len(models)),
	}
	for _, m := range models {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("tolerance model name must not be empty")
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		r.models = append(r.models, m)
		r.keys = append(r.keys, strings.ToLower(m.Name))
	}
	return r, nil
}

// Lookup возвращает первую модель, имя которой входит в идентификатор
// (без учета регистра), иначе модель по умолчанию
func (r *Registry) Lookup(identifier string) Model {
	id := strings.ToLower(identifier)
	for i, key := range r.keys {
		if strings.Contains(id, key) {
			return r.models[i]
		}
	}
	return r.fallback
}

// Default возвращает модель по умолчанию
func (r *Registry) Default() Model {
	return r.fallback
}

// Names список зарегистрированных моделей
func (r *Registry) Names() []string {
	names := make([]string, len(r.models))
	for i, m := range r.models {
		names[i] = m.Name
	}
	return names
}
