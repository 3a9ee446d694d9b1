package tolerance

var defaultModel = Model{
	Name:             "default",
	TemperatureRange: Range{Min: 15, Max: 25, Optimal: 20},
	HumidityRange:    Range{Min: 30, Max: 70, Optimal: 50},
	CriticalThresholds: CriticalThresholds{
		Temperature: Threshold{Danger: 30, Critical: 35},
		Humidity:    Threshold{Danger: 75, Critical: 85},
	},
}

// DefaultModel общая модель для неизвестных лекарств. Возвращается копия.
func DefaultModel() Model {
	return defaultModel
}

// BuiltinModels стандартная таблица допусков
func BuiltinModels() []Model {
	return []Model{
		{
			Name:             "Insulin",
			TemperatureRange: Range{Min: 2, Max: 8, Optimal: 5},
			HumidityRange:    Range{Min: 30, Max: 60, Optimal: 45},
			CriticalThresholds: CriticalThresholds{
				Temperature: Threshold{Danger: 10, Critical: 12},
				Humidity:    Threshold{Danger: 70, Critical: 80},
			},
		},
		{
			Name:             "Vaccine",
			TemperatureRange: Range{Min: 2, Max: 8, Optimal: 5},
			HumidityRange:    Range{Min: 30, Max: 60, Optimal: 45},
			CriticalThresholds: CriticalThresholds{
				Temperature: Threshold{Danger: 10, Critical: 15},
				Humidity:    Threshold{Danger: 70, Critical: 80},
			},
		},
		{
			Name:             "Aspirin",
			TemperatureRange: Range{Min: 15, Max: 25, Optimal: 20},
			HumidityRange:    Range{Min: 30, Max: 60, Optimal: 45},
			CriticalThresholds: CriticalThresholds{
				Temperature: Threshold{Danger: 30, Critical: 35},
				Humidity:    Threshold{Danger: 70, Critical: 80},
			},
		},
		{
			Name:             "Amoxicillin",
			TemperatureRange: Range{Min: 15, Max: 25, Optimal: 20},
			HumidityRange:    Range{Min: 30, Max: 55, Optimal: 40},
			CriticalThresholds: CriticalThresholds{
				Temperature: Threshold{Danger: 30, Critical: 35},
				Humidity:    Threshold{Danger: 65, Critical: 75},
			},
		},
		{
			Name:             "Paracetamol",
			TemperatureRange: Range{Min: 15, Max: 30, Optimal: 22},
			HumidityRange:    Range{Min: 30, Max: 65, Optimal: 45},
			CriticalThresholds: CriticalThresholds{
				Temperature: Threshold{Danger: 35, Critical: 40},
				Humidity:    Threshold{Danger: 75, Critical: 85},
			},
		},
		{
			Name:             "Ibuprofen",
			TemperatureRange: Range{Min: 15, Max: 25, Optimal: 20},
			HumidityRange:    Range{Min: 30, Max: 60, Optimal: 45},
			CriticalThresholds: CriticalThresholds{
				Temperature: Threshold{Danger: 30, Critical: 35},
				Humidity:    Threshold{Danger: 70, Critical: 80},
			},
		},
	}
}

// Builtin реестр со стандартной таблицей
func Builtin() *Registry {
	r, err := WithBuiltin()
	if err != nil {
		// таблица статическая, ошибка здесь - ошибка программиста
		panic(err)
	}
	return r
}

// WithBuiltin реестр, в котором extra проверяются раньше стандартной таблицы
func WithBuiltin(extra ...Model) (*Registry, error) {
	models := make([]Model, 0, len(extra)+len(BuiltinModels()))
	models = append(models, extra...)
	models = append(models, BuiltinModels()...)
	return NewRegistry(defaultModel, models...)
}
