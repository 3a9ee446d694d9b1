// Package ingest принимает показания датчиков из Kafka и MQTT и передает их
// монитору
package ingest

import (
	"errors"

	"coldchain-service/internal/models"
)

// Sink принимает показание на асинхронную обработку
type Sink interface {
	Submit(r models.Reading) error
}

func isInvalid(err error) bool {
	return errors.Is(err, models.ErrInvalidReading)
}
