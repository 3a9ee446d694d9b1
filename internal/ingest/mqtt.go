package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"coldchain-service/internal/metrics"
	"coldchain-service/internal/models"
	"coldchain-service/internal/monitor"
)

const sourceMQTT = "mqtt"

// MQTTConfig параметры подписчика
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// MQTTSubscriber принимает показания, которые устройства публикуют в MQTT.
// Если в теле нет batchId, он берется из сегмента топика на месте "+".
type MQTTSubscriber struct {
	cfg    MQTTConfig
	client mqtt.Client
	sink   Sink
	log    *zap.Logger
}

// NewMQTTSubscriber создает подписчика. Подписка восстанавливается при
// каждом переподключении.
func NewMQTTSubscriber(cfg MQTTConfig, sink Sink, log *zap.Logger) (*MQTTSubscriber, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt broker must not be empty")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("mqtt topic must not be empty")
	}

	s := &MQTTSubscriber{cfg: cfg, sink: sink, log: log}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt_connection_lost", zap.Error(err))
		})
	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Start подключается к брокеру
func (s *MQTTSubscriber) Start(timeout time.Duration) error {
	token := s.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connect to %s timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", s.cfg.Broker, err)
	}
	return nil
}

// Stop отключается от брокера
func (s *MQTTSubscriber) Stop() {
	s.client.Disconnect(250)
	s.log.Info("mqtt_subscriber_stopped")
}

func (s *MQTTSubscriber) onConnect(c mqtt.Client) {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		s.log.Error("mqtt_subscribe_failed", zap.String("topic", s.cfg.Topic), zap.Error(err))
		return
	}
	s.log.Info("mqtt_subscribed", zap.String("broker", s.cfg.Broker), zap.String("topic", s.cfg.Topic))
}

func (s *MQTTSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	s.accept(msg.Topic(), msg.Payload())
}

// accept разбирает и передает одно сообщение
func (s *MQTTSubscriber) accept(topic string, payload []byte) {
	r, err := models.DecodeReading(payload, batchFromTopic(s.cfg.Topic, topic))
	if err != nil {
		metrics.ReadingsRejected.WithLabelValues(sourceMQTT).Inc()
		s.log.Warn("mqtt_reading_rejected", zap.String("topic", topic), zap.Error(err))
		return
	}

	if err := s.sink.Submit(r); err != nil {
		if errors.Is(err, monitor.ErrQueueFull) {
			s.log.Warn("mqtt_reading_dropped", zap.String("batch_id", r.BatchID))
		} else {
			s.log.Error("mqtt_submit_failed", zap.String("batch_id", r.BatchID), zap.Error(err))
		}
		return
	}
	metrics.ReadingsReceived.WithLabelValues(sourceMQTT).Inc()
}

// batchFromTopic возвращает сегмент топика на месте первого "+" в шаблоне
func batchFromTopic(pattern, topic string) string {
	ps := strings.Split(pattern, "/")
	ts := strings.Split(topic, "/")
	for i, p := range ps {
		if p == "+" && i < len(ts) {
			return ts[i]
		}
		if p == "#" {
			break
		}
	}
	return ""
}
