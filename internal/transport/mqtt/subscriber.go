// Package mqtt is the broker-side reading transport: it subscribes to row
// controller topics and forwards parsed payloads to the ingestion pipeline.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"aquasense/internal/ingest"
	"aquasense/internal/logger"
	"aquasense/internal/metrics"
	"aquasense/internal/models"
)

// Row controllers publish under <routingKey>/data/row<N>/dataList.
const topicFilter = "+/data/+/dataList"

// ErrMalformedTopic reports a topic that does not match the controller
// publishing scheme.
var ErrMalformedTopic = errors.New("topic does not match <prefix>/data/row<N>/dataList")

// ParseTopic extracts the routing key and row number from a controller
// topic.
func ParseTopic(topic string) (routingKey string, rowNumber int, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[1] != "data" || parts[3] != "dataList" {
		return "", 0, ErrMalformedTopic
	}
	rowPart := strings.TrimPrefix(parts[2], "row")
	if rowPart == parts[2] {
		return "", 0, ErrMalformedTopic
	}
	n, err := strconv.Atoi(rowPart)
	if err != nil || n < 0 {
		return "", 0, ErrMalformedTopic
	}
	return parts[0], n, nil
}

// Config holds subscriber settings.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
}

// Subscriber bridges the MQTT broker and the ingestion service. Deliveries
// with unresolvable routing keys are dropped with an error log, never stored
// under a guessed identity.
type Subscriber struct {
	client paho.Client
	cfg    Config
	ingest *ingest.Service
}

// NewSubscriber connects to the broker. Reconnection is handled by the
// client; subscriptions are re-established on reconnect.
func NewSubscriber(cfg Config, svc *ingest.Service) (*Subscriber, error) {
	s := &Subscriber{cfg: cfg, ingest: svc}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(c paho.Client) {
		if token := c.Subscribe(topicFilter, cfg.QoS, s.handle); token.Wait() && token.Error() != nil {
			logger.WithComponent("mqtt").Error().
				Err(token.Error()).
				Str("filter", topicFilter).
				Msg("subscribe failed")
		}
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.BrokerURL, token.Error())
	}
	s.client = client
	logger.WithComponent("mqtt").Info().
		Str("broker", cfg.BrokerURL).
		Str("filter", topicFilter).
		Msg("mqtt subscriber connected")
	return s, nil
}

func (s *Subscriber) handle(_ paho.Client, msg paho.Message) {
	log := logger.WithComponent("mqtt")

	routingKey, rowNumber, err := ParseTopic(msg.Topic())
	if err != nil {
		metrics.MQTTMessagesTotal.WithLabelValues("malformed").Inc()
		log.Warn().Str("topic", msg.Topic()).Msg("ignoring message on malformed topic")
		return
	}

	var payload models.Payload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		metrics.MQTTMessagesTotal.WithLabelValues("malformed").Inc()
		log.Warn().
			Err(err).
			Str("topic", msg.Topic()).
			Msg("ignoring undecodable payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = s.ingest.Ingest(ctx, &models.InboundReading{
		RoutingKey: routingKey,
		RowNumber:  &rowNumber,
		Payload:    payload,
		Timestamp:  time.Now().UnixMilli(),
	})
	if err != nil {
		metrics.MQTTMessagesTotal.WithLabelValues("dropped").Inc()
		log.Error().
			Err(err).
			Str("routing_key", routingKey).
			Int("row_number", rowNumber).
			Msg("reading dropped")
		return
	}
	metrics.MQTTMessagesTotal.WithLabelValues("accepted").Inc()
}

// Close disconnects from the broker.
func (s *Subscriber) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
