// Package audit publishes provisioning audit events to Kafka.
package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/provisio/core/logger"
)

// Event is one completed bootstrap, successful or not.
type Event struct {
	TenantID   string    `json:"tenantId"`
	DeviceID   string    `json:"deviceId"`
	DeviceType string    `json:"deviceType"`
	Code       int       `json:"code"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher writes audit events to a Kafka topic. Publishing is best
// effort, a broker outage must never fail a bootstrap.
type Publisher struct {
	writer  *kafka.Writer
	timeout time.Duration
	now     func() time.Time
}

// Builder is a builder helper for the Publisher
type Builder struct {
	// Brokers is the list of Kafka broker addresses. This is mandatory.
	Brokers []string
	// Topic is the audit topic. This is mandatory.
	Topic string
	// Timeout bounds a single publish. Defaults to 2 seconds.
	Timeout time.Duration
}

// NewPublisher returns a publisher for the given brokers and topic.
func NewPublisher(b *Builder) *Publisher {
	if len(b.Brokers) == 0 {
		panic("Brokers are missing")
	}
	if b.Topic == "" {
		panic("Topic is missing")
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(b.Brokers...),
			Topic:        b.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		timeout: timeout,
		now:     time.Now,
	}
}

// BootstrapCompleted implements the bootstrap controller's Auditor interface.
func (p *Publisher) BootstrapCompleted(ctx context.Context, tenantID, deviceID, deviceType string, code int) {
	event := Event{
		TenantID:   tenantID,
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Code:       code,
		Timestamp:  p.now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 4341: cannot serialize audit event")
		return
	}

	// bounded and detached from the request, the response has already been
	// written when this runs
	writeCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(tenantID + "/" + deviceID),
		Value: value,
	})
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 4342: cannot publish audit event for %s/%s", tenantID, deviceID)
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
