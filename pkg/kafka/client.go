package kafka

import (
	"context"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"clipforge/pkg/config"
	"clipforge/pkg/logger"
)

// Client is a thin wrapper around kafka-go exposing exactly what the
// job-lifecycle event publisher needs: one writer per topic, opened lazily.
type Client struct {
	brokers  []string
	clientID string
	writers  sync.Map // topic -> *kafka.Writer
}

// New opens a client against the configured brokers. It does not dial
// eagerly; kafka-go's Writer connects on first WriteMessages call.
func New(cfg config.KafkaConfig) *Client {
	c := &Client{brokers: cfg.BootstrapServers, clientID: cfg.ClientID}
	logger.Infof("kafka client configured brokers=%v client_id=%s", c.brokers, c.clientID)
	return c
}

func (c *Client) Close() {
	c.writers.Range(func(key, value interface{}) bool {
		if w, ok := value.(*kafka.Writer); ok {
			_ = w.Close()
		}
		return true
	})
}

func (c *Client) Writer(topic string) *kafka.Writer {
	if v, ok := c.writers.Load(topic); ok {
		return v.(*kafka.Writer)
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(c.brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	actual, _ := c.writers.LoadOrStore(topic, w)
	return actual.(*kafka.Writer)
}

// Produce writes one message to topic, bounded by ctx.
func (c *Client) Produce(ctx context.Context, topic string, key, value []byte) error {
	w := c.Writer(topic)
	msg := kafka.Message{Key: key, Value: value, Time: time.Now()}
	return w.WriteMessages(ctx, msg)
}
