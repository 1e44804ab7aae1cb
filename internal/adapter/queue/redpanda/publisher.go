// Package redpanda publishes stored test runs to a Kafka topic.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
)

// DefaultTopic receives one message per stored test run.
const DefaultTopic = "browndog-test-runs"

type producer interface {
	requester
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher implements domain.RunPublisher.
type Publisher struct {
	client producer
	topic  string
	obs    *obsctx.ObservableClient
}

// NewPublisher connects to brokers and makes sure topic exists.
func NewPublisher(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewPublisher: %w: no seed brokers provided", domain.ErrInvalidArgument)
	}
	if topic == "" {
		topic = DefaultTopic
	}
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	k := kotel.NewKotel(kotel.WithTracer(tracer))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.DialTimeout(10*time.Second),
		kgo.RecordDeliveryTimeout(30*time.Second),
		kgo.WithHooks(k.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewPublisher: %w", err)
	}
	return newPublisher(ctx, client, topic), nil
}

func newPublisher(ctx context.Context, client producer, topic string) *Publisher {
	if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
		obsctx.LoggerFromContext(ctx).Warn("failed to create topic, it may already exist",
			slog.String("topic", topic), slog.Any("error", err))
	}
	return &Publisher{
		client: client,
		topic:  topic,
		obs:    obsctx.NewObservableClient(obsctx.ConnectionTypeQueue, topic, 30*time.Second),
	}
}

// PublishRun produces run as JSON keyed by its id.
func (p *Publisher) PublishRun(ctx domain.Context, run domain.TestRun) error {
	b, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("op=redpanda.PublishRun: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(run.ID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "run_id", Value: []byte(run.ID)},
			{Key: "server", Value: []byte(run.Server)},
		},
	}
	err = p.obs.ExecuteWithMetrics(ctx, "publish_run", func(ctx context.Context) error {
		return p.client.ProduceSync(ctx, rec).FirstErr()
	})
	if err != nil {
		return fmt.Errorf("op=redpanda.PublishRun: %w", err)
	}
	obsctx.LoggerFromContext(ctx).Info("test run published", slog.String("topic", p.topic), slog.String("run_id", run.ID))
	return nil
}

// Close flushes and closes the client.
func (p *Publisher) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
