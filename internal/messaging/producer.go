package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var producerTracer = otel.Tracer("messaging/producer")

const defaultPublishTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer    messageWriter
	topic     string
	timeout   time.Duration
	logger    *slog.Logger
	published metric.Int64Counter
	inflight  sync.WaitGroup
}

type ProducerOption func(*Producer)

func WithPublishTimeout(d time.Duration) ProducerOption {
	return func(p *Producer) {
		p.timeout = d
	}
}

func NewProducer(brokers []string, topic string, logger *slog.Logger, opts ...ProducerOption) *Producer {
	p := newProducer(nil, topic, logger, opts...)
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		Completion:             p.onCompletion,
	}
	return p
}

func newProducer(writer messageWriter, topic string, logger *slog.Logger, opts ...ProducerOption) *Producer {
	p := &Producer{
		writer:  writer,
		topic:   topic,
		timeout: defaultPublishTimeout,
		logger:  logger,
	}

	for _, opt := range opts {
		opt(p)
	}

	published, err := otel.Meter("messaging").Int64Counter("orders.events.published",
		metric.WithDescription("Creation events handed to the broker, by result"),
	)
	if err != nil {
		logger.Warn("failed to register orders.events.published counter", "error", err)
	}
	p.published = published

	return p
}

// Publish writes event as JSON and blocks until the broker acknowledges it.
// An empty key produces a message without a key.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{Value: data}
	if key != "" {
		msg.Key = []byte(key)
	}

	ctx, span := producerTracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(key),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

// PublishAsync hands the event to a background send and returns immediately.
// The send outlives the caller's context, bounded by the publish timeout;
// failures are logged and counted, never returned.
func (p *Producer) PublishAsync(ctx context.Context, key string, event any) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer cancel()

		if err := p.Publish(sendCtx, key, event); err != nil {
			p.logger.Error("failed to publish event", "error", err, "topic", p.topic, "key", key)
			p.record(sendCtx, "error")
			return
		}
		p.record(sendCtx, "ok")
	}()
}

func (p *Producer) onCompletion(messages []kafka.Message, err error) {
	if err != nil {
		return
	}
	for _, m := range messages {
		p.logger.Info("event delivered",
			"topic", m.Topic,
			"partition", m.Partition,
			"offset", m.Offset,
			"key", string(m.Key),
		)
	}
}

func (p *Producer) record(ctx context.Context, result string) {
	if p.published == nil {
		return
	}
	p.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", p.topic),
		attribute.String("result", result),
	))
}

// Close waits for in-flight async publishes before closing the writer.
func (p *Producer) Close() error {
	p.inflight.Wait()
	return p.writer.Close()
}
