// Package redpanda carries analysis jobs over Redpanda (Kafka protocol)
// between the API server and background workers.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/observability"
)

const (
	headerJobID   = "job_id"
	headerAppID   = "app_id"
	headerUserID  = "user_id"
	headerAttempt = "attempt"
	headerReason  = "dlq_reason"
)

// syncProducer is the producing surface of *kgo.Client.
type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Producer publishes analysis jobs and implements domain.AnalysisQueue.
type Producer struct {
	client   syncProducer
	topic    string
	dlqTopic string
}

var _ domain.AnalysisQueue = (*Producer)(nil)

// NewProducer connects to brokers and makes sure the job topics exist.
func NewProducer(ctx context.Context, brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.new_producer: no seed brokers provided")
	}
	_, hooks := newKotel()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.RecordRetries(5),
		kgo.WithHooks(hooks...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.new_producer: %w", err)
	}
	if err := EnsureTopics(ctx, client, 3, 1, TopicAnalysis, TopicAnalysisDLQ); err != nil {
		slog.Warn("ensuring analysis topics failed, they may already exist", slog.Any("error", err))
	}
	slog.Info("redpanda producer created", slog.Any("brokers", brokers))
	return newProducer(client), nil
}

func newProducer(client syncProducer) *Producer {
	return &Producer{client: client, topic: TopicAnalysis, dlqTopic: TopicAnalysisDLQ}
}

// EnqueueAnalysis publishes job and returns its id.
func (p *Producer) EnqueueAnalysis(ctx domain.Context, job domain.AnalysisJob) (string, error) {
	if err := p.produce(ctx, p.topic, job, 0, ""); err != nil {
		return "", fmt.Errorf("op=redpanda.enqueue: %w", err)
	}
	observability.LoggerFromContext(ctx).Info("analysis job published",
		slog.String("job_id", job.ID),
		slog.String("topic", p.topic))
	return job.ID, nil
}

// Republish puts job back on the job topic for another attempt.
func (p *Producer) Republish(ctx context.Context, job domain.AnalysisJob, attempt int) error {
	if err := p.produce(ctx, p.topic, job, attempt, ""); err != nil {
		return fmt.Errorf("op=redpanda.republish: %w", err)
	}
	return nil
}

// DeadLetter parks job on the DLQ topic with the reason it gave up.
func (p *Producer) DeadLetter(ctx context.Context, job domain.AnalysisJob, attempt int, reason string) error {
	if err := p.produce(ctx, p.dlqTopic, job, attempt, reason); err != nil {
		return fmt.Errorf("op=redpanda.dead_letter: %w", err)
	}
	return nil
}

func (p *Producer) produce(ctx context.Context, topic string, job domain.AnalysisJob, attempt int, reason string) error {
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	rec := &kgo.Record{
		Topic: topic,
		// one app's jobs land on one partition
		Key:   []byte(job.UserID + "/" + job.AppID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: headerJobID, Value: []byte(job.ID)},
			{Key: headerAppID, Value: []byte(job.AppID)},
			{Key: headerUserID, Value: []byte(job.UserID)},
			{Key: headerAttempt, Value: []byte(strconv.Itoa(attempt))},
		},
	}
	if reason != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: headerReason, Value: []byte(reason)})
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the client.
func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func headerValue(r *kgo.Record, key string) string {
	for _, h := range r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func attemptOf(r *kgo.Record) int {
	n, err := strconv.Atoi(headerValue(r, headerAttempt))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
