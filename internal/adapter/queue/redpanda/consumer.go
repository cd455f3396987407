package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
	"github.com/Eagleeye1811/insightify-sub000/internal/observability"
)

// JobProcessor runs one analysis job.
type JobProcessor interface {
	Process(ctx context.Context, job domain.AnalysisJob) error
}

// Redeliverer sends failed jobs back for another attempt or to the DLQ.
type Redeliverer interface {
	Republish(ctx context.Context, job domain.AnalysisJob, attempt int) error
	DeadLetter(ctx context.Context, job domain.AnalysisJob, attempt int, reason string) error
}

// fetchClient is the consuming surface of *kgo.Client.
type fetchClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	Close()
}

// ConsumerOptions tunes a Consumer.
type ConsumerOptions struct {
	// Workers bounds concurrently processed records. Default 1.
	Workers int
	// MaxAttempts is the total deliveries of a job before the DLQ. Default 3.
	MaxAttempts int
	// RetryDelay overrides the wait before republishing.
	RetryDelay func(attempt int) time.Duration
}

func (o ConsumerOptions) withDefaults() ConsumerOptions {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay == nil {
		o.RetryDelay = retryDelay
	}
	return o
}

// Consumer reads analysis jobs and hands them to a JobProcessor.
type Consumer struct {
	client    fetchClient
	processor JobProcessor
	redeliver Redeliverer
	tracer    *kotel.Tracer
	opts      ConsumerOptions
}

// NewConsumer joins groupID on the analysis topic.
func NewConsumer(ctx context.Context, brokers []string, groupID string, processor JobProcessor, redeliver Redeliverer, opts ConsumerOptions) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.new_consumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=redpanda.new_consumer: missing required group ID")
	}
	tracer, hooks := newKotel()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(TopicAnalysis),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.RequireStableFetchOffsets(),
		kgo.WithHooks(hooks...),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.new_consumer: %w", err)
	}
	if err := EnsureTopics(ctx, client, 3, 1, TopicAnalysis, TopicAnalysisDLQ); err != nil {
		slog.Warn("ensuring analysis topics failed, they may already exist", slog.Any("error", err))
	}
	c := newConsumer(client, processor, redeliver, opts)
	c.tracer = tracer
	slog.Info("redpanda consumer created", slog.String("group_id", groupID), slog.Int("workers", c.opts.Workers))
	return c, nil
}

func newConsumer(client fetchClient, processor JobProcessor, redeliver Redeliverer, opts ConsumerOptions) *Consumer {
	return &Consumer{client: client, processor: processor, redeliver: redeliver, opts: opts.withDefaults()}
}

// Run polls until ctx is done. Records of one poll are processed concurrently
// and their offsets marked for commit once all of them settled.
func (c *Consumer) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0

	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			slog.Info("redpanda consumer stopping")
			return nil
		}
		errs := fetches.Errors()
		for _, fe := range errs {
			slog.Error("fetch error",
				slog.String("topic", fe.Topic),
				slog.Int("partition", int(fe.Partition)),
				slog.Any("error", fe.Err))
		}
		if len(errs) > 0 && fetches.NumRecords() == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(bo.NextBackOff()):
			}
			continue
		}
		bo.Reset()

		var (
			g       errgroup.Group
			records []*kgo.Record
		)
		g.SetLimit(c.opts.Workers)
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
			g.Go(func() error {
				c.handle(ctx, r)
				return nil
			})
		})
		_ = g.Wait()
		if len(records) > 0 {
			c.client.MarkCommitRecords(records...)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, r *kgo.Record) {
	if c.tracer != nil {
		_, span := c.tracer.WithProcessSpan(r)
		defer span.End()
		ctx = trace.ContextWithSpan(ctx, span)
	}

	var job domain.AnalysisJob
	if err := json.Unmarshal(r.Value, &job); err != nil || job.AppID == "" {
		slog.Error("dropping malformed analysis record",
			slog.String("job_id", headerValue(r, headerJobID)),
			slog.Int64("offset", r.Offset),
			slog.Any("error", err))
		return
	}
	attempt := attemptOf(r)
	ctx = observability.ContextWithRequestID(ctx, job.RequestID)
	ctx = observability.ContextWithUserID(ctx, job.UserID)
	lg := slog.Default().With(
		slog.String("request_id", job.RequestID),
		slog.String("user_id", job.UserID),
		slog.String("job_id", job.ID),
		slog.String("app_id", job.AppID),
		slog.Int("attempt", attempt))
	ctx = observability.ContextWithLogger(ctx, lg)

	err := c.processor.Process(ctx, job)
	if err == nil {
		return
	}
	code := failureCode(err)
	next := attempt + 1
	if retryable(code) && next < c.opts.MaxAttempts {
		select {
		case <-ctx.Done():
			lg.Warn("shutdown before retry; job left for redelivery")
			return
		case <-time.After(c.opts.RetryDelay(next)):
		}
		if rerr := c.redeliver.Republish(context.WithoutCancel(ctx), job, next); rerr != nil {
			lg.Error("republishing job failed", slog.Any("error", rerr))
		} else {
			lg.Info("job scheduled for retry", slog.String("error_code", code))
		}
		return
	}
	reason := fmt.Sprintf("%s: %v", code, err)
	if derr := c.redeliver.DeadLetter(context.WithoutCancel(ctx), job, attempt, reason); derr != nil {
		lg.Error("dead-lettering job failed", slog.Any("error", errors.Join(err, derr)))
		return
	}
	lg.Warn("job moved to DLQ", slog.String("error_code", code))
}

// Close leaves the group and commits marked offsets.
func (c *Consumer) Close() { c.client.Close() }
