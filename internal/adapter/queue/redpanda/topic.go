package redpanda

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kmsg"
)

const (
	// TopicAnalysis carries analysis jobs to workers.
	TopicAnalysis = "analysis-jobs"
	// TopicAnalysisDLQ receives jobs that exhausted their attempts.
	TopicAnalysisDLQ = "analysis-jobs-dlq"

	// errTopicAlreadyExists is Kafka protocol error code 36.
	errTopicAlreadyExists = 36
)

// requester is the admin surface of *kgo.Client.
type requester interface {
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
}

// EnsureTopics creates the given topics, treating "already exists" as success.
func EnsureTopics(ctx context.Context, client requester, partitions int32, replicationFactor int16, topics ...string) error {
	if partitions <= 0 || replicationFactor <= 0 {
		return fmt.Errorf("op=redpanda.ensure_topics: partitions and replication factor must be positive")
	}
	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000
	for _, topic := range topics {
		if topic == "" {
			return fmt.Errorf("op=redpanda.ensure_topics: topic name cannot be empty")
		}
		t := kmsg.NewCreateTopicsRequestTopic()
		t.Topic = topic
		t.NumPartitions = partitions
		t.ReplicationFactor = replicationFactor
		req.Topics = append(req.Topics, t)
	}

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("op=redpanda.ensure_topics: %w", err)
	}
	created, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("op=redpanda.ensure_topics: unexpected response type %T", resp)
	}
	for _, t := range created.Topics {
		switch t.ErrorCode {
		case 0:
			slog.Info("topic created", slog.String("topic", t.Topic), slog.Int("partitions", int(partitions)))
		case errTopicAlreadyExists:
			slog.Debug("topic already exists", slog.String("topic", t.Topic))
		default:
			msg := ""
			if t.ErrorMessage != nil {
				msg = *t.ErrorMessage
			}
			return fmt.Errorf("op=redpanda.ensure_topics: create %s: %s (code %d)", t.Topic, msg, t.ErrorCode)
		}
	}
	return nil
}
