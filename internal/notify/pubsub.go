package notify

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubTopic is a Topic backed by a Google Cloud Pub/Sub publisher.
type PubSubTopic struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	name      string
	logger    zerolog.Logger
}

// PubSubConfig holds configuration for a Pub/Sub topic.
type PubSubConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger
}

// NewPubSubTopic creates a Pub/Sub client and publisher for the topic.
func NewPubSubTopic(ctx context.Context, cfg PubSubConfig) (*PubSubTopic, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	publisher := client.Publisher(cfg.TopicName)
	// Alerts are small and latency matters more than batching.
	publisher.PublishSettings.CountThreshold = 1

	cfg.Logger.Info().
		Str("topic", cfg.TopicName).
		Msg("alert publisher ready")

	return &PubSubTopic{
		client:    client,
		publisher: publisher,
		name:      cfg.TopicName,
		logger:    cfg.Logger,
	}, nil
}

// Send publishes a message and waits for the server to acknowledge it.
func (t *PubSubTopic) Send(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	result := t.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("topic %s: %w", t.name, err)
	}
	return id, nil
}

// Close flushes pending messages and closes the client.
func (t *PubSubTopic) Close() error {
	t.publisher.Stop()
	return t.client.Close()
}
