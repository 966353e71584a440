package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubNotifier publishes alerts to a GCP Pub/Sub topic so a downstream
// pager/webhook worker can fan them out. Message attributes carry severity
// for subscription filtering.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubNotifier builds the client and ensures the topic exists.
// Uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func NewPubSubNotifier(ctx context.Context, topicName string) (*PubSubNotifier, error) {
	projectID := pubsubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var (
		client *pubsub.Client
		err    error
	)
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		client, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		client, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}

	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check topic %s: %w", topicName, err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicName)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("create topic %s: %w", topicName, err)
		}
	}
	return &PubSubNotifier{client: client, topic: topic}, nil
}

func (n *PubSubNotifier) Notify(ctx context.Context, severity Severity, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"severity":       string(severity),
			"source":         payload.Source,
			"correlation_id": payload.CorrelationId,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func (n *PubSubNotifier) Close() error {
	n.topic.Stop()
	return n.client.Close()
}

func pubsubProjectID() string {
	// Prefer explicit override.
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run/Cloud Functions often set this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	// Common fallback.
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}
