package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// BudgetEventMessage is the payload published for every accepted version bump.
type BudgetEventMessage struct {
	ID            int       `json:"id"`
	EntityKind    string    `json:"entity_kind"`
	EntityId      int       `json:"entity_id"`
	ProjectId     int       `json:"project_id"`
	OldVersion    int       `json:"old_version"`
	NewVersion    int       `json:"new_version"`
	ChangedBy     string    `json:"changed_by"`
	ChangeReason  string    `json:"change_reason"`
	Before        []byte    `json:"before"`
	After         []byte    `json:"after"`
	CorrelationId string    `json:"correlation_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func getPubSubProjectID() string {
	if v := GetSettings().PubSubProjectID; v != "" {
		return v
	}
	// Cloud Run sets this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}

// GetPubSubClient returns a Pub/Sub client, initializing it on first use.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON := GetSettings().PubSubCredentialsJSON; credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}
	pubsubClient = c
	GetLogger().WithField("project_id", projectID).Info("pubsub client ready")
	return c, nil
}

// PublishBudgetEvent publishes and returns the Pub/Sub server-assigned message ID.
func PublishBudgetEvent(ctx context.Context, topicName string, msg BudgetEventMessage) (string, error) {
	if topicName == "" {
		return "", errors.New("PUBSUB_TOPIC is required")
	}
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := client.Topic(topicName).Publish(ctx, &pubsub.Message{
		Data: msgJSON,
		Attributes: map[string]string{
			"entity_kind":    msg.EntityKind,
			"correlation_id": msg.CorrelationId,
		},
	})
	return result.Get(ctx)
}
