// Package realtime pushes notification notices to connected clients through
// Redis pub/sub. Delivery is best effort: nothing is retried or persisted.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/notification"
)

// EnvelopeTypeDeliveryCreated tags notices for newly created deliveries.
const EnvelopeTypeDeliveryCreated = "notification.created"

const defaultPrefix = "notifications"

// Envelope is the JSON document published on a recipient channel.
type Envelope struct {
	Type          string    `json:"type"`
	RecipientType string    `json:"recipient_type"`
	RecipientID   string    `json:"recipient_id"`
	DeliveryID    string    `json:"delivery_id"`
	EventID       string    `json:"event_id"`
	Category      string    `json:"category"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
}

// Publisher implements notification.Publisher over go-redis.
type Publisher struct {
	client *redis.Client
	prefix string
}

// NewPublisher constructs a Publisher. An empty prefix uses "notifications".
func NewPublisher(client *redis.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Publisher{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel of a recipient.
func (p *Publisher) Channel(r identity.Recipient) string {
	return fmt.Sprintf("%s:%s:%s", p.prefix, r.Type, r.ID)
}

// PublishDelivery publishes n on the recipient channel.
func (p *Publisher) PublishDelivery(ctx context.Context, n notification.Notice) error {
	if p == nil || p.client == nil {
		return nil
	}
	body, err := json.Marshal(Envelope{
		Type:          EnvelopeTypeDeliveryCreated,
		RecipientType: string(n.Recipient.Type),
		RecipientID:   n.Recipient.ID,
		DeliveryID:    n.DeliveryID,
		EventID:       n.EventID,
		Category:      string(n.Category),
		Title:         n.Title,
		CreatedAt:     n.CreatedAt,
	})
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.Channel(n.Recipient), body).Err(); err != nil {
		return fmt.Errorf("realtime: publish: %w", err)
	}
	return nil
}

// Subscribe opens a subscription on the channels of every identity the caller may act as.
func (p *Publisher) Subscribe(ctx context.Context, caller identity.Caller) *redis.PubSub {
	recipients := caller.Recipients()
	channels := make([]string, 0, len(recipients))
	for _, r := range recipients {
		channels = append(channels, p.Channel(r))
	}
	return p.client.Subscribe(ctx, channels...)
}

// Decode parses a received pub/sub payload.
func Decode(payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
