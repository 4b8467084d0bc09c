package counter

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const webhookDeliveriesKey = "ledger:counters:webhooks"

// Counter tallies webhook deliveries per provider and outcome in a Redis hash.
type Counter struct {
	client *redis.Client
}

func New(client *redis.Client) *Counter {
	return &Counter{client: client}
}

func field(provider, outcome string) string {
	if outcome == "" {
		outcome = "unknown"
	}
	return strings.ToLower(provider) + ":" + outcome
}

// AddWebhookDelivery increments the counter for one delivery.
func (c *Counter) AddWebhookDelivery(ctx context.Context, provider, outcome string) error {
	return c.client.HIncrBy(ctx, webhookDeliveriesKey, field(provider, outcome), 1).Err()
}

// WebhookDeliveries returns the counters keyed "provider:outcome".
func (c *Counter) WebhookDeliveries(ctx context.Context) (map[string]int64, error) {
	data, err := c.client.HGetAll(ctx, webhookDeliveriesKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Reset drains the counters and returns what they held.
func (c *Counter) Reset(ctx context.Context) (map[string]int64, error) {
	snapshot, err := c.WebhookDeliveries(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.client.Del(ctx, webhookDeliveriesKey).Err(); err != nil {
		return nil, err
	}
	return snapshot, nil
}
