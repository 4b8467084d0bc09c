package counter

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/cache"
)

func newTestCounter(t *testing.T) *Counter {
	t.Helper()
	opts := cache.Options()
	opts.DB = 13
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available: %v", err)
	}
	require.NoError(t, client.Del(context.Background(), webhookDeliveriesKey).Err())
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestField(t *testing.T) {
	assert.Equal(t, "razorpay:completed", field("Razorpay", "completed"))
	assert.Equal(t, "stripe:unknown", field("stripe", ""))
}

func TestWebhookDeliveries(t *testing.T) {
	c := newTestCounter(t)
	ctx := context.Background()

	require.NoError(t, c.AddWebhookDelivery(ctx, "razorpay", "completed"))
	require.NoError(t, c.AddWebhookDelivery(ctx, "razorpay", "completed"))
	require.NoError(t, c.AddWebhookDelivery(ctx, "stripe", "ignored"))

	got, err := c.WebhookDeliveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"razorpay:completed": 2, "stripe:ignored": 1}, got)

	drained, err := c.Reset(ctx)
	require.NoError(t, err)
	assert.Len(t, drained, 2)

	got, err = c.WebhookDeliveries(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
