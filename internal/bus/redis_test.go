package bus_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	b := bus.NewRedis(client, "test:"+uuid.NewString()[:8]+":")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	subscribe(t, ctx, b, c)

	for _, payload := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(ctx, bus.Message{Channel: "room:xyz", Payload: []byte(payload)}))
	}
	require.Eventually(t, func() bool {
		return len(payloads(c.snapshot(), "room:xyz")) == 3
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, payloads(c.snapshot(), "room:xyz"))
}
