package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/effective-security/finassist/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"
)

func Test_RedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(context.Background()))
	})

	host, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(host)
	require.NoError(t, err)

	client := redis.NewClient(options)
	t.Cleanup(func() {
		_ = client.Close()
	})
	require.NoError(t, client.Ping(ctx).Err(), "failed to connect to Redis")

	root := fmt.Sprintf("test-%d", time.Now().Unix())
	st := store.NewRedisStore(client, root)
	testStore(t, st.(fullStore))

	mgr := store.NewRedisStoreManager(client, root)
	users, err := mgr.ListUsers(ctx)
	require.NoError(t, err)
	require.NotNil(t, users)
}
