package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/internal/registry"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func redisConfig(addr string) config.RedisConfig {
	return config.RedisConfig{
		ClusterType: config.RedisClusterTypeSingle,
		Addr:        addr,
		Stream:      "castwall:clients",
		MaxLen:      1000,
	}
}

func TestRedisNotifier_Notify(t *testing.T) {
	mr := miniredis.RunT(t)

	n, err := NewRedisNotifier(zap.NewNop(), redisConfig(mr.Addr()))
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.Notify(context.Background(), created(1000)))
	require.NoError(t, n.Notify(context.Background(), registry.Event{
		Type: registry.EventClientReaped, ClientID: 1000, At: time.Now(), IdleFor: 11 * time.Second,
	}))

	entries, err := mr.Stream("castwall:clients")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	values := map[string]string{}
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		values[entries[0].Values[i]] = entries[0].Values[i+1]
	}
	assert.Equal(t, "client_created", values["type"])
	assert.Equal(t, "1000", values["client_id"])
	assert.Equal(t, "abcdef01...", gjson.Get(values["event"], "session_id").String())
}

func TestRedisNotifier_Watch(t *testing.T) {
	mr := miniredis.RunT(t)

	recv, err := NewRedisNotifier(zap.NewNop(), redisConfig(mr.Addr()))
	require.NoError(t, err)
	defer recv.Close()
	send, err := NewRedisNotifier(zap.NewNop(), redisConfig(mr.Addr()))
	require.NoError(t, err)
	defer send.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := recv.Watch(ctx)
	require.NoError(t, err)

	// the watcher reads from "$", so keep publishing until it is listening
	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev := <-ch:
			assert.Equal(t, registry.EventClientCreated, ev.Type)
			assert.Equal(t, int64(1000), ev.ClientID)
			return
		case <-ticker.C:
			require.NoError(t, send.Notify(context.Background(), created(1000)))
		case <-deadline:
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestRedisNotifier_ConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisNotifier(zap.NewNop(), redisConfig(addr))
	assert.Error(t, err)
}

func TestNewNotifier_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	n, err := NewNotifier(zap.NewNop(), &config.NotifierConfig{Type: "redis", Redis: redisConfig(mr.Addr())})
	require.NoError(t, err)
	assert.IsType(t, &RedisNotifier{}, n)
	assert.NoError(t, n.Close())
}
