package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func receive(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscriber channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestHub_PublishFansOut(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Connect()
	b := hub.Connect()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, hub.Count())

	n := hub.Publish("notification", "hello")
	assert.Equal(t, 2, n)

	for _, sub := range []*Subscriber{a, b} {
		ev := receive(t, sub)
		assert.Equal(t, "notification", ev.Name)
		assert.Equal(t, "hello", ev.Data)
	}
}

func TestHub_NoBacklogForLateSubscriber(t *testing.T) {
	hub := NewHub(4, nil)
	early := hub.Connect()

	hub.Publish("notification", "first")
	late := hub.Connect()

	assert.Equal(t, "first", receive(t, early).Data)
	assertNoEvent(t, late)

	hub.Publish("notification", "second")
	assert.Equal(t, "second", receive(t, late).Data)
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(0, nil)
	assert.Equal(t, 0, hub.Publish("notification", "nobody"))
	assert.NoError(t, hub.Broadcast(context.Background(), "notification", "nobody"))
}

func TestHub_FullQueueOnlyAffectsThatSubscriber(t *testing.T) {
	hub := NewHub(1, nil)
	slow := hub.Connect()
	fast := hub.Connect()

	assert.Equal(t, 2, hub.Publish("notification", 1))
	assert.Equal(t, "notification", receive(t, fast).Name)

	// slow still holds event 1, so event 2 is dropped for it only.
	assert.Equal(t, 1, hub.Publish("notification", 2))
	assert.Equal(t, 2, receive(t, fast).Data)

	assert.Equal(t, 1, receive(t, slow).Data)
	assertNoEvent(t, slow)
}

func TestHub_Disconnect(t *testing.T) {
	hub := NewHub(4, nil)
	sub := hub.Connect()

	hub.Disconnect(sub.ID)
	hub.Disconnect(sub.ID)
	hub.Disconnect("unknown")

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, 0, hub.Publish("notification", "gone"))
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Connect()
	b := hub.Connect()
	hub.Close()

	for _, sub := range []*Subscriber{a, b} {
		_, ok := <-sub.C
		assert.False(t, ok)
	}
	assert.Equal(t, 0, hub.Count())
}

func TestHub_ConcurrentConnectPublish(t *testing.T) {
	hub := NewHub(64, nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := hub.Connect()
			hub.Disconnect(sub.ID)
		}()
		go func(i int) {
			defer wg.Done()
			hub.Publish("notification", i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Count())
}

func TestRedisRelay_DeliverForwardsToHub(t *testing.T) {
	hub := NewHub(4, nil)
	sub := hub.Connect()
	relay := NewRedisRelay(nil, "test", hub, nil)

	relay.deliver(`{"event":"notification","data":{"message":"Aarti at 7pm"}}`)
	ev := receive(t, sub)
	assert.Equal(t, "notification", ev.Name)
	assert.JSONEq(t, `{"message":"Aarti at 7pm"}`, string(ev.Data.(json.RawMessage)))

	relay.deliver(`not json`)
	assertNoEvent(t, sub)
}

// TestRedisRelay_RoundTrip needs a Redis server at REDIS_TEST_ADDR.
func TestRedisRelay_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	hub := NewHub(4, nil)
	sub := hub.Connect()
	relay := NewRedisRelay(client, "sevaboard:test:"+t.Name(), hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Serve(ctx)

	// Give the subscription time to register before publishing.
	require.Eventually(t, relay.Subscribed, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, relay.Broadcast(ctx, "notification", map[string]string{"message": "hi"}))
	ev := receive(t, sub)
	assert.Equal(t, "notification", ev.Name)

	// Delivered once, through the subscription only.
	time.Sleep(50 * time.Millisecond)
	assertNoEvent(t, sub)
}

// publishOnlyRedis answers every command on an in-memory connection with the
// integer reply receivers, which is what PUBLISH returns.
func publishOnlyRedis(t *testing.T, receivers int) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		MaxRetries: -1,
		Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			server, conn := net.Pipe()
			go serveIntegerReplies(server, receivers)
			return conn, nil
		},
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func serveIntegerReplies(conn net.Conn, n int) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	for {
		header, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		args, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(header, "*")))
		if err != nil {
			return
		}
		// Each argument is a $len line followed by its bytes.
		for i := 0; i < args*2; i++ {
			if _, err := rd.ReadString('\n'); err != nil {
				return
			}
		}
		if _, err := fmt.Fprintf(conn, ":%d\r\n", n); err != nil {
			return
		}
	}
}

func TestRedisRelay_BroadcastWithoutSubscription(t *testing.T) {
	tests := []struct {
		name      string
		receivers int
	}{
		{"other instances listening", 1},
		{"nobody listening", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(4, nil)
			sub := hub.Connect()
			relay := NewRedisRelay(publishOnlyRedis(t, tt.receivers), "test", hub, nil)
			require.False(t, relay.Subscribed())

			require.NoError(t, relay.Broadcast(context.Background(), "notification", map[string]string{"message": "Mangala Aarti"}))

			ev := receive(t, sub)
			assert.Equal(t, "notification", ev.Name)
			assert.JSONEq(t, `{"message":"Mangala Aarti"}`, string(ev.Data.(json.RawMessage)))
		})
	}
}

func TestRedisRelay_BroadcastLeavesSubscribedDeliveryToRun(t *testing.T) {
	hub := NewHub(4, nil)
	sub := hub.Connect()
	relay := NewRedisRelay(publishOnlyRedis(t, 1), "test", hub, nil)
	relay.subscribed.Store(true)

	require.NoError(t, relay.Broadcast(context.Background(), "notification", map[string]string{"message": "Kirtan"}))
	assertNoEvent(t, sub)
}

func TestRedisRelay_BroadcastFallsBackWhenRedisFails(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		MaxRetries: -1,
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})
	t.Cleanup(func() { client.Close() })

	hub := NewHub(4, nil)
	sub := hub.Connect()
	relay := NewRedisRelay(client, "test", hub, nil)

	err := relay.Broadcast(context.Background(), "notification", map[string]string{"message": "Sandhya Aarti"})
	require.Error(t, err)
	assert.Equal(t, "notification", receive(t, sub).Name)
}

func TestRedisRelay_ServeRestartsRun(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Dialer: func(context.Context, string, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})
	t.Cleanup(func() { client.Close() })

	core, logs := observer.New(zap.WarnLevel)
	relay := NewRedisRelay(client, "test", NewHub(1, nil), zap.New(core))
	relay.minBackoff = time.Millisecond
	relay.maxBackoff = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Serve(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("relay stopped, restarting").Len() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, relay.Subscribed())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
