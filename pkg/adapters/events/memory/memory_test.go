package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/domain"
)

func TestPublishFansOutToSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	var wg sync.WaitGroup
	wg.Add(2)

	for i := 0; i < 2; i++ {
		require.NoError(t, bus.Subscribe(ctx, "task.events", func(ctx context.Context, ev domain.Event) error {
			mu.Lock()
			got = append(got, ev.ID)
			mu.Unlock()
			wg.Done()
			return nil
		}))
	}

	require.NoError(t, bus.Publish(ctx, "task.events", domain.Event{ID: "ev-1", Type: domain.EventTypeTaskCompleted}))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ev-1", "ev-1"}, got)
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()
	ctx := context.Background()

	const n = 20
	done := make(chan struct{})
	var got []domain.EventType
	require.NoError(t, bus.Subscribe(ctx, "task.events", func(ctx context.Context, ev domain.Event) error {
		got = append(got, ev.Type)
		if len(got) == 2*n {
			close(done)
		}
		return nil
	}))

	for i := 0; i < n; i++ {
		require.NoError(t, bus.Publish(ctx, "task.events", domain.Event{Type: domain.EventTypeTaskStarted}))
		require.NoError(t, bus.Publish(ctx, "task.events", domain.Event{Type: domain.EventTypeTaskCompleted}))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	for i := 0; i < 2*n; i += 2 {
		require.Equal(t, domain.EventTypeTaskStarted, got[i])
		require.Equal(t, domain.EventTypeTaskCompleted, got[i+1])
	}
}

func TestPublishIgnoresOtherTopics(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()
	ctx := context.Background()

	delivered := make(chan string, 1)
	require.NoError(t, bus.Subscribe(ctx, "workflow.events", func(ctx context.Context, ev domain.Event) error {
		delivered <- ev.ID
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "task.events", domain.Event{ID: "ev-task"}))
	require.NoError(t, bus.Publish(ctx, "workflow.events", domain.Event{ID: "ev-wf"}))

	assert.Equal(t, "ev-wf", <-delivered)
	select {
	case id := <-delivered:
		t.Fatalf("unexpected delivery: %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionRemovedOnContextCancel(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	subCtx, cancel := context.WithCancel(context.Background())
	delivered := make(chan string, 4)
	require.NoError(t, bus.Subscribe(subCtx, "task.events", func(ctx context.Context, ev domain.Event) error {
		delivered <- ev.ID
		return nil
	}))

	cancel()
	assert.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers["task.events"]) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "task.events", domain.Event{ID: "late"}))
	select {
	case id := <-delivered:
		t.Fatalf("delivery after unsubscribe: %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}
