package messaging

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false, EnableMetrics: true})
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var extended, reset int
	require.NoError(t, bus.Subscribe(shared.EventStreakExtended, func(e shared.Event) error {
		extended++
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventStreakReset, func(e shared.Event) error {
		reset++
		return nil
	}))

	now := time.Now().UTC()
	require.NoError(t, bus.Publish(shared.NewStreakExtendedEvent("user-1", now, 2, 5)))
	require.NoError(t, bus.Publish(shared.NewStreakExtendedEvent("user-1", now, 3, 6)))
	require.NoError(t, bus.Publish(shared.NewStreakResetEvent("user-2", now, 4)))

	assert.Equal(t, 2, extended)
	assert.Equal(t, 1, reset)
}

func TestInMemoryEventBus_SubscribeAll(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var all []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	now := time.Now().UTC()
	require.NoError(t, bus.Publish(shared.NewStreakMilestoneEvent("user-1", now, 7)))
	require.NoError(t, bus.Publish(shared.NewAchievementUnlockedEvent("user-1", now, "reader-3", 10)))

	assert.Equal(t, []shared.EventType{shared.EventStreakMilestone, shared.EventAchievementUnlocked}, all)
}

func TestInMemoryEventBus_AsyncDeliversBeforeClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 4})

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.Subscribe(shared.EventStreakExtended, func(e shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	now := time.Now().UTC()
	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewStreakExtendedEvent("user-1", now, i, i)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 20
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_ClosedBusRejectsPublish(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(shared.NewStreakResetEvent("user-1", time.Now().UTC(), 3))

	assert.ErrorIs(t, err, ErrEventBusClosed)
}

func TestInMemoryEventBus_MetricsCountFailures(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventStreakReset, func(e shared.Event) error {
		return assert.AnError
	}))
	require.NoError(t, bus.Publish(shared.NewStreakResetEvent("user-1", time.Now().UTC(), 3)))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(1), snap.TotalHandlerExecs)
	assert.Equal(t, 0.0, snap.HandlerSuccessRate)
}
