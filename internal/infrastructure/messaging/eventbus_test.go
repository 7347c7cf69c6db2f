package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safecircle-app/safecircle/internal/domain/shared"
)

func newTestBus() *InMemoryEventBus {
	cfg := DefaultInMemoryEventBusConfig()
	return NewInMemoryEventBus(cfg)
}

func TestInMemoryEventBus_PublishDispatchesByType(t *testing.T) {
	bus := newTestBus()

	var created, completed atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventCheckInCreated, func(e shared.Event) error {
		created.Add(1)
		assert.Equal(t, "ci-1", e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventCheckInCompleted, func(shared.Event) error {
		completed.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewCheckInCreatedEvent("ci-1", "u-1")))

	assert.Equal(t, int64(1), created.Load())
	assert.Equal(t, int64(0), completed.Load())
}

func TestInMemoryEventBus_MultipleHandlersPerType(t *testing.T) {
	bus := newTestBus()

	var calls atomic.Int64
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Subscribe(shared.EventCheckInCreated, func(shared.Event) error {
			calls.Add(1)
			return nil
		}))
	}

	require.NoError(t, bus.Publish(shared.NewCheckInCreatedEvent("ci-1", "u-1")))
	assert.Equal(t, int64(3), calls.Load())
}

func TestInMemoryEventBus_SubscribeAll(t *testing.T) {
	bus := newTestBus()

	var types []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		types = append(types, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewCheckInCreatedEvent("ci-1", "u-1")))
	require.NoError(t, bus.Publish(shared.NewCheckInCompletedEvent("ci-1", "u-1")))

	assert.Equal(t, []shared.EventType{shared.EventCheckInCreated, shared.EventCheckInCompleted}, types)
}

// Handler errors stay inside the bus: the event reflects a durable write
// already, and reconciliation heals whatever the failed handler missed.
func TestInMemoryEventBus_HandlerErrorDoesNotPropagate(t *testing.T) {
	bus := newTestBus()

	var after atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventCheckInCreated, func(shared.Event) error {
		return errors.New("handler failed")
	}))
	require.NoError(t, bus.Subscribe(shared.EventCheckInCreated, func(shared.Event) error {
		after.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewCheckInCreatedEvent("ci-1", "u-1")))

	// The failing handler did not stop dispatch to the next one.
	assert.Equal(t, int64(1), after.Load())

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.Equal(t, int64(1), snap.HandlerFailures)
	assert.InDelta(t, 0.5, snap.HandlerSuccessRate, 0.001)
}

func TestInMemoryEventBus_HandlerPanicIsRecovered(t *testing.T) {
	bus := newTestBus()

	require.NoError(t, bus.Subscribe(shared.EventCheckInCreated, func(shared.Event) error {
		panic("boom")
	}))

	require.NoError(t, bus.Publish(shared.NewCheckInCreatedEvent("ci-1", "u-1")))
	assert.Equal(t, int64(1), bus.Metrics().Snapshot().HandlerFailures)
}

func TestInMemoryEventBus_NilArguments(t *testing.T) {
	bus := newTestBus()
	assert.Error(t, bus.Subscribe(shared.EventCheckInCreated, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

func TestInMemoryEventBus_Close(t *testing.T) {
	bus := newTestBus()
	require.NoError(t, bus.Subscribe(shared.EventCheckInCreated, func(shared.Event) error { return nil }))

	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewCheckInCreatedEvent("ci-1", "u-1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventCheckInCompleted, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)

	// Double close is a no-op.
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_AsyncMode(t *testing.T) {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = true
	cfg.WorkerPoolSize = 2
	bus := NewInMemoryEventBus(cfg)

	const events = 20
	var calls atomic.Int64
	var wg sync.WaitGroup
	wg.Add(events)
	require.NoError(t, bus.Subscribe(shared.EventCheckInCreated, func(shared.Event) error {
		calls.Add(1)
		wg.Done()
		return nil
	}))

	for i := 0; i < events; i++ {
		require.NoError(t, bus.Publish(shared.NewCheckInCreatedEvent("ci-1", "u-1")))
	}
	wg.Wait()
	require.NoError(t, bus.Close())

	assert.Equal(t, int64(events), calls.Load())
}

func TestInMemoryEventBus_MetricsDisabled(t *testing.T) {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.EnableMetrics = false
	bus := NewInMemoryEventBus(cfg)

	require.NoError(t, bus.Subscribe(shared.EventCheckInCreated, func(shared.Event) error { return nil }))
	require.NoError(t, bus.Publish(shared.NewCheckInCreatedEvent("ci-1", "u-1")))
	assert.Nil(t, bus.Metrics())
}

func TestEventBusMetrics_SnapshotEmpty(t *testing.T) {
	snap := NewEventBusMetrics().Snapshot()
	assert.Equal(t, int64(0), snap.TotalPublished)
	assert.Equal(t, 1.0, snap.HandlerSuccessRate)
}
