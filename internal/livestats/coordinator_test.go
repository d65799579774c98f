package livestats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finiex/internal/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                {}
func (nopLogger) Info(string, ...interface{})                 {}
func (nopLogger) Warn(string, ...interface{})                 {}
func (nopLogger) Error(string, ...interface{})                {}
func (nopLogger) Fatal(string, ...interface{})                {}
func (l nopLogger) WithField(string, interface{}) core.Logger { return l }
func (l nopLogger) WithFields(map[string]interface{}) core.Logger {
	return l
}

func TestPublishStatusEnqueues(t *testing.T) {
	c := NewCoordinator(16, time.Second, nil, nopLogger{})
	c.PublishStatus(StatusUpdate{ScenarioIndex: 0, ScenarioName: "a", Status: StatusRunning})
	assert.Equal(t, 1, c.QueueDepth())
}

func TestPublishProgressThrottles(t *testing.T) {
	c := NewCoordinator(64, time.Hour, nil, nopLogger{})

	// The first snapshot passes, immediate repeats are throttled.
	for i := 0; i < 5; i++ {
		c.PublishProgress(Progress{ScenarioIndex: 0, TicksProcessed: int64(i)}, false)
	}
	assert.Equal(t, 1, c.QueueDepth())

	// force bypasses the throttle for final snapshots.
	c.PublishProgress(Progress{ScenarioIndex: 0, TicksProcessed: 99}, true)
	assert.Equal(t, 2, c.QueueDepth())

	// Throttles are per scenario.
	c.PublishProgress(Progress{ScenarioIndex: 1, TicksProcessed: 1}, false)
	assert.Equal(t, 3, c.QueueDepth())
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	c := NewCoordinator(2, time.Second, nil, nopLogger{})
	for i := 0; i < 10; i++ {
		c.PublishStatus(StatusUpdate{ScenarioIndex: i})
	}
	assert.Equal(t, 2, c.QueueDepth())
}

func TestRunDrainsOnCancel(t *testing.T) {
	hub := NewHub(nopLogger{})
	c := NewCoordinator(16, time.Second, hub, nopLogger{})
	c.PublishStatus(StatusUpdate{Status: StatusCompleted})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop after cancel")
	}
	assert.Equal(t, 0, c.QueueDepth())
}

func TestHubBroadcastReachesClients(t *testing.T) {
	hub := NewHub(nopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	msgs, unsubscribe := hub.Subscribe("test-client")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Broadcast(Message{Type: MessageTypeStatus})
	select {
	case msg := <-msgs:
		assert.Equal(t, MessageTypeStatus, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive broadcast")
	}

	unsubscribe()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestHubRunClosesClientsOnCancel(t *testing.T) {
	hub := NewHub(nopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := newClient("test-client")
	hub.register <- c
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	cancel()
	select {
	case _, open := <-c.send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("client send channel was not closed")
	}
}
