package livestats

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"finiex/internal/core"
	"finiex/pkg/telemetry"
)

// Coordinator owns the bounded telemetry queue between scenario tick
// loops and the display hub. Publishing never blocks a tick loop: when
// the queue is full the message is dropped and counted.
type Coordinator struct {
	queue  chan Message
	hub    *Hub
	logger core.Logger

	// Per-scenario progress throttles. Status transitions bypass them.
	interval time.Duration
	mu       sync.Mutex
	limiters map[int]*rate.Limiter
}

// NewCoordinator creates a live stats coordinator. hub may be nil when no
// display endpoint is configured; messages are then consumed and dropped.
func NewCoordinator(queueSize int, updateInterval time.Duration, hub *Hub, logger core.Logger) *Coordinator {
	if queueSize < 1 {
		queueSize = 1024
	}
	return &Coordinator{
		queue:    make(chan Message, queueSize),
		hub:      hub,
		logger:   logger.WithField("component", "livestats"),
		interval: updateInterval,
		limiters: make(map[int]*rate.Limiter),
	}
}

// Run consumes the queue until the context is cancelled, forwarding every
// message to the hub.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued so final status updates
			// still reach connected clients.
			for {
				select {
				case msg := <-c.queue:
					c.forward(msg)
				default:
					return
				}
			}
		case msg := <-c.queue:
			c.forward(msg)
		}
	}
}

func (c *Coordinator) forward(msg Message) {
	if c.hub != nil {
		c.hub.Broadcast(msg)
	}
}

// tryEnqueue offers a message to the queue without blocking.
func (c *Coordinator) tryEnqueue(msg Message) {
	select {
	case c.queue <- msg:
	default:
		telemetry.LiveMessagesDropped.Inc()
	}
}

// PublishStatus announces a scenario lifecycle transition. Never throttled.
func (c *Coordinator) PublishStatus(update StatusUpdate) {
	c.tryEnqueue(Message{Type: MessageTypeStatus, Timestamp: time.Now().UTC(), Data: update})
}

// PublishProgress offers a periodic snapshot, throttled per scenario to
// the configured update interval. force bypasses the throttle for the
// final snapshot of a run.
func (c *Coordinator) PublishProgress(progress Progress, force bool) {
	if !force && !c.limiter(progress.ScenarioIndex).Allow() {
		return
	}
	c.tryEnqueue(Message{Type: MessageTypeProgress, Timestamp: time.Now().UTC(), Data: progress})
}

// PublishBatch offers a batch-level summary.
func (c *Coordinator) PublishBatch(update BatchUpdate) {
	c.tryEnqueue(Message{Type: MessageTypeBatch, Timestamp: time.Now().UTC(), Data: update})
}

func (c *Coordinator) limiter(scenarioIndex int) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[scenarioIndex]
	if !ok {
		l = rate.NewLimiter(rate.Every(c.interval), 1)
		c.limiters[scenarioIndex] = l
	}
	return l
}

// QueueDepth reports the current queue occupancy.
func (c *Coordinator) QueueDepth() int { return len(c.queue) }
