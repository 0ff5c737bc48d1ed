package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pzhine/js-worker-search/pkg/kafka"
)

const collectorBuffer = 1024

// Collector buffers analytics events and publishes them to Kafka from a
// background goroutine so request handlers never block on the broker.
// Events are dropped, with a log line, when the buffer is full.
type Collector struct {
	producer *kafka.Producer
	events   chan Event
	stop     chan struct{}
	logger   *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCollector creates a Collector publishing to the given producer.
func NewCollector(producer *kafka.Producer) *Collector {
	return &Collector{
		producer: producer,
		events:   make(chan Event, collectorBuffer),
		stop:     make(chan struct{}),
		logger:   slog.Default().With("component", "analytics-collector"),
	}
}

// Track enqueues an event for publishing. It never blocks.
func (c *Collector) Track(event Event) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("analytics buffer full, dropping event", "type", event.Type)
	}
}

// Start launches the publish loop. The loop runs until ctx is cancelled or
// Close is called, draining buffered events before exiting.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				c.drain()
				return
			case <-c.stop:
				c.drain()
				return
			case event := <-c.events:
				c.publish(event)
			}
		}
	}()
}

// Close stops the publish loop, drains remaining events, and closes the
// producer.
func (c *Collector) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		err = c.producer.Close()
	})
	return err
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.events:
			c.publish(event)
		default:
			return
		}
	}
}

func (c *Collector) publish(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.producer.Publish(ctx, kafka.Event{Key: string(event.Type), Value: event}); err != nil {
		c.logger.Error("failed to publish analytics event", "type", event.Type, "error", err)
	}
}
