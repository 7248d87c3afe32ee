// Package queue consumes named trigger events from a Redis list and feeds
// them into the dispatcher, as an alternative ingress to the HTTP endpoint.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultQueue is the Redis list consumed when none is configured.
const DefaultQueue = "campusflow:triggers"

// Envelope is one queued trigger event.
type Envelope struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EventSink receives decoded trigger events. The dispatcher satisfies it.
type EventSink interface {
	Dispatch(ctx context.Context, eventName string, payload map[string]any) ([]string, error)
}

// Config holds Redis connection settings for the consumer.
type Config struct {
	Addr     string
	Password string
	DB       string
	Queue    string
}

// Consumer pops trigger envelopes from a Redis list.
type Consumer struct {
	queue  string
	config Config
	sink   EventSink
	client redis.UniversalClient
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewConsumer(config Config, sink EventSink, logger *slog.Logger) (*Consumer, error) {
	if sink == nil {
		return nil, errors.New("queue consumer requires an event sink")
	}

	queue := config.Queue
	if queue == "" {
		queue = DefaultQueue
	}

	return &Consumer{
		queue:  queue,
		config: config,
		sink:   sink,
		stopCh: make(chan struct{}),
		logger: logger.With("module", "queue_ingress", "queue", queue),
	}, nil
}

// Start connects to Redis and begins consuming. Stop with Stop.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.initializeClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	c.wg.Add(1)

	go c.consume(ctx)

	return nil
}

func (c *Consumer) initializeClient(ctx context.Context) error {
	addr := c.config.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0

	if c.config.DB != "" {
		parsed, err := strconv.Atoi(c.config.DB)
		if err != nil {
			return fmt.Errorf("invalid db value: %w", err)
		}

		db = parsed
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: c.config.Password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return nil
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	c.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-c.stopCh:
			c.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := c.processMessage(ctx); err != nil {
				c.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, 1*time.Second, c.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	var envelope Envelope
	if err := json.Unmarshal([]byte(message), &envelope); err != nil {
		return fmt.Errorf("failed to decode trigger envelope: %w", err)
	}

	if envelope.Event == "" {
		c.logger.WarnContext(ctx, "Dropping envelope without an event name", "message", message)

		return nil
	}

	c.logger.InfoContext(ctx, "Received trigger event from queue", "event_name", envelope.Event)

	go func() {
		if _, err := c.sink.Dispatch(ctx, envelope.Event, envelope.Payload); err != nil {
			c.logger.ErrorContext(ctx, "Error dispatching queued event",
				"event_name", envelope.Event, "error", err)
		}
	}()

	return nil
}

// Stop halts consumption and closes the Redis connection.
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Stopping queue consumer")

	close(c.stopCh)
	c.wg.Wait()

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
