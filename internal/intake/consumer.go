// Package intake pulls queued alerts off a Redis list and feeds them to the
// correlator.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

// Correlator is the use case applied to each queued alert.
type Correlator interface {
	Correlate(ctx context.Context, tenantID string, alert models.Alert) (models.Decision, error)
}

// Envelope is the queued wire form of an alert.
type Envelope struct {
	TenantID string       `json:"tenant_id"`
	Alert    models.Alert `json:"alert"`
}

// Config configures the Redis consumer.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	Workers      int
	BlockTimeout time.Duration
	// DrainTimeout bounds each alert's correlation. It keeps running after
	// Run's context is cancelled so popped alerts are not abandoned.
	DrainTimeout time.Duration
}

// Consumer pops envelopes with BLPOP and correlates them on a worker pool.
type Consumer struct {
	client       *redis.Client
	key          string
	workers      int
	blockTimeout time.Duration
	drainTimeout time.Duration
	correlator   Correlator
	logger       *slog.Logger

	// OnDecision, when set, observes every successful decision.
	OnDecision func(models.Decision)
}

// NewConsumer creates a consumer with its own Redis client.
func NewConsumer(cfg Config, correlator Correlator, logger *slog.Logger) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewConsumerFromClient(client, cfg, correlator, logger)
}

// NewConsumerFromClient creates a consumer over an existing client.
func NewConsumerFromClient(client *redis.Client, cfg Config, correlator Correlator, logger *slog.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if correlator == nil {
		return nil, fmt.Errorf("correlator is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:       client,
		key:          cfg.Key,
		workers:      cfg.Workers,
		blockTimeout: cfg.BlockTimeout,
		drainTimeout: cfg.DrainTimeout,
		correlator:   correlator,
		logger:       logger,
	}, nil
}

// Run consumes until ctx is done. In-flight alerts get up to the drain
// timeout to finish; any that cannot are pushed back onto the head of the
// queue before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	work := make(chan []byte)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for payload := range work {
				c.handle(ctx, payload)
			}
		}()
	}

	c.readLoop(ctx, work)
	close(work)
	wg.Wait()
	return ctx.Err()
}

// Pop pops one message from the list. It returns nil, nil when the block
// timeout elapses without a message.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Close closes the Redis client.
func (c *Consumer) Close() error {
	return c.client.Close()
}

func (c *Consumer) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := c.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to pop alert", slog.String("queue", c.key), slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if payload == nil {
			continue
		}
		if ctx.Err() != nil {
			// Popped after shutdown began.
			c.requeue(ctx, payload)
			return
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			c.requeue(ctx, payload)
			return
		}
	}
}

func (c *Consumer) handle(ctx context.Context, payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.logger.Warn("dropping malformed alert envelope", slog.Any("error", err))
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.drainTimeout)
	defer cancel()
	decision, err := c.correlator.Correlate(hctx, env.TenantID, env.Alert)
	if err != nil {
		if ctx.Err() != nil && hctx.Err() != nil {
			c.requeue(ctx, payload)
			return
		}
		c.logger.Error("alert correlation failed",
			slog.String("tenant_id", env.TenantID),
			slog.String("service", env.Alert.Service),
			slog.Any("error", err),
		)
		return
	}
	if c.OnDecision != nil {
		c.OnDecision(decision)
	}
}

// requeue returns an alert abandoned during shutdown to the head of the list.
func (c *Consumer) requeue(ctx context.Context, payload []byte) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.client.LPush(rctx, c.key, payload).Err(); err != nil {
		c.logger.Error("failed to requeue alert, dropping it", slog.String("queue", c.key), slog.Any("error", err))
		return
	}
	c.logger.Warn("alert requeued at shutdown", slog.String("queue", c.key))
}

// Enqueue appends an envelope to the tail of the list.
func Enqueue(ctx context.Context, client *redis.Client, key string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}
	return nil
}
