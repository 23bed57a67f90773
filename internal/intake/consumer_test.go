package intake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

type recordingCorrelator struct {
	mu     sync.Mutex
	alerts []models.Alert
	fail   string
}

func (r *recordingCorrelator) Correlate(ctx context.Context, tenantID string, alert models.Alert) (models.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if alert.Service == r.fail {
		return models.Decision{}, errors.New("record failed")
	}
	r.alerts = append(r.alerts, alert)
	return models.Decision{TenantID: tenantID, Alert: alert, IncidentID: "inc-" + alert.Service}, nil
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestConsumerCorrelatesQueuedAlerts(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	for _, svc := range []string{"api", "db", "broken", "cache"} {
		require.NoError(t, Enqueue(ctx, client, "alerts", Envelope{TenantID: "acme", Alert: models.Alert{Service: svc, Title: svc + " down"}}))
	}
	_, err := mr.Lpush("alerts", "{not json")
	require.NoError(t, err)

	correlator := &recordingCorrelator{fail: "broken"}
	consumer, err := NewConsumerFromClient(client, Config{Key: "alerts", Workers: 3, BlockTimeout: 50 * time.Millisecond}, correlator, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var decisions []models.Decision
	consumer.OnDecision = func(d models.Decision) {
		mu.Lock()
		decisions = append(decisions, d)
		mu.Unlock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(decisions) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	services := make(map[string]bool)
	for _, d := range decisions {
		assert.Equal(t, "acme", d.TenantID)
		services[d.Alert.Service] = true
	}
	assert.Equal(t, map[string]bool{"api": true, "db": true, "cache": true}, services)
	assert.False(t, mr.Exists("alerts"), "queue should be drained")
}

func TestConsumerPopTimesOutEmpty(t *testing.T) {
	client, _ := setupTestRedis(t)
	consumer, err := NewConsumerFromClient(client, Config{Key: "alerts", BlockTimeout: 20 * time.Millisecond}, &recordingCorrelator{}, nil)
	require.NoError(t, err)

	payload, err := consumer.Pop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestNewConsumerValidatesConfig(t *testing.T) {
	client, _ := setupTestRedis(t)
	_, err := NewConsumerFromClient(client, Config{}, &recordingCorrelator{}, nil)
	assert.Error(t, err)
	_, err = NewConsumerFromClient(client, Config{Key: "alerts"}, nil, nil)
	assert.Error(t, err)
	_, err = NewConsumerFromClient(nil, Config{Key: "alerts"}, &recordingCorrelator{}, nil)
	assert.Error(t, err)
}

// slowCorrelator takes delay to decide, or gives up when its context ends.
type slowCorrelator struct {
	delay     time.Duration
	started   chan struct{}
	completed atomic.Int32
}

func (s *slowCorrelator) Correlate(ctx context.Context, tenantID string, alert models.Alert) (models.Decision, error) {
	close(s.started)
	select {
	case <-time.After(s.delay):
		s.completed.Add(1)
		return models.Decision{TenantID: tenantID, Alert: alert}, nil
	case <-ctx.Done():
		return models.Decision{}, ctx.Err()
	}
}

func runUntilStarted(t *testing.T, consumer *Consumer, started <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("alert was never picked up")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumerFinishesInFlightAlertOnShutdown(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, Enqueue(context.Background(), client, "alerts", Envelope{TenantID: "acme", Alert: models.Alert{Service: "api"}}))

	correlator := &slowCorrelator{delay: 100 * time.Millisecond, started: make(chan struct{})}
	consumer, err := NewConsumerFromClient(client, Config{Key: "alerts", BlockTimeout: 50 * time.Millisecond, DrainTimeout: time.Second}, correlator, nil)
	require.NoError(t, err)

	runUntilStarted(t, consumer, correlator.started)

	assert.Equal(t, int32(1), correlator.completed.Load(), "in-flight alert should be correlated")
	assert.False(t, mr.Exists("alerts"))
}

func TestConsumerRequeuesAlertThatCannotDrain(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, Enqueue(context.Background(), client, "alerts", Envelope{TenantID: "acme", Alert: models.Alert{Service: "api"}}))

	correlator := &slowCorrelator{delay: time.Hour, started: make(chan struct{})}
	consumer, err := NewConsumerFromClient(client, Config{Key: "alerts", BlockTimeout: 50 * time.Millisecond, DrainTimeout: 50 * time.Millisecond}, correlator, nil)
	require.NoError(t, err)

	runUntilStarted(t, consumer, correlator.started)

	queued, err := mr.List("alerts")
	require.NoError(t, err)
	require.Len(t, queued, 1, "abandoned alert should be back on the queue")
	assert.Contains(t, queued[0], `"tenant_id":"acme"`)
	assert.Equal(t, int32(0), correlator.completed.Load())
}
