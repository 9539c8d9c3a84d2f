package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	rediscommon "smartgrid-monitor/common/redis"
	"smartgrid-monitor/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fastRetry = RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func sample(turbine int, status models.Status) *models.TelemetryEvent {
	return &models.TelemetryEvent{
		TurbineNumber:    turbine,
		WindSpeed:        42.5,
		PowerOutputInKWh: 1800,
		Status:           status,
		Timestamp:        1700000000,
	}
}

func TestHTTPPublisher_RetriesUntilAccepted(t *testing.T) {
	var calls atomic.Int32
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MetricsPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(body)

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("null"))
	}))
	defer srv.Close()

	p := NewHTTPPublisher(srv.URL, time.Second, fastRetry, zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), sample(2, models.StatusBroken)))
	assert.Equal(t, int32(3), calls.Load())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(lastBody.Load().([]byte), &got))
	assert.Equal(t, "broken", got["operational_status"])
	assert.Equal(t, 2.0, got["turbine_number"])
}

func TestHTTPPublisher_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewHTTPPublisher(srv.URL, time.Second, fastRetry, zap.NewNop())
	err := p.Publish(context.Background(), sample(1, models.StatusHealthy))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPPublisher_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := NewHTTPPublisher(srv.URL, time.Second, fastRetry, zap.NewNop())
	err := p.Publish(ctx, sample(1, models.StatusHealthy))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMQTTPublisher_TopicAndRetry(t *testing.T) {
	broker := newFakeBroker()
	broker.failures = 2

	p := NewMQTTPublisher(broker, "turbine/%d/metrics", fastRetry, zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), sample(4, models.StatusHealthy)))

	sent := broker.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "turbine/4/metrics", sent[0].topic)

	ev, err := models.ParseTelemetryEvent(sent[0].payload)
	require.NoError(t, err)
	assert.Equal(t, 4, ev.TurbineNumber)
}

func TestRedisStreamPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	p := NewRedisStreamPublisher(client, "turbine:metrics:stream", fastRetry, zap.NewNop())
	require.NoError(t, p.Publish(ctx, sample(1, models.StatusHealthy)))
	require.NoError(t, p.Publish(ctx, sample(2, models.StatusBroken)))

	messages, err := rediscommon.ReadStreamRange(ctx, client, "turbine:metrics:stream")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	ev, err := decodeTelemetry(messages[1])
	require.NoError(t, err)
	assert.Equal(t, models.StatusBroken, ev.Status)
}
