package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartgrid-monitor/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingTarget struct {
	mu      sync.Mutex
	tickets []models.RepairTicket
}

func (r *recordingTarget) NotifyRepaired(_ context.Context, ticket models.RepairTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = append(r.tickets, ticket)
	return nil
}

func (r *recordingTarget) received() []models.RepairTicket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.RepairTicket(nil), r.tickets...)
}

func TestRedisRepairNotice_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	target := &recordingTarget{}
	listener := NewRedisRepairListener(client, "turbine:*:repairs", target, zap.NewNop())
	notifier := NewRedisRepairNotifier(client, "turbine:%d:repairs")

	ticket := models.RepairTicket{TicketID: "abc", TurbineNumber: 2, Duration: 3 * time.Second}
	assert.ErrorIs(t, notifier.NotifyRepaired(context.Background(), ticket), ErrNoListener)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	select {
	case <-listener.Ready():
	case <-time.After(time.Second):
		t.Fatal("listener not ready")
	}

	require.NoError(t, notifier.NotifyRepaired(context.Background(), ticket))
	require.Eventually(t, func() bool { return len(target.received()) == 1 }, time.Second, time.Millisecond)

	got := target.received()[0]
	assert.Equal(t, "abc", got.TicketID)
	assert.Equal(t, 2, got.TurbineNumber)
	assert.Equal(t, 3*time.Second, got.Duration)

	cancel()
	require.NoError(t, <-done)
}

func TestMQTTRepairNotice_RoundTrip(t *testing.T) {
	broker := newFakeBroker()
	target := &recordingTarget{}
	listener := NewMQTTRepairListener(broker, "turbine/+/repairs", target, zap.NewNop())
	notifier := NewMQTTRepairNotifier(broker, "turbine/%d/repairs")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()
	require.Eventually(t, func() bool { return broker.subscribed("turbine/+/repairs") }, time.Second, time.Millisecond)

	require.NoError(t, notifier.NotifyRepaired(ctx, models.RepairTicket{TicketID: "t-5", TurbineNumber: 5}))
	require.NoError(t, broker.Publish("turbine/6/repairs", 1, false, []byte(`{"ticket_id":"bad","turbine_number":0}`)))

	require.Eventually(t, func() bool { return len(target.received()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	received := target.received()
	require.Len(t, received, 1)
	assert.Equal(t, "t-5", received[0].TicketID)
	assert.Equal(t, "turbine/5/repairs", broker.sent()[0].topic)
}

// stallingTarget 对 stalled 中的风机一直阻塞到 ctx 结束，其它风机立即接收
type stallingTarget struct {
	recordingTarget
	stalled  map[int]bool
	tmu      sync.Mutex
	timeouts int
}

func (s *stallingTarget) NotifyRepaired(ctx context.Context, ticket models.RepairTicket) error {
	if s.stalled[ticket.TurbineNumber] {
		<-ctx.Done()
		s.tmu.Lock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.timeouts++
		}
		s.tmu.Unlock()
		return ctx.Err()
	}
	return s.recordingTarget.NotifyRepaired(ctx, ticket)
}

func (s *stallingTarget) timedOut() int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return s.timeouts
}

func TestRedisRepairListener_StalledTurbineDoesNotBlockOthers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	target := &stallingTarget{stalled: map[int]bool{1: true}}
	listener := NewRedisRepairListener(client, "turbine:*:repairs", target, zap.NewNop(), WithDeliverTimeout(500*time.Millisecond))
	notifier := NewRedisRepairNotifier(client, "turbine:%d:repairs")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()
	select {
	case <-listener.Ready():
	case <-time.After(time.Second):
		t.Fatal("listener not ready")
	}

	require.NoError(t, notifier.NotifyRepaired(ctx, models.RepairTicket{TicketID: "stale", TurbineNumber: 1}))
	require.NoError(t, notifier.NotifyRepaired(ctx, models.RepairTicket{TicketID: "real", TurbineNumber: 2}))

	require.Eventually(t, func() bool { return len(target.received()) == 1 }, 200*time.Millisecond, time.Millisecond)
	assert.Equal(t, "real", target.received()[0].TicketID)
	require.Eventually(t, func() bool { return target.timedOut() == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestMQTTRepairListener_StalledTurbineDoesNotBlockOthers(t *testing.T) {
	broker := newFakeBroker()
	target := &stallingTarget{stalled: map[int]bool{3: true}}
	listener := NewMQTTRepairListener(broker, "turbine/+/repairs", target, zap.NewNop())
	notifier := NewMQTTRepairNotifier(broker, "turbine/%d/repairs")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()
	require.Eventually(t, func() bool { return broker.subscribed("turbine/+/repairs") }, time.Second, time.Millisecond)

	require.NoError(t, notifier.NotifyRepaired(ctx, models.RepairTicket{TicketID: "stale", TurbineNumber: 3}))
	require.NoError(t, notifier.NotifyRepaired(ctx, models.RepairTicket{TicketID: "real", TurbineNumber: 4}))
	require.Eventually(t, func() bool { return len(target.received()) == 1 }, 200*time.Millisecond, time.Millisecond)
	assert.Equal(t, "real", target.received()[0].TicketID)

	// 停止时取消仍在等待的转交
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Zero(t, target.timedOut())
}
