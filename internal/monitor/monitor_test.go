package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartgrid-monitor/internal/dispatcher"
	"smartgrid-monitor/internal/ingress"
	"smartgrid-monitor/internal/models"
	"smartgrid-monitor/internal/turbine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingStore struct {
	mu     sync.Mutex
	events []models.TelemetryEvent
	failOn map[float64]bool
}

func (s *recordingStore) Append(_ context.Context, ev *models.TelemetryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[ev.Timestamp] {
		return errors.New("disk full")
	}
	s.events = append(s.events, *ev)
	return nil
}

func (s *recordingStore) Backend() string { return "memory" }

func (s *recordingStore) timestamps() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Timestamp)
	}
	return out
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, turbine int) (models.RepairTicket, error) {
	args := m.Called(ctx, turbine)
	return args.Get(0).(models.RepairTicket), args.Error(1)
}

func reading(turbine int, status models.Status, ts float64) models.TelemetryEvent {
	return models.TelemetryEvent{TurbineNumber: turbine, Status: status, Timestamp: ts}
}

func TestShouldDispatch(t *testing.T) {
	healthy := reading(1, models.StatusHealthy, 1)
	broken := reading(1, models.StatusBroken, 1)

	tests := []struct {
		name string
		prev *models.TelemetryEvent
		curr models.TelemetryEvent
		want bool
	}{
		{"first reading broken", nil, broken, true},
		{"first reading ok", nil, healthy, false},
		{"ok to broken", &healthy, broken, true},
		{"broken to broken", &broken, broken, false},
		{"broken to ok", &broken, healthy, false},
		{"ok to ok", &healthy, healthy, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldDispatch(tt.prev, tt.curr))
		})
	}
}

func TestMonitor_DispatchesOncePerEpisode(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Dispatch", mock.Anything, 1).Return(models.RepairTicket{TicketID: "x"}, nil).Twice()

	m := New(nil, &recordingStore{}, d, zap.NewNop())
	ctx := context.Background()
	for i, status := range []models.Status{
		models.StatusHealthy, models.StatusBroken, models.StatusBroken, models.StatusBroken,
		models.StatusHealthy, models.StatusBroken, models.StatusBroken,
	} {
		m.process(ctx, reading(1, status, float64(i)))
	}

	d.AssertExpectations(t)
	d.AssertNumberOfCalls(t, "Dispatch", 2)
}

func TestMonitor_TracksTurbinesIndependently(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Dispatch", mock.Anything, 1).Return(models.RepairTicket{}, nil).Once()
	d.On("Dispatch", mock.Anything, 2).Return(models.RepairTicket{}, nil).Once()

	m := New(nil, &recordingStore{}, d, zap.NewNop())
	ctx := context.Background()
	m.process(ctx, reading(1, models.StatusBroken, 1))
	m.process(ctx, reading(2, models.StatusHealthy, 2))
	m.process(ctx, reading(1, models.StatusBroken, 3))
	m.process(ctx, reading(2, models.StatusBroken, 4))

	d.AssertExpectations(t)
	assert.Equal(t, models.StatusBroken, m.last[1].Status)
	assert.Equal(t, 4.0, m.last[2].Timestamp)
}

func TestMonitor_PersistenceFailureKeepsProcessing(t *testing.T) {
	store := &recordingStore{failOn: map[float64]bool{2: true}}
	d := &mockDispatcher{}
	m := New(nil, store, d, zap.NewNop())
	ctx := context.Background()

	m.process(ctx, reading(1, models.StatusHealthy, 1))
	m.process(ctx, reading(1, models.StatusHealthy, 2))
	assert.Equal(t, 2.0, m.last[1].Timestamp)

	d.On("Dispatch", mock.Anything, 1).Return(models.RepairTicket{}, nil).Once()
	m.process(ctx, reading(1, models.StatusBroken, 3))

	assert.Equal(t, []float64{1, 3}, store.timestamps())
	d.AssertExpectations(t)
}

func TestMonitor_DispatchErrorIsAbsorbed(t *testing.T) {
	d := &mockDispatcher{}
	d.On("Dispatch", mock.Anything, 1).Return(models.RepairTicket{}, dispatcher.ErrRepairInProgress).Once()

	m := New(nil, &recordingStore{}, d, zap.NewNop())
	m.process(context.Background(), reading(1, models.StatusBroken, 1))
	m.process(context.Background(), reading(1, models.StatusBroken, 2))

	d.AssertNumberOfCalls(t, "Dispatch", 1)
	assert.Equal(t, 2.0, m.last[1].Timestamp)
}

func TestMonitor_RunPersistsInQueueOrder(t *testing.T) {
	q := ingress.NewQueue(16)
	store := &recordingStore{}
	d := &mockDispatcher{}
	m := New(q, store, d, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	for i := 1; i <= 10; i++ {
		ev := reading(i%3+1, models.StatusHealthy, float64(i))
		require.NoError(t, q.Enqueue(ctx, &ev))
	}

	require.Eventually(t, func() bool { return len(store.timestamps()) == 10 }, time.Second, time.Millisecond)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, store.timestamps())

	cancel()
	assert.NoError(t, <-done)
}

type countingNotifier struct {
	registry *turbine.Registry
	mu       sync.Mutex
	count    map[int]int
}

func (n *countingNotifier) NotifyRepaired(ctx context.Context, ticket models.RepairTicket) error {
	n.mu.Lock()
	n.count[ticket.TurbineNumber]++
	n.mu.Unlock()
	return n.registry.NotifyRepaired(ctx, ticket)
}

func (n *countingNotifier) repairs(turbine int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count[turbine]
}

// 上报周期 10ms、故障时间 30ms：第 3 个周期后进入故障，维修前只派发一次
func TestMonitor_EndToEndSingleDispatchPerEpisode(t *testing.T) {
	fleet, err := turbine.NewFleet([]turbine.Config{
		{TurbineNumber: 1, UploadInterval: 10 * time.Millisecond, TimeToFail: 30 * time.Millisecond, TimeToRepair: 80 * time.Millisecond},
	}, nil, zap.NewNop())
	require.NoError(t, err)

	q := ingress.NewQueue(64)
	store := &recordingStore{}
	notifier := &countingNotifier{registry: fleet.Registry(), count: make(map[int]int)}
	disp := dispatcher.New(1, notifier, dispatcher.FromResolver(fleet.Registry(), dispatcher.FixedDuration(time.Second)), zap.NewNop())
	m := New(q, store, disp, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, run := range []func(context.Context) error{
		func(ctx context.Context) error { return fleet.Run(ctx, q) },
		m.Run,
		disp.Run,
	} {
		run := run
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = run(ctx)
		}()
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.Eventually(t, func() bool { return notifier.repairs(1) == 1 }, 2*time.Second, time.Millisecond)

	// 维修期间收到多条 broken，只有第一次 ok→broken 触发派发
	store.mu.Lock()
	brokenBeforeRepair := 0
	for _, ev := range store.events {
		if ev.Status == models.StatusBroken {
			brokenBeforeRepair++
		}
	}
	store.mu.Unlock()
	assert.Greater(t, brokenBeforeRepair, 1)

	// 维修后设备先恢复 ok，再次故障会开启新的周期
	assert.Eventually(t, func() bool { return notifier.repairs(1) == 2 }, 2*time.Second, time.Millisecond)
}
