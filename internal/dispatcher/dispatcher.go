// Package dispatcher 维修调度：每个故障周期一张工单，按 FIFO 分配给有限的工程师。
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"smartgrid-monitor/internal/metrics"
	"smartgrid-monitor/internal/models"
	"smartgrid-monitor/internal/turbine"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRepairInProgress 该风机已有进行中（或排队中）的维修
var ErrRepairInProgress = errors.New("repair already in progress")

// RepairNotifier 维修完成通知端；返回前风机应已（或即将）回到 ok
type RepairNotifier interface {
	NotifyRepaired(ctx context.Context, ticket models.RepairTicket) error
}

// DurationFunc 返回某风机本次维修所需时长
type DurationFunc func(turbine int) time.Duration

// Option 调度器可选项
type Option func(*Dispatcher)

// WithNotifyTimeout 维修完成通知的最长重试时间
func WithNotifyTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		dp.notifyTimeout = d
	}
}

// job 排队中的工单；repaired 表示维修已做完，只差通知送达
type job struct {
	ticket   models.RepairTicket
	repaired bool
}

// Dispatcher 维修调度器
//
// Dispatch 只登记工单，从不阻塞；Run 中唯一的调度 goroutine 按登记顺序取出队首工单，
// 占到工程师后再启动维修任务，因此工程师不足时工单按 FIFO 排队。
// 通知送达失败的工单重新入队，风机保持进行中标记，直到通知送达或 ctx 结束。
type Dispatcher struct {
	pool          *EngineerPool
	notifier      RepairNotifier
	duration      DurationFunc
	logger        *zap.Logger
	notifyTimeout time.Duration
	now           func() time.Time

	mu      sync.Mutex
	active  map[int]struct{}
	pending []job
	wake    chan struct{}

	tasks sync.WaitGroup
}

// New 创建调度器
func New(engineerCount int, notifier RepairNotifier, duration DurationFunc, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:          NewEngineerPool(engineerCount),
		notifier:      notifier,
		duration:      duration,
		logger:        logger,
		notifyTimeout: 30 * time.Second,
		now:           time.Now,
		active:        make(map[int]struct{}),
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch 为风机登记一张维修工单
func (d *Dispatcher) Dispatch(_ context.Context, turbine int) (models.RepairTicket, error) {
	d.mu.Lock()
	if _, ok := d.active[turbine]; ok {
		d.mu.Unlock()
		metrics.RecordDuplicateDispatch()
		return models.RepairTicket{}, fmt.Errorf("turbine %d: %w", turbine, ErrRepairInProgress)
	}

	ticket := models.RepairTicket{
		TicketID:      uuid.New().String(),
		TurbineNumber: turbine,
		DispatchedAt:  d.now(),
	}
	d.active[turbine] = struct{}{}
	d.pending = append(d.pending, job{ticket: ticket})
	pending := len(d.pending)
	d.mu.Unlock()

	metrics.RecordDispatch()
	metrics.SetPendingRepairs(pending)
	d.signal()

	d.logger.Info("Repair ticket created",
		zap.String("ticket_id", ticket.TicketID),
		zap.Int("turbine_number", turbine),
		zap.Int("pending", pending),
		zap.Int("engineers_available", d.pool.Available()),
	)
	return ticket, nil
}

// Run 调度循环，ctx 结束后等待进行中的维修任务退出再返回
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.tasks.Wait()

	for {
		if _, ok := d.head(); !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-d.wake:
				continue
			}
		}

		// 队首工单在占到工程师前保持排队
		if err := d.pool.Acquire(ctx); err != nil {
			return nil
		}

		j := d.pop()
		d.tasks.Add(1)
		go d.repair(ctx, j)
	}
}

// Available 空闲工程师数
func (d *Dispatcher) Available() int {
	return d.pool.Available()
}

// EngineerCount 工程师总数
func (d *Dispatcher) EngineerCount() int {
	return d.pool.Size()
}

// Active 进行中或排队中的维修数
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// Pending 等待工程师的工单数
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// InProgress 风机是否有进行中或排队中的维修
func (d *Dispatcher) InProgress(turbine int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[turbine]
	return ok
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) head() (job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return job{}, false
	}
	return d.pending[0], true
}

func (d *Dispatcher) pop() job {
	d.mu.Lock()
	j := d.pending[0]
	d.pending[0] = job{}
	d.pending = d.pending[1:]
	pending := len(d.pending)
	d.mu.Unlock()

	metrics.SetPendingRepairs(pending)
	return j
}

// requeue 通知未送达的工单回到队尾，进行中标记保持不变
func (d *Dispatcher) requeue(j job) {
	d.mu.Lock()
	d.pending = append(d.pending, j)
	pending := len(d.pending)
	d.mu.Unlock()

	metrics.SetPendingRepairs(pending)
	d.signal()
}

func (d *Dispatcher) finish(turbine int) {
	d.mu.Lock()
	delete(d.active, turbine)
	d.mu.Unlock()
}

// repair 单次维修任务：等待维修时长 → 通知风机 → 清除进行中标记 → 归还工程师
//
// 进行中标记总是先于工程师归还被清除。
func (d *Dispatcher) repair(ctx context.Context, j job) {
	defer d.tasks.Done()
	defer d.pool.Release()

	ticket := j.ticket
	logger := d.logger.With(
		zap.String("ticket_id", ticket.TicketID),
		zap.Int("turbine_number", ticket.TurbineNumber),
	)

	if !j.repaired {
		ticket.StartedAt = d.now()
		ticket.Duration = d.duration(ticket.TurbineNumber)
		logger.Info("Engineer dispatched",
			zap.Duration("duration", ticket.Duration),
			zap.Duration("waited", ticket.StartedAt.Sub(ticket.DispatchedAt)),
		)

		timer := time.NewTimer(ticket.Duration)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.finish(ticket.TurbineNumber)
			logger.Info("Repair abandoned on shutdown")
			return
		case <-timer.C:
		}
	}

	err := d.notify(ctx, ticket)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		d.finish(ticket.TurbineNumber)
		logger.Info("Repair notice abandoned on shutdown")
		return
	case errors.Is(err, turbine.ErrNotBroken):
		d.finish(ticket.TurbineNumber)
		logger.Warn("Repair notice rejected, turbine already ok", zap.Error(err))
		return
	default:
		logger.Error("Failed to notify repair completion, requeueing ticket", zap.Error(err))
		d.requeue(job{ticket: ticket, repaired: true})
		return
	}

	d.finish(ticket.TurbineNumber)
	metrics.ObserveRepairDuration(ticket.Duration.Seconds())
	logger.Info("Repair completed")
}

func (d *Dispatcher) notify(ctx context.Context, ticket models.RepairTicket) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = d.notifyTimeout

	return backoff.Retry(func() error {
		err := d.notifier.NotifyRepaired(ctx, ticket)
		if err != nil && (ctx.Err() != nil || errors.Is(err, turbine.ErrNotBroken)) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
