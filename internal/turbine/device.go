package turbine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"smartgrid-monitor/internal/models"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	stateHealthy = string(models.StatusHealthy)
	stateBroken  = string(models.StatusBroken)

	eventFail   = "fail"
	eventRepair = "repair"
)

var (
	// ErrDeviceFault 风机的生产循环或维修等待循环异常退出
	ErrDeviceFault = errors.New("turbine device fault")
	// ErrDeviceStopped 风机已停止运行
	ErrDeviceStopped = errors.New("turbine device stopped")
	// ErrDeviceStarted 风机已在运行
	ErrDeviceStarted = errors.New("turbine device already started")
	// ErrNotBroken 风机未处于故障状态
	ErrNotBroken = errors.New("turbine is not broken")
)

// Publisher 遥测发布端（进程内队列、HTTP、MQTT、Redis Streams）
type Publisher interface {
	Publish(ctx context.Context, ev *models.TelemetryEvent) error
}

// Config 单台风机的静态配置，构造时确定
type Config struct {
	TurbineNumber    int
	WindSpeed        float64
	PowerOutputInKWh float64
	UploadInterval   time.Duration
	TimeToFail       time.Duration
	TimeToRepair     time.Duration
}

// completion 维修完成信号，由风机自身的维修等待循环应用
type completion struct {
	ticket models.RepairTicket
	result chan error
}

// Device 风机状态机
//
// status 与 elapsed 只由风机自己的两个循环修改；维修任务通过 Deliver
// 投递完成信号，不直接写字段。
type Device struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu              sync.Mutex
	machine         *fsm.FSM
	elapsed         time.Duration
	reportedHealthy bool // 上次维修（或启动）后是否已上报过 ok

	repairs chan *completion
	started atomic.Bool
	done    chan struct{}
}

// NewDevice 创建风机
func NewDevice(cfg Config, logger *zap.Logger) (*Device, error) {
	if cfg.TurbineNumber < 1 {
		return nil, fmt.Errorf("turbine number must be >= 1, got %d", cfg.TurbineNumber)
	}
	if cfg.UploadInterval <= 0 {
		return nil, fmt.Errorf("turbine %d: upload interval must be positive", cfg.TurbineNumber)
	}

	d := &Device{
		cfg:     cfg,
		logger:  logger.With(zap.Int("turbine_number", cfg.TurbineNumber)),
		now:     time.Now,
		repairs: make(chan *completion),
		done:    make(chan struct{}),
	}
	d.machine = fsm.NewFSM(
		stateHealthy,
		fsm.Events{
			{Name: eventFail, Src: []string{stateHealthy}, Dst: stateBroken},
			{Name: eventRepair, Src: []string{stateBroken}, Dst: stateHealthy},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				d.logger.Info("Turbine status changed",
					zap.String("from", e.Src),
					zap.String("to", e.Dst),
				)
			},
		},
	)
	return d, nil
}

// Number 风机编号
func (d *Device) Number() int {
	return d.cfg.TurbineNumber
}

// Config 风机配置
func (d *Device) Config() Config {
	return d.cfg
}

// Status 当前运行状态
func (d *Device) Status() models.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.Status(d.machine.Current())
}

// Elapsed 自启动或上次维修以来累计的运行时间
func (d *Device) Elapsed() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elapsed
}

// Snapshot 按当前状态生成一条遥测
func (d *Device) Snapshot(now time.Time) models.TelemetryEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := models.Status(d.machine.Current())
	if status == models.StatusHealthy {
		d.reportedHealthy = true
	}
	return models.TelemetryEvent{
		TurbineNumber:    d.cfg.TurbineNumber,
		WindSpeed:        d.cfg.WindSpeed,
		PowerOutputInKWh: d.cfg.PowerOutputInKWh,
		Status:           status,
		Timestamp:        models.UnixSeconds(now),
	}
}

// Advance 累加一个上报周期，达到 TimeToFail（含边界）时转入故障，返回是否发生了转换
//
// 维修后必须先上报过一次 ok 才会再次判定故障，保证监控端能看到每个故障周期的 ok→broken 边沿。
func (d *Device) Advance(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.elapsed += d.cfg.UploadInterval
	if d.machine.Current() != stateHealthy || !d.reportedHealthy || d.elapsed < d.cfg.TimeToFail {
		return false, nil
	}
	if err := d.machine.Event(context.WithoutCancel(ctx), eventFail); err != nil {
		return false, fmt.Errorf("turbine %d: failed to enter broken state: %w", d.cfg.TurbineNumber, err)
	}
	return true, nil
}

// applyRepair 维修完成：状态置为 ok，elapsed 归零
func (d *Device) applyRepair(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.machine.Current() != stateBroken {
		return ErrNotBroken
	}
	if err := d.machine.Event(context.WithoutCancel(ctx), eventRepair); err != nil {
		return fmt.Errorf("turbine %d: failed to leave broken state: %w", d.cfg.TurbineNumber, err)
	}
	d.elapsed = 0
	d.reportedHealthy = false
	return nil
}

// Deliver 投递维修完成信号，并等待风机的维修等待循环应用该信号
//
// 风机为 ok 时直接返回 ErrNotBroken；repairs 无缓冲，投递超时不会留下残留信号。
func (d *Device) Deliver(ctx context.Context, ticket models.RepairTicket) error {
	if d.Status() != models.StatusBroken {
		return fmt.Errorf("turbine %d: %w", d.cfg.TurbineNumber, ErrNotBroken)
	}
	c := &completion{ticket: ticket, result: make(chan error, 1)}

	select {
	case d.repairs <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDeviceStopped
	}

	select {
	case err := <-c.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDeviceStopped
	}
}
