package turbine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartgrid-monitor/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run 启动风机的生产循环与维修等待循环，二者任一退出都会取消另一个。
// 父 ctx 取消属于正常停止，返回 nil；其它退出原因以 ErrDeviceFault 返回。
func (d *Device) Run(ctx context.Context, publisher Publisher) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrDeviceStarted
	}
	defer close(d.done)

	d.logger.Info("Turbine started",
		zap.Duration("upload_interval", d.cfg.UploadInterval),
		zap.Duration("time_to_fail", d.cfg.TimeToFail),
		zap.Duration("time_to_repair", d.cfg.TimeToRepair),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(d.supervise("producer", func() error { return d.produce(gctx, publisher) }))
	g.Go(d.supervise("repair-wait", func() error { return d.awaitRepairs(gctx) }))

	err := g.Wait()
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		d.logger.Info("Turbine stopped")
		return nil
	}
	return err
}

// supervise 把循环的 panic 与意外返回统一转换为 ErrDeviceFault；ctx 取消原样返回
func (d *Device) supervise(loop string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: turbine %d %s loop panicked: %v", ErrDeviceFault, d.cfg.TurbineNumber, loop, r)
			}
		}()

		err = fn()
		switch {
		case err == nil:
			return fmt.Errorf("%w: turbine %d %s loop exited", ErrDeviceFault, d.cfg.TurbineNumber, loop)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			return fmt.Errorf("%w: %v", ErrDeviceFault, err)
		}
	}
}

// produce 生产循环：上报 → 等待一个周期 → 累加运行时间并判定故障
func (d *Device) produce(ctx context.Context, publisher Publisher) error {
	for {
		ev := d.Snapshot(d.now())
		if err := publisher.Publish(ctx, &ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("Failed to publish telemetry",
				zap.String("status", string(ev.Status)),
				zap.Error(err),
			)
		}

		if err := sleep(ctx, d.cfg.UploadInterval); err != nil {
			return err
		}

		failed, err := d.Advance(ctx)
		if err != nil {
			return err
		}
		if failed {
			d.logger.Warn("Turbine broke down", zap.Duration("elapsed", d.Elapsed()))
		}
	}
}

// awaitRepairs 维修等待循环：ok 时每个周期复查一次；broken 时阻塞等待维修完成信号
func (d *Device) awaitRepairs(ctx context.Context) error {
	for {
		if d.Status() != models.StatusBroken {
			if err := sleep(ctx, d.cfg.UploadInterval); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-d.repairs:
			err := d.applyRepair(ctx)
			c.result <- err
			if err != nil {
				d.logger.Warn("Ignoring repair completion",
					zap.String("ticket_id", c.ticket.TicketID),
					zap.Error(err),
				)
				continue
			}
			d.logger.Info("Turbine repaired", zap.String("ticket_id", c.ticket.TicketID))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
