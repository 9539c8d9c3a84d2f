package dispatcher

import (
	"context"
	"sync/atomic"

	"smartgrid-monitor/internal/metrics"

	"golang.org/x/sync/semaphore"
)

// EngineerPool 维修工程师池，容量即并发维修上限
type EngineerPool struct {
	sem       *semaphore.Weighted
	size      int64
	available atomic.Int64
}

// NewEngineerPool 创建容量为 n 的工程师池（n < 1 时按 1 处理）
func NewEngineerPool(n int) *EngineerPool {
	if n < 1 {
		n = 1
	}
	p := &EngineerPool{
		sem:  semaphore.NewWeighted(int64(n)),
		size: int64(n),
	}
	p.available.Store(int64(n))
	metrics.SetEngineersAvailable(int64(n))
	return p
}

// Acquire 占用一名工程师；无空闲时阻塞直到有人释放或 ctx 结束
func (p *EngineerPool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	metrics.SetEngineersAvailable(p.available.Add(-1))
	return nil
}

// Release 释放一名工程师
//
// 先归还计数再释放信号量，available 始终落在 [0, size]。
func (p *EngineerPool) Release() {
	metrics.SetEngineersAvailable(p.available.Add(1))
	p.sem.Release(1)
}

// Available 空闲工程师数
func (p *EngineerPool) Available() int {
	return int(p.available.Load())
}

// Size 工程师总数
func (p *EngineerPool) Size() int {
	return int(p.size)
}
