package turbine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"smartgrid-monitor/internal/models"
)

var (
	// ErrUnknownTurbine 风机未在本进程注册
	ErrUnknownTurbine = errors.New("unknown turbine")
	// ErrDuplicateTurbine 风机编号重复
	ErrDuplicateTurbine = errors.New("duplicate turbine number")
)

// Registry 本进程内运行中的风机，按编号索引
//
// Registry 同时是进程内的维修完成通知端：NotifyRepaired 把完成信号投递给对应风机，
// 并在风机应用后才返回。
type Registry struct {
	mu      sync.RWMutex
	devices map[int]*Device
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{devices: make(map[int]*Device)}
}

// Register 注册风机
func (r *Registry) Register(d *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[d.Number()]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateTurbine, d.Number())
	}
	r.devices[d.Number()] = d
	return nil
}

// Unregister 注销风机；仅当注册的是同一实例时才移除
func (r *Registry) Unregister(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.devices[d.Number()]; ok && cur == d {
		delete(r.devices, d.Number())
	}
}

// Get 按编号查找风机
func (r *Registry) Get(number int) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[number]
	return d, ok
}

// Numbers 已注册的风机编号（升序）
func (r *Registry) Numbers() []int {
	r.mu.RLock()
	numbers := make([]int, 0, len(r.devices))
	for n := range r.devices {
		numbers = append(numbers, n)
	}
	r.mu.RUnlock()

	sort.Ints(numbers)
	return numbers
}

// TimeToRepair 风机自身的维修时长
func (r *Registry) TimeToRepair(number int) (time.Duration, bool) {
	d, ok := r.Get(number)
	if !ok {
		return 0, false
	}
	return d.Config().TimeToRepair, true
}

// NotifyRepaired 把维修完成信号投递给本地风机
func (r *Registry) NotifyRepaired(ctx context.Context, ticket models.RepairTicket) error {
	d, ok := r.Get(ticket.TurbineNumber)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTurbine, ticket.TurbineNumber)
	}
	return d.Deliver(ctx, ticket)
}
