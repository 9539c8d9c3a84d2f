package dispatcher

import (
	"math/rand"
	"sync"
	"time"

	"smartgrid-monitor/internal/turbine"
)

// RandomDuration 每个故障周期单独抽取维修时长 max(rand*hi, lo)
func RandomDuration(lo, hi time.Duration, rng *rand.Rand) DurationFunc {
	var mu sync.Mutex
	return func(int) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return turbine.RandomDuration(rng, lo, hi)
	}
}

// FixedDuration 固定维修时长
func FixedDuration(d time.Duration) DurationFunc {
	return func(int) time.Duration { return d }
}

// Resolver 按风机编号查找维修时长
type Resolver interface {
	TimeToRepair(number int) (time.Duration, bool)
}

// FromResolver 优先使用风机自身的维修时长，查不到时回落到 fallback
func FromResolver(r Resolver, fallback DurationFunc) DurationFunc {
	return func(n int) time.Duration {
		if d, ok := r.TimeToRepair(n); ok {
			return d
		}
		return fallback(n)
	}
}
