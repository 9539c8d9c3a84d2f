package turbine

import (
	"math/rand"
	"time"
)

// 随机风机参数上限
const (
	MaxWindSpeed        = 100.0
	MaxPowerOutputInKWh = 3000.0
)

// ProfileBounds 随机风机参数的取值范围
type ProfileBounds struct {
	UploadInterval  time.Duration
	MinTimeToFail   time.Duration
	MaxTimeToFail   time.Duration
	MinTimeToRepair time.Duration
	MaxTimeToRepair time.Duration
}

// DefaultProfileBounds 默认取值范围
func DefaultProfileBounds() ProfileBounds {
	return ProfileBounds{
		UploadInterval:  time.Second,
		MinTimeToFail:   time.Second,
		MaxTimeToFail:   30 * time.Second,
		MinTimeToRepair: time.Second,
		MaxTimeToRepair: 5 * time.Second,
	}
}

// NewProfiles 为编号 1..count 的风机各抽取一组随机参数
func NewProfiles(count int, bounds ProfileBounds, rng *rand.Rand) []Config {
	configs := make([]Config, 0, count)
	for n := 1; n <= count; n++ {
		configs = append(configs, Config{
			TurbineNumber:    n,
			WindSpeed:        RandomWindSpeed(rng),
			PowerOutputInKWh: RandomPowerOutput(rng),
			UploadInterval:   bounds.UploadInterval,
			TimeToFail:       RandomDuration(rng, bounds.MinTimeToFail, bounds.MaxTimeToFail),
			TimeToRepair:     RandomDuration(rng, bounds.MinTimeToRepair, bounds.MaxTimeToRepair),
		})
	}
	return configs
}

// RandomWindSpeed [0, 100)
func RandomWindSpeed(rng *rand.Rand) float64 {
	return rng.Float64() * MaxWindSpeed
}

// RandomPowerOutput [0, 3000)
func RandomPowerOutput(rng *rand.Rand) float64 {
	return rng.Float64() * MaxPowerOutputInKWh
}

// RandomDuration max(rand*max, min)
func RandomDuration(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	d := time.Duration(rng.Float64() * float64(hi))
	if d < lo {
		return lo
	}
	return d
}
