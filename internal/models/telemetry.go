package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status 风机运行状态（线上取值沿用 operational_status）
type Status string

const (
	StatusHealthy Status = "ok"
	StatusBroken  Status = "broken"
)

// Valid 判断状态取值是否合法
func (s Status) Valid() bool {
	return s == StatusHealthy || s == StatusBroken
}

// TelemetryEvent 风机遥测事件，发出后不可修改
type TelemetryEvent struct {
	TurbineNumber    int     `json:"turbine_number"`
	WindSpeed        float64 `json:"wind_speed"`          // km/h
	PowerOutputInKWh float64 `json:"power_output_in_kwh"` // kWh
	Status           Status  `json:"operational_status"`
	Timestamp        float64 `json:"timestamp"` // Unix 秒
}

// Time 把 Timestamp 转换为 time.Time
func (e *TelemetryEvent) Time() time.Time {
	secs := int64(e.Timestamp)
	nanos := int64((e.Timestamp - float64(secs)) * float64(time.Second))
	return time.Unix(secs, nanos)
}

// Validate 校验遥测事件
func (e *TelemetryEvent) Validate() error {
	if e.TurbineNumber < 1 {
		return &DataFormatError{Field: "turbine_number", Message: fmt.Sprintf("must be >= 1, got %d", e.TurbineNumber)}
	}
	if !e.Status.Valid() {
		return &DataFormatError{Field: "operational_status", Message: fmt.Sprintf("unknown status %q", e.Status)}
	}
	if e.Timestamp < 0 {
		return &DataFormatError{Field: "timestamp", Message: "must not be negative"}
	}
	return nil
}

// ParseTelemetryEvent 解析并校验一条 JSON 遥测
func ParseTelemetryEvent(payload []byte) (*TelemetryEvent, error) {
	var ev TelemetryEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, &DataFormatError{Message: "invalid telemetry JSON", Err: err}
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// UnixSeconds 把 time.Time 转换为与原始协议一致的浮点秒
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
