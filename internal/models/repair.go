package models

import "time"

// RepairTicket 一次故障周期对应的维修工单
type RepairTicket struct {
	TicketID      string        `json:"ticket_id"`
	TurbineNumber int           `json:"turbine_number"`
	DispatchedAt  time.Time     `json:"dispatched_at"`
	StartedAt     time.Time     `json:"started_at,omitempty"`
	Duration      time.Duration `json:"duration"`
}
