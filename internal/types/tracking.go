package types

import "time"

type StepView struct {
	Label     string     `json:"label"`
	Status    StepStatus `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Tracking is what a customer sees for an order.
type Tracking struct {
	Code      string      `json:"code"`
	Status    Status      `json:"status"`
	Cancelled bool        `json:"cancelled"`
	Steps     [3]StepView `json:"steps"`
	LoginInfo *string     `json:"loginInfo,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
