package types

import "time"

type Notification struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
	Read    bool      `json:"read"`
	OrderID string    `json:"orderId"`
	Code    string    `json:"code"`
}
