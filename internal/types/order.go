package types

import (
	"encoding/json"
	"time"
)

type Status string

const (
	PendingStatus    Status = "pending"
	ProcessingStatus Status = "processing"
	CompletedStatus  Status = "completed"
	CancelledStatus  Status = "cancelled"

	// DeliveredStatus is a legacy spelling of CompletedStatus still found in old rows.
	DeliveredStatus Status = "delivered"
)

func (s Status) Valid() bool {
	switch s {
	case PendingStatus, ProcessingStatus, CompletedStatus, CancelledStatus, DeliveredStatus:
		return true
	}
	return false
}

// Fulfilled reports whether credentials have been handed over for the order.
func (s Status) Fulfilled() bool {
	return s == CompletedStatus || s == DeliveredStatus
}

func (s Status) Terminal() bool {
	return s == CancelledStatus
}

// Canonical maps legacy statuses onto the ones the service writes.
func (s Status) Canonical() Status {
	if s == DeliveredStatus {
		return CompletedStatus
	}
	return s
}

type StepStatus string

const (
	StepCompleted  StepStatus = "completed"
	StepProcessing StepStatus = "processing"
	StepNull       StepStatus = "null"
)

// Step is one stage of the three stage progress display.
type Step struct {
	Label     string     `json:"label,omitempty"`
	Status    StepStatus `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (s Step) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

const (
	PendingStepLabel    = "pending"
	ProcessingStepLabel = "processing"
	CompletedStepLabel  = "completed"
)

// OrderRecord is a single redemption record. Step columns hold JSON text and
// are decoded only by the tracker.
type OrderRecord struct {
	ID         string    `db:"id" json:"id"`
	Code       string    `db:"code" json:"code"`
	Email      *string   `db:"email" json:"email,omitempty"`
	Name       *string   `db:"name" json:"name,omitempty"`
	OrderID    *string   `db:"order_id" json:"orderId,omitempty"`
	Status     Status    `db:"status" json:"status"`
	IsRedeemed bool      `db:"is_redeemed" json:"isRedeemed"`
	LoginInfo  *string   `db:"login_info" json:"loginInfo,omitempty"`
	Pending    *string   `db:"pending_step" json:"-"`
	Processing *string   `db:"processing_step" json:"-"`
	Completed  *string   `db:"completed_step" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// NewOrder holds the fields of a freshly issued code.
type NewOrder struct {
	ID         string
	Code       string
	Name       *string
	Email      *string
	OrderID    *string
	Pending    Step
	Processing Step
	Completed  Step
	CreatedAt  time.Time
}

// OrderPatch lists the columns an update changes. Nil fields are left alone.
// The update applies only while the row still satisfies the guards.
type OrderPatch struct {
	Email      *string
	OrderID    *string
	Status     *Status
	IsRedeemed *bool
	LoginInfo  *string
	Processing *Step
	Completed  *Step
	UpdatedAt  time.Time

	UnlessRedeemed bool
	UnlessStatus   []Status
}

// Allows reports whether a record satisfies the patch guards.
func (p OrderPatch) Allows(rec OrderRecord) bool {
	if p.UnlessRedeemed && rec.IsRedeemed {
		return false
	}
	for _, s := range p.UnlessStatus {
		if rec.Status == s {
			return false
		}
	}
	return true
}

type SortOrder int

const (
	OldestFirst SortOrder = iota
	RecentlyUpdatedFirst
)

type OrderFilter struct {
	Status   *Status
	Redeemed *bool
	// Search matches code, order id, email and name, case-insensitive.
	Search string
	Sort   SortOrder
	Offset int
	Limit  int
}

func StringPtr(s string) *string {
	return &s
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
