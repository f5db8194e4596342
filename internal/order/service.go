// Package order holds the lifecycle of a redemption order.
//
// An order is issued as pending, moves to processing when the customer redeems
// its code and to completed once an admin attaches credentials. Cancelled is
// terminal and reachable from any other state.
package order

import (
	"context"
	"errors"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/redeemy/internal/store"
	"github.com/wellywell/redeemy/internal/types"
)

const defaultTimeout = 10 * time.Second

type Store interface {
	FindByCode(ctx context.Context, code string) (*types.OrderRecord, error)
	FindByID(ctx context.Context, id string) (*types.OrderRecord, error)
	UpdateByCode(ctx context.Context, code string, patch types.OrderPatch) (*types.OrderRecord, error)
	UpdateByID(ctx context.Context, id string, patch types.OrderPatch) (*types.OrderRecord, error)
}

type Availability string

const (
	Redeemable      Availability = "redeemable"
	AlreadyRedeemed Availability = "already_redeemed"
	InvalidCode     Availability = "invalid"
	Cancelled       Availability = "cancelled"
)

type Redemption struct {
	Code    string
	Email   string
	OrderID string
}

type Service struct {
	store          Store
	timeout        time.Duration
	requireOrderID bool
	now            func() time.Time
}

type Option func(*Service)

// WithTimeout bounds every store round trip.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func WithRequiredOrderID(required bool) Option {
	return func(s *Service) {
		s.requireOrderID = required
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Lookup fetches the order with the given code.
func (s *Service) Lookup(ctx context.Context, code string) (*types.OrderRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, missing("code")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StoreFailureError{Op: "lookup", Err: err}
	}
	return rec, nil
}

// Get fetches an order by id for the admin views.
func (s *Service) Get(ctx context.Context, id string) (*types.OrderRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, missing("id")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StoreFailureError{Op: "get", Err: err}
	}
	return rec, nil
}

// Track is the customer facing lookup behind the order tracking page.
func (s *Service) Track(ctx context.Context, code string) (*types.OrderRecord, error) {
	return s.Lookup(ctx, code)
}

// CheckRedeemable tells whether a code can be redeemed right now. The answer
// is advisory; SubmitRedemption checks again when it commits.
func (s *Service) CheckRedeemable(ctx context.Context, code string) (Availability, error) {
	rec, err := s.Lookup(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return InvalidCode, nil
		}
		return "", err
	}

	switch {
	case rec.Status.Terminal():
		return Cancelled, nil
	case rec.IsRedeemed || rec.Status.Fulfilled():
		return AlreadyRedeemed, nil
	}
	return Redeemable, nil
}

func checkRedeemable(rec *types.OrderRecord) error {
	if rec.Status.Terminal() {
		return ErrOrderCancelled
	}
	if rec.IsRedeemed || rec.Status.Fulfilled() {
		return ErrAlreadyRedeemed
	}
	return nil
}

// SubmitRedemption claims a code for the customer. The store update is
// conditional on the code still being unredeemed, so among concurrent
// submissions for one code at most one succeeds.
func (s *Service) SubmitRedemption(ctx context.Context, r Redemption) (*types.OrderRecord, error) {
	code := strings.TrimSpace(r.Code)
	email := strings.TrimSpace(r.Email)
	orderID := strings.TrimSpace(r.OrderID)

	if code == "" {
		return nil, missing("code")
	}
	if email == "" {
		return nil, missing("email")
	}
	if s.requireOrderID && orderID == "" {
		return nil, missing("orderId")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, &StoreFailureError{Op: "redeem", Err: err}
	}
	if err := checkRedeemable(rec); err != nil {
		return nil, err
	}
	if rec.OrderID != nil && *rec.OrderID != "" && *rec.OrderID != orderID {
		return nil, ErrOrderMismatch
	}

	now := s.now()
	redeemed := true
	status := types.ProcessingStatus
	patch := types.OrderPatch{
		Email:      &email,
		IsRedeemed: &redeemed,
		Status:     &status,
		// The display moves one stage forward: processing is shown as done
		// and completed as in progress.
		Processing: &types.Step{Label: types.ProcessingStepLabel, Status: types.StepCompleted, Timestamp: &now},
		Completed:  &types.Step{Label: types.CompletedStepLabel, Status: types.StepProcessing},
		UpdatedAt:  now,

		UnlessRedeemed: true,
		UnlessStatus:   []types.Status{types.CompletedStatus, types.DeliveredStatus, types.CancelledStatus},
	}
	if rec.OrderID == nil && orderID != "" {
		patch.OrderID = &orderID
	}

	updated, err := s.store.UpdateByCode(ctx, code, patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			return nil, ErrInvalidCode
		case errors.Is(err, store.ErrConditionFailed):
			logger.Warningf("Lost redemption race for code %s", code)
			if current, err := s.store.FindByCode(ctx, code); err == nil && current.Status.Terminal() {
				return nil, ErrOrderCancelled
			}
			return nil, ErrAlreadyRedeemed
		}
		return nil, &StoreFailureError{Op: "redeem", Err: err}
	}

	logger.Infof("Code %s redeemed by %s", code, email)
	return updated, nil
}

// AttachCredentials stores the login payload for the order and marks it completed.
// Calling it again overwrites the payload.
func (s *Service) AttachCredentials(ctx context.Context, id string, loginInfo string) (*types.OrderRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, missing("id")
	}
	if strings.TrimSpace(loginInfo) == "" {
		return nil, missing("loginInfo")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	status := types.CompletedStatus
	patch := types.OrderPatch{
		LoginInfo: &loginInfo,
		Status:    &status,
		Completed: &types.Step{Label: types.CompletedStepLabel, Status: types.StepCompleted, Timestamp: &now},
		UpdatedAt: now,

		UnlessStatus: []types.Status{types.CancelledStatus},
	}

	updated, err := s.store.UpdateByID(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			return nil, ErrNotFound
		case errors.Is(err, store.ErrConditionFailed):
			return nil, ErrOrderCancelled
		}
		return nil, &StoreFailureError{Op: "attach credentials", Err: err}
	}

	logger.Infof("Credentials attached to order %s", updated.Code)
	return updated, nil
}

// Cancel moves the order to the terminal cancelled state. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, code string) (*types.OrderRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, missing("code")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	status := types.CancelledStatus
	patch := types.OrderPatch{
		Status:    &status,
		UpdatedAt: s.now(),

		UnlessStatus: []types.Status{types.CancelledStatus},
	}

	updated, err := s.store.UpdateByCode(ctx, code, patch)
	if err == nil {
		logger.Infof("Order %s cancelled", code)
		return updated, nil
	}
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		return nil, ErrNotFound
	case errors.Is(err, store.ErrConditionFailed):
		current, err := s.store.FindByCode(ctx, code)
		if err != nil {
			return nil, &StoreFailureError{Op: "cancel", Err: err}
		}
		return current, nil
	}
	return nil, &StoreFailureError{Op: "cancel", Err: err}
}
