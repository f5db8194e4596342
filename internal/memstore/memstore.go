// Package memstore keeps orders and admin users in process memory.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wellywell/redeemy/internal/store"
	"github.com/wellywell/redeemy/internal/types"
)

type Store struct {
	mu     sync.Mutex
	orders map[string]types.OrderRecord
	byCode map[string]string
	users  map[string]string
}

func New() *Store {
	return &Store{
		orders: make(map[string]types.OrderRecord),
		byCode: make(map[string]string),
		users:  make(map[string]string),
	}
}

func (s *Store) FindByCode(ctx context.Context, code string) (*types.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	rec := s.orders[id]
	return &rec, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*types.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	return &rec, nil
}

func (s *Store) ListOrders(ctx context.Context, filter types.OrderFilter) ([]types.OrderRecord, int, error) {
	s.mu.Lock()
	matched := make([]types.OrderRecord, 0, len(s.orders))
	for _, rec := range s.orders {
		if matches(rec, filter) {
			matched = append(matched, rec)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if filter.Sort == types.RecentlyUpdatedFirst {
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
			return a.ID > b.ID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	total := len(matched)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return matched[start:end], total, nil
}

func matches(rec types.OrderRecord, filter types.OrderFilter) bool {
	if filter.Status != nil && rec.Status != *filter.Status {
		return false
	}
	if filter.Redeemed != nil && rec.IsRedeemed != *filter.Redeemed {
		return false
	}
	if filter.Search == "" {
		return true
	}
	needle := strings.ToLower(filter.Search)
	for _, field := range []string{rec.Code, types.Deref(rec.OrderID), types.Deref(rec.Email), types.Deref(rec.Name)} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (s *Store) InsertOrder(ctx context.Context, order types.NewOrder) (*types.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCode[order.Code]; exists {
		return nil, &store.CodeExistsError{Code: order.Code}
	}

	id := order.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := order.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	rec := types.OrderRecord{
		ID:        id,
		Code:      order.Code,
		Name:      order.Name,
		Email:     order.Email,
		OrderID:   order.OrderID,
		Status:    types.PendingStatus,
		CreatedAt: created,
		UpdatedAt: created,
	}
	var err error
	if rec.Pending, err = encodeStep(order.Pending); err != nil {
		return nil, err
	}
	if rec.Processing, err = encodeStep(order.Processing); err != nil {
		return nil, err
	}
	if rec.Completed, err = encodeStep(order.Completed); err != nil {
		return nil, err
	}

	s.orders[id] = rec
	s.byCode[rec.Code] = id
	return &rec, nil
}

func (s *Store) UpdateByCode(ctx context.Context, code string, patch types.OrderPatch) (*types.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	return s.apply(id, patch)
}

func (s *Store) UpdateByID(ctx context.Context, id string, patch types.OrderPatch) (*types.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.apply(id, patch)
}

// apply must be called with the lock held.
func (s *Store) apply(id string, patch types.OrderPatch) (*types.OrderRecord, error) {
	rec, ok := s.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	if !patch.Allows(rec) {
		return nil, store.ErrConditionFailed
	}

	if patch.Email != nil {
		rec.Email = patch.Email
	}
	if patch.OrderID != nil {
		rec.OrderID = patch.OrderID
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.IsRedeemed != nil {
		rec.IsRedeemed = *patch.IsRedeemed
	}
	if patch.LoginInfo != nil {
		rec.LoginInfo = patch.LoginInfo
	}
	if patch.Processing != nil {
		encoded, err := encodeStep(*patch.Processing)
		if err != nil {
			return nil, err
		}
		rec.Processing = encoded
	}
	if patch.Completed != nil {
		encoded, err := encodeStep(*patch.Completed)
		if err != nil {
			return nil, err
		}
		rec.Completed = encoded
	}
	rec.UpdatedAt = patch.UpdatedAt
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	s.orders[id] = rec
	return &rec, nil
}

func (s *Store) DeleteOrders(ctx context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range ids {
		rec, ok := s.orders[id]
		if !ok {
			continue
		}
		delete(s.orders, id)
		delete(s.byCode, rec.Code)
		deleted++
	}
	return deleted, nil
}

// Put stores a record as is. Meant for seeding legacy rows in tests.
func (s *Store) Put(rec types.OrderRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[rec.ID] = rec
	s.byCode[rec.Code] = rec.ID
}

func (s *Store) CreateUser(ctx context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return &store.UserExistsError{Username: username}
	}
	s.users[username] = password
	return nil
}

func (s *Store) GetUserHashedPassword(ctx context.Context, username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	password, ok := s.users[username]
	if !ok {
		return "", &store.UserNotFoundError{Username: username}
	}
	return password, nil
}

func encodeStep(step types.Step) (*string, error) {
	if step.Status == "" {
		return nil, nil
	}
	encoded, err := step.Encode()
	if err != nil {
		return nil, err
	}
	return &encoded, nil
}
