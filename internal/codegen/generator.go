// Package codegen issues unique redemption codes.
package codegen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/redeemy/internal/store"
	"github.com/wellywell/redeemy/internal/types"
)

const (
	Alphabet           = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DefaultLength      = 12
	DefaultMaxAttempts = 10
)

var ErrExhaustedRetries = errors.New("could not find a free code")

type Store interface {
	FindByCode(ctx context.Context, code string) (*types.OrderRecord, error)
	InsertOrder(ctx context.Context, order types.NewOrder) (*types.OrderRecord, error)
}

type Generator struct {
	store       Store
	length      int
	maxAttempts int
	timeout     time.Duration
	random      func(length int) (string, error)
	now         func() time.Time
}

type Option func(*Generator)

func WithLength(length int) Option {
	return func(g *Generator) {
		if length > 0 {
			g.length = length
		}
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(g *Generator) {
		if attempts > 0 {
			g.maxAttempts = attempts
		}
	}
}

// WithTimeout bounds every store round trip made while issuing a code.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.timeout = d
	}
}

// WithSource replaces the random code source.
func WithSource(random func(length int) (string, error)) Option {
	return func(g *Generator) {
		g.random = random
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

func NewGenerator(store Store, opts ...Option) *Generator {
	g := &Generator{
		store:       store,
		length:      DefaultLength,
		maxAttempts: DefaultMaxAttempts,
		random:      RandomCode,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RandomCode draws length characters of Alphabet from crypto/rand.
func RandomCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	size := big.NewInt(int64(len(Alphabet)))
	for range length {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Generate returns a code that is not in the store at the time of the check.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		code, err := g.random(g.length)
		if err != nil {
			return "", fmt.Errorf("generating code %w", err)
		}

		free, err := g.isFree(ctx, code)
		if err != nil {
			return "", err
		}
		if free {
			return code, nil
		}
		logger.Warningf("Code collision on attempt %d", attempt)
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhaustedRetries, g.maxAttempts)
}

func (g *Generator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Generator) isFree(ctx context.Context, code string) (bool, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	_, err := g.store.FindByCode(ctx, code)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, store.ErrOrderNotFound) {
		return true, nil
	}
	return false, fmt.Errorf("checking code %w", err)
}

type Request struct {
	Name  string
	Email string
}

// Issue generates a code and stores a pending order for it. A uniqueness
// violation on insert counts as a collision and triggers another attempt.
func (g *Generator) Issue(ctx context.Context, req Request) (*types.OrderRecord, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		code, err := g.Generate(ctx)
		if err != nil {
			return nil, err
		}

		now := g.now()
		order := types.NewOrder{
			ID:         uuid.NewString(),
			Code:       code,
			Name:       optional(req.Name),
			Email:      optional(req.Email),
			Pending:    types.Step{Label: types.PendingStepLabel, Status: types.StepCompleted, Timestamp: &now},
			Processing: types.Step{Label: types.ProcessingStepLabel, Status: types.StepProcessing},
			CreatedAt:  now,
		}

		insertCtx, cancel := g.withTimeout(ctx)
		rec, err := g.store.InsertOrder(insertCtx, order)
		cancel()
		if err == nil {
			logger.Infof("Issued code %s", code)
			return rec, nil
		}
		var exists *store.CodeExistsError
		if !errors.As(err, &exists) {
			return nil, fmt.Errorf("storing code %w", err)
		}
		logger.Warningf("Code %s taken between check and insert, retrying", code)
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrExhaustedRetries, g.maxAttempts)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
