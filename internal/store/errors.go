package store

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrConditionFailed means the row exists but no longer satisfies the update guards.
	ErrConditionFailed = errors.New("order changed concurrently")
)

type CodeExistsError struct {
	Code string
}

func (e *CodeExistsError) Error() string {
	return fmt.Sprintf("Code %s already exists", e.Code)
}

type UserExistsError struct {
	Username string
}

func (e *UserExistsError) Error() string {
	return fmt.Sprintf("User %s exists", e.Username)
}

type UserNotFoundError struct {
	Username string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("User %s not found", e.Username)
}
