// Package errors holds the sentinel errors shared by the chat services.
// Callers wrap them with fmt.Errorf("%w: ...") and match with errors.Is.
package errors

import "fmt"

var (
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrPersistence  = fmt.Errorf("persistence failure")
	ErrDelivery     = fmt.Errorf("delivery failure")
	ErrUnauthorized = fmt.Errorf("unauthorized")
	ErrNotFound     = fmt.Errorf("not found")
	ErrConflict     = fmt.Errorf("already exists")
)
