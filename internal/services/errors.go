package services

import (
	"fmt"

	apperrors "github.com/roadwatch/roadwatch/pkg/errors"
)

// ErrNotFound is returned when a notification does not exist for the requesting recipient.
var ErrNotFound = apperrors.ErrNotFound

// ErrPersistence classifies store failures; match with errors.Is.
var ErrPersistence = apperrors.ErrPersistence

func persistenceError(op string, err error) error {
	return apperrors.ErrPersistence.WithInternal(fmt.Errorf("%s: %w", op, err))
}

func validationError(format string, args ...any) error {
	return apperrors.NewValidation(fmt.Sprintf(format, args...))
}
