package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/repository"
)

// SQLSTATE codes that mean "try again".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

const (
	constraintRentalCode     = "rentals_rental_code_key"
	constraintLiveRentalUser = "rentals_one_live_per_user"
)

// mapError translates driver errors into domain errors. Errors that already
// carry a domain code pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) || errors.Is(err, repository.ErrDuplicateRentalCode) {
		return err
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return domain.NewConcurrencyConflictError(err)
	case codeUniqueViolation:
		switch pqErr.Constraint {
		case constraintRentalCode:
			return repository.ErrDuplicateRentalCode
		case constraintLiveRentalUser:
			return domain.NewValidationError("user already has a live rental")
		}
		return domain.NewValidationError("duplicate value: %s", pqErr.Detail)
	}
	return err
}

// notFound maps sql.ErrNoRows to a NOT_FOUND domain error.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError(format, args...)
	}
	return mapError(err)
}
