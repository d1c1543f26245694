package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Clark-Hu/album-of-the-day/internal/repository"
	"github.com/Clark-Hu/album-of-the-day/internal/validation"
)

var (
	// ErrNotFound indicates the album or review does not exist.
	ErrNotFound = errors.New("ledger: not found")
	// ErrConflict indicates the user already reviewed the album.
	ErrConflict = errors.New("ledger: review already exists")
	// ErrForbidden indicates the actor does not own the review.
	ErrForbidden = errors.New("ledger: not the review author")
	// ErrUnavailable marks a transient storage failure. Nothing was written
	// and the caller may retry.
	ErrUnavailable = errors.New("ledger: temporarily unavailable")
)

// Postgres SQLSTATE codes that are safe to retry.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeTooManyConnections   = "53300"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
	classConnectionException = "08"
)

// translate maps storage errors onto the ledger taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		return verr
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	case transient(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func transient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeTooManyConnections, codeAdminShutdown, codeCannotConnectNow:
			return true
		}
		return strings.HasPrefix(pgErr.Code, classConnectionException)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// outcome is the metrics label for err.
func outcome(err error) string {
	var verr *validation.RequestValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
