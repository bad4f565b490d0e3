// Package runtime provides the PostgreSQL connection layer and the storage
// errors shared by every store implementation.
package runtime

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrNoPrimaryKey is returned when a table has no primary key.
	ErrNoPrimaryKey = errors.New("no primary key defined")

	// ErrDuplicateKey is returned when a unique constraint is violated.
	ErrDuplicateKey = errors.New("duplicate key value")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated.
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrTransactionClosed is returned when operating on a closed transaction.
	ErrTransactionClosed = errors.New("transaction already closed")
)

// PostgreSQL SQLSTATE codes mapped to sentinels.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// QueryError represents a query execution error.
type QueryError struct {
	Query string
	Err   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v\nQuery: %s", e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// Wrap turns a driver error into a QueryError, mapping well-known failures to
// the package sentinels so that errors.Is works across store implementations.
func Wrap(query string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &QueryError{Query: query, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	}
	if errors.Is(err, pgx.ErrTxClosed) {
		return &QueryError{Query: query, Err: fmt.Errorf("%w: %v", ErrTransactionClosed, err)}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return &QueryError{Query: query, Err: fmt.Errorf("%w: %w", ErrDuplicateKey, err)}
		case codeForeignKeyViolation:
			return &QueryError{Query: query, Err: fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)}
		}
	}
	return &QueryError{Query: query, Err: err}
}
