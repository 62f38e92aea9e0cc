package pgx

import (
	"errors"
	"fmt"
)

// DataAccessError is returned by every gateway operation that fails at the driver or pool level.
// It carries the original driver error, reachable through errors.Unwrap / errors.As.
type DataAccessError struct {
	Op    string // "query" or "insert"
	Table string // empty for free-form queries
	Err   error
}

func (e *DataAccessError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("pgx: %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("pgx: %s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// IsDataAccess reports whether err (or anything it wraps) is a *DataAccessError.
func IsDataAccess(err error) bool {
	var dae *DataAccessError
	return errors.As(err, &dae)
}
