package writer

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// WriteError reports a chunk the reporting store rejected.
type WriteError struct {
	Table string
	Chunk int
	Err   error
}

func (e *WriteError) Error() string {
	if code := e.SQLState(); code != "" {
		return fmt.Sprintf("write %s chunk %d (sqlstate %s): %v", e.Table, e.Chunk, code, e.Err)
	}
	return fmt.Sprintf("write %s chunk %d: %v", e.Table, e.Chunk, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// SQLState returns the Postgres error code behind the failure, or "" when
// the error did not come from the server.
func (e *WriteError) SQLState() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
