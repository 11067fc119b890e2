package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/castdb/castdb/internal/query"
)

// connectionSQLStateClass is SQLSTATE class 08, connection exception.
const connectionSQLStateClass = "08"

// Classify maps a driver error onto the query error taxonomy. Context
// cancellation and already-classified errors pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if query.IsConnection(err) || query.IsDatabase(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, connectionSQLStateClass) {
			return &query.ConnectionError{Op: op, Err: err}
		}
		return &query.DatabaseError{Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code.Class()) == connectionSQLStateClass {
			return &query.ConnectionError{Op: op, Err: err}
		}
		return &query.DatabaseError{Code: string(pqErr.Code), Message: pqErr.Message, Err: err}
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code&0xff == sqlite3.SQLITE_CANTOPEN {
			return &query.ConnectionError{Op: op, Err: err}
		}
		return &query.DatabaseError{Code: fmt.Sprintf("SQLITE_%d", code), Message: sqliteErr.Error(), Err: err}
	}

	if isConnectionFailure(err) {
		return &query.ConnectionError{Op: op, Err: err}
	}
	return &query.DatabaseError{Message: err.Error(), Err: err}
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
