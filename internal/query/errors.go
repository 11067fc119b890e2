package query

import (
	"errors"
	"fmt"
)

// ConnectionError means the store could not be reached or the connection
// broke while the statement was in flight.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("store unreachable: %v", e.Err)
	}
	return fmt.Sprintf("store unreachable during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DatabaseError means the store rejected the statement: bad syntax, unknown
// table or column, constraint violation. Code carries the SQLSTATE or
// driver-specific code when one is known.
type DatabaseError struct {
	Code    string
	Message string
	Err     error
}

func (e *DatabaseError) Error() string {
	message := e.Message
	if message == "" && e.Err != nil {
		message = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("database error %s: %s", e.Code, message)
	}
	return fmt.Sprintf("database error: %s", message)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func IsConnection(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

func IsDatabase(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr)
}
