package persist

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("PersistError (code %s): %s", e.Code, e.Msg)
}

// Is lets errors.Is match errors by code, so
// errors.Is(err, persist.ErrConstraint) holds for every constraint violation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new PersistError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new PersistError with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess           RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                    // 1: Operation failed due to an internal error.
	RetCInvalidOperation                 // 2: Invalid operation (bad arguments, wrong state).
	RetCNotFound                         // 3: Store or record does not exist.
	RetCConstraint                       // 4: Key or unique constraint violated.
	RetCVersion                          // 5: Requested version is lower than the stored one.
	RetCBusy                             // 6: Store is in use by an open connection.
	RetCClosed                           // 7: Connection or transaction already finished.
	RetCReadOnly                         // 8: Write in a read-only transaction.
	RetCUnknownCollection                // 9: Collection is not part of the store or transaction.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCNotFound:
		return "NotFound"
	case RetCConstraint:
		return "Constraint"
	case RetCVersion:
		return "Version"
	case RetCBusy:
		return "Busy"
	case RetCClosed:
		return "Closed"
	case RetCReadOnly:
		return "ReadOnly"
	case RetCUnknownCollection:
		return "UnknownCollection"
	default:
		return "Unknown"
	}
}

// Sentinel errors for errors.Is checks
var (
	ErrInvalidOperation  = NewError(RetCInvalidOperation, "invalid operation")
	ErrNotFound          = NewError(RetCNotFound, "not found")
	ErrConstraint        = NewError(RetCConstraint, "constraint violated")
	ErrVersion           = NewError(RetCVersion, "version conflict")
	ErrBusy              = NewError(RetCBusy, "store busy")
	ErrClosed            = NewError(RetCClosed, "closed")
	ErrReadOnly          = NewError(RetCReadOnly, "read-only transaction")
	ErrUnknownCollection = NewError(RetCUnknownCollection, "unknown collection")
)
