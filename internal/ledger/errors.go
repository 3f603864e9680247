package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the machine-readable class of a ledger failure.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeUnavailable       Code = "UNAVAILABLE"
)

// Conflict reasons.
const (
	ReasonAlreadyRegistered = "ALREADY_REGISTERED"
	ReasonAlreadyOwned      = "ALREADY_OWNED"
	ReasonAlreadyBonded     = "ALREADY_BONDED"
	ReasonDuplicateRequest  = "DUPLICATE_REQUEST"
)

// Error is the only error type returned across the Service boundary.
type Error struct {
	Code    Code
	Reason  string
	Op      string
	Message string
	Err     error
}

var (
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds}
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument}
	ErrUnavailable       = &Error{Code: CodeUnavailable}

	ErrAlreadyRegistered = &Error{Code: CodeConflict, Reason: ReasonAlreadyRegistered}
	ErrAlreadyOwned      = &Error{Code: CodeConflict, Reason: ReasonAlreadyOwned}
	ErrAlreadyBonded     = &Error{Code: CodeConflict, Reason: ReasonAlreadyBonded}
	ErrDuplicateRequest  = &Error{Code: CodeConflict, Reason: ReasonDuplicateRequest}
)

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, reason, format string, args ...any) *Error {
	return &Error{Code: code, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func invalidf(format string, args ...any) *Error {
	return Errorf(CodeInvalidArgument, "", format, args...)
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.Code), "_", " "))
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code, and on Reason when the target carries one, so that
// errors.Is(err, ErrConflict) holds for every conflict reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// CodeOf returns the ledger code carried by err, or "" for foreign errors.
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// ReasonOf returns the conflict reason carried by err, if any.
func ReasonOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Reason
	}
	return ""
}

// classify tags err with op and turns anything that is not already a ledger
// error (driver failures, timeouts, aborted transactions) into Unavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		out := *le
		if out.Op == "" {
			out.Op = op
		}
		return &out
	}
	return &Error{Code: CodeUnavailable, Op: op, Message: "store unavailable", Err: err}
}
