package errors

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType string

func (s ErrorType) String() string {
	return strings.ToLower(string(s))
}

const (
	ErrInternalError     ErrorType = "Internal Error"
	ErrNotFound          ErrorType = "Not Found"
	ErrAlreadyExists     ErrorType = "Resource Already Exists"
	ErrInvalidArgument   ErrorType = "Invalid Argument"
	ErrFailedPrecond     ErrorType = "Failed Precondition"
	ErrInvalidDefinition ErrorType = "Invalid Definition"
	ErrInvalidConnection ErrorType = "Invalid Connection"
	ErrInvalidData       ErrorType = "Invalid Data"
	ErrLogic             ErrorType = "Logic Error"
)

// DomainError carries the entity it belongs to and, for validation
// failures, a machine readable Key next to the human readable Message.
type DomainError struct {
	ErrorType  ErrorType
	Entity     string
	Key        string
	Message    string
	WrappedErr error
}

func NewError(errType ErrorType, entity string, msg string) *DomainError {
	return &DomainError{
		Entity:    entity,
		ErrorType: errType,
		Message:   msg,
	}
}

func InvalidArgument(entity string, msg string) *DomainError {
	return NewError(ErrInvalidArgument, entity, msg)
}

func NotFound(entity string, msg string) *DomainError {
	return NewError(ErrNotFound, entity, msg)
}

func FailedPrecondition(entity string, msg string) *DomainError {
	return NewError(ErrFailedPrecond, entity, msg)
}

func InternalError(entity string, msg string, err error) *DomainError {
	return &DomainError{
		ErrorType:  ErrInternalError,
		Entity:     entity,
		Message:    msg,
		WrappedErr: err,
	}
}

func InvalidDefinition(entity, key, msg string) *DomainError {
	return &DomainError{ErrorType: ErrInvalidDefinition, Entity: entity, Key: key, Message: msg}
}

func InvalidConnection(entity, key, msg string) *DomainError {
	return &DomainError{ErrorType: ErrInvalidConnection, Entity: entity, Key: key, Message: msg}
}

func InvalidData(entity, key, msg string) *DomainError {
	return &DomainError{ErrorType: ErrInvalidData, Entity: entity, Key: key, Message: msg}
}

// LogicError marks a broken invariant, these are never retried.
func LogicError(entity string, msg string) *DomainError {
	return NewError(ErrLogic, entity, msg)
}

// Wrap keeps the type and key of a wrapped DomainError, anything else
// becomes an internal error.
func Wrap(entity string, msg string, err error) error {
	if err == nil {
		return nil
	}

	var de *DomainError
	if errors.As(err, &de) {
		return &DomainError{
			ErrorType:  de.ErrorType,
			Entity:     entity,
			Key:        de.Key,
			Message:    msg + ": " + de.Message,
			WrappedErr: err,
		}
	}
	return InternalError(entity, msg, err)
}

func (e *DomainError) Error() string {
	if e.WrappedErr != nil && e.ErrorType == ErrInternalError {
		return fmt.Sprintf("%v for entity %v: %v: %v",
			e.ErrorType.String(), e.Entity, e.Message, e.WrappedErr)
	}
	return fmt.Sprintf("%v for entity %v: %v",
		e.ErrorType.String(), e.Entity, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.WrappedErr
}

func IsErrorType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.ErrorType == errType
	}
	return false
}

// KeyOf returns the validation key of err, or an empty string.
func KeyOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Key
	}
	return ""
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
