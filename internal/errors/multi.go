package errors

import (
	"errors"
	"strings"
)

type MultiError struct {
	msg    string
	errors []error
}

func NewMultiError(msg string) *MultiError {
	return &MultiError{
		msg: msg,
	}
}

func (m *MultiError) Append(err error) {
	if err != nil {
		m.errors = append(m.errors, err)
	}
}

func (m *MultiError) Len() int {
	return len(m.errors)
}

func IsEmptyError(err error) bool {
	var me *MultiError
	if errors.As(err, &me) {
		return len(me.errors) == 0
	}
	return false
}

// MultiToError returns nil for a nil or empty MultiError so callers can
// return the result directly.
func MultiToError(e error) error {
	if e == nil || IsEmptyError(e) {
		return nil
	}
	return e
}

func (m *MultiError) Error() string {
	msgs := make([]string, len(m.errors))
	for i, err := range m.errors {
		msgs[i] = err.Error()
	}
	return m.msg + ":\n " + strings.Join(msgs, "\n ")
}
