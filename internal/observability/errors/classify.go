// Package errors labels error causes for logs.
package errors

import (
	"reflect"
	"strings"
)

// Cause returns the innermost error of err's chain. Joined errors are followed through their
// first member.
func Cause(err error) error {
	for err != nil {
		switch u := err.(type) { //nolint:errorlint // walking the chain by hand
		case interface{ Unwrap() error }:
			next := u.Unwrap()
			if next == nil {
				return err
			}
			err = next
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 || errs[0] == nil {
				return err
			}
			err = errs[0]
		default:
			return err
		}
	}
	return nil
}

// Classify names the concrete type of err's innermost cause, for example "net_operror" or
// "pgconn_pgerror". It returns "" for nil.
func Classify(err error) string {
	cause := Cause(err)
	if cause == nil {
		return ""
	}
	t := reflect.TypeOf(cause)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
