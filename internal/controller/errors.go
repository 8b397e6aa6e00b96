package controller

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// PermanentError marks a failure that must not be retried.
// The notification that caused it is dropped.
type PermanentError struct {
	// Short machine-readable reason, used as a metric attribute
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so that the dispatcher does not retry it.
func Permanent(reason string, err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Reason: reason, Err: err}
}

// IsPermanent reports whether err, or any error it wraps, is permanent.
// Every other error is treated as transient.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// apiStatus extracts the HTTP status code and message of a cluster API error.
// The code is 0 when the error did not come from the API server.
func apiStatus(err error) (int32, string) {
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		s := status.Status()
		return s.Code, s.Message
	}
	return 0, err.Error()
}

// apiError describes a failed cluster API call the same way for every caller.
func apiError(verb, kind, name string, err error) error {
	code, _ := apiStatus(err)
	return fmt.Errorf("ApiException (%d) %s %s %q: %w", code, verb, kind, name, err)
}
