package errors

import "errors"

var ErrUnauthorized = errors.New("user is not authorized")
var ErrForbidden = errors.New("operation is forbidden for user")

var ErrNotFound = errors.New("not found")
var ErrValidation = errors.New("validation failed")
var ErrCapacityExceeded = errors.New("not enough available spots for the selected date")
var ErrConflict = errors.New("conflict")
