package domain

import "errors"

// ErrNotFound unknown enrollment, lesson or certificate reference
var ErrNotFound = errors.New("resource not found")

// ErrInvalidArgument malformed request or reference outside the enrollment's course
var ErrInvalidArgument = errors.New("invalid argument")

// ErrConflict unique constraint violation
var ErrConflict = errors.New("conflict")

// ErrTransient storage or downstream service unavailable
var ErrTransient = errors.New("service temporarily unavailable")
