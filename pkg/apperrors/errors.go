package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedForecast   = errors.New("malformed forecast response")
	ErrAlreadyRunning      = errors.New("pipeline run already in progress")
)
