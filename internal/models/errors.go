package models

import "errors"

// Failure kinds surfaced by the generation pipeline. Components wrap one of
// these with the underlying cause; handlers branch with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamUnavailable = errors.New("completion service unavailable")
	ErrUpstreamTimeout     = errors.New("completion service timed out")
	ErrInternal            = errors.New("internal failure")
	ErrCanceled            = errors.New("request canceled")
)
