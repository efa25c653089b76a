// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

// Package router implements the routing state machine: policy-driven model
// selection, vendor health and circuit breakers, per-request budget and
// cancellation, and self-check escalation. It is the composition point
// between policy, tokenizer, intent, and the vendor adapters.
package router

import "fmt"

// ErrorCode is the router's stable, closed error taxonomy. Category names
// are part of the external contract (trace.error_class, SSE error tokens)
// and must not be renamed casually.
type ErrorCode string

const (
	ErrInvalidRequest        ErrorCode = "invalid_request"
	ErrBlockedByPolicy        ErrorCode = "blocked_by_policy"
	ErrEmptyPrompt             ErrorCode = "empty_prompt"
	ErrUnsupportedMediaType    ErrorCode = "unsupported_media_type"
	ErrAuthError               ErrorCode = "auth_error"
	ErrModelNotAllowed         ErrorCode = "model_not_allowed"
	ErrRateLimited             ErrorCode = "rate_limited"
	ErrQuotaExceeded           ErrorCode = "quota_exceeded"
	ErrTimeout                 ErrorCode = "timeout"
	ErrVendorUnavailable       ErrorCode = "vendor_unavailable"
	ErrAllVendorsUnavailable   ErrorCode = "all_vendors_unavailable"
	ErrDownstreamError         ErrorCode = "downstream_error"
	ErrCancelled               ErrorCode = "cancelled"
)

// HTTPStatus maps an ErrorCode to the HTTP status documented at the
// boundary. `timeout` is 504 only when isolated (non-streaming); streaming
// callers surface it as a terminal token instead.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrInvalidRequest, ErrBlockedByPolicy:
		return 400
	case ErrEmptyPrompt:
		return 422
	case ErrUnsupportedMediaType:
		return 415
	case ErrAuthError:
		return 401
	case ErrModelNotAllowed:
		return 403
	case ErrRateLimited, ErrQuotaExceeded:
		return 429
	case ErrTimeout:
		return 504
	case ErrVendorUnavailable, ErrAllVendorsUnavailable:
		return 503
	case ErrDownstreamError:
		return 500
	case ErrCancelled:
		return 499
	default:
		return 500
	}
}

// Error is the router's error type, carrying the closed category, an
// optional cause, and whether a retry/fallback is sensible.
type Error struct {
	Code      ErrorCode
	Message   string
	Vendor    string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Vendor != "" {
		return fmt.Sprintf("%s: %s (vendor=%s)", e.Code, e.Message, e.Vendor)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

func (e *Error) WithVendor(vendor string) *Error {
	e.Vendor = vendor
	return e
}

func (e *Error) WithRetryable(r bool) *Error {
	e.Retryable = r
	return e
}

// CodeOf extracts the ErrorCode from err if it is (or wraps) a *Error,
// otherwise returns downstream_error as the closed-set fallback.
func CodeOf(err error) ErrorCode {
	var re *Error
	if asError(err, &re) {
		return re.Code
	}
	return ErrDownstreamError
}

func asError(err error, target **Error) bool {
	for err != nil {
		if re, ok := err.(*Error); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
