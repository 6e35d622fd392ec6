// Package cmn provides common types, error kinds, and small utilities
// shared across hstore's tiering engine.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKind enumerates the error taxonomy of the placement/blob engine.
type ErrKind int

const (
	ErrNone ErrKind = iota
	ErrNotFound
	ErrAlreadyExists
	ErrInsufficientCapacity
	ErrTierFault
	ErrCancelled
	ErrStagerUnavailable
	ErrInvalidArgument
)

func (k ErrKind) String() string {
	switch k {
	case ErrNotFound:
		return "not-found"
	case ErrAlreadyExists:
		return "already-exists"
	case ErrInsufficientCapacity:
		return "insufficient-capacity"
	case ErrTierFault:
		return "tier-fault"
	case ErrCancelled:
		return "cancelled"
	case ErrStagerUnavailable:
		return "stager-unavailable"
	case ErrInvalidArgument:
		return "invalid-argument"
	default:
		return "none"
	}
}

// HError is the engine's structured error: a kind plus whatever
// caused it. Use errors.Cause(e) to reach the wrapped error.
type HError struct {
	Kind    ErrKind
	Message string
	cause   error
}

func (e *HError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *HError) Unwrap() error { return e.cause }

func (e *HError) Cause() error { return e.cause }

// NewErr constructs an HError, wrapping cause (if any) with a stack
// via github.com/pkg/errors so TierFault propagation (spec §7) keeps
// the originating driver frame.
func NewErr(kind ErrKind, cause error, format string, args ...any) *HError {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, msg)
	}
	return &HError{Kind: kind, Message: msg, cause: wrapped}
}

// IsKind reports whether err (or anything it wraps) is an HError of kind k.
func IsKind(err error, k ErrKind) bool {
	var he *HError
	for err != nil {
		if e, ok := err.(*HError); ok {
			he = e
			break
		}
		err = errors.Unwrap(err)
	}
	return he != nil && he.Kind == k
}

var (
	ErrNotFoundGeneric            = NewErr(ErrNotFound, nil, "unknown id")
	ErrInsufficientCapacityGeneric = NewErr(ErrInsufficientCapacity, nil, "no schema satisfies the write")
)
