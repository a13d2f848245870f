// Copyright 2025 The Workspaced Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package infra defines the failure taxonomy shared by every workspace
// infrastructure component.
//
// Errors are classified by Kind rather than by concrete type so that callers
// can tell a cancelled start from a broken one without knowing which layer
// produced the failure:
//
//   - Infrastructure: a control-plane or transport failure, cause chain intact
//   - Internal: a cluster or configuration problem an operator should look at
//   - Interrupted: the workspace start was cancelled
//   - Validation: bad input, never retried
//   - State: an illegal runtime state transition
//
// Any error without a Kind in its chain is treated as Infrastructure.
package infra

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindInternal
	KindInterrupted
	KindValidation
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindInterrupted:
		return "Interrupted"
	case KindValidation:
		return "Validation"
	case KindState:
		return "State"
	default:
		return "Infrastructure"
	}
}

type kinded interface {
	Kind() Kind
}

// Error is a classified infrastructure failure.
type Error struct {
	kind    Kind
	message string
	err     error
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) Error() string {
	switch {
	case e.err == nil:
		return e.message
	case e.message == "":
		return e.err.Error()
	default:
		return e.message + ": " + e.err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.err
}

// New returns an error of the given kind without a cause.
func New(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err as an Infrastructure failure. It returns nil if err is nil.
func Wrap(err error, format string, args ...any) error {
	return wrap(KindInfrastructure, err, format, args...)
}

// WrapInternal wraps err as an Internal failure. It returns nil if err is nil.
func WrapInternal(err error, format string, args ...any) error {
	return wrap(KindInternal, err, format, args...)
}

// Internalf returns an Internal failure without a cause.
func Internalf(format string, args ...any) error {
	return New(KindInternal, format, args...)
}

// Interrupted returns a start-interrupted failure carrying cause, which may be nil.
func Interrupted(cause error) error {
	return &Error{kind: KindInterrupted, message: "workspace start was interrupted", err: cause}
}

func wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, message: fmt.Sprintf(format, args...), err: err}
}

// KindOf returns the classification of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInfrastructure
}

// Is reports whether any classified error in the chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if k, ok := err.(kinded); ok && k.Kind() == kind {
			return true
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				if Is(e, kind) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return false
		}
	}
	return false
}

// IsInterrupted reports whether err signals a cancelled workspace start.
func IsInterrupted(err error) bool {
	return Is(err, KindInterrupted)
}

// IsInternal reports whether err signals a problem an operator should look at.
func IsInternal(err error) bool {
	return Is(err, KindInternal)
}
