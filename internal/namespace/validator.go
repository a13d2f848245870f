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

package namespace

import (
	"fmt"

	"github.com/mikelane/workspaced/internal/infra"
	"k8s.io/apimachinery/pkg/util/validation"
)

// ValidationReason tells why a namespace name was rejected.
type ValidationReason string

const (
	ReasonInvalid ValidationReason = "INVALID"
	ReasonTooLong ValidationReason = "TOO_LONG"
)

// ValidationError reports a namespace name that cannot be used.
type ValidationError struct {
	Name    string
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid namespace name %q: %s", e.Name, e.Message)
}

// Kind classifies the error as a validation failure.
func (e *ValidationError) Kind() infra.Kind {
	return infra.KindValidation
}

// ValidateNamespaceName checks that name is a DNS-1123 label.
func ValidateNamespaceName(name string) error {
	if len(name) > validation.DNS1123LabelMaxLength {
		return &ValidationError{
			Name:    name,
			Reason:  ReasonTooLong,
			Message: fmt.Sprintf("must be no more than %d characters", validation.DNS1123LabelMaxLength),
		}
	}
	if errs := validation.IsDNS1123Label(name); len(errs) > 0 {
		return &ValidationError{Name: name, Reason: ReasonInvalid, Message: errs[0]}
	}
	return nil
}
