/*
 * SPDX-FileCopyrightText: Copyright (c) 2024 The provides authors. All rights reserved.
 * SPDX-License-Identifier: Apache-2.0
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package provides

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrServiceNotFound is returned when no descriptor matches a lookup.
var ErrServiceNotFound = errors.New("service not found")

// ErrNotInstantiable is returned when resolving a class-only placeholder
// registered purely to expose its provider members.
var ErrNotInstantiable = errors.New("component is not instantiable")

// ErrDisposeMethodNotFound is raised at registration time when a declared
// dispose method is absent from the target type.
var ErrDisposeMethodNotFound = errors.New("dispose method not found")

// ErrUnsupportedParameter marks a provider or subscriber parameter the
// parameter resolver cannot supply.
var ErrUnsupportedParameter = errors.New("unsupported parameter")

// ErrUnresolvedTypeVariable marks a member type which still contains a
// type variable after resolution in the owner context.
var ErrUnresolvedTypeVariable = errors.New("unresolved type variable")

// MemberError wraps a failure attributed to one provider member
// or subscriber method.
type MemberError struct {
	Class  reflect.Type
	Member string
	Err    error
}

// Error implements error interface.
func (e *MemberError) Error() string {
	return fmt.Sprintf("member '%s' of '%s': %v", e.Member, e.Class, e.Err)
}

// Unwrap returns the underlying cause.
func (e *MemberError) Unwrap() error {
	return e.Err
}

// memberError wraps an error with the owning class and member name.
func memberError(class reflect.Type, member string, err error) error {
	return &MemberError{Class: class, Member: member, Err: err}
}
