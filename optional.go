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
	"reflect"
	"unsafe"
)

// Optional declares an optional dependency of a provider member or
// subscriber method. When no service satisfies the parameter, the
// wrapper is injected empty instead of failing the invocation.
//
// Example:
//
//	func (c *Publisher) ProvideFeed(audit Optional[*AuditLog]) *Feed {
//	    log, ok := audit.Lookup()
//	    ...
//	}
type Optional[T any] struct {
	value T
	found bool
}

// Get returns the optional service instance or a zero value.
func (o Optional[T]) Get() T {
	return o.value
}

// Lookup returns the optional service instance and its presence.
func (o Optional[T]) Lookup() (T, bool) {
	return o.value, o.found
}

// Optional marks this type as optional.
func (o Optional[T]) Optional() {}

// isOptionalType checks and returns the optional box element type.
func isOptionalType(typ reflect.Type) (reflect.Type, bool) {
	if typ.Kind() == reflect.Struct {
		if _, ok := typ.MethodByName("Optional"); ok {
			if methodValue, ok := typ.MethodByName("Get"); ok {
				if methodValue.Type.NumOut() == 1 {
					return methodValue.Type.Out(0), true
				}
			}
		}
	}
	return nil, false
}

// newOptionalValue boxes a resolved service into the optional wrapper.
func newOptionalValue(typ reflect.Type, value reflect.Value, found bool) reflect.Value {
	// Prepare boxing struct for value.
	box := reflect.New(typ).Elem()

	// Inject the resolved service into the unexported value field.
	if found {
		setUnexportedField(box.FieldByName("value"), value)
		setUnexportedField(box.FieldByName("found"), reflect.ValueOf(true))
	}

	return box
}

// setUnexportedField writes an unexported struct field in place.
func setUnexportedField(field reflect.Value, value reflect.Value) {
	pointer := unsafe.Pointer(field.UnsafeAddr())
	public := reflect.NewAt(field.Type(), pointer)
	public.Elem().Set(value)
}
