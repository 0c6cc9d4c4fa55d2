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
)

// Multiple declares a dependency on zero or more services of the same
// contract type.
//
// The generic wrapper is used in provider member and subscriber method
// parameters to receive every registered service assignable to T.
//
// Example:
//
//	func (c *Gateway) ProvideRouter(handlers Multiple[Handler]) *Router {
//	    for _, h := range handlers {
//	        ...
//	    }
//	}
type Multiple[T any] []T

// Multiple marks this type as multiple.
func (m Multiple[T]) Multiple() {}

// isMultipleType checks and returns the multiple box element type.
func isMultipleType(typ reflect.Type) (reflect.Type, bool) {
	if typ.Kind() == reflect.Slice {
		if _, ok := typ.MethodByName("Multiple"); ok {
			return typ.Elem(), true
		}
	}
	return nil, false
}

// newMultipleValue boxes resolved services into the multiple wrapper.
func newMultipleValue(typ reflect.Type, values []reflect.Value) reflect.Value {
	box := reflect.New(typ).Elem()
	return reflect.Append(box, values...)
}
