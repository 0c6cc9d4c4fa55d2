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

// Inbound marks the message slot of a subscriber method. A subscriber
// method declares exactly one Inbound parameter; its element type is
// the declared message type the subscriber is matched against.
//
// Example:
//
//	func (s *Auditor) OnAmount(msg Inbound[Number], log *AuditLog) {
//	    n := msg.Get()
//	    ...
//	}
type Inbound[T any] struct {
	message T
}

// Get returns the delivered message.
func (i Inbound[T]) Get() T {
	return i.message
}

// Inbound marks this type as a message slot.
func (i Inbound[T]) Inbound() {}

// isInboundType checks and returns the declared message type.
func isInboundType(typ reflect.Type) (reflect.Type, bool) {
	if typ.Kind() == reflect.Struct {
		if _, ok := typ.MethodByName("Inbound"); ok {
			if methodValue, ok := typ.MethodByName("Get"); ok {
				if methodValue.Type.NumOut() == 1 {
					return methodValue.Type.Out(0), true
				}
			}
		}
	}
	return nil, false
}

// newInboundValue boxes a published message into the inbound wrapper.
func newInboundValue(typ reflect.Type, message reflect.Value) reflect.Value {
	box := reflect.New(typ).Elem()
	setUnexportedField(box.FieldByName("message"), message)
	return box
}
