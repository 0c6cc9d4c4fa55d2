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

import "reflect"

// Scope declares the lifecycle and sharing policy of a service.
type Scope int

const (
	// ScopeDefault means no explicit scope was declared.
	// The effective scope is computed by the discovery cascade.
	ScopeDefault Scope = iota

	// ScopeSingleton shares one instance for the registry lifetime.
	ScopeSingleton

	// ScopePerLookup produces a fresh instance on every resolution.
	// Instances are released through an explicit service handle.
	ScopePerLookup
)

// String returns scope name.
func (s Scope) String() string {
	switch s {
	case ScopeSingleton:
		return "singleton"
	case ScopePerLookup:
		return "perlookup"
	default:
		return "default"
	}
}

// SingletonScoped marks a contract type as singleton scoped.
// Services advertised under the contract inherit the scope
// unless the provider member declares its own.
type SingletonScoped interface {
	SingletonScoped()
}

// PerLookupScoped marks a contract type as per-lookup scoped.
type PerLookupScoped interface {
	PerLookupScoped()
}

// singletonScopedType contains reflection type of the singleton marker.
var singletonScopedType = reflect.TypeOf((*SingletonScoped)(nil)).Elem()

// perLookupScopedType contains reflection type of the per-lookup marker.
var perLookupScopedType = reflect.TypeOf((*PerLookupScoped)(nil)).Elem()

// scopeOfType returns the scope marked on the type itself, if any.
func scopeOfType(typ reflect.Type) Scope {
	if typ == nil {
		return ScopeDefault
	}
	switch {
	case typ.Implements(singletonScopedType):
		return ScopeSingleton
	case typ.Implements(perLookupScopedType):
		return ScopePerLookup
	}

	// A pointer receiver marker is visible on the pointer type only.
	if typ.Kind() != reflect.Pointer {
		ptr := reflect.PointerTo(typ)
		switch {
		case ptr.Implements(singletonScopedType):
			return ScopeSingleton
		case ptr.Implements(perLookupScopedType):
			return ScopePerLookup
		}
	}

	return ScopeDefault
}
