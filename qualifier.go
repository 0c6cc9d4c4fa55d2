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

// Qualifiers are represented by type identity: any value attached as a
// qualifier contributes its reflect.Type to the qualifier set. Two
// qualifier values of the same type are the same qualifier.

// QualifierOf returns the qualifier type of a value.
func QualifierOf(value any) reflect.Type {
	return reflect.TypeOf(value)
}

// qualifierTypes converts qualifier values to their type identities.
func qualifierTypes(values []any) []reflect.Type {
	if len(values) == 0 {
		return nil
	}
	types := make([]reflect.Type, 0, len(values))
	for _, value := range values {
		if typ, ok := value.(reflect.Type); ok {
			types = append(types, typ)
			continue
		}
		types = append(types, reflect.TypeOf(value))
	}
	return types
}

// containsQualifier reports whether the set contains the qualifier type.
func containsQualifier(set []reflect.Type, qualifier reflect.Type) bool {
	for _, typ := range set {
		if typ == qualifier {
			return true
		}
	}
	return false
}

// qualifiersSatisfy reports whether the carried qualifier set is
// a superset of the required qualifier set.
func qualifiersSatisfy(carried, required []reflect.Type) bool {
	for _, typ := range required {
		if !containsQualifier(carried, typ) {
			return false
		}
	}
	return true
}
