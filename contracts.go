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
	"fmt"
	"reflect"
	"sync"
)

// Go interfaces are implemented implicitly, so a type cannot carry an
// opt-in marker the way an annotated contract does. Contract interfaces
// are registered explicitly instead: a provided value type without a
// contract override is advertised under itself plus every registered
// contract interface it implements.

// contractRegistry holds registered contract interfaces.
var contractRegistry = struct {
	mu    sync.RWMutex
	types []reflect.Type
}{}

// RegisterContract registers an interface type as a lookup contract.
func RegisterContract(iface reflect.Type) {
	if iface == nil || iface.Kind() != reflect.Interface {
		panic(fmt.Sprintf("contract must be an interface type, got %v", iface))
	}

	contractRegistry.mu.Lock()
	defer contractRegistry.mu.Unlock()
	for _, typ := range contractRegistry.types {
		if typ == iface {
			return
		}
	}
	contractRegistry.types = append(contractRegistry.types, iface)
}

// RegisterContractOf registers the interface type argument as a
// lookup contract.
func RegisterContractOf[T any]() {
	RegisterContract(reflect.TypeOf((*T)(nil)).Elem())
}

// contractsFor computes the default advertised contract set of a
// provided value type: the type itself plus every registered contract
// interface the type implements.
func contractsFor(typ reflect.Type) []reflect.Type {
	contracts := []reflect.Type{typ}

	contractRegistry.mu.RLock()
	defer contractRegistry.mu.RUnlock()
	for _, iface := range contractRegistry.types {
		if typ == iface {
			continue
		}
		// Pointer-receiver implementations are advertised through the
		// pointer implementation type, so assignability always holds.
		if typ.Implements(iface) {
			contracts = append(contracts, iface)
		}
	}

	return contracts
}
