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
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// CacheSlot is a lazily initialized per-descriptor instance cache used
// by the host container for shared scopes. Initialization is guarded
// per slot, not globally.
type CacheSlot struct {
	mutex  sync.Mutex
	value  any
	filled bool
}

// GetOrCreate returns the cached instance, creating it at most once.
func (s *CacheSlot) GetOrCreate(create func() (any, error)) (any, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.filled {
		return s.value, nil
	}

	value, err := create()
	if err != nil {
		return nil, err
	}

	s.value = value
	s.filled = true
	return value, nil
}

// Clear empties the slot and returns the evicted instance, if any.
func (s *CacheSlot) Clear() (any, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	value, filled := s.value, s.filled
	s.value, s.filled = nil, false
	return value, filled
}

// CacheCarrier is implemented by descriptors exposing a cache slot.
type CacheCarrier interface {
	// Cache returns the descriptor instance cache slot.
	Cache() *CacheSlot
}

// Ranked marks an implementation type carrying an explicit ranking.
type Ranked interface {
	Rank() int
}

// rankedType contains reflection type of the ranking marker.
var rankedType = reflect.TypeOf((*Ranked)(nil)).Elem()

// disposePlan captures the validated disposal policy of one member.
type disposePlan struct {
	policy DisposedBy

	// Dispose method name, for the non-container policies.
	methodName string

	// Provider-side dispose method, bound at scan time.
	providerMethod reflect.Method

	// Standalone dispose function of a static member.
	disposeFn reflect.Value
}

// serviceDescriptor is a synthesized descriptor for one provider
// member, immutable once built except the lazily populated rank and
// cache slot.
type serviceDescriptor struct {
	// Owning component descriptor, nil for static members.
	owner Descriptor

	// Owning class and member name, for diagnostics and errors.
	ownerClass reflect.Type
	memberName string

	accessor memberAccessor
	plans    []paramPlan

	implementation reflect.Type
	contracts      []reflect.Type
	qualifiers     []reflect.Type
	scope          Scope
	nilable        bool
	dispose        disposePlan

	// Registry captured at synthesis time: disposal and owner
	// resolution need it outside a creation call.
	registry ServiceRegistry

	rankOnce  sync.Once
	rankSet   bool
	rankValue int

	cache CacheSlot
}

// Contracts implements Descriptor interface.
func (d *serviceDescriptor) Contracts() []reflect.Type {
	return append([]reflect.Type(nil), d.contracts...)
}

// Qualifiers implements Descriptor interface.
func (d *serviceDescriptor) Qualifiers() []reflect.Type {
	return append([]reflect.Type(nil), d.qualifiers...)
}

// Scope implements Descriptor interface.
func (d *serviceDescriptor) Scope() Scope {
	return d.scope
}

// Implementation implements Descriptor interface.
func (d *serviceDescriptor) Implementation() reflect.Type {
	return d.implementation
}

// Cache implements CacheCarrier interface.
func (d *serviceDescriptor) Cache() *CacheSlot {
	return &d.cache
}

// Rank implements Descriptor interface. The ranking is computed once on
// first access: an explicit member ranking wins, otherwise a Ranked
// implementation type is consulted, otherwise zero.
func (d *serviceDescriptor) Rank() int {
	d.rankOnce.Do(func() {
		if d.rankSet {
			return
		}
		if d.implementation != nil && d.implementation.Implements(rankedType) {
			zero := reflect.New(d.implementation).Elem()
			d.rankValue = zero.Interface().(Ranked).Rank()
			d.rankSet = true
		}
	})
	return d.rankValue
}

// Create implements Descriptor interface: resolves member parameters,
// obtains the providing instance, invokes the member and routes the
// result through the container post-construction hook. Per-lookup
// dependencies acquired along the way are released on every exit path.
func (d *serviceDescriptor) Create(registry ServiceRegistry) (result any, err error) {
	if registry == nil {
		registry = d.registry
	}

	var releases []func() error
	defer func() {
		if releaseErr := releaseAll(releases); releaseErr != nil && err == nil {
			err = fmt.Errorf("failed to release dependencies: %w", releaseErr)
		}
	}()

	// Obtain the providing instance for non-static members.
	owner := reflect.Value{}
	var ownerInstance any
	if !d.accessor.static() {
		handle, handleErr := registry.HandleFor(d.owner)
		if handleErr != nil {
			return nil, memberError(d.ownerClass, d.memberName,
				fmt.Errorf("failed to resolve providing component: %w", handleErr))
		}
		if d.owner.Scope() == ScopePerLookup {
			releases = append(releases, handle.Release)
		}
		ownerInstance = handle.Get()
		owner = reflect.ValueOf(ownerInstance)
	}

	// Resolve member parameters, tracking per-lookup handles.
	args, paramReleases, paramsErr := resolveParams(context.Background(), registry, d.plans, ownerInstance)
	releases = append(releases, paramReleases...)
	if paramsErr != nil {
		return nil, memberError(d.ownerClass, d.memberName, paramsErr)
	}

	// Invoke the provider member.
	value, invokeErr := d.accessor.invoke(owner, args)
	if invokeErr != nil {
		return nil, memberError(d.ownerClass, d.memberName, invokeErr)
	}

	// Skip lifecycle hooks for legitimate nil values.
	instance := valueInterface(value)
	if isNilValue(instance) {
		if !d.nilable {
			return nil, memberError(d.ownerClass, d.memberName,
				errors.New("provider returned nil"))
		}
		return nil, nil
	}

	// Route the created instance through the container hook.
	if hookErr := registry.PostConstruct(instance); hookErr != nil {
		return nil, memberError(d.ownerClass, d.memberName,
			fmt.Errorf("post-construct failed: %w", hookErr))
	}

	return instance, nil
}

// Dispose implements Descriptor interface, applying the dispose policy
// determined at discovery time. A nil instance is accepted and ignored.
func (d *serviceDescriptor) Dispose(instance any) (err error) {
	if isNilValue(instance) {
		return nil
	}

	switch d.dispose.policy {
	case DisposedByContainer:
		return d.registry.PreDestroy(instance)

	case DisposedByProvidedInstance:
		method := reflect.ValueOf(instance).MethodByName(d.dispose.methodName)
		if !method.IsValid() {
			return memberError(d.ownerClass, d.memberName,
				fmt.Errorf("%w: '%s' on '%T'", ErrDisposeMethodNotFound, d.dispose.methodName, instance))
		}
		return disposeCallResult(method.Call(nil))

	case DisposedByProvider:
		// Static members dispose through a standalone function.
		if d.dispose.disposeFn.IsValid() {
			return disposeCallResult(d.dispose.disposeFn.Call([]reflect.Value{reflect.ValueOf(instance)}))
		}

		// Instance members dispose through the providing component.
		handle, handleErr := d.registry.HandleFor(d.owner)
		if handleErr != nil {
			return memberError(d.ownerClass, d.memberName,
				fmt.Errorf("failed to resolve disposing component: %w", handleErr))
		}
		if d.owner.Scope() == ScopePerLookup {
			defer func() {
				if releaseErr := handle.Release(); releaseErr != nil && err == nil {
					err = releaseErr
				}
			}()
		}
		args := []reflect.Value{reflect.ValueOf(handle.Get()), reflect.ValueOf(instance)}
		return disposeCallResult(d.dispose.providerMethod.Func.Call(args))
	}

	return nil
}

// valueInterface unboxes a reflected member result to an interface.
func valueInterface(value reflect.Value) any {
	if !value.IsValid() {
		return nil
	}
	return value.Interface()
}

// disposeCallResult extracts an optional error from a dispose call.
func disposeCallResult(results []reflect.Value) error {
	if len(results) > 0 && results[len(results)-1].Type() == errorType {
		if errValue := results[len(results)-1]; !errValue.IsNil() {
			return errValue.Interface().(error)
		}
	}
	return nil
}
