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
)

// componentDescriptor registers one component class in the host
// container: a preconstructed instance, a zero-argument factory, or a
// class-only placeholder exposing provider members of a type that can
// not be instantiated.
type componentDescriptor struct {
	instance  any
	factory   reflect.Value
	classOnly bool

	implementation reflect.Type
	contracts      []reflect.Type
	qualifiers     []reflect.Type
	scope          Scope
	members        []MemberSpec
	receiver       *ReceiverSpec
	rank           int

	cache CacheSlot
}

// ComponentOpt configures a component registration.
type ComponentOpt func(*componentDescriptor)

// Component registers a preconstructed component instance.
//
// Example:
//
//	tx.Add(provides.Component(&Database{},
//	    provides.WithMembers(provides.Method("ProvideConn"))))
func Component(instance any, opts ...ComponentOpt) Descriptor {
	if instance == nil {
		panic("component instance must not be nil")
	}
	descriptor := &componentDescriptor{
		instance:       instance,
		implementation: reflect.TypeOf(instance),
		scope:          ScopeSingleton,
	}
	return applyComponentOpts(descriptor, opts)
}

// ComponentFactory registers a component produced by a zero-argument
// factory function returning the instance and an optional error.
func ComponentFactory(factory any, opts ...ComponentOpt) Descriptor {
	factoryValue := reflect.ValueOf(factory)
	factoryType := factoryValue.Type()
	if factoryType.Kind() != reflect.Func || factoryType.NumIn() != 0 {
		panic(fmt.Sprintf("component factory must be a zero-argument function, got %T", factory))
	}
	if err := validMemberSignature(factoryType); err != nil {
		panic(err.Error())
	}
	descriptor := &componentDescriptor{
		factory:        factoryValue,
		implementation: factoryType.Out(0),
		scope:          ScopeSingleton,
	}
	return applyComponentOpts(descriptor, opts)
}

// ComponentClass registers a class-only placeholder: the class itself
// is not instantiable through the container and advertises no
// contracts, but its static provider members are still discovered.
// The class is specified by a nil pointer of its type.
//
// Example:
//
//	tx.Add(provides.ComponentClass((*Codecs)(nil),
//	    provides.WithMembers(provides.Func(NewJSONCodec))))
func ComponentClass(classPtr any, opts ...ComponentOpt) Descriptor {
	typ := reflect.TypeOf(classPtr)
	if typ == nil {
		panic("component class must be specified by a typed nil pointer")
	}
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	descriptor := &componentDescriptor{
		classOnly:      true,
		implementation: typ,
		scope:          ScopePerLookup,
	}
	return applyComponentOpts(descriptor, opts)
}

// applyComponentOpts applies options and computes defaults.
func applyComponentOpts(descriptor *componentDescriptor, opts []ComponentOpt) Descriptor {
	for _, opt := range opts {
		opt(descriptor)
	}
	if !descriptor.classOnly && len(descriptor.contracts) == 0 {
		descriptor.contracts = []reflect.Type{descriptor.implementation}
	}
	return descriptor
}

// WithMembers declares provider members of the component class.
func WithMembers(members ...MemberSpec) ComponentOpt {
	return func(descriptor *componentDescriptor) {
		descriptor.members = append(descriptor.members, members...)
	}
}

// WithComponentScope sets the component scope. Defaults to singleton.
func WithComponentScope(scope Scope) ComponentOpt {
	return func(descriptor *componentDescriptor) {
		descriptor.scope = scope
	}
}

// WithComponentContracts adds contract types the component itself
// is advertised under, in addition to its implementation type.
func WithComponentContracts(contracts ...reflect.Type) ComponentOpt {
	return func(descriptor *componentDescriptor) {
		descriptor.contracts = append(descriptor.contracts, contracts...)
	}
}

// WithComponentRank sets the descriptor ranking for lookup
// tie-breaking. Defaults to zero.
func WithComponentRank(rank int) ComponentOpt {
	return func(descriptor *componentDescriptor) {
		descriptor.rank = rank
	}
}

// WithComponentQualifiers attaches qualifier values to the component.
func WithComponentQualifiers(qualifiers ...any) ComponentOpt {
	return func(descriptor *componentDescriptor) {
		descriptor.qualifiers = append(descriptor.qualifiers, qualifierTypes(qualifiers)...)
	}
}

// AsReceiver qualifies the component class as a message receiver.
// Methods with exactly one Inbound parameter become subscribers.
func AsReceiver(opts ...ReceiverOpt) ComponentOpt {
	return func(descriptor *componentDescriptor) {
		spec := &ReceiverSpec{methods: map[string]*subscriberFilter{}}
		for _, opt := range opts {
			opt(spec)
		}
		descriptor.receiver = spec
	}
}

// Contracts implements Descriptor interface.
func (d *componentDescriptor) Contracts() []reflect.Type {
	return append([]reflect.Type(nil), d.contracts...)
}

// Qualifiers implements Descriptor interface.
func (d *componentDescriptor) Qualifiers() []reflect.Type {
	return append([]reflect.Type(nil), d.qualifiers...)
}

// Scope implements Descriptor interface.
func (d *componentDescriptor) Scope() Scope {
	return d.scope
}

// Implementation implements Descriptor interface.
func (d *componentDescriptor) Implementation() reflect.Type {
	return d.implementation
}

// Rank implements Descriptor interface.
func (d *componentDescriptor) Rank() int {
	return d.rank
}

// Cache implements CacheCarrier interface.
func (d *componentDescriptor) Cache() *CacheSlot {
	return &d.cache
}

// ProviderMembers implements MemberCarrier interface.
func (d *componentDescriptor) ProviderMembers() []MemberSpec {
	return append([]MemberSpec(nil), d.members...)
}

// ReceiverSpec implements ReceiverCarrier interface.
func (d *componentDescriptor) ReceiverSpec() *ReceiverSpec {
	return d.receiver
}

// Placeholder implements PlaceholderCarrier interface.
func (d *componentDescriptor) Placeholder() bool {
	return d.classOnly
}

// Create implements Descriptor interface.
func (d *componentDescriptor) Create(registry ServiceRegistry) (any, error) {
	switch {
	case d.classOnly:
		return nil, fmt.Errorf("%w: '%s'", ErrNotInstantiable, d.implementation)

	case d.factory.IsValid():
		instance, err := memberCallResult(d.factory.Call(nil))
		if err != nil {
			return nil, fmt.Errorf("component factory failed: %w", err)
		}
		result := instance.Interface()
		if registry != nil {
			if err := registry.PostConstruct(result); err != nil {
				return nil, fmt.Errorf("post-construct failed: %w", err)
			}
		}
		return result, nil

	default:
		return d.instance, nil
	}
}

// Dispose implements Descriptor interface, delegating to the container
// pre-destroy hook. Preconstructed instances belong to the caller and
// are not disposed by the container.
func (d *componentDescriptor) Dispose(instance any) error {
	if isNilValue(instance) {
		return nil
	}
	if !d.factory.IsValid() {
		return nil
	}
	return preDestroyInstance(instance)
}
