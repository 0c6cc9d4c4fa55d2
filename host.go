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
	"reflect"
)

// Descriptor declares the host container unit of registration.
//
// A descriptor describes how to create, dispose and identify one service.
// The extension synthesizes descriptors for discovered provider members and
// registers them back into the host container, so any container willing to
// host the extension adapts its own registration record to this interface.
type Descriptor interface {
	// Create constructs a new service instance using the registry
	// to resolve dependencies of the underlying provider.
	Create(registry ServiceRegistry) (any, error)

	// Dispose releases a service instance produced by Create.
	// A nil instance is accepted and ignored.
	Dispose(instance any) error

	// Contracts returns the types the service is advertised under.
	Contracts() []reflect.Type

	// Qualifiers returns qualifier types attached to the service.
	Qualifiers() []reflect.Type

	// Scope returns the lifecycle policy of the service.
	Scope() Scope

	// Implementation returns the concrete type of produced instances.
	Implementation() reflect.Type

	// Rank returns the descriptor ranking for lookup tie-breaking.
	Rank() int
}

// ServiceRegistry declares the host container capabilities consumed
// by the extension: descriptor queries, service lookup and the generic
// lifecycle hooks applied to arbitrary instances.
type ServiceRegistry interface {
	// Descriptors returns all registered descriptors matching the predicate.
	// A nil predicate matches every descriptor.
	Descriptors(match func(Descriptor) bool) []Descriptor

	// Reify returns the concrete implementation class of the descriptor.
	Reify(descriptor Descriptor) reflect.Type

	// Lookup resolves a service by contract type and required qualifiers
	// without an explicit release handle. Per-lookup services resolved this
	// way are constructed but never disposed by the container.
	Lookup(contract reflect.Type, qualifiers ...reflect.Type) (any, error)

	// LookupAll resolves all services advertised under the contract type.
	LookupAll(contract reflect.Type, qualifiers ...reflect.Type) ([]any, error)

	// LookupHandle resolves a service by contract type and returns a handle
	// which releases per-lookup instances when closed.
	LookupHandle(contract reflect.Type, qualifiers ...reflect.Type) (ServiceHandle, error)

	// HandleFor resolves a service from a concrete descriptor.
	HandleFor(descriptor Descriptor) (ServiceHandle, error)

	// PostConstruct applies the container post-construction hook
	// to an arbitrary instance. Instances without lifecycle methods
	// are tolerated. A nil instance is accepted and ignored.
	PostConstruct(instance any) error

	// PreDestroy applies the container pre-destruction hook to an
	// arbitrary instance. A nil instance is accepted and ignored.
	PreDestroy(instance any) error

	// Begin opens a configuration transaction. Descriptors added to the
	// transaction become visible in the registry atomically on commit.
	Begin() ConfigTransaction
}

// ServiceHandle provides access to one resolved service instance.
//
// For per-lookup services the handle owns the instance lifecycle:
// releasing the handle disposes the instance exactly once. For shared
// services release is a no-op.
type ServiceHandle interface {
	// Get returns the resolved service instance.
	Get() any

	// Descriptor returns the descriptor the instance was produced from.
	Descriptor() Descriptor

	// Release disposes a per-lookup instance. Safe to call multiple times.
	Release() error
}

// ConfigTransaction declares the transactional configuration builder
// of the host container.
type ConfigTransaction interface {
	// Add appends descriptors to the pending batch.
	Add(descriptors ...Descriptor)

	// Commit publishes the batch atomically and fires configuration
	// listeners. A committed transaction must not be reused.
	Commit() error
}

// ConfigListener observes host container configuration changes.
// The hook fires after any committed batch of registrations.
type ConfigListener interface {
	// ConfigChanged reacts to a committed configuration batch.
	ConfigChanged(ctx context.Context, registry ServiceRegistry) error
}

// MemberCarrier is implemented by component descriptors carrying
// explicitly declared provider member specs.
type MemberCarrier interface {
	// ProviderMembers returns declared provider member specs.
	ProviderMembers() []MemberSpec
}

// ReceiverCarrier is implemented by component descriptors whose class
// is qualified as a message receiver.
type ReceiverCarrier interface {
	// ReceiverSpec returns the message receiver declaration.
	ReceiverSpec() *ReceiverSpec
}

// PlaceholderCarrier is implemented by class-only descriptors whose
// implementation cannot be instantiated through the container and is
// registered purely to expose provider members.
type PlaceholderCarrier interface {
	// Placeholder reports whether the descriptor is class-only.
	Placeholder() bool
}

// Constructable is a service with a post-construction lifecycle method.
type Constructable interface {
	Constructor() error
}

// Destructible is a service with a pre-destruction lifecycle method.
type Destructible interface {
	Destructor() error
}
