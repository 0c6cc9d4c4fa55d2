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
	"log/slog"
	"reflect"
	"sync"
)

// Runtime is a reference host container for the extension: a minimal
// service registry with transactional registration, contract lookup
// with rank tie-breaking, singleton caching and reverse-order close.
// Container integrations adapt their own registries to ServiceRegistry
// instead; the runtime exists so the extension is usable standalone
// and testable without a host.
type Runtime struct {
	log *slog.Logger

	mutex       sync.RWMutex
	descriptors []Descriptor
	listeners   []ConfigListener
	closed      bool

	// Singletons in creation order, disposed in reverse on close.
	createdMutex sync.Mutex
	created      []createdRecord
}

// createdRecord remembers one created singleton for disposal.
type createdRecord struct {
	descriptor Descriptor
	instance   any
}

// RuntimeOpt configures a runtime.
type RuntimeOpt func(*Runtime)

// WithRuntimeLogger sets the runtime logger.
func WithRuntimeLogger(log *slog.Logger) RuntimeOpt {
	return func(runtime *Runtime) {
		runtime.log = log
	}
}

// WithListeners registers configuration listeners up front.
func WithListeners(listeners ...ConfigListener) RuntimeOpt {
	return func(runtime *Runtime) {
		runtime.listeners = append(runtime.listeners, listeners...)
	}
}

// NewRuntime returns an empty runtime.
func NewRuntime(opts ...RuntimeOpt) *Runtime {
	runtime := &Runtime{}
	for _, opt := range opts {
		opt(runtime)
	}
	if runtime.log == nil {
		runtime.log = slog.Default()
	}
	return runtime
}

// AddListener registers a configuration listener.
func (r *Runtime) AddListener(listener ConfigListener) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.listeners = append(r.listeners, listener)
}

// Register adds descriptors in one committed transaction.
func (r *Runtime) Register(descriptors ...Descriptor) error {
	transaction := r.Begin()
	transaction.Add(descriptors...)
	return transaction.Commit()
}

// Descriptors implements ServiceRegistry interface.
func (r *Runtime) Descriptors(match func(Descriptor) bool) []Descriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]Descriptor, 0, len(r.descriptors))
	for _, descriptor := range r.descriptors {
		if match == nil || match(descriptor) {
			result = append(result, descriptor)
		}
	}
	return result
}

// Reify implements ServiceRegistry interface.
func (r *Runtime) Reify(descriptor Descriptor) reflect.Type {
	if descriptor == nil {
		return nil
	}
	return descriptor.Implementation()
}

// Lookup implements ServiceRegistry interface. Per-lookup services
// resolved this way are constructed but never disposed.
func (r *Runtime) Lookup(contract reflect.Type, qualifiers ...reflect.Type) (any, error) {
	handle, err := r.LookupHandle(contract, qualifiers...)
	if err != nil {
		return nil, err
	}
	return handle.Get(), nil
}

// LookupAll implements ServiceRegistry interface.
func (r *Runtime) LookupAll(contract reflect.Type, qualifiers ...reflect.Type) ([]any, error) {
	candidates := r.matchingDescriptors(contract, qualifiers)

	instances := make([]any, 0, len(candidates))
	for _, descriptor := range candidates {
		instance, err := r.instanceFor(descriptor)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// LookupHandle implements ServiceRegistry interface. When multiple
// descriptors satisfy the contract the highest ranked wins; equal
// ranks resolve to the earliest registered.
func (r *Runtime) LookupHandle(contract reflect.Type, qualifiers ...reflect.Type) (ServiceHandle, error) {
	candidates := r.matchingDescriptors(contract, qualifiers)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: contract '%s'", ErrServiceNotFound, contract)
	}

	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if candidate.Rank() > best.Rank() {
			best = candidate
		}
	}
	return r.HandleFor(best)
}

// HandleFor implements ServiceRegistry interface.
func (r *Runtime) HandleFor(descriptor Descriptor) (ServiceHandle, error) {
	if descriptor == nil {
		return nil, errors.New("cannot resolve a nil descriptor")
	}

	instance, err := r.instanceFor(descriptor)
	if err != nil {
		return nil, err
	}

	handle := &runtimeHandle{descriptor: descriptor, instance: instance}
	if descriptor.Scope() == ScopePerLookup {
		handle.release = func() error {
			return descriptor.Dispose(instance)
		}
	}
	return handle, nil
}

// PostConstruct implements ServiceRegistry interface.
func (r *Runtime) PostConstruct(instance any) error {
	return postConstructInstance(instance)
}

// PreDestroy implements ServiceRegistry interface.
func (r *Runtime) PreDestroy(instance any) error {
	return preDestroyInstance(instance)
}

// Begin implements ServiceRegistry interface.
func (r *Runtime) Begin() ConfigTransaction {
	return &runtimeTransaction{runtime: r}
}

// Close disposes created singletons in reverse creation order and
// rejects further lookups and registrations.
func (r *Runtime) Close() error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return errors.New("runtime is already closed")
	}
	r.closed = true
	r.mutex.Unlock()

	resetAnalysis(r)

	r.createdMutex.Lock()
	created := r.created
	r.created = nil
	r.createdMutex.Unlock()

	errs := make([]error, 0, len(created))
	for index := len(created) - 1; index >= 0; index-- {
		record := created[index]
		if err := record.descriptor.Dispose(record.instance); err != nil {
			errs = append(errs, fmt.Errorf("failed to dispose '%s': %w",
				record.descriptor.Implementation(), err))
		}
	}
	return errors.Join(errs...)
}

// matchingDescriptors returns descriptors advertised under the contract
// and carrying all required qualifiers, in registration order.
func (r *Runtime) matchingDescriptors(contract reflect.Type, qualifiers []reflect.Type) []Descriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []Descriptor
	for _, descriptor := range r.descriptors {
		if descriptorAdvertises(descriptor, contract) && qualifiersSatisfy(descriptor.Qualifiers(), qualifiers) {
			result = append(result, descriptor)
		}
	}
	return result
}

// descriptorAdvertises reports whether the descriptor serves the contract.
func descriptorAdvertises(descriptor Descriptor, contract reflect.Type) bool {
	for _, advertised := range descriptor.Contracts() {
		if advertised == contract {
			return true
		}
		if contract.Kind() == reflect.Interface && advertised.Implements(contract) {
			return true
		}
	}
	return false
}

// instanceFor produces a service instance per the descriptor scope.
// Singletons of caching descriptors are created once and recorded for
// disposal on close.
func (r *Runtime) instanceFor(descriptor Descriptor) (any, error) {
	r.mutex.RLock()
	closed := r.closed
	r.mutex.RUnlock()
	if closed {
		return nil, errors.New("runtime is closed")
	}

	carrier, cached := descriptor.(CacheCarrier)
	if descriptor.Scope() != ScopeSingleton || !cached {
		return descriptor.Create(r)
	}

	return carrier.Cache().GetOrCreate(func() (any, error) {
		instance, err := descriptor.Create(r)
		if err != nil {
			return nil, err
		}
		r.createdMutex.Lock()
		r.created = append(r.created, createdRecord{descriptor: descriptor, instance: instance})
		r.createdMutex.Unlock()
		return instance, nil
	})
}

// fireListeners notifies configuration listeners of a committed batch.
// Runs without the registry lock so listeners can register descriptors.
func (r *Runtime) fireListeners() error {
	r.mutex.RLock()
	listeners := append([]ConfigListener(nil), r.listeners...)
	r.mutex.RUnlock()

	for _, listener := range listeners {
		if err := listener.ConfigChanged(context.Background(), r); err != nil {
			return err
		}
	}
	return nil
}

// runtimeHandle is the runtime service handle. Release disposes
// per-lookup instances exactly once.
type runtimeHandle struct {
	descriptor Descriptor
	instance   any
	release    func() error
	once       sync.Once
}

// Get implements ServiceHandle interface.
func (h *runtimeHandle) Get() any {
	return h.instance
}

// Descriptor implements ServiceHandle interface.
func (h *runtimeHandle) Descriptor() Descriptor {
	return h.descriptor
}

// Release implements ServiceHandle interface.
func (h *runtimeHandle) Release() error {
	var err error
	h.once.Do(func() {
		if h.release != nil {
			err = h.release()
		}
	})
	return err
}

// runtimeTransaction is the runtime configuration transaction.
type runtimeTransaction struct {
	runtime   *Runtime
	pending   []Descriptor
	committed bool
}

// Add implements ConfigTransaction interface.
func (t *runtimeTransaction) Add(descriptors ...Descriptor) {
	t.pending = append(t.pending, descriptors...)
}

// Commit implements ConfigTransaction interface. The batch becomes
// visible atomically, then configuration listeners fire once.
func (t *runtimeTransaction) Commit() error {
	if t.committed {
		return errors.New("transaction is already committed")
	}
	t.committed = true

	t.runtime.mutex.Lock()
	if t.runtime.closed {
		t.runtime.mutex.Unlock()
		return errors.New("runtime is closed")
	}
	t.runtime.descriptors = append(t.runtime.descriptors, t.pending...)
	t.runtime.mutex.Unlock()

	return t.runtime.fireListeners()
}
