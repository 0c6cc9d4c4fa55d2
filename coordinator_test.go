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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coordC struct {
	value string
}

type coordB struct{}

func (b *coordB) ProvideC() *coordC {
	return &coordC{value: "chained"}
}

type coordA struct{}

func (a *coordA) ProvideB() *coordB {
	return &coordB{}
}

func TestExtensionResolvesProviderChain(t *testing.T) {
	runtime := NewRuntime(WithListeners(NewExtension()))
	require.NoError(t, runtime.Register(Component(&coordA{})))

	// The chained class was registered by reacting to the commit of
	// its own provider, two levels deep.
	instance, err := runtime.Lookup(reflect.TypeOf(&coordC{}))
	require.NoError(t, err)
	assert.Equal(t, "chained", instance.(*coordC).value)
}

func TestExtensionTimedDiscovery(t *testing.T) {
	runtime := NewRuntime(WithListeners(NewExtension(WithTiming())))
	require.NoError(t, runtime.Register(Component(&coordA{})))

	// Discovery runs inside a timing span and still reaches the fixed
	// point of the chain.
	instance, err := runtime.Lookup(reflect.TypeOf(&coordC{}))
	require.NoError(t, err)
	assert.Equal(t, "chained", instance.(*coordC).value)
}

func TestIndependentExtensionsRecordClassOnce(t *testing.T) {
	runtime := NewRuntime(WithListeners(NewExtension(), NewExtension()))
	require.NoError(t, runtime.Register(Component(&coordA{})))

	// Both listeners observe every commit, but the analyzed-class table
	// is shared per registry: each class contributes one descriptor.
	for _, contract := range []reflect.Type{reflect.TypeOf(&coordB{}), reflect.TypeOf(&coordC{})} {
		instances, err := runtime.LookupAll(contract)
		require.NoError(t, err)
		assert.Len(t, instances, 1)
	}
}

type coordLoop struct {
	depth int
}

func (l *coordLoop) ProvideLoop() *coordLoop {
	return &coordLoop{depth: l.depth + 1}
}

func TestExtensionTerminatesSelfReferentialChain(t *testing.T) {
	runtime := NewRuntime(WithListeners(NewExtension()))
	require.NoError(t, runtime.Register(Component(&coordLoop{})))

	// The provided class is the providing class: discovery must reach
	// a fixed point instead of recursing.
	instance, err := runtime.Lookup(reflect.TypeOf(&coordLoop{}))
	require.NoError(t, err)
	assert.NotNil(t, instance)
}

type coordCodecs struct{}

type coordJSONCodec struct {
	name string
}

func newCoordJSONCodec() *coordJSONCodec {
	return &coordJSONCodec{name: "json"}
}

func TestExtensionScansPlaceholderClasses(t *testing.T) {
	placeholder := ComponentClass((*coordCodecs)(nil),
		WithMembers(Func(newCoordJSONCodec)))

	runtime := NewRuntime(WithListeners(NewExtension()))
	require.NoError(t, runtime.Register(placeholder))

	// Static members of the placeholder resolve normally.
	instance, err := runtime.Lookup(reflect.TypeOf(&coordJSONCodec{}))
	require.NoError(t, err)
	assert.Equal(t, "json", instance.(*coordJSONCodec).name)

	// The placeholder itself is not instantiable.
	_, err = placeholder.Create(runtime)
	assert.ErrorIs(t, err, ErrNotInstantiable)
}

// countingListener records the registry size at every configuration
// change.
type countingListener struct {
	counts []int
}

func (l *countingListener) ConfigChanged(_ context.Context, registry ServiceRegistry) error {
	l.counts = append(l.counts, len(registry.Descriptors(nil)))
	return nil
}

func TestExtensionCommitsAtomicBatches(t *testing.T) {
	counter := &countingListener{}
	runtime := NewRuntime(WithListeners(counter, NewExtension()))
	require.NoError(t, runtime.Register(Component(&coordA{})))

	// Every commit is one batch: the initial registration, then one
	// synthesized descriptor per chain level.
	assert.Equal(t, []int{1, 2, 3}, counter.counts)
}

func TestExtensionFailsOnBrokenRegistration(t *testing.T) {
	runtime := NewRuntime(WithListeners(NewExtension()))

	err := runtime.Register(Component(&scanProvider{},
		WithMembers(Method("ProvideConn", WithDispose("Missing", DisposedByProvidedInstance)))))
	assert.ErrorIs(t, err, ErrDisposeMethodNotFound)
}

type coordWidget struct {
	name string
}

type coordGadget struct {
	name string
}

// coordTrinket has no provider member anywhere.
type coordTrinket struct{}

type coordCrate[T any] struct {
	item T
}

func (c *coordCrate[T]) ProvideItem() T {
	return c.item
}

type coordWidgetCrate struct {
	coordCrate[coordWidget]
}

type coordGadgetCrate struct {
	coordCrate[coordGadget]
}

var coordCrateDecl = NewGenericDecl("coordCrate", "T").
	Specialize(reflect.TypeOf(coordCrate[coordWidget]{}), reflect.TypeOf(coordWidget{})).
	Specialize(reflect.TypeOf(coordCrate[coordGadget]{}), reflect.TypeOf(coordGadget{}))

func init() {
	coordCrateDecl.DeclareMembers(
		Method("ProvideItem", WithValueType(coordCrateDecl.Var("T"))))
}

func TestProvidedSpecializationsAreIndependent(t *testing.T) {
	runtime := NewRuntime(WithListeners(NewExtension()))
	require.NoError(t, runtime.Register(
		Component(&coordWidgetCrate{coordCrate[coordWidget]{item: coordWidget{name: "w"}}}),
		Component(&coordGadgetCrate{coordCrate[coordGadget]{item: coordGadget{name: "g"}}})))

	// Each embedding class resolves the mixin member against its own
	// specialization, yielding two independent services.
	widget, err := runtime.Lookup(reflect.TypeOf(coordWidget{}))
	require.NoError(t, err)
	assert.Equal(t, coordWidget{name: "w"}, widget)

	gadget, err := runtime.Lookup(reflect.TypeOf(coordGadget{}))
	require.NoError(t, err)
	assert.Equal(t, coordGadget{name: "g"}, gadget)

	// A specialization nobody declared a member for is not found.
	_, err = runtime.Lookup(reflect.TypeOf(coordTrinket{}))
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestExtensionSettingsApply(t *testing.T) {
	settings := Settings{Strict: true, Timing: true}
	extension := NewExtension(WithExtensionSettings(settings))

	assert.True(t, extension.strict)
	assert.True(t, extension.timing)
	assert.NotNil(t, extension.log)
}
