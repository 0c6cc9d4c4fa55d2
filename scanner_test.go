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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanDB struct {
	dsn string
}

type scanConn struct {
	db     *scanDB
	closed bool
}

func (c *scanConn) Close() error {
	c.closed = true
	return nil
}

// scanCache carries a singleton scope marker on its own type.
type scanCache struct {
	entries map[string]string
}

func (c *scanCache) SingletonScoped() {}

type scanProvider struct {
	Limits int `provide:"scope=singleton"`
}

func (p *scanProvider) ProvideConn(db *scanDB) *scanConn {
	return &scanConn{db: db}
}

func (p *scanProvider) ProvideName() string {
	return "primary"
}

func (p *scanProvider) Helper() int {
	return 0
}

func (p *scanProvider) CloseConn(conn *scanConn) error {
	return conn.Close()
}

func newScanFixture(t *testing.T, opts ...ComponentOpt) (*Runtime, Descriptor, reflect.Type) {
	t.Helper()
	runtime := NewRuntime()
	provider := Component(&scanProvider{Limits: 10}, opts...)
	require.NoError(t, runtime.Register(provider, Component(&scanDB{dsn: "test"})))
	return runtime, provider, reflect.TypeOf(&scanProvider{})
}

func descriptorByMember(t *testing.T, descriptors []Descriptor, name string) *serviceDescriptor {
	t.Helper()
	for _, descriptor := range descriptors {
		if sd, ok := descriptor.(*serviceDescriptor); ok && sd.memberName == name {
			return sd
		}
	}
	t.Fatalf("no descriptor for member '%s'", name)
	return nil
}

func TestScanDiscoversMembers(t *testing.T) {
	runtime, provider, class := newScanFixture(t)
	scan := newScanner(nil, false)

	descriptors, fresh, err := scan.scanClass(runtime, class, provider)
	require.NoError(t, err)
	assert.True(t, fresh)
	require.Len(t, descriptors, 3)

	conn := descriptorByMember(t, descriptors, "ProvideConn")
	assert.Equal(t, reflect.TypeOf(&scanConn{}), conn.Implementation())
	assert.Contains(t, conn.Contracts(), reflect.TypeOf(&scanConn{}))

	name := descriptorByMember(t, descriptors, "ProvideName")
	assert.Equal(t, reflect.TypeOf(""), name.Implementation())

	limits := descriptorByMember(t, descriptors, "Limits")
	assert.Equal(t, reflect.TypeOf(0), limits.Implementation())
	assert.Equal(t, ScopeSingleton, limits.Scope())
}

func TestScanIsIdempotent(t *testing.T) {
	runtime, provider, class := newScanFixture(t)
	scan := newScanner(nil, false)

	first, fresh, err := scan.scanClass(runtime, class, provider)
	require.NoError(t, err)
	assert.True(t, fresh)

	second, fresh, err := scan.scanClass(runtime, class, provider)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, len(first), len(second))
}

func TestScanScopeCascade(t *testing.T) {
	t.Run("nilable forces per-lookup", func(t *testing.T) {
		runtime, provider, class := newScanFixture(t,
			WithMembers(Method("ProvideConn", AllowNil())))
		descriptors, _, err := newScanner(nil, false).scanClass(runtime, class, provider)
		require.NoError(t, err)
		assert.Equal(t, ScopePerLookup, descriptorByMember(t, descriptors, "ProvideConn").Scope())
	})

	t.Run("explicit member scope wins", func(t *testing.T) {
		runtime, provider, class := newScanFixture(t,
			WithMembers(Method("ProvideConn", WithScope(ScopePerLookup))))
		descriptors, _, err := newScanner(nil, false).scanClass(runtime, class, provider)
		require.NoError(t, err)
		assert.Equal(t, ScopePerLookup, descriptorByMember(t, descriptors, "ProvideConn").Scope())
	})

	t.Run("contract marker applies", func(t *testing.T) {
		runtime, provider, class := newScanFixture(t,
			WithMembers(Func(func() *scanCache { return &scanCache{} })))
		descriptors, _, err := newScanner(nil, false).scanClass(runtime, class, provider)
		require.NoError(t, err)

		for _, descriptor := range descriptors {
			if descriptor.Implementation() == reflect.TypeOf(&scanCache{}) {
				assert.Equal(t, ScopeSingleton, descriptor.Scope())
				return
			}
		}
		t.Fatal("cache descriptor not found")
	})

	t.Run("instance members inherit owner scope", func(t *testing.T) {
		runtime, provider, class := newScanFixture(t)
		descriptors, _, err := newScanner(nil, false).scanClass(runtime, class, provider)
		require.NoError(t, err)
		assert.Equal(t, ScopeSingleton, descriptorByMember(t, descriptors, "ProvideConn").Scope())
	})

	t.Run("static members default to per-lookup", func(t *testing.T) {
		runtime, provider, class := newScanFixture(t,
			WithMembers(Func(func() *scanConn { return &scanConn{} })))
		descriptors, _, err := newScanner(nil, false).scanClass(runtime, class, provider)
		require.NoError(t, err)

		for _, descriptor := range descriptors {
			sd := descriptor.(*serviceDescriptor)
			if sd.accessor.static() && sd.Implementation() == reflect.TypeOf(&scanConn{}) {
				assert.Equal(t, ScopePerLookup, sd.Scope())
				return
			}
		}
		t.Fatal("static descriptor not found")
	})
}

func TestScanExplicitMemberOverridesAuto(t *testing.T) {
	runtime, provider, class := newScanFixture(t,
		WithMembers(Method("ProvideConn", WithScope(ScopePerLookup))))
	descriptors, _, err := newScanner(nil, false).scanClass(runtime, class, provider)
	require.NoError(t, err)

	// The explicit declaration replaces the auto-discovered member.
	count := 0
	for _, descriptor := range descriptors {
		if descriptor.(*serviceDescriptor).memberName == "ProvideConn" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, ScopePerLookup, descriptorByMember(t, descriptors, "ProvideConn").Scope())
}

func TestScanMissingDisposeMethodFails(t *testing.T) {
	runtime, provider, class := newScanFixture(t,
		WithMembers(Method("ProvideConn", WithDispose("Shutdown", DisposedByProvidedInstance))))
	scan := newScanner(nil, false)

	_, fresh, err := scan.scanClass(runtime, class, provider)
	assert.ErrorIs(t, err, ErrDisposeMethodNotFound)
	assert.False(t, fresh)

	// A failed class stays unrecorded so a corrected registration can
	// be analyzed again.
	fixedProvider := Component(&scanProvider{},
		WithMembers(Method("ProvideConn", WithDispose("Close", DisposedByProvidedInstance))))
	descriptors, fresh, err := scan.scanClass(runtime, class, fixedProvider)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, DisposedByProvidedInstance,
		descriptorByMember(t, descriptors, "ProvideConn").dispose.policy)
}

func TestScanProviderDisposeMethod(t *testing.T) {
	runtime, provider, class := newScanFixture(t,
		WithMembers(Method("ProvideConn", WithDispose("CloseConn", DisposedByProvider))))
	descriptors, _, err := newScanner(nil, false).scanClass(runtime, class, provider)
	require.NoError(t, err)

	conn := descriptorByMember(t, descriptors, "ProvideConn")
	assert.Equal(t, DisposedByProvider, conn.dispose.policy)
	assert.Equal(t, "CloseConn", conn.dispose.providerMethod.Name)
}

func TestScanStaticDisposeFunc(t *testing.T) {
	runtime, provider, class := newScanFixture(t,
		WithMembers(Func(func() *scanConn { return &scanConn{} },
			WithDisposeFunc(func(conn *scanConn) error { return conn.Close() }))))
	descriptors, _, err := newScanner(nil, false).scanClass(runtime, class, provider)
	require.NoError(t, err)

	for _, descriptor := range descriptors {
		sd := descriptor.(*serviceDescriptor)
		if sd.accessor.static() {
			assert.True(t, sd.dispose.disposeFn.IsValid())
			return
		}
	}
	t.Fatal("static descriptor not found")
}

func TestScanStaticProviderDisposeRequiresFunc(t *testing.T) {
	runtime, provider, class := newScanFixture(t,
		WithMembers(Func(func() *scanConn { return &scanConn{} },
			WithDispose("CloseConn", DisposedByProvider))))

	_, _, err := newScanner(nil, false).scanClass(runtime, class, provider)
	assert.ErrorIs(t, err, ErrDisposeMethodNotFound)
}

type scanAwkward struct{}

func (p *scanAwkward) ProvideHook(callback func()) *scanConn {
	return nil
}

func (p *scanAwkward) ProvideConn() *scanConn {
	return &scanConn{}
}

func TestScanSkipsUnsupportedMembers(t *testing.T) {
	runtime := NewRuntime()
	provider := Component(&scanAwkward{})
	require.NoError(t, runtime.Register(provider))

	descriptors, _, err := newScanner(nil, false).scanClass(runtime, reflect.TypeOf(&scanAwkward{}), provider)
	require.NoError(t, err)

	// The func-taking member is skipped, the valid one survives.
	require.Len(t, descriptors, 1)
	assert.Equal(t, "ProvideConn", descriptors[0].(*serviceDescriptor).memberName)
}

func TestScanStrictModePromotesSkips(t *testing.T) {
	runtime := NewRuntime()
	provider := Component(&scanAwkward{})
	require.NoError(t, runtime.Register(provider))

	_, _, err := newScanner(nil, true).scanClass(runtime, reflect.TypeOf(&scanAwkward{}), provider)
	assert.ErrorIs(t, err, ErrUnsupportedParameter)
}

type scanItem struct {
	sku string
}

// scanShelf is a generic mixin declaring a provider member whose value
// type is the mixin type parameter.
type scanShelf[T any] struct {
	item T
}

func (s *scanShelf[T]) ProvideItem() T {
	return s.item
}

type scanShelfComponent struct {
	scanShelf[scanItem]
}

var scanShelfDecl = NewGenericDecl("scanShelf", "T").
	Specialize(reflect.TypeOf(scanShelf[scanItem]{}), reflect.TypeOf(scanItem{}))

func init() {
	scanShelfDecl.DeclareMembers(
		Method("ProvideItem", WithValueType(scanShelfDecl.Var("T"))))
}

func TestScanMixinMembers(t *testing.T) {
	runtime := NewRuntime()
	component := Component(&scanShelfComponent{scanShelf[scanItem]{item: scanItem{sku: "a-1"}}})
	require.NoError(t, runtime.Register(component))

	descriptors, _, err := newScanner(nil, false).scanClass(
		runtime, reflect.TypeOf(&scanShelfComponent{}), component)
	require.NoError(t, err)

	item := descriptorByMember(t, descriptors, "ProvideItem")
	assert.Equal(t, reflect.TypeOf(scanItem{}), item.Implementation())

	instance, err := item.Create(runtime)
	require.NoError(t, err)
	assert.Equal(t, scanItem{sku: "a-1"}, instance)
}

type scanTools struct{}

func (scanTools) ProvideBuffer() *scanConn {
	return &scanConn{}
}

func TestScanClassOnlySkipsInstanceMembers(t *testing.T) {
	runtime := NewRuntime()
	placeholder := ComponentClass((*scanTools)(nil),
		WithMembers(Func(func() *scanDB { return &scanDB{dsn: "static"} })))
	require.NoError(t, runtime.Register(placeholder))

	descriptors, _, err := newScanner(nil, false).scanClass(
		runtime, reflect.TypeOf(scanTools{}), placeholder)
	require.NoError(t, err)

	// The class cannot be instantiated, so the instance method is
	// rejected at scan time; the static member survives.
	require.Len(t, descriptors, 1)
	assert.True(t, descriptors[0].(*serviceDescriptor).accessor.static())
	assert.Equal(t, reflect.TypeOf(&scanDB{}), descriptors[0].Implementation())
}

type scanUnboundProvider struct{}

func (p *scanUnboundProvider) ProvideItem() scanItem {
	return scanItem{}
}

func TestScanUnresolvedVariableSkipped(t *testing.T) {
	runtime := NewRuntime()
	// The component does not embed a specialization, so the declared
	// value type variable stays unbound and the member is skipped.
	provider := Component(&scanUnboundProvider{},
		WithMembers(Method("ProvideItem", WithValueType(scanShelfDecl.Var("T")))))
	require.NoError(t, runtime.Register(provider))

	descriptors, _, err := newScanner(nil, false).scanClass(
		runtime, reflect.TypeOf(&scanUnboundProvider{}), provider)
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}
