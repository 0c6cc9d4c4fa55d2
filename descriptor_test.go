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
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type descService struct {
	stopped     bool
	initialized bool
}

func (s *descService) Constructor() error {
	s.initialized = true
	return nil
}

func (s *descService) Shutdown() error {
	s.stopped = true
	return nil
}

type descProvider struct {
	recycled int
}

func (p *descProvider) ProvideService() *descService {
	return &descService{}
}

func (p *descProvider) ProvideConn(db *scanDB) *scanConn {
	return &scanConn{db: db}
}

func (p *descProvider) ProvideMissing() *scanConn {
	return nil
}

func (p *descProvider) ProvideBroken() (*scanConn, error) {
	return nil, errors.New("connection refused")
}

func (p *descProvider) Recycle(conn *scanConn) error {
	conn.closed = true
	p.recycled++
	return nil
}

func newDescFixture(t *testing.T, opts ...ComponentOpt) (*Runtime, []Descriptor, *descProvider) {
	t.Helper()
	runtime := NewRuntime()
	instance := &descProvider{}
	provider := Component(instance, opts...)
	require.NoError(t, runtime.Register(provider, Component(&scanDB{dsn: "test"})))

	descriptors, _, err := newScanner(nil, false).scanClass(
		runtime, reflect.TypeOf(instance), provider)
	require.NoError(t, err)
	return runtime, descriptors, instance
}

func TestCreateInjectsDependencies(t *testing.T) {
	runtime, descriptors, _ := newDescFixture(t)

	instance, err := descriptorByMember(t, descriptors, "ProvideConn").Create(runtime)
	require.NoError(t, err)

	conn := instance.(*scanConn)
	require.NotNil(t, conn.db)
	assert.Equal(t, "test", conn.db.dsn)
}

func TestCreateAppliesPostConstruct(t *testing.T) {
	runtime, descriptors, _ := newDescFixture(t)

	instance, err := descriptorByMember(t, descriptors, "ProvideService").Create(runtime)
	require.NoError(t, err)
	assert.True(t, instance.(*descService).initialized)
}

func TestCreateNilResultSkipsHooks(t *testing.T) {
	runtime, descriptors, _ := newDescFixture(t,
		WithMembers(Method("ProvideMissing", AllowNil())))

	instance, err := descriptorByMember(t, descriptors, "ProvideMissing").Create(runtime)
	require.NoError(t, err)
	assert.Nil(t, instance)
}

func TestCreateRejectsUnexpectedNil(t *testing.T) {
	runtime, descriptors, _ := newDescFixture(t)

	_, err := descriptorByMember(t, descriptors, "ProvideMissing").Create(runtime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned nil")
}

func TestCreatePropagatesProviderError(t *testing.T) {
	runtime, descriptors, _ := newDescFixture(t)

	_, err := descriptorByMember(t, descriptors, "ProvideBroken").Create(runtime)
	require.Error(t, err)

	var memberErr *MemberError
	require.ErrorAs(t, err, &memberErr)
	assert.Equal(t, "ProvideBroken", memberErr.Member)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDisposeByContainerUsesPreDestroy(t *testing.T) {
	_, descriptors, _ := newDescFixture(t)

	conn := &scanConn{}
	require.NoError(t, descriptorByMember(t, descriptors, "ProvideConn").Dispose(conn))
	assert.True(t, conn.closed)
}

func TestDisposeByProvidedInstance(t *testing.T) {
	_, descriptors, _ := newDescFixture(t,
		WithMembers(Method("ProvideService", WithDispose("Shutdown", DisposedByProvidedInstance))))

	service := &descService{}
	require.NoError(t, descriptorByMember(t, descriptors, "ProvideService").Dispose(service))
	assert.True(t, service.stopped)
}

func TestDisposeByProvider(t *testing.T) {
	_, descriptors, instance := newDescFixture(t,
		WithMembers(Method("ProvideConn", WithDispose("Recycle", DisposedByProvider))))

	conn := &scanConn{}
	require.NoError(t, descriptorByMember(t, descriptors, "ProvideConn").Dispose(conn))
	assert.True(t, conn.closed)
	assert.Equal(t, 1, instance.recycled)
}

func TestDisposeToleratesNil(t *testing.T) {
	_, descriptors, _ := newDescFixture(t)

	descriptor := descriptorByMember(t, descriptors, "ProvideConn")
	assert.NoError(t, descriptor.Dispose(nil))
	assert.NoError(t, descriptor.Dispose((*scanConn)(nil)))
}

type descRanked struct{}

func (r descRanked) Rank() int {
	return 7
}

type descRankedProvider struct{}

func (p *descRankedProvider) ProvideRanked() descRanked {
	return descRanked{}
}

func TestRankFromImplementation(t *testing.T) {
	runtime := NewRuntime()
	provider := Component(&descRankedProvider{})
	require.NoError(t, runtime.Register(provider))

	descriptors, _, err := newScanner(nil, false).scanClass(
		runtime, reflect.TypeOf(&descRankedProvider{}), provider)
	require.NoError(t, err)

	assert.Equal(t, 7, descriptorByMember(t, descriptors, "ProvideRanked").Rank())
}

func TestExplicitRankWins(t *testing.T) {
	runtime := NewRuntime()
	provider := Component(&descRankedProvider{},
		WithMembers(Method("ProvideRanked", WithRank(3))))
	require.NoError(t, runtime.Register(provider))

	descriptors, _, err := newScanner(nil, false).scanClass(
		runtime, reflect.TypeOf(&descRankedProvider{}), provider)
	require.NoError(t, err)

	assert.Equal(t, 3, descriptorByMember(t, descriptors, "ProvideRanked").Rank())
}

func TestCacheSlotCreatesOnce(t *testing.T) {
	slot := &CacheSlot{}
	calls := 0
	create := func() (any, error) {
		calls++
		return "value", nil
	}

	first, err := slot.GetOrCreate(create)
	require.NoError(t, err)
	second, err := slot.GetOrCreate(create)
	require.NoError(t, err)

	assert.Equal(t, "value", first)
	assert.Equal(t, "value", second)
	assert.Equal(t, 1, calls)

	evicted, filled := slot.Clear()
	assert.True(t, filled)
	assert.Equal(t, "value", evicted)
	_, filled = slot.Clear()
	assert.False(t, filled)
}
