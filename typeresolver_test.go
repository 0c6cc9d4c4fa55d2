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

type trUser struct {
	Name string
}

type trOrder struct {
	ID string
}

// trStore is a generic mixin embedded by concrete components.
type trStore[T any] struct {
	item T
}

type trUserComponent struct {
	trStore[trUser]
}

type trOrderComponent struct {
	trStore[trOrder]
}

// trStoreDecl mirrors the trStore declaration in the symbolic layer.
var trStoreDecl = NewGenericDecl("trStore", "T").
	Specialize(reflect.TypeOf(trStore[trUser]{}), reflect.TypeOf(trUser{})).
	Specialize(reflect.TypeOf(trStore[trOrder]{}), reflect.TypeOf(trOrder{}))

func TestResolveVarThroughEmbedding(t *testing.T) {
	node := resolveTypeNode(reflect.TypeOf(trUserComponent{}), trStoreDecl.Var("T"))

	rt, ok := runtimeType(node)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(trUser{}), rt)
}

func TestResolveVarPerEmbeddingContext(t *testing.T) {
	userNode := resolveTypeNode(reflect.TypeOf(trUserComponent{}), trStoreDecl.Var("T"))
	orderNode := resolveTypeNode(reflect.TypeOf(&trOrderComponent{}), trStoreDecl.Var("T"))

	userType, ok := runtimeType(userNode)
	require.True(t, ok)
	orderType, ok := runtimeType(orderNode)
	require.True(t, ok)

	assert.Equal(t, reflect.TypeOf(trUser{}), userType)
	assert.Equal(t, reflect.TypeOf(trOrder{}), orderType)
}

func TestResolveSliceAndPointerComposites(t *testing.T) {
	context := reflect.TypeOf(trUserComponent{})

	sliced := resolveTypeNode(context, SliceOf(trStoreDecl.Var("T")))
	rt, ok := runtimeType(sliced)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf([]trUser{}), rt)

	pointed := resolveTypeNode(context, PointerTo(trStoreDecl.Var("T")))
	rt, ok = runtimeType(pointed)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(&trUser{}), rt)
}

func TestResolveInstantiationCollapses(t *testing.T) {
	node := resolveTypeNode(reflect.TypeOf(trUserComponent{}),
		Inst(trStoreDecl, trStoreDecl.Var("T")))

	rt, ok := runtimeType(node)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(trStore[trUser]{}), rt)
}

func TestUnboundVariableRemains(t *testing.T) {
	// The context embeds no specialization of the declaration.
	node := resolveTypeNode(reflect.TypeOf(trUser{}), trStoreDecl.Var("T"))

	assert.True(t, containsTypeVariable(node))
	_, ok := runtimeType(node)
	assert.False(t, ok)
}

func TestContainsTypeVariableRecurses(t *testing.T) {
	assert.True(t, containsTypeVariable(SliceOf(trStoreDecl.Var("T"))))
	assert.True(t, containsTypeVariable(PointerTo(trStoreDecl.Var("T"))))
	assert.True(t, containsTypeVariable(Inst(trStoreDecl, trStoreDecl.Var("T"))))
	assert.False(t, containsTypeVariable(ClassOf[trUser]()))
	assert.False(t, containsTypeVariable(SliceOf(ClassOf[trUser]())))
}

func TestInstantiationWithoutSpecialization(t *testing.T) {
	_, ok := runtimeType(Inst(trStoreDecl, ClassOf[string]()))
	assert.False(t, ok)
}

type trBox[T any] struct {
	value T
}

type trBoxComponent struct {
	trBox[trOrder]
}

func TestDistinctDeclarationsNeverConflate(t *testing.T) {
	boxDecl := NewGenericDecl("trBox", "T").
		Specialize(reflect.TypeOf(trBox[trOrder]{}), reflect.TypeOf(trOrder{}))

	// Both declarations name their parameter "T"; only the embedded
	// declaration binds in this context.
	node := resolveTypeNode(reflect.TypeOf(trBoxComponent{}), boxDecl.Var("T"))
	rt, ok := runtimeType(node)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(trOrder{}), rt)

	other := resolveTypeNode(reflect.TypeOf(trBoxComponent{}), trStoreDecl.Var("T"))
	assert.True(t, containsTypeVariable(other))
}

func TestVarPanicsOnUnknownParameter(t *testing.T) {
	assert.Panics(t, func() {
		trStoreDecl.Var("U")
	})
}

func TestInstPanicsOnArityMismatch(t *testing.T) {
	assert.Panics(t, func() {
		Inst(trStoreDecl, ClassOf[trUser](), ClassOf[trOrder]())
	})
}
