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
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// The Go runtime erases generic type parameters: an instantiation like
// Cache[User] is an ordinary concrete type with no visible relation to
// its generic declaration. To let reusable generic mixins declare
// provider members whose value and parameter types mention the mixin
// type parameters, the extension carries its own symbolic type layer.
//
// A TypeNode is either a concrete class (wrapping a reflect.Type), a
// type variable scoped to one generic declaration, an instantiation of
// a generic declaration with type node arguments, or a slice/pointer
// composite. The type resolver substitutes variables using bindings
// collected from a concrete component type.

// TypeNode declares one node of the symbolic type layer.
type TypeNode interface {
	// String returns a diagnostic representation of the node.
	String() string

	// typeNode seals the interface.
	typeNode()
}

// classNode wraps a concrete runtime type.
type classNode struct {
	rt reflect.Type
}

func (n classNode) typeNode()      {}
func (n classNode) String() string { return n.rt.String() }

// varNode is a type variable owned by one generic declaration.
// Variables with equal names under distinct declarations are distinct.
type varNode struct {
	decl *GenericDecl
	name string
}

func (n varNode) typeNode() {}
func (n varNode) String() string {
	return fmt.Sprintf("%s.%s", n.decl.name, n.name)
}

// instNode is an instantiation of a generic declaration.
type instNode struct {
	decl *GenericDecl
	args []TypeNode
}

func (n *instNode) typeNode() {}
func (n *instNode) String() string {
	args := make([]string, 0, len(n.args))
	for _, arg := range n.args {
		args = append(args, arg.String())
	}
	return fmt.Sprintf("%s[%s]", n.decl.name, strings.Join(args, ", "))
}

// sliceNode is a slice of an element node.
type sliceNode struct {
	elem TypeNode
}

func (n *sliceNode) typeNode()      {}
func (n *sliceNode) String() string { return "[]" + n.elem.String() }

// pointerNode is a pointer to an element node.
type pointerNode struct {
	elem TypeNode
}

func (n *pointerNode) typeNode()      {}
func (n *pointerNode) String() string { return "*" + n.elem.String() }

// Class returns a concrete type node.
func Class(typ reflect.Type) TypeNode {
	return classNode{rt: typ}
}

// ClassOf returns a concrete type node for the type argument.
func ClassOf[T any]() TypeNode {
	return classNode{rt: reflect.TypeOf((*T)(nil)).Elem()}
}

// Inst returns an instantiation node of the generic declaration.
func Inst(decl *GenericDecl, args ...TypeNode) TypeNode {
	if len(args) != len(decl.params) {
		panic(fmt.Sprintf("instantiation of '%s' expects %d arguments, got %d",
			decl.name, len(decl.params), len(args)))
	}
	return &instNode{decl: decl, args: args}
}

// SliceOf returns a slice node of the element node.
func SliceOf(elem TypeNode) TypeNode {
	return &sliceNode{elem: elem}
}

// PointerTo returns a pointer node to the element node.
func PointerTo(elem TypeNode) TypeNode {
	return &pointerNode{elem: elem}
}

// GenericDecl describes a generic declaration site: a named generic
// type with its own type parameters, the provider members declared on
// it, and the known concrete specializations.
type GenericDecl struct {
	name   string
	params []string

	mu      sync.RWMutex
	members []MemberSpec
	specs   []specialization
}

// specialization maps one concrete instantiation to its argument types.
type specialization struct {
	decl     *GenericDecl
	concrete reflect.Type
	args     []reflect.Type
}

// specializationIndex resolves a concrete embedded type back to the
// generic declaration it instantiates. Filled by Specialize.
var specializationIndex = xsync.NewMapOf[reflect.Type, specialization]()

// NewGenericDecl declares a generic declaration site with named
// type parameters.
func NewGenericDecl(name string, params ...string) *GenericDecl {
	if name == "" {
		panic("generic declaration requires a name")
	}
	if len(params) == 0 {
		panic(fmt.Sprintf("generic declaration '%s' requires type parameters", name))
	}
	return &GenericDecl{name: name, params: params}
}

// Var returns the type variable node of a declared parameter.
func (d *GenericDecl) Var(name string) TypeNode {
	for _, param := range d.params {
		if param == name {
			return varNode{decl: d, name: name}
		}
	}
	panic(fmt.Sprintf("generic declaration '%s' has no parameter '%s'", d.name, name))
}

// Specialize registers a concrete instantiation of the declaration.
// The concrete type becomes recognizable during the binding walk, and
// instantiation nodes with matching argument types resolve to it.
func (d *GenericDecl) Specialize(concrete reflect.Type, args ...reflect.Type) *GenericDecl {
	if len(args) != len(d.params) {
		panic(fmt.Sprintf("specialization of '%s' expects %d arguments, got %d",
			d.name, len(d.params), len(args)))
	}

	spec := specialization{decl: d, concrete: concrete, args: args}

	d.mu.Lock()
	d.specs = append(d.specs, spec)
	d.mu.Unlock()

	specializationIndex.Store(concrete, spec)
	return d
}

// DeclareMembers declares provider members on the generic declaration.
// Member value and parameter types may mention the declaration's own
// type variables; they are resolved per embedding component at scan time.
func (d *GenericDecl) DeclareMembers(specs ...MemberSpec) *GenericDecl {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members = append(d.members, specs...)
	return d
}

// declaredMembers returns a snapshot of declared members.
func (d *GenericDecl) declaredMembers() []MemberSpec {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]MemberSpec(nil), d.members...)
}

// findSpecialization returns the concrete type registered for the
// argument types, if any.
func (d *GenericDecl) findSpecialization(args []reflect.Type) (reflect.Type, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

specs:
	for _, spec := range d.specs {
		for index, arg := range spec.args {
			if arg != args[index] {
				continue specs
			}
		}
		return spec.concrete, true
	}
	return nil, false
}

// lookupSpecialization resolves a concrete type to its declaration
// and argument types, if the type was registered as a specialization.
func lookupSpecialization(typ reflect.Type) (specialization, bool) {
	return specializationIndex.Load(typ)
}
