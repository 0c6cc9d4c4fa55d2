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

import "reflect"

// bindingKey identifies a type variable by declaration and name, so
// identically named variables of distinct declarations never conflate.
type bindingKey struct {
	decl *GenericDecl
	name string
}

// typeBindings maps type variables to their bound nodes for one
// concrete context type.
type typeBindings map[bindingKey]TypeNode

// bindingsFor builds variable bindings for the context type by walking
// its embedded-field chain upward. Every embedded type registered as a
// specialization of a generic declaration binds that declaration's
// parameters to the instantiation arguments. The first binding found
// for a variable wins; a visited set terminates self-referential
// embedding chains.
func bindingsFor(context reflect.Type) typeBindings {
	bindings := typeBindings{}
	visited := map[reflect.Type]bool{}
	walkEmbedded(context, bindings, visited)
	return bindings
}

// walkEmbedded visits the type and recurses into embedded fields.
func walkEmbedded(typ reflect.Type, bindings typeBindings, visited map[reflect.Type]bool) {
	if typ == nil {
		return
	}
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if visited[typ] {
		return
	}
	visited[typ] = true

	// Bind declaration parameters of a recognized instantiation.
	if spec, ok := lookupSpecialization(typ); ok {
		for index, param := range spec.decl.params {
			key := bindingKey{decl: spec.decl, name: param}
			if _, bound := bindings[key]; !bound {
				bindings[key] = Class(spec.args[index])
			}
		}
	}

	if typ.Kind() != reflect.Struct {
		return
	}

	// Recurse into embedded fields only: they form the Go analog of the
	// superclass and interface chain of the component type.
	for index := 0; index < typ.NumField(); index++ {
		field := typ.Field(index)
		if !field.Anonymous {
			continue
		}
		walkEmbedded(field.Type, bindings, visited)
	}
}

// resolveTypeNode substitutes every type variable occurring in the node
// using the bindings of the context type. Unresolvable variables remain
// in the result; resolution itself never fails.
func resolveTypeNode(context reflect.Type, node TypeNode) TypeNode {
	return substituteNode(node, bindingsFor(context))
}

// substituteNode applies bindings to one node recursively.
func substituteNode(node TypeNode, bindings typeBindings) TypeNode {
	switch n := node.(type) {
	case classNode:
		return n

	case varNode:
		if bound, ok := bindings[bindingKey{decl: n.decl, name: n.name}]; ok {
			return bound
		}
		return n

	case *instNode:
		args := make([]TypeNode, 0, len(n.args))
		concrete := make([]reflect.Type, 0, len(n.args))
		allConcrete := true
		for _, arg := range n.args {
			resolved := substituteNode(arg, bindings)
			args = append(args, resolved)
			if rt, ok := runtimeType(resolved); ok {
				concrete = append(concrete, rt)
			} else {
				allConcrete = false
			}
		}

		// A fully concrete instantiation collapses to its registered
		// specialization type when one exists.
		if allConcrete {
			if rt, ok := n.decl.findSpecialization(concrete); ok {
				return Class(rt)
			}
		}
		return &instNode{decl: n.decl, args: args}

	case *sliceNode:
		elem := substituteNode(n.elem, bindings)
		if rt, ok := runtimeType(elem); ok {
			return Class(reflect.SliceOf(rt))
		}
		return &sliceNode{elem: elem}

	case *pointerNode:
		elem := substituteNode(n.elem, bindings)
		if rt, ok := runtimeType(elem); ok {
			return Class(reflect.PointerTo(rt))
		}
		return &pointerNode{elem: elem}

	default:
		return node
	}
}

// containsTypeVariable structurally recurses into instantiations and
// slice/pointer composites, returning true the moment a bare variable
// is found at any depth. A visited set guards against cyclic nodes.
func containsTypeVariable(node TypeNode) bool {
	return containsVariable(node, map[TypeNode]bool{})
}

func containsVariable(node TypeNode, visited map[TypeNode]bool) bool {
	if visited[node] {
		return false
	}
	visited[node] = true

	switch n := node.(type) {
	case varNode:
		return true
	case *instNode:
		for _, arg := range n.args {
			if containsVariable(arg, visited) {
				return true
			}
		}
		return false
	case *sliceNode:
		return containsVariable(n.elem, visited)
	case *pointerNode:
		return containsVariable(n.elem, visited)
	default:
		return false
	}
}

// runtimeType returns the concrete runtime type of a fully resolved
// node. Instantiations resolve through registered specializations.
func runtimeType(node TypeNode) (reflect.Type, bool) {
	switch n := node.(type) {
	case classNode:
		return n.rt, true

	case *instNode:
		args := make([]reflect.Type, 0, len(n.args))
		for _, arg := range n.args {
			rt, ok := runtimeType(arg)
			if !ok {
				return nil, false
			}
			args = append(args, rt)
		}
		return n.decl.findSpecialization(args)

	case *sliceNode:
		if rt, ok := runtimeType(n.elem); ok {
			return reflect.SliceOf(rt), true
		}
		return nil, false

	case *pointerNode:
		if rt, ok := runtimeType(n.elem); ok {
			return reflect.PointerTo(rt), true
		}
		return nil, false

	default:
		return nil, false
	}
}
