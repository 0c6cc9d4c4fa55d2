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

// DisposedBy selects who performs disposal of a provided value.
type DisposedBy int

const (
	// DisposedByContainer delegates disposal to the container's
	// generic pre-destroy lifecycle hook. This is the default.
	DisposedByContainer DisposedBy = iota

	// DisposedByProvidedInstance invokes a named zero-argument method
	// on the provided value itself.
	DisposedByProvidedInstance

	// DisposedByProvider invokes a named method on the declaring
	// provider, passing the provided value as the only argument.
	DisposedByProvider
)

// memberKind discriminates the four provider member cases.
type memberKind int

const (
	memberMethod memberKind = iota
	memberField
	memberFunc
	memberVar
)

// String returns member kind name.
func (k memberKind) String() string {
	switch k {
	case memberMethod:
		return "method"
	case memberField:
		return "field"
	case memberFunc:
		return "func"
	default:
		return "var"
	}
}

// MemberSpec declares one provider member of a component class: a
// method or field of the component, or a standalone function or
// variable attached to the class registration. It is built with the
// Method, Field, Func and Var constructors and configured through
// functional options.
type MemberSpec struct {
	kind   memberKind
	name   string
	fn     any
	varPtr any

	valueType  TypeNode
	paramTypes map[int]TypeNode
	contracts  []TypeNode

	scope       Scope
	nilable     bool
	disposeName string
	disposedBy  DisposedBy
	disposeFn   any
	qualifiers  []any
	rank        int
	rankSet     bool

	paramQualifiers  map[int][]any
	paramUnqualified map[int][]reflect.Type
}

// MemberOpt configures a provider member spec.
type MemberOpt func(*MemberSpec)

// Method declares an instance method provider member by name.
func Method(name string, opts ...MemberOpt) MemberSpec {
	return newMemberSpec(MemberSpec{kind: memberMethod, name: name}, opts)
}

// Field declares an instance field provider member by name.
func Field(name string, opts ...MemberOpt) MemberSpec {
	return newMemberSpec(MemberSpec{kind: memberField, name: name}, opts)
}

// Func declares a static provider member backed by a function value.
func Func(fn any, opts ...MemberOpt) MemberSpec {
	fnValue := reflect.ValueOf(fn)
	if fnValue.Kind() != reflect.Func {
		panic(fmt.Sprintf("provider func member requires a function, got %T", fn))
	}
	name := getFuncName(fnValue)
	return newMemberSpec(MemberSpec{kind: memberFunc, name: name, fn: fn}, opts)
}

// Var declares a static provider member backed by a variable pointer.
func Var(ptr any, opts ...MemberOpt) MemberSpec {
	ptrValue := reflect.ValueOf(ptr)
	if ptrValue.Kind() != reflect.Pointer {
		panic(fmt.Sprintf("provider var member requires a pointer, got %T", ptr))
	}
	name := fmt.Sprintf("var[%s]", ptrValue.Type().Elem())
	return newMemberSpec(MemberSpec{kind: memberVar, name: name, varPtr: ptr}, opts)
}

// newMemberSpec applies options to the spec.
func newMemberSpec(spec MemberSpec, opts []MemberOpt) MemberSpec {
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}

// WithContracts overrides the advertised contract set of the member.
func WithContracts(contracts ...TypeNode) MemberOpt {
	return func(spec *MemberSpec) {
		spec.contracts = append(spec.contracts, contracts...)
	}
}

// WithScope sets an explicit scope on the member.
func WithScope(scope Scope) MemberOpt {
	return func(spec *MemberSpec) {
		spec.scope = scope
	}
}

// AllowNil marks the member as legitimately producing nil values.
// Such members are forced to the per-lookup scope.
func AllowNil() MemberOpt {
	return func(spec *MemberSpec) {
		spec.nilable = true
	}
}

// WithDispose sets the dispose method name and the disposing side.
func WithDispose(name string, by DisposedBy) MemberOpt {
	return func(spec *MemberSpec) {
		spec.disposeName = name
		spec.disposedBy = by
	}
}

// WithDisposeFunc sets a standalone dispose function on a static member,
// receiving the provided value as the only argument.
func WithDisposeFunc(fn any) MemberOpt {
	return func(spec *MemberSpec) {
		spec.disposeFn = fn
		spec.disposedBy = DisposedByProvider
	}
}

// WithQualifiers attaches qualifier values to the provided service.
func WithQualifiers(qualifiers ...any) MemberOpt {
	return func(spec *MemberSpec) {
		spec.qualifiers = append(spec.qualifiers, qualifiers...)
	}
}

// WithRank sets an explicit descriptor ranking.
func WithRank(rank int) MemberOpt {
	return func(spec *MemberSpec) {
		spec.rank = rank
		spec.rankSet = true
	}
}

// WithValueType overrides the declared value type of the member.
// The node may mention type variables of a generic declaration.
func WithValueType(node TypeNode) MemberOpt {
	return func(spec *MemberSpec) {
		spec.valueType = node
	}
}

// WithParamType overrides the declared type of one parameter.
func WithParamType(index int, node TypeNode) MemberOpt {
	return func(spec *MemberSpec) {
		if spec.paramTypes == nil {
			spec.paramTypes = map[int]TypeNode{}
		}
		spec.paramTypes[index] = node
	}
}

// WithParamQualifiers requires qualifiers on one injected parameter.
func WithParamQualifiers(index int, qualifiers ...any) MemberOpt {
	return func(spec *MemberSpec) {
		if spec.paramQualifiers == nil {
			spec.paramQualifiers = map[int][]any{}
		}
		spec.paramQualifiers[index] = append(spec.paramQualifiers[index], qualifiers...)
	}
}

// memberAccessor abstracts the four provider member cases behind one
// create capability: each variant closes over exactly the reflection
// state it needs and reports whether an owning instance is required.
type memberAccessor interface {
	// static reports whether invocation needs no owning instance.
	static() bool

	// valueType returns the declared type of provided values.
	valueType() reflect.Type

	// paramTypes returns formal parameter types of the member.
	paramTypes() []reflect.Type

	// invoke produces the provided value. The owner value is the
	// resolved owning instance for non-static members and is ignored
	// by static ones.
	invoke(owner reflect.Value, args []reflect.Value) (reflect.Value, error)
}

// methodAccessor invokes an instance method of the owning component.
type methodAccessor struct {
	method reflect.Method
}

func (a *methodAccessor) static() bool { return false }

func (a *methodAccessor) valueType() reflect.Type {
	return a.method.Type.Out(0)
}

func (a *methodAccessor) paramTypes() []reflect.Type {
	// In(0) is the receiver.
	types := make([]reflect.Type, 0, a.method.Type.NumIn()-1)
	for index := 1; index < a.method.Type.NumIn(); index++ {
		types = append(types, a.method.Type.In(index))
	}
	return types
}

func (a *methodAccessor) invoke(owner reflect.Value, args []reflect.Value) (reflect.Value, error) {
	results := a.method.Func.Call(append([]reflect.Value{owner}, args...))
	return memberCallResult(results)
}

// fieldAccessor reads an instance field of the owning component.
type fieldAccessor struct {
	index []int
	typ   reflect.Type
}

func (a *fieldAccessor) static() bool { return false }

func (a *fieldAccessor) valueType() reflect.Type { return a.typ }

func (a *fieldAccessor) paramTypes() []reflect.Type { return nil }

func (a *fieldAccessor) invoke(owner reflect.Value, _ []reflect.Value) (reflect.Value, error) {
	value := reflect.Indirect(owner)
	if value.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("field provider requires a struct owner, got %s", owner.Type())
	}
	return value.FieldByIndex(a.index), nil
}

// funcAccessor invokes a standalone provider function.
type funcAccessor struct {
	fn reflect.Value
}

func (a *funcAccessor) static() bool { return true }

func (a *funcAccessor) valueType() reflect.Type {
	return a.fn.Type().Out(0)
}

func (a *funcAccessor) paramTypes() []reflect.Type {
	types := make([]reflect.Type, 0, a.fn.Type().NumIn())
	for index := 0; index < a.fn.Type().NumIn(); index++ {
		types = append(types, a.fn.Type().In(index))
	}
	return types
}

func (a *funcAccessor) invoke(_ reflect.Value, args []reflect.Value) (reflect.Value, error) {
	return memberCallResult(a.fn.Call(args))
}

// varAccessor reads a standalone provider variable.
type varAccessor struct {
	ptr reflect.Value
}

func (a *varAccessor) static() bool { return true }

func (a *varAccessor) valueType() reflect.Type {
	return a.ptr.Type().Elem()
}

func (a *varAccessor) paramTypes() []reflect.Type { return nil }

func (a *varAccessor) invoke(_ reflect.Value, _ []reflect.Value) (reflect.Value, error) {
	return a.ptr.Elem(), nil
}

// memberCallResult extracts the provided value and the optional
// trailing error from a provider call.
func memberCallResult(results []reflect.Value) (reflect.Value, error) {
	if len(results) == 0 {
		return reflect.Value{}, fmt.Errorf("provider returned no value")
	}
	if len(results) > 1 && results[len(results)-1].Type() == errorType {
		if errValue := results[len(results)-1]; !errValue.IsNil() {
			return reflect.Value{}, errValue.Interface().(error)
		}
	}
	return results[0], nil
}

// validMemberSignature reports whether the callable signature is a
// supported provider shape: one value, optionally followed by an error.
func validMemberSignature(typ reflect.Type) error {
	switch outs := typ.NumOut(); {
	case outs == 1 && typ.Out(0) != errorType:
		return nil
	case outs == 2 && typ.Out(0) != errorType && typ.Out(1) == errorType:
		return nil
	default:
		return fmt.Errorf("provider must return a value and an optional error, got %s", typ)
	}
}
