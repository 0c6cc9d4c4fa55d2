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
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// providerMethodPrefix marks auto-discovered provider methods.
const providerMethodPrefix = "Provide"

// providerFieldTag marks provider fields in struct tags.
const providerFieldTag = "provide"

// classState tracks per-class analysis progress.
type classState int

const (
	classUnseen classState = iota
	classAnalyzing
	classRecorded
)

// classRecord holds the analysis state and result of one class.
// Compound read-modify-write sequences are guarded by the mutex; pure
// membership is the atomic insertion into the analyzed-class table.
type classRecord struct {
	mutex       sync.Mutex
	state       classState
	descriptors []Descriptor
}

// registryAnalyses holds one analyzed-class table per registry for the
// lifetime of that registry. The table is shared by every scanner
// observing the registry, so independent coordinator instances
// check-and-set the same per-class records and never record one class
// twice. Dropped when the registry is torn down.
var registryAnalyses = xsync.NewMapOf[ServiceRegistry, *xsync.MapOf[reflect.Type, *classRecord]]()

// classTableFor returns the analyzed-class table of one registry.
func classTableFor(registry ServiceRegistry) *xsync.MapOf[reflect.Type, *classRecord] {
	table, _ := registryAnalyses.LoadOrCompute(registry, func() *xsync.MapOf[reflect.Type, *classRecord] {
		return xsync.NewMapOf[reflect.Type, *classRecord]()
	})
	return table
}

// resetAnalysis drops the analyzed-class table of a torn down registry.
func resetAnalysis(registry ServiceRegistry) {
	registryAnalyses.Delete(registry)
}

// scanner discovers provider members of component classes and
// synthesizes service descriptors for them.
type scanner struct {
	log    *slog.Logger
	strict bool
}

// newScanner returns a scanner. In strict mode skippable member issues
// fail the class analysis.
func newScanner(log *slog.Logger, strict bool) *scanner {
	if log == nil {
		log = slog.Default()
	}
	return &scanner{log: log, strict: strict}
}

// scanClass analyzes a component class exactly once per registry and
// returns its synthesized descriptors. The fresh flag is true only for
// the call that performed the recording, so concurrent coordinators
// never commit the same class twice. Self-referential provider chains
// terminate here: a class already seen contributes nothing new.
func (s *scanner) scanClass(registry ServiceRegistry, class reflect.Type, owner Descriptor) (descriptors []Descriptor, fresh bool, err error) {
	if class == nil {
		return nil, false, errors.New("cannot scan a nil class")
	}
	if registry == nil {
		return nil, false, errors.New("cannot scan without a registry")
	}

	record, _ := classTableFor(registry).LoadOrCompute(class, func() *classRecord {
		return &classRecord{}
	})

	record.mutex.Lock()
	defer record.mutex.Unlock()

	if record.state == classRecorded {
		return record.descriptors, false, nil
	}

	record.state = classAnalyzing
	descriptors, err = s.analyzeClass(registry, class, owner)
	if err != nil {
		// Fatal configuration error: leave the class unrecorded so a
		// corrected registration can be analyzed again.
		record.state = classUnseen
		return nil, false, err
	}

	record.descriptors = descriptors
	record.state = classRecorded
	return descriptors, true, nil
}

// analyzeClass discovers provider members and builds descriptors.
// Skippable member issues are logged and excluded; the analysis of the
// class as a whole still completes.
func (s *scanner) analyzeClass(registry ServiceRegistry, class reflect.Type, owner Descriptor) ([]Descriptor, error) {
	members := collectMembers(class, owner)

	descriptors := make([]Descriptor, 0, len(members))
	for _, spec := range members {
		descriptor, err := s.buildMember(registry, class, owner, spec)
		if err != nil {
			var skip *skipMemberError
			if errors.As(err, &skip) && !s.strict {
				s.log.Warn("skipping provider member",
					"class", class.String(),
					"member", spec.name,
					"reason", skip.Error())
				continue
			}
			return nil, memberError(class, spec.name, err)
		}
		descriptors = append(descriptors, descriptor)
	}

	return descriptors, nil
}

// skipMemberError marks a skippable discovery issue.
type skipMemberError struct {
	cause error
}

func (e *skipMemberError) Error() string { return e.cause.Error() }

func (e *skipMemberError) Unwrap() error { return e.cause }

// skipMember marks an error as a skippable discovery issue.
func skipMember(err error) error {
	return &skipMemberError{cause: err}
}

// collectMembers enumerates provider members of the class in override
// precedence order: explicit component declarations, generic mixin
// declarations, tagged fields, then auto-discovered methods. A member
// name is registered once, keyed by its most derived declaration.
func collectMembers(class reflect.Type, owner Descriptor) []MemberSpec {
	var members []MemberSpec
	taken := map[string]bool{}

	appendMember := func(spec MemberSpec) {
		if taken[spec.name] {
			return
		}
		taken[spec.name] = true
		members = append(members, spec)
	}

	// Explicit declarations of the component registration.
	if carrier, ok := owner.(MemberCarrier); ok {
		for _, spec := range carrier.ProviderMembers() {
			appendMember(spec)
		}
	}

	// Members declared on embedded generic mixins.
	for _, spec := range mixinMembers(class) {
		appendMember(spec)
	}

	// Fields carrying the provider struct tag.
	for _, spec := range taggedFieldMembers(class) {
		appendMember(spec)
	}

	// Methods named with the provider prefix.
	for index := 0; index < class.NumMethod(); index++ {
		method := class.Method(index)
		if strings.HasPrefix(method.Name, providerMethodPrefix) && method.Name != providerMethodPrefix {
			appendMember(Method(method.Name))
		}
	}

	return members
}

// mixinMembers collects members declared on generic declarations whose
// specializations are embedded anywhere in the class chain.
func mixinMembers(class reflect.Type) []MemberSpec {
	var members []MemberSpec
	visited := map[reflect.Type]bool{}

	var walk func(typ reflect.Type)
	walk = func(typ reflect.Type) {
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

		if spec, ok := lookupSpecialization(typ); ok {
			members = append(members, spec.decl.declaredMembers()...)
		}

		if typ.Kind() != reflect.Struct {
			return
		}
		for index := 0; index < typ.NumField(); index++ {
			if field := typ.Field(index); field.Anonymous {
				walk(field.Type)
			}
		}
	}

	walk(class)
	return members
}

// taggedFieldMembers collects fields marked with the provider tag.
// Supported tag options: scope=singleton|perlookup, dispose=<method>,
// by=instance|provider, nilable.
func taggedFieldMembers(class reflect.Type) []MemberSpec {
	typ := class
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil
	}

	var members []MemberSpec
	for index := 0; index < typ.NumField(); index++ {
		field := typ.Field(index)
		tag, ok := field.Tag.Lookup(providerFieldTag)
		if !ok || !field.IsExported() {
			continue
		}
		members = append(members, Field(field.Name, parseFieldTag(tag)...))
	}
	return members
}

// parseFieldTag converts provider tag options to member options.
func parseFieldTag(tag string) []MemberOpt {
	var opts []MemberOpt
	disposeName, disposedBy := "", DisposedByContainer

	for _, part := range strings.Split(tag, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch key {
		case "scope":
			switch value {
			case "singleton":
				opts = append(opts, WithScope(ScopeSingleton))
			case "perlookup":
				opts = append(opts, WithScope(ScopePerLookup))
			}
		case "dispose":
			disposeName = value
			disposedBy = DisposedByProvidedInstance
		case "by":
			if value == "provider" {
				disposedBy = DisposedByProvider
			}
		case "nilable":
			opts = append(opts, AllowNil())
		}
	}

	if disposeName != "" {
		opts = append(opts, WithDispose(disposeName, disposedBy))
	}
	return opts
}

// buildMember synthesizes one descriptor from a member spec.
func (s *scanner) buildMember(registry ServiceRegistry, class reflect.Type, owner Descriptor, spec MemberSpec) (Descriptor, error) {
	accessor, err := newAccessor(class, spec)
	if err != nil {
		return nil, err
	}

	// Instance members of a class-only registration can never resolve
	// an owning instance.
	if placeholder, ok := owner.(PlaceholderCarrier); ok && placeholder.Placeholder() && !accessor.static() {
		return nil, skipMember(fmt.Errorf("%w: instance member on class-only registration", ErrNotInstantiable))
	}

	// Resolve the declared value type in the owner class context.
	implementation, err := s.resolveMemberType(class, spec.valueType, accessor.valueType())
	if err != nil {
		return nil, err
	}
	if err := checkProvidedType(implementation); err != nil {
		return nil, skipMember(err)
	}

	// Resolve parameter types, applying symbolic overrides.
	paramTypes := accessor.paramTypes()
	for index := range paramTypes {
		if node, ok := spec.paramTypes[index]; ok {
			resolved, err := s.resolveMemberType(class, node, paramTypes[index])
			if err != nil {
				return nil, err
			}
			paramTypes[index] = resolved
		}
	}

	// Reject members with unsupported parameters.
	plans, err := planParams(class, paramTypes, &spec)
	if err != nil {
		return nil, skipMember(err)
	}

	// Compute the advertised contract set.
	contracts, err := s.memberContracts(class, spec, implementation)
	if err != nil {
		return nil, err
	}

	// Determine the effective scope by the cascade.
	scope := memberScope(spec, accessor, contracts, owner)

	// Validate the dispose policy at registration time.
	dispose, err := buildDisposePlan(class, spec, accessor, implementation)
	if err != nil {
		return nil, err
	}

	return &serviceDescriptor{
		owner:          owner,
		ownerClass:     class,
		memberName:     spec.name,
		accessor:       accessor,
		plans:          plans,
		implementation: implementation,
		contracts:      contracts,
		qualifiers:     qualifierTypes(spec.qualifiers),
		scope:          scope,
		nilable:        spec.nilable,
		dispose:        dispose,
		registry:       registry,
		rankSet:        spec.rankSet,
		rankValue:      spec.rank,
	}, nil
}

// newAccessor binds a member spec to its reflection accessor.
func newAccessor(class reflect.Type, spec MemberSpec) (memberAccessor, error) {
	switch spec.kind {
	case memberMethod:
		method, ok := class.MethodByName(spec.name)
		if !ok && class.Kind() != reflect.Pointer {
			method, ok = reflect.PointerTo(class).MethodByName(spec.name)
		}
		if !ok {
			return nil, fmt.Errorf("method '%s' not found on '%s'", spec.name, class)
		}
		if err := validMemberSignature(method.Type); err != nil {
			return nil, err
		}
		return &methodAccessor{method: method}, nil

	case memberField:
		typ := class
		if typ.Kind() == reflect.Pointer {
			typ = typ.Elem()
		}
		if typ.Kind() != reflect.Struct {
			return nil, fmt.Errorf("field provider requires a struct class, got '%s'", class)
		}
		field, ok := typ.FieldByName(spec.name)
		if !ok {
			return nil, fmt.Errorf("field '%s' not found on '%s'", spec.name, class)
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("field '%s' of '%s' is not exported", spec.name, class)
		}
		return &fieldAccessor{index: field.Index, typ: field.Type}, nil

	case memberFunc:
		fn := reflect.ValueOf(spec.fn)
		if err := validMemberSignature(fn.Type()); err != nil {
			return nil, err
		}
		return &funcAccessor{fn: fn}, nil

	case memberVar:
		return &varAccessor{ptr: reflect.ValueOf(spec.varPtr)}, nil

	default:
		return nil, fmt.Errorf("unknown member kind")
	}
}

// resolveMemberType resolves a possibly symbolic member type in the
// class context, falling back to the reflected declaration.
func (s *scanner) resolveMemberType(class reflect.Type, node TypeNode, declared reflect.Type) (reflect.Type, error) {
	if node == nil {
		return declared, nil
	}

	resolved := resolveTypeNode(class, node)
	if containsTypeVariable(resolved) {
		return nil, skipMember(fmt.Errorf("%w: '%s' in context '%s'", ErrUnresolvedTypeVariable, resolved, class))
	}

	rt, ok := runtimeType(resolved)
	if !ok {
		return nil, skipMember(fmt.Errorf("no specialization registered for '%s' in context '%s'", resolved, class))
	}
	return rt, nil
}

// checkProvidedType rejects value types no service can be advertised under.
func checkProvidedType(typ reflect.Type) error {
	if typ == nil {
		return errors.New("provider has no value type")
	}
	if typ.Kind() == reflect.Interface && typ.NumMethod() == 0 {
		return errors.New("provider value type is the empty interface")
	}
	return nil
}

// memberContracts computes the advertised contract set: the explicit
// override list when present, otherwise the value type plus registered
// contract interfaces it implements.
func (s *scanner) memberContracts(class reflect.Type, spec MemberSpec, implementation reflect.Type) ([]reflect.Type, error) {
	if len(spec.contracts) == 0 {
		return contractsFor(implementation), nil
	}

	contracts := make([]reflect.Type, 0, len(spec.contracts))
	for _, node := range spec.contracts {
		rt, err := s.resolveMemberType(class, node, nil)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, rt)
	}
	return contracts, nil
}

// memberScope applies the scope cascade, first match wins: nilable
// members are per-lookup, then the explicit member scope, then a scope
// marker on a raw contract type, then the owning component scope for
// instance members, then per-lookup.
func memberScope(spec MemberSpec, accessor memberAccessor, contracts []reflect.Type, owner Descriptor) Scope {
	if spec.nilable {
		return ScopePerLookup
	}
	if spec.scope != ScopeDefault {
		return spec.scope
	}
	for _, contract := range contracts {
		if scope := scopeOfType(contract); scope != ScopeDefault {
			return scope
		}
	}
	if !accessor.static() && owner != nil {
		if scope := owner.Scope(); scope != ScopeDefault {
			return scope
		}
	}
	return ScopePerLookup
}

// buildDisposePlan validates the dispose policy of a member. A missing
// declared dispose method is a registration-time error.
func buildDisposePlan(class reflect.Type, spec MemberSpec, accessor memberAccessor, implementation reflect.Type) (disposePlan, error) {
	plan := disposePlan{policy: spec.disposedBy, methodName: spec.disposeName}

	switch spec.disposedBy {
	case DisposedByContainer:
		return plan, nil

	case DisposedByProvidedInstance:
		if spec.disposeName == "" {
			return plan, fmt.Errorf("%w: no dispose method declared", ErrDisposeMethodNotFound)
		}
		if err := checkInstanceDisposeMethod(implementation, spec.disposeName); err != nil {
			return plan, err
		}
		return plan, nil

	case DisposedByProvider:
		// Static members dispose through a standalone function.
		if spec.disposeFn != nil {
			fn := reflect.ValueOf(spec.disposeFn)
			if fn.Kind() != reflect.Func || fn.Type().NumIn() != 1 || !implementation.AssignableTo(fn.Type().In(0)) {
				return plan, fmt.Errorf("%w: dispose func must accept '%s'", ErrDisposeMethodNotFound, implementation)
			}
			plan.disposeFn = fn
			return plan, nil
		}
		if accessor.static() {
			return plan, fmt.Errorf("%w: static member requires a dispose func", ErrDisposeMethodNotFound)
		}
		if spec.disposeName == "" {
			return plan, fmt.Errorf("%w: no dispose method declared", ErrDisposeMethodNotFound)
		}
		method, err := findProviderDisposeMethod(class, spec.disposeName, implementation)
		if err != nil {
			return plan, err
		}
		plan.providerMethod = method
		return plan, nil
	}

	return plan, nil
}

// checkInstanceDisposeMethod validates a zero-argument dispose method
// on the provided value type.
func checkInstanceDisposeMethod(typ reflect.Type, name string) error {
	method, ok := typ.MethodByName(name)
	if !ok && typ.Kind() != reflect.Pointer && typ.Kind() != reflect.Interface {
		method, ok = reflect.PointerTo(typ).MethodByName(name)
	}
	if !ok {
		return fmt.Errorf("%w: '%s' on '%s'", ErrDisposeMethodNotFound, name, typ)
	}

	// Interface methods carry no receiver argument.
	wantIns := 1
	if typ.Kind() == reflect.Interface {
		wantIns = 0
	}
	if method.Type.NumIn() != wantIns {
		return fmt.Errorf("%w: '%s' on '%s' must take no arguments", ErrDisposeMethodNotFound, name, typ)
	}
	return nil
}

// findProviderDisposeMethod locates a dispose method on the owning
// class whose single parameter accepts the provided value type.
func findProviderDisposeMethod(class reflect.Type, name string, implementation reflect.Type) (reflect.Method, error) {
	method, ok := class.MethodByName(name)
	if !ok && class.Kind() != reflect.Pointer {
		method, ok = reflect.PointerTo(class).MethodByName(name)
	}
	if !ok {
		return reflect.Method{}, fmt.Errorf("%w: '%s' on '%s'", ErrDisposeMethodNotFound, name, class)
	}
	if method.Type.NumIn() != 2 || !implementation.AssignableTo(method.Type.In(1)) {
		return reflect.Method{}, fmt.Errorf("%w: '%s' on '%s' must accept '%s'",
			ErrDisposeMethodNotFound, name, class, implementation)
	}
	return method, nil
}
