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
	"reflect"
)

// paramKind discriminates supported parameter shapes.
type paramKind int

const (
	// paramService is a plain dependency resolved from the registry.
	paramService paramKind = iota

	// paramContext receives the ambient context of the operation.
	paramContext

	// paramOptional is an Optional[T] wrapper, injected empty when
	// no service satisfies it.
	paramOptional

	// paramMultiple is a Multiple[T] wrapper collecting all services
	// assignable to the element type.
	paramMultiple

	// paramSelf is a reference to the owning component instance.
	paramSelf
)

// paramPlan is the per-parameter decision of the parameter resolver:
// what shape the parameter has and how it is supplied at invocation.
type paramPlan struct {
	index      int
	kind       paramKind
	typ        reflect.Type
	elem       reflect.Type
	qualifiers []reflect.Type
}

// planParams decides whether every formal parameter of a member can be
// supplied by the container. An unsupported parameter fails the plan
// with ErrUnsupportedParameter; callers decide whether to skip the
// member or abort.
func planParams(owner reflect.Type, types []reflect.Type, spec *MemberSpec) ([]paramPlan, error) {
	plans := make([]paramPlan, 0, len(types))
	for index, typ := range types {
		plan, err := planParam(owner, typ, index)
		if err != nil {
			return nil, err
		}
		if spec != nil {
			plan.qualifiers = append(plan.qualifiers, qualifierTypes(spec.paramQualifiers[index])...)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// planParam classifies one formal parameter.
func planParam(owner reflect.Type, typ reflect.Type, index int) (paramPlan, error) {
	plan := paramPlan{index: index, typ: typ}

	switch {
	case typ == contextType:
		plan.kind = paramContext

	case owner != nil && typ == owner:
		plan.kind = paramSelf

	default:
		if elem, ok := isOptionalType(typ); ok {
			plan.kind = paramOptional
			plan.elem = elem
			break
		}
		if elem, ok := isMultipleType(typ); ok {
			plan.kind = paramMultiple
			plan.elem = elem
			break
		}
		if _, ok := isInboundType(typ); ok {
			// Message slots are valid on subscriber methods only and
			// are supplied by the distribution engine, not here.
			return plan, fmt.Errorf("%w: message slot '%s' (index %d)",
				ErrUnsupportedParameter, typ, index)
		}
		if err := checkInjectableType(typ); err != nil {
			return plan, fmt.Errorf("%w: '%s' (index %d): %v",
				ErrUnsupportedParameter, typ, index, err)
		}
		plan.kind = paramService
		plan.elem = typ
	}

	return plan, nil
}

// checkInjectableType rejects parameter types no descriptor can be
// advertised under.
func checkInjectableType(typ reflect.Type) error {
	switch typ.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Errorf("kind %s is not injectable", typ.Kind())
	case reflect.Interface:
		if typ.NumMethod() == 0 {
			return errors.New("empty interface is not injectable")
		}
	}
	return nil
}

// resolveParams produces live argument values for planned parameters,
// tracking release functions of per-lookup dependencies so the caller
// can release them on every exit path.
func resolveParams(ctx context.Context, registry ServiceRegistry, plans []paramPlan, self any) ([]reflect.Value, []func() error, error) {
	args := make([]reflect.Value, 0, len(plans))
	releases := make([]func() error, 0, len(plans))

	for _, plan := range plans {
		arg, release, err := resolveParam(ctx, registry, plan, self)
		if err != nil {
			releaseAll(releases)
			return nil, nil, fmt.Errorf("failed to resolve parameter %d: %w", plan.index, err)
		}
		if release != nil {
			releases = append(releases, release)
		}
		args = append(args, arg)
	}

	return args, releases, nil
}

// resolveParam produces one argument value per its plan.
func resolveParam(ctx context.Context, registry ServiceRegistry, plan paramPlan, self any) (reflect.Value, func() error, error) {
	switch plan.kind {
	case paramContext:
		if ctx == nil {
			ctx = context.Background()
		}
		return reflect.ValueOf(ctx), nil, nil

	case paramSelf:
		return serviceValue(plan.typ, self)

	case paramService:
		handle, err := registry.LookupHandle(plan.elem, plan.qualifiers...)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		value, release, err := handleValue(plan.typ, handle)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		return value, release, nil

	case paramOptional:
		handle, err := registry.LookupHandle(plan.elem, plan.qualifiers...)
		if errors.Is(err, ErrServiceNotFound) {
			return newOptionalValue(plan.typ, reflect.Value{}, false), nil, nil
		}
		if err != nil {
			return reflect.Value{}, nil, err
		}
		value, release, err := handleValue(plan.elem, handle)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		return newOptionalValue(plan.typ, value, true), release, nil

	case paramMultiple:
		instances, err := registry.LookupAll(plan.elem, plan.qualifiers...)
		if err != nil {
			return reflect.Value{}, nil, err
		}
		values := make([]reflect.Value, 0, len(instances))
		for _, instance := range instances {
			value, _, err := serviceValue(plan.elem, instance)
			if err != nil {
				return reflect.Value{}, nil, err
			}
			values = append(values, value)
		}
		return newMultipleValue(plan.typ, values), nil, nil

	default:
		return reflect.Value{}, nil, fmt.Errorf("%w: unknown parameter kind", ErrUnsupportedParameter)
	}
}

// handleValue converts a resolved handle to an argument value and an
// optional release function for per-lookup instances.
func handleValue(typ reflect.Type, handle ServiceHandle) (reflect.Value, func() error, error) {
	value, _, err := serviceValue(typ, handle.Get())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	if handle.Descriptor() != nil && handle.Descriptor().Scope() == ScopePerLookup {
		return value, handle.Release, nil
	}
	return value, nil, nil
}

// serviceValue converts a service instance to a value of the target type.
func serviceValue(typ reflect.Type, instance any) (reflect.Value, func() error, error) {
	if instance == nil {
		// Providers may legitimately supply nil.
		return reflect.New(typ).Elem(), nil, nil
	}
	value := reflect.ValueOf(instance)
	if !value.Type().AssignableTo(typ) {
		return reflect.Value{}, nil, fmt.Errorf("service '%s' is not assignable to '%s'", value.Type(), typ)
	}
	return value, nil, nil
}

// releaseAll releases tracked per-lookup handles, joining failures.
func releaseAll(releases []func() error) error {
	errs := make([]error, 0, len(releases))
	for index := len(releases) - 1; index >= 0; index-- {
		if err := releases[index](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
