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
	"fmt"
	"log/slog"
	"reflect"
)

// ReceiverSpec declares the message receiving behavior of a component
// class: an optional restriction on accepted message types and
// per-method qualifier filters. Built through AsReceiver options.
type ReceiverSpec struct {
	permitted []reflect.Type
	methods   map[string]*subscriberFilter
}

// subscriberFilter restricts which published messages one subscriber
// method accepts based on publish qualifiers.
type subscriberFilter struct {
	// Qualifier types that must all be carried by the publish.
	requires []reflect.Type

	// When set, the method rejects publishes carrying any of the
	// excluded qualifier types. An empty excluded list rejects every
	// qualified publish.
	unqualifiedSet bool
	excluded       []reflect.Type
}

// ReceiverOpt configures a receiver spec.
type ReceiverOpt func(*ReceiverSpec)

// PermitMessages restricts the receiver to the given message types.
// A published message is delivered only when its runtime type is
// assignable to one of them.
func PermitMessages(types ...reflect.Type) ReceiverOpt {
	return func(spec *ReceiverSpec) {
		spec.permitted = append(spec.permitted, types...)
	}
}

// RequireQualifiers makes a subscriber method accept only publishes
// carrying all the given qualifiers.
func RequireQualifiers(method string, qualifiers ...any) ReceiverOpt {
	return func(spec *ReceiverSpec) {
		filter := spec.methodFilter(method)
		filter.requires = append(filter.requires, qualifierTypes(qualifiers)...)
	}
}

// ExcludeQualified makes a subscriber method reject publishes carrying
// any of the given qualifier types. With no types, every qualified
// publish is rejected and the method receives unqualified ones only.
func ExcludeQualified(method string, qualifiers ...reflect.Type) ReceiverOpt {
	return func(spec *ReceiverSpec) {
		filter := spec.methodFilter(method)
		filter.unqualifiedSet = true
		filter.excluded = append(filter.excluded, qualifiers...)
	}
}

// methodFilter returns the filter of a method, creating it on demand.
func (spec *ReceiverSpec) methodFilter(method string) *subscriberFilter {
	if spec.methods == nil {
		spec.methods = map[string]*subscriberFilter{}
	}
	filter, ok := spec.methods[method]
	if !ok {
		filter = &subscriberFilter{}
		spec.methods[method] = filter
	}
	return filter
}

// subscriber is one discovered message delivery target: a method of a
// receiver class with exactly one message slot parameter.
type subscriber struct {
	owner       Descriptor
	ownerClass  reflect.Type
	method      reflect.Method
	messageIdx  int
	messageType reflect.Type
	plans       []paramPlan
	filter      *subscriberFilter
	permitted   []reflect.Type
}

// discoverSubscribers enumerates subscriber methods of a receiver
// class. Methods with a malformed message signature are diagnosed and
// excluded without failing the class.
func discoverSubscribers(class reflect.Type, owner Descriptor, spec *ReceiverSpec, log *slog.Logger) []*subscriber {
	if spec == nil {
		return nil
	}

	var subscribers []*subscriber
	for index := 0; index < class.NumMethod(); index++ {
		method := class.Method(index)
		sub, ok, err := buildSubscriber(class, owner, spec, method)
		if err != nil {
			log.Warn("skipping subscriber method",
				"class", class.String(),
				"method", method.Name,
				"reason", err.Error())
			continue
		}
		if ok {
			subscribers = append(subscribers, sub)
		}
	}
	return subscribers
}

// buildSubscriber analyzes one method of a receiver class. Methods
// without message slots are not subscribers and are reported not ok.
func buildSubscriber(class reflect.Type, owner Descriptor, spec *ReceiverSpec, method reflect.Method) (*subscriber, bool, error) {
	messageIdx, messageType := -1, reflect.Type(nil)

	// In(0) is the receiver.
	for index := 1; index < method.Type.NumIn(); index++ {
		elem, ok := isInboundType(method.Type.In(index))
		if !ok {
			continue
		}
		if messageIdx >= 0 {
			return nil, false, fmt.Errorf("more than one message slot parameter")
		}
		messageIdx, messageType = index-1, elem
	}
	if messageIdx < 0 {
		return nil, false, nil
	}

	if err := validSubscriberReturns(method.Type); err != nil {
		return nil, false, err
	}

	// Remaining parameters are injected from the registry.
	plans := make([]paramPlan, 0, method.Type.NumIn()-2)
	for index := 1; index < method.Type.NumIn(); index++ {
		if index-1 == messageIdx {
			continue
		}
		plan, err := planParam(class, method.Type.In(index), index-1)
		if err != nil {
			return nil, false, err
		}
		plans = append(plans, plan)
	}

	return &subscriber{
		owner:       owner,
		ownerClass:  class,
		method:      method,
		messageIdx:  messageIdx,
		messageType: messageType,
		plans:       plans,
		filter:      spec.methods[method.Name],
		permitted:   spec.permitted,
	}, true, nil
}

// validSubscriberReturns accepts methods returning nothing or a single
// error.
func validSubscriberReturns(typ reflect.Type) error {
	switch {
	case typ.NumOut() == 0:
		return nil
	case typ.NumOut() == 1 && typ.Out(0) == errorType:
		return nil
	default:
		return fmt.Errorf("subscriber must return nothing or an error, got %s", typ)
	}
}

// matches applies the delivery rules to a published message: the
// message runtime type must fit the declared slot and any permitted
// set, the required qualifiers must all be carried by the publish, and
// excluded qualifier types must be absent.
func (s *subscriber) matches(messageType reflect.Type, qualifiers []reflect.Type) bool {
	if !messageType.AssignableTo(s.messageType) {
		return false
	}

	if len(s.permitted) > 0 {
		permitted := false
		for _, typ := range s.permitted {
			if messageType.AssignableTo(typ) {
				permitted = true
				break
			}
		}
		if !permitted {
			return false
		}
	}

	if s.filter == nil {
		return true
	}

	for _, required := range s.filter.requires {
		if !containsQualifier(qualifiers, required) {
			return false
		}
	}

	if s.filter.unqualifiedSet {
		if len(s.filter.excluded) == 0 {
			return len(qualifiers) == 0
		}
		for _, excluded := range s.filter.excluded {
			if containsQualifier(qualifiers, excluded) {
				return false
			}
		}
	}

	return true
}

// deliver invokes the subscriber method with the message boxed into
// its slot parameter and remaining parameters resolved from the
// registry. Per-lookup dependencies and the owning instance are
// released before returning.
func (s *subscriber) deliver(ctx context.Context, registry ServiceRegistry, message any) (err error) {
	handle, err := registry.HandleFor(s.owner)
	if err != nil {
		return fmt.Errorf("failed to resolve receiver '%s': %w", s.ownerClass, err)
	}
	if s.owner.Scope() == ScopePerLookup {
		defer func() {
			if releaseErr := handle.Release(); releaseErr != nil && err == nil {
				err = releaseErr
			}
		}()
	}

	receiver := reflect.ValueOf(handle.Get())
	if !receiver.Type().AssignableTo(s.method.Type.In(0)) {
		return fmt.Errorf("receiver '%s' is not assignable to '%s'", receiver.Type(), s.method.Type.In(0))
	}

	extraArgs, releases, err := resolveParams(ctx, registry, s.plans, handle.Get())
	if err != nil {
		return fmt.Errorf("failed to resolve subscriber parameters: %w", err)
	}
	defer func() {
		if releaseErr := releaseAll(releases); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	// Interleave the boxed message with the resolved parameters.
	args := make([]reflect.Value, 0, s.method.Type.NumIn())
	args = append(args, receiver)
	extra := 0
	for index := 1; index < s.method.Type.NumIn(); index++ {
		if index-1 == s.messageIdx {
			args = append(args, newInboundValue(s.method.Type.In(index), reflect.ValueOf(message)))
			continue
		}
		args = append(args, extraArgs[extra])
		extra++
	}

	results := s.method.Func.Call(args)
	if len(results) == 1 && !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}
