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
	"log/slog"
	"reflect"
	"sync"
)

// Hub distributes published messages to subscriber methods of receiver
// components. It observes configuration changes to keep its subscriber
// set current and delivers messages sequentially in the publishing
// goroutine. Subscriber failures are isolated: a panicking or erroring
// subscriber is logged and delivery continues with the next one.
type Hub struct {
	log *slog.Logger

	mutex       sync.RWMutex
	subscribers []*subscriber
	registry    ServiceRegistry
	scanned     map[Descriptor]bool
}

// HubOpt configures a hub.
type HubOpt func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(log *slog.Logger) HubOpt {
	return func(hub *Hub) {
		hub.log = log
	}
}

// NewHub returns a message hub with no subscribers. Registering it as
// a configuration listener populates the subscriber set.
func NewHub(opts ...HubOpt) *Hub {
	hub := &Hub{scanned: map[Descriptor]bool{}}
	for _, opt := range opts {
		opt(hub)
	}
	if hub.log == nil {
		hub.log = slog.Default()
	}
	return hub
}

// ConfigChanged implements ConfigListener interface. It discovers
// subscriber methods of receiver components added since the last
// change and retains previously discovered ones.
func (hub *Hub) ConfigChanged(ctx context.Context, registry ServiceRegistry) error {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	hub.registry = registry
	for _, descriptor := range registry.Descriptors(nil) {
		if hub.scanned[descriptor] {
			continue
		}
		hub.scanned[descriptor] = true

		carrier, ok := descriptor.(ReceiverCarrier)
		if !ok || carrier.ReceiverSpec() == nil {
			continue
		}

		class := descriptor.Implementation()
		found := discoverSubscribers(class, descriptor, carrier.ReceiverSpec(), hub.log)
		hub.subscribers = append(hub.subscribers, found...)
		hub.log.Debug("discovered message subscribers",
			"class", class.String(),
			"count", len(found))
	}

	return nil
}

// PublishOpt configures one publish operation.
type PublishOpt func(*publishConfig)

type publishConfig struct {
	qualifiers []reflect.Type
}

// WithMessageQualifiers attaches qualifiers to a published message.
func WithMessageQualifiers(qualifiers ...any) PublishOpt {
	return func(config *publishConfig) {
		config.qualifiers = append(config.qualifiers, qualifierTypes(qualifiers)...)
	}
}

// Publish delivers a message to every matching subscriber method. A
// message that matches no subscriber is logged and dropped. Subscriber
// failures are logged and isolated per subscriber; they never
// propagate to the publisher.
func (hub *Hub) Publish(ctx context.Context, message any, opts ...PublishOpt) error {
	if message == nil {
		return errors.New("cannot publish a nil message")
	}

	var config publishConfig
	for _, opt := range opts {
		opt(&config)
	}

	messageType := reflect.TypeOf(message)

	hub.mutex.RLock()
	registry := hub.registry
	matched := make([]*subscriber, 0, len(hub.subscribers))
	for _, sub := range hub.subscribers {
		if sub.matches(messageType, config.qualifiers) {
			matched = append(matched, sub)
		}
	}
	hub.mutex.RUnlock()

	if registry == nil {
		return errors.New("hub is not attached to a registry")
	}

	if len(matched) == 0 {
		hub.log.Debug("dropping message with no subscribers",
			"message", messageType.String())
		return nil
	}

	for _, sub := range matched {
		if err := hub.deliverIsolated(ctx, registry, sub, message); err != nil {
			hub.log.Error("message delivery failed",
				"message", messageType.String(),
				"class", sub.ownerClass.String(),
				"method", sub.method.Name,
				"error", err)
		}
	}

	return nil
}

// deliverIsolated delivers to one subscriber, converting a panic in
// the subscriber method to an error.
func (hub *Hub) deliverIsolated(ctx context.Context, registry ServiceRegistry, sub *subscriber, message any) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("subscriber panicked: %v", recovered)
		}
	}()
	return sub.deliver(ctx, registry, message)
}
