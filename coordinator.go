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

	"github.com/gburgyan/go-timing"
)

// Extension coordinates provider member discovery. Registered as a
// configuration listener it analyzes every component class visible in
// the registry, synthesizes service descriptors for discovered provider
// members and registers them back through one atomic transaction.
//
// Committing synthesized descriptors fires configuration listeners
// again, so provider chains resolve to a fixed point: a provided
// service class is itself analyzed on the commit it appeared in, and
// classes analyzed before contribute nothing new.
type Extension struct {
	log     *slog.Logger
	scanner *scanner
	strict  bool
	timing  bool
}

// ExtensionOpt configures the discovery extension.
type ExtensionOpt func(*Extension)

// WithLogger sets the extension logger.
func WithLogger(log *slog.Logger) ExtensionOpt {
	return func(extension *Extension) {
		extension.log = log
	}
}

// WithStrict promotes skippable discovery issues to errors.
func WithStrict() ExtensionOpt {
	return func(extension *Extension) {
		extension.strict = true
	}
}

// WithTiming wraps discovery runs in timing spans.
func WithTiming() ExtensionOpt {
	return func(extension *Extension) {
		extension.timing = true
	}
}

// WithExtensionSettings applies environment settings to the extension.
func WithExtensionSettings(settings Settings) ExtensionOpt {
	return func(extension *Extension) {
		extension.log = settings.Logger()
		extension.strict = settings.Strict
		extension.timing = settings.Timing
	}
}

// NewExtension returns a discovery extension.
func NewExtension(opts ...ExtensionOpt) *Extension {
	extension := &Extension{}
	for _, opt := range opts {
		opt(extension)
	}
	if extension.log == nil {
		extension.log = slog.Default()
	}
	extension.scanner = newScanner(extension.log, extension.strict)
	return extension
}

// ConfigChanged implements ConfigListener interface. It analyzes every
// class in the registry not yet analyzed and commits synthesized
// descriptors as one batch. Multiple listeners observing the same
// commit concurrently are tolerated: the class analysis records decide
// a single winner per class.
func (e *Extension) ConfigChanged(ctx context.Context, registry ServiceRegistry) error {
	if e.timing {
		tCtx, complete := timing.Start(ctx, "provider-discovery")
		defer complete()
		ctx = tCtx
	}

	var synthesized []Descriptor
	for _, descriptor := range registry.Descriptors(nil) {
		class := registry.Reify(descriptor)
		if class == nil {
			continue
		}

		descriptors, fresh, err := e.scanner.scanClass(registry, class, descriptor)
		if err != nil {
			return fmt.Errorf("failed to analyze class '%s': %w", class, err)
		}
		if !fresh {
			continue
		}

		e.log.Debug("analyzed component class",
			"class", class.String(),
			"providers", len(descriptors))
		synthesized = append(synthesized, descriptors...)
	}

	if len(synthesized) == 0 {
		return nil
	}

	// One atomic batch per discovery pass. The commit reenters this
	// listener to analyze classes of newly provided services.
	transaction := registry.Begin()
	transaction.Add(synthesized...)
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit synthesized descriptors: %w", err)
	}

	e.log.Info("registered provided services", "count", len(synthesized))
	return nil
}
