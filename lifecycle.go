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

// Lifecycle hooks are duck-typed capabilities applied to arbitrary
// instances: instances without lifecycle methods are tolerated.

// postConstructInstance applies the post-construction hook.
func postConstructInstance(instance any) error {
	if isNilValue(instance) {
		return nil
	}
	if constructable, ok := instance.(Constructable); ok {
		return constructable.Constructor()
	}
	return nil
}

// preDestroyInstance applies the pre-destruction hook. Instances
// implementing both interfaces are destructed over closed.
func preDestroyInstance(instance any) error {
	if isNilValue(instance) {
		return nil
	}
	if destructible, ok := instance.(Destructible); ok {
		return destructible.Destructor()
	}
	if closer, ok := instance.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
