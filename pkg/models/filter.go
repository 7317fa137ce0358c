/*
 * Copyright 2025 Cyberhaven, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

// InstanceFlags is the attachment-scope bitmask persisted with each filter
// instance. The bit semantics are owned by the filter manager; the only
// value interpreted here is zero, which means unrestricted attachment.
type InstanceFlags uint32

// AttachesEverywhere reports whether the instance attaches to all volumes.
func (f InstanceFlags) AttachesEverywhere() bool {
	return f == 0
}

// InstanceSpec declares one filter instance: its name, its altitude in the
// filter stack, and its attachment flags.
type InstanceSpec struct {
	Name     string        `json:"name"`
	Altitude string        `json:"altitude"`
	Flags    InstanceFlags `json:"flags"`
}

// FilterRegistrationRecord is the per-service Instances subtree: the default
// instance binding plus every declared instance, ordered by altitude with
// the lowest (closest to the file system) first.
type FilterRegistrationRecord struct {
	DefaultInstanceName string         `json:"default_instance"`
	Instances           []InstanceSpec `json:"instances"`
}

// DefaultInstance resolves the default-instance binding. The second return
// is false when the named default is absent from the instance set.
func (r *FilterRegistrationRecord) DefaultInstance() (InstanceSpec, bool) {
	for _, inst := range r.Instances {
		if inst.Name == r.DefaultInstanceName {
			return inst, true
		}
	}

	return InstanceSpec{}, false
}
