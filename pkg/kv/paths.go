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

package kv

import "strings"

// Key layout:
//
//	Services/<name>                              service descriptor (JSON)
//	Services/<name>/Instances/DefaultInstance    default instance name
//	Services/<name>/Instances/<instanceName>     instance spec (JSON)
//	Altitudes/<altitude>                         system-wide altitude claim
const (
	servicesRoot  = "Services"
	altitudesRoot = "Altitudes"
	stagingRoot   = "Staging"
)

// DefaultInstanceName is the reserved leaf holding the default-instance
// binding; no filter instance may use it as its own name.
const DefaultInstanceName = "DefaultInstance"

// ServiceKey is the descriptor key for a service.
func ServiceKey(service string) string {
	return servicesRoot + "/" + service
}

// InstancesPrefix is the prefix under which a service's filter instances
// live, including the default-instance binding.
func InstancesPrefix(service string) string {
	return servicesRoot + "/" + service + "/Instances/"
}

// DefaultInstanceKey holds the name of the instance used when an attach
// request names none.
func DefaultInstanceKey(service string) string {
	return InstancesPrefix(service) + DefaultInstanceName
}

// InstanceKey holds one instance spec.
func InstanceKey(service, instance string) string {
	return InstancesPrefix(service) + instance
}

// StagingKey marks a staged-but-unregistered driver binary, so a
// partially completed install can be resumed past the staging step.
func StagingKey(service string) string {
	return stagingRoot + "/" + service
}

// AltitudeKey records a system-wide altitude claim.
func AltitudeKey(altitude string) string {
	return altitudesRoot + "/" + altitude
}

// InstanceName extracts the instance name from an instance key, skipping
// the DefaultInstance binding. The boolean is false for non-instance keys.
func InstanceName(service, key string) (string, bool) {
	name, ok := strings.CutPrefix(key, InstancesPrefix(service))
	if !ok || name == DefaultInstanceName || name == "" {
		return "", false
	}

	return name, true
}
