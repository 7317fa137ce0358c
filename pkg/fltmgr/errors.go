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

package fltmgr

import "errors"

var (
	// ErrAltitudeCollision is returned when the requested altitude is
	// already claimed by another registered filter. Recoverable: the
	// caller may pick a different altitude.
	ErrAltitudeCollision = errors.New("altitude already claimed by another filter")

	// ErrUnknownService is returned when registering an instance for a
	// service that has no descriptor record.
	ErrUnknownService = errors.New("no service record for filter instance")

	// ErrNoDefaultInstance is returned when the default-instance binding
	// names an instance absent from the instance set.
	ErrNoDefaultInstance = errors.New("default instance is not registered")

	// ErrInstanceNotFound is returned for attach or detach requests
	// naming an unregistered instance.
	ErrInstanceNotFound = errors.New("filter instance not found")

	// ErrReservedInstanceName is returned when an instance name is empty
	// or collides with the default-instance binding key.
	ErrReservedInstanceName = errors.New("instance name is reserved")

	// ErrNotAttached is returned when detaching an instance from a
	// volume it is not attached to.
	ErrNotAttached = errors.New("instance is not attached to volume")
)
