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

package scm

import "errors"

var (
	// ErrServiceExists is returned by CreateService for a taken name.
	ErrServiceExists = errors.New("service already exists")

	// ErrServiceNotFound is returned for operations on unknown services.
	ErrServiceNotFound = errors.New("service not found")

	// ErrServiceBusy is returned when a stop wait expires before the
	// service reaches Stopped.
	ErrServiceBusy = errors.New("service is busy")

	// ErrServiceNotStopped is returned by DeleteService for a service
	// that is still running.
	ErrServiceNotStopped = errors.New("service is not stopped")
)
