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

package svcmgr

import "errors"

var (
	// ErrDuplicateService is returned when a service of the same name
	// exists with conflicting attributes and Force was not set.
	ErrDuplicateService = errors.New("service exists with conflicting attributes")

	// ErrInvalidServiceType is returned for descriptors whose type cannot
	// own filter instances. This is a caller bug, not a retryable
	// condition.
	ErrInvalidServiceType = errors.New("service type is not filter-capable")

	// ErrBinaryStageFailed wraps failures copying the driver image to its
	// destination.
	ErrBinaryStageFailed = errors.New("failed to stage driver binary")

	// ErrServiceBusy is returned by Uninstall when the driver cannot be
	// stopped within the bounded wait. Nothing is removed in that case.
	ErrServiceBusy = errors.New("service is busy")

	// ErrRecordNotFound is returned by Uninstall for a service that was
	// never installed.
	ErrRecordNotFound = errors.New("service record not found")
)
