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

package installer

import "errors"

var (
	// ErrOperationInFlight is returned when an install or uninstall for
	// the same service is already running. Transitions are never queued
	// behind one another.
	ErrOperationInFlight = errors.New("another operation is in flight for this service")

	// ErrTransitionOutOfOrder flags an attempt to skip a state. This is
	// a programming error, never repaired silently.
	ErrTransitionOutOfOrder = errors.New("state transition out of order")
)
