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

//go:generate mockgen -destination=mock_scm.go -package=scm github.com/cyberhaven/fltsetup/pkg/scm ServiceControl

// Package scm abstracts the OS service-control surface the installers
// drive: create, start, stop, delete, query. A simulated manager backs
// tests and non-Windows hosts; on Windows the real SCM is used.
package scm

import (
	"context"
	"time"

	"github.com/cyberhaven/fltsetup/pkg/models"
)

// ServiceControl is the service-control-manager surface consumed by the
// install and uninstall flows.
type ServiceControl interface {
	// CreateService registers the service described by desc. Returns
	// ErrServiceExists if the name is already taken.
	CreateService(ctx context.Context, desc *models.ServiceDescriptor) error

	// StartService asks the SCM to start the service.
	StartService(ctx context.Context, name string) error

	// StopService asks the service to stop and waits at most timeout for
	// it to reach Stopped. Returns ErrServiceBusy when the wait expires.
	StopService(ctx context.Context, name string, timeout time.Duration) error

	// DeleteService removes the service registration. The service must be
	// stopped first.
	DeleteService(ctx context.Context, name string) error

	// QueryService reports the service's current state.
	QueryService(ctx context.Context, name string) (models.ServiceState, error)
}
