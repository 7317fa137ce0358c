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

// Package models defines the data model shared by the fltsetup managers:
// service descriptors, filter registration records, and lifecycle states.
package models

import "errors"

// ServiceType classifies the driver service. Minifilters must be
// registered as file-system drivers; the numeric values follow MS-SCMR.
type ServiceType string

const (
	ServiceTypeKernelDriver     ServiceType = "kernel_driver"
	ServiceTypeFileSystemDriver ServiceType = "file_system_driver"
	ServiceTypeWin32OwnProcess  ServiceType = "win32_own_process"
)

// Value returns the SCM dwServiceType encoding.
func (t ServiceType) Value() uint32 {
	switch t {
	case ServiceTypeKernelDriver:
		return 0x00000001
	case ServiceTypeFileSystemDriver:
		return 0x00000002
	case ServiceTypeWin32OwnProcess:
		return 0x00000010
	default:
		return 0
	}
}

// FilterCapable reports whether a service of this type may own filter
// instances. Only file-system drivers sit under the filter manager.
func (t ServiceType) FilterCapable() bool {
	return t == ServiceTypeFileSystemDriver
}

// StartType controls when the service-control manager brings the driver up.
type StartType string

const (
	StartTypeBoot      StartType = "boot"
	StartTypeSystem    StartType = "system"
	StartTypeAutomatic StartType = "automatic"
	StartTypeManual    StartType = "manual"
	StartTypeDisabled  StartType = "disabled"
)

// Value returns the SCM dwStartType encoding.
func (t StartType) Value() uint32 {
	switch t {
	case StartTypeBoot:
		return 0x00000000
	case StartTypeSystem:
		return 0x00000001
	case StartTypeAutomatic:
		return 0x00000002
	case StartTypeManual:
		return 0x00000003
	case StartTypeDisabled:
		return 0x00000004
	default:
		return 0x00000003
	}
}

// ErrorControl governs boot behavior when the driver fails to start.
type ErrorControl string

const (
	ErrorControlIgnore   ErrorControl = "ignore"
	ErrorControlNormal   ErrorControl = "normal"
	ErrorControlSevere   ErrorControl = "severe"
	ErrorControlCritical ErrorControl = "critical"
)

// Value returns the SCM dwErrorControl encoding.
func (e ErrorControl) Value() uint32 {
	switch e {
	case ErrorControlIgnore:
		return 0x00000000
	case ErrorControlNormal:
		return 0x00000001
	case ErrorControlSevere:
		return 0x00000002
	case ErrorControlCritical:
		return 0x00000003
	default:
		return 0x00000001
	}
}

var (
	ErrServiceNameRequired = errors.New("service name is required")
	ErrBinaryPathRequired  = errors.New("binary path is required")
	ErrUnknownServiceType  = errors.New("unknown service type")
	ErrUnknownStartType    = errors.New("unknown start type")
	ErrUnknownErrorControl = errors.New("unknown error control")
)

// ServiceDescriptor declares a driver as an OS service: where its image
// lives, how it starts, and where it sits among load-order groups.
type ServiceDescriptor struct {
	Name           string       `json:"name"`
	DisplayName    string       `json:"display_name,omitempty"`
	Description    string       `json:"description,omitempty"`
	BinaryPath     string       `json:"binary_path"`
	ServiceType    ServiceType  `json:"service_type"`
	StartType      StartType    `json:"start_type"`
	ErrorControl   ErrorControl `json:"error_control"`
	LoadOrderGroup string       `json:"load_order_group,omitempty"`
	Dependencies   []string     `json:"dependencies,omitempty"`
}

// Validate checks the descriptor for structural errors. It does not check
// that the binary exists; staging is the service manager's job.
func (d *ServiceDescriptor) Validate() error {
	if d.Name == "" {
		return ErrServiceNameRequired
	}

	if d.BinaryPath == "" {
		return ErrBinaryPathRequired
	}

	switch d.ServiceType {
	case ServiceTypeKernelDriver, ServiceTypeFileSystemDriver, ServiceTypeWin32OwnProcess:
	default:
		return ErrUnknownServiceType
	}

	switch d.StartType {
	case StartTypeBoot, StartTypeSystem, StartTypeAutomatic, StartTypeManual, StartTypeDisabled:
	default:
		return ErrUnknownStartType
	}

	switch d.ErrorControl {
	case ErrorControlIgnore, ErrorControlNormal, ErrorControlSevere, ErrorControlCritical:
	default:
		return ErrUnknownErrorControl
	}

	return nil
}

// SameIdentity reports whether two descriptors declare the same install:
// same name, same binary path, same service type. Differences in
// metadata (display name, description) do not make a conflict.
func (d *ServiceDescriptor) SameIdentity(other *ServiceDescriptor) bool {
	return d.Name == other.Name &&
		d.BinaryPath == other.BinaryPath &&
		d.ServiceType == other.ServiceType
}

// NonFatalStart reports whether a start failure should only be surfaced to
// the caller that requested the start, rather than affecting boot.
func (d *ServiceDescriptor) NonFatalStart() bool {
	return d.StartType == StartTypeManual && d.ErrorControl == ErrorControlNormal
}
