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

//go:build windows

package scm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/cyberhaven/fltsetup/pkg/models"
)

const stopPollInterval = 250 * time.Millisecond

// WindowsManager drives the real Service Control Manager. Each call opens
// a fresh SCM handle; driver installs are rare enough that caching one is
// not worth the stale-handle handling.
type WindowsManager struct{}

// NewWindowsManager returns a ServiceControl backed by the local SCM.
func NewWindowsManager() *WindowsManager {
	return &WindowsManager{}
}

func (*WindowsManager) CreateService(_ context.Context, desc *models.ServiceDescriptor) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SCM: %w", err)
	}
	defer m.Disconnect()

	cfg := mgr.Config{
		ServiceType:    desc.ServiceType.Value(),
		StartType:      desc.StartType.Value(),
		ErrorControl:   desc.ErrorControl.Value(),
		DisplayName:    desc.DisplayName,
		Description:    desc.Description,
		LoadOrderGroup: desc.LoadOrderGroup,
		Dependencies:   desc.Dependencies,
	}

	s, err := m.CreateService(desc.Name, desc.BinaryPath, cfg)
	if errors.Is(err, windows.ERROR_SERVICE_EXISTS) {
		return ErrServiceExists
	}

	if err != nil {
		return fmt.Errorf("failed to create service %s: %w", desc.Name, err)
	}

	return s.Close()
}

func (*WindowsManager) StartService(_ context.Context, name string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
		return ErrServiceNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to open service %s: %w", name, err)
	}
	defer s.Close()

	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to start service %s: %w", name, err)
	}

	return nil
}

func (*WindowsManager) StopService(ctx context.Context, name string, timeout time.Duration) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
		return ErrServiceNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to open service %s: %w", name, err)
	}
	defer s.Close()

	status, err := s.Control(svc.Stop)
	if err != nil {
		if !errors.Is(err, windows.ERROR_SERVICE_NOT_ACTIVE) {
			return fmt.Errorf("failed to stop service %s: %w", name, err)
		}

		return nil
	}

	deadline := time.Now().Add(timeout)

	for status.State != svc.Stopped {
		if time.Now().After(deadline) {
			return ErrServiceBusy
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stopPollInterval):
		}

		status, err = s.Query()
		if err != nil {
			return fmt.Errorf("failed to query service %s: %w", name, err)
		}
	}

	return nil
}

func (*WindowsManager) DeleteService(_ context.Context, name string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
		return ErrServiceNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to open service %s: %w", name, err)
	}
	defer s.Close()

	status, err := s.Query()
	if err != nil {
		return fmt.Errorf("failed to query service %s: %w", name, err)
	}

	if status.State != svc.Stopped {
		return ErrServiceNotStopped
	}

	if err := s.Delete(); err != nil {
		return fmt.Errorf("failed to delete service %s: %w", name, err)
	}

	return nil
}

func (*WindowsManager) QueryService(_ context.Context, name string) (models.ServiceState, error) {
	m, err := mgr.Connect()
	if err != nil {
		return "", fmt.Errorf("failed to connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
		return "", ErrServiceNotFound
	}

	if err != nil {
		return "", fmt.Errorf("failed to open service %s: %w", name, err)
	}
	defer s.Close()

	status, err := s.Query()
	if err != nil {
		return "", fmt.Errorf("failed to query service %s: %w", name, err)
	}

	switch status.State {
	case svc.StartPending:
		return models.ServiceStateStartPending, nil
	case svc.StopPending:
		return models.ServiceStateStopPending, nil
	case svc.Running, svc.ContinuePending, svc.PausePending, svc.Paused:
		return models.ServiceStateRunning, nil
	default:
		return models.ServiceStateStopped, nil
	}
}

var _ ServiceControl = (*WindowsManager)(nil)
