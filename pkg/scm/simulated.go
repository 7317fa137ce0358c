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

import (
	"context"
	"sync"
	"time"

	"github.com/cyberhaven/fltsetup/pkg/models"
)

type simulatedService struct {
	desc  models.ServiceDescriptor
	state models.ServiceState

	// busy makes StopService report the driver as in use; stopLatency
	// delays the Stopped transition to exercise the bounded wait.
	busy        bool
	stopLatency time.Duration
}

// SimulatedManager is an in-memory ServiceControl for tests and for
// dry-running install plans on non-Windows hosts.
type SimulatedManager struct {
	mu       sync.Mutex
	services map[string]*simulatedService
}

// NewSimulatedManager returns a SimulatedManager with no services.
func NewSimulatedManager() *SimulatedManager {
	return &SimulatedManager{services: make(map[string]*simulatedService)}
}

func (s *SimulatedManager) CreateService(_ context.Context, desc *models.ServiceDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[desc.Name]; ok {
		return ErrServiceExists
	}

	s.services[desc.Name] = &simulatedService{
		desc:  *desc,
		state: models.ServiceStateStopped,
	}

	return nil
}

func (s *SimulatedManager) StartService(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[name]
	if !ok {
		return ErrServiceNotFound
	}

	svc.state = models.ServiceStateRunning

	return nil
}

func (s *SimulatedManager) StopService(ctx context.Context, name string, timeout time.Duration) error {
	s.mu.Lock()

	svc, ok := s.services[name]
	if !ok {
		s.mu.Unlock()
		return ErrServiceNotFound
	}

	if svc.state == models.ServiceStateStopped {
		s.mu.Unlock()
		return nil
	}

	busy := svc.busy
	latency := svc.stopLatency

	if !busy && latency <= 0 {
		svc.state = models.ServiceStateStopped
		s.mu.Unlock()

		return nil
	}

	svc.state = models.ServiceStateStopPending
	s.mu.Unlock()

	// A busy service never reaches Stopped; the wait runs out the full
	// timeout, matching a driver with open handles.
	wait := latency
	if busy || wait > timeout {
		wait = timeout
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if svc.busy || latency > timeout {
		svc.state = models.ServiceStateRunning
		return ErrServiceBusy
	}

	svc.state = models.ServiceStateStopped

	return nil
}

func (s *SimulatedManager) DeleteService(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[name]
	if !ok {
		return ErrServiceNotFound
	}

	if svc.state != models.ServiceStateStopped {
		return ErrServiceNotStopped
	}

	delete(s.services, name)

	return nil
}

func (s *SimulatedManager) QueryService(_ context.Context, name string) (models.ServiceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[name]
	if !ok {
		return "", ErrServiceNotFound
	}

	return svc.state, nil
}

// SetBusy marks a service as holding open handles so stop requests time
// out with ErrServiceBusy.
func (s *SimulatedManager) SetBusy(name string, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if svc, ok := s.services[name]; ok {
		svc.busy = busy
	}
}

// SetStopLatency delays the Stopped transition for a service.
func (s *SimulatedManager) SetStopLatency(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if svc, ok := s.services[name]; ok {
		svc.stopLatency = d
	}
}

var _ ServiceControl = (*SimulatedManager)(nil)
