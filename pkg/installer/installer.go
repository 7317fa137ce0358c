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

// Package installer drives the install/uninstall state machine:
//
//	Absent → BinaryStaged → ServiceRegistered → FilterRegistered → Active
//
// and the mirror path backward. Steps run strictly in order, one
// operation per service at a time, and a failed step leaves the system
// at the last completed state so the caller can retry the remainder.
package installer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cyberhaven/fltsetup/pkg/fltmgr"
	"github.com/cyberhaven/fltsetup/pkg/kv"
	"github.com/cyberhaven/fltsetup/pkg/logger"
	"github.com/cyberhaven/fltsetup/pkg/models"
	"github.com/cyberhaven/fltsetup/pkg/scm"
	"github.com/cyberhaven/fltsetup/pkg/svcmgr"
)

// Step names as they appear in the journal.
const (
	StepStageBinary       = "stage_binary"
	StepRegisterService   = "register_service"
	StepRegisterFilter    = "register_filter"
	StepStartService      = "start_service"
	StepStopService       = "stop_service"
	StepUnregisterFilter  = "unregister_filter"
	StepUnregisterService = "unregister_service"
	StepRemoveBinary      = "remove_binary"
)

// Plan is everything needed to bring a filter driver to Active: the
// service descriptor plus the filter instances to register for it.
type Plan struct {
	Descriptor      models.ServiceDescriptor `json:"descriptor"`
	Instances       []models.InstanceSpec    `json:"instances"`
	DefaultInstance string                   `json:"default_instance,omitempty"`
	Force           bool                     `json:"force,omitempty"`
}

// Status is the read-back view of an installed driver.
type Status struct {
	State        models.InstallState
	Record       *svcmgr.Record
	Registration *models.FilterRegistrationRecord
}

type stagingMarker struct {
	StagedPath string `json:"staged_path"`
}

// Installer composes the service and filter managers into the state
// machine.
type Installer struct {
	store   kv.Store
	svc     *svcmgr.Manager
	flt     *fltmgr.Manager
	ctl     scm.ServiceControl
	journal *Journal
	log     zerolog.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// New returns an Installer over the given managers.
func New(store kv.Store, svc *svcmgr.Manager, flt *fltmgr.Manager, ctl scm.ServiceControl, journal *Journal, log logger.Logger) *Installer {
	return &Installer{
		store:   store,
		svc:     svc,
		flt:     flt,
		ctl:     ctl,
		journal: journal,
		log:     log.WithComponent("installer"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Journal exposes the transition log.
func (i *Installer) Journal() *Journal {
	return i.journal
}

// CurrentState derives the machine position from which records exist and
// whether the SCM reports the service running.
func (i *Installer) CurrentState(ctx context.Context, name string) (models.InstallState, error) {
	_, haveRecord, err := i.svc.Record(ctx, name)
	if err != nil {
		return "", err
	}

	if !haveRecord {
		_, staged, err := i.store.Get(ctx, kv.StagingKey(name))
		if err != nil {
			return "", err
		}

		if staged {
			return models.InstallStateBinaryStaged, nil
		}

		return models.InstallStateAbsent, nil
	}

	registration, err := i.flt.Registration(ctx, name)
	if err != nil {
		return "", err
	}

	if len(registration.Instances) == 0 {
		return models.InstallStateServiceRegistered, nil
	}

	state, err := i.ctl.QueryService(ctx, name)
	if err != nil {
		if errors.Is(err, scm.ErrServiceNotFound) {
			return models.InstallStateFilterRegistered, nil
		}

		return "", err
	}

	if state == models.ServiceStateRunning || state == models.ServiceStateStartPending {
		return models.InstallStateActive, nil
	}

	return models.InstallStateFilterRegistered, nil
}

// Install walks the forward path from wherever the service currently is
// to Active. It returns the state reached; on error that is the last
// successfully completed state, and a later Install resumes from it.
func (i *Installer) Install(ctx context.Context, plan *Plan) (models.InstallState, error) {
	lock, ok := i.tryLock(plan.Descriptor.Name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrOperationInFlight, plan.Descriptor.Name)
	}
	defer lock.Unlock()

	opID := uuid.NewString()

	state, err := i.CurrentState(ctx, plan.Descriptor.Name)
	if err != nil {
		return "", err
	}

	i.log.Info().
		Str("operation_id", opID).
		Str("service", plan.Descriptor.Name).
		Str("from_state", string(state)).
		Msg("Starting install")

	for state != models.InstallStateActive {
		next, _ := state.Next()

		if err := i.advance(ctx, opID, plan, state, next); err != nil {
			return state, err
		}

		state = next
	}

	return state, nil
}

// Advance runs exactly one forward transition. The target must be the
// immediate successor of the current state; skipping a state is rejected
// with ErrTransitionOutOfOrder rather than repaired.
func (i *Installer) Advance(ctx context.Context, plan *Plan, target models.InstallState) error {
	lock, ok := i.tryLock(plan.Descriptor.Name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperationInFlight, plan.Descriptor.Name)
	}
	defer lock.Unlock()

	state, err := i.CurrentState(ctx, plan.Descriptor.Name)
	if err != nil {
		return err
	}

	next, ok := state.Next()
	if !ok || next != target {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionOutOfOrder, state, target)
	}

	return i.advance(ctx, uuid.NewString(), plan, state, next)
}

func (i *Installer) advance(ctx context.Context, opID string, plan *Plan, from, to models.InstallState) error {
	var (
		step string
		err  error
	)

	switch to {
	case models.InstallStateBinaryStaged:
		step, err = StepStageBinary, i.stageBinary(ctx, plan)
	case models.InstallStateServiceRegistered:
		step, err = StepRegisterService, i.registerService(ctx, plan)
	case models.InstallStateFilterRegistered:
		step, err = StepRegisterFilter, i.registerFilter(ctx, plan)
	case models.InstallStateActive:
		step, err = StepStartService, i.ctl.StartService(ctx, plan.Descriptor.Name)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrTransitionOutOfOrder, from, to)
	}

	i.record(opID, plan.Descriptor.Name, step, from, to, err)

	return err
}

func (i *Installer) stageBinary(ctx context.Context, plan *Plan) error {
	staged, err := i.svc.StageBinary(ctx, &plan.Descriptor)
	if err != nil {
		return err
	}

	value, err := json.Marshal(&stagingMarker{StagedPath: staged})
	if err != nil {
		return err
	}

	return i.store.Put(ctx, kv.StagingKey(plan.Descriptor.Name), value)
}

func (i *Installer) registerService(ctx context.Context, plan *Plan) error {
	marker, err := i.marker(ctx, plan.Descriptor.Name)
	if err != nil {
		return err
	}

	return i.svc.RegisterService(ctx, &plan.Descriptor, marker.StagedPath, plan.Force)
}

func (i *Installer) registerFilter(ctx context.Context, plan *Plan) error {
	for _, spec := range plan.Instances {
		if err := i.flt.RegisterInstance(ctx, plan.Descriptor.Name, spec); err != nil {
			return err
		}
	}

	if plan.DefaultInstance != "" {
		return i.flt.SetDefaultInstance(ctx, plan.Descriptor.Name, plan.DefaultInstance)
	}

	return nil
}

// Uninstall walks the backward path from wherever the service currently
// is down to Absent: stop, unregister filter, unregister service, remove
// binary. A failed step (a busy driver, say) leaves every remaining
// record in place.
func (i *Installer) Uninstall(ctx context.Context, name string) (models.InstallState, error) {
	lock, ok := i.tryLock(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrOperationInFlight, name)
	}
	defer lock.Unlock()

	opID := uuid.NewString()

	state, err := i.CurrentState(ctx, name)
	if err != nil {
		return "", err
	}

	if state == models.InstallStateAbsent {
		return state, fmt.Errorf("%w: %s", svcmgr.ErrRecordNotFound, name)
	}

	i.log.Info().
		Str("operation_id", opID).
		Str("service", name).
		Str("from_state", string(state)).
		Msg("Starting uninstall")

	for state != models.InstallStateAbsent {
		prev, _ := state.Prev()

		if err := i.retreat(ctx, opID, name, state, prev); err != nil {
			return state, err
		}

		state = prev
	}

	return state, nil
}

func (i *Installer) retreat(ctx context.Context, opID, name string, from, to models.InstallState) error {
	var (
		step string
		err  error
	)

	switch from {
	case models.InstallStateActive:
		step, err = StepStopService, i.svc.EnsureStopped(ctx, name)
	case models.InstallStateFilterRegistered:
		step, err = StepUnregisterFilter, i.flt.UnregisterAll(ctx, name)
	case models.InstallStateServiceRegistered:
		step, err = StepUnregisterService, i.svc.UnregisterService(ctx, name)
	case models.InstallStateBinaryStaged:
		step, err = StepRemoveBinary, i.removeBinary(ctx, name)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrTransitionOutOfOrder, from, to)
	}

	i.record(opID, name, step, from, to, err)

	return err
}

func (i *Installer) removeBinary(ctx context.Context, name string) error {
	marker, err := i.marker(ctx, name)
	if err == nil {
		if err := i.svc.RemoveBinary(ctx, marker.StagedPath); err != nil {
			return err
		}
	}

	return i.store.Delete(ctx, kv.StagingKey(name))
}

// Status reads back the persisted view of a service.
func (i *Installer) Status(ctx context.Context, name string) (*Status, error) {
	state, err := i.CurrentState(ctx, name)
	if err != nil {
		return nil, err
	}

	status := &Status{State: state}

	if rec, found, err := i.svc.Record(ctx, name); err == nil && found {
		status.Record = rec
	} else if err != nil {
		return nil, err
	}

	registration, err := i.flt.Registration(ctx, name)
	if err != nil {
		return nil, err
	}

	status.Registration = registration

	return status, nil
}

func (i *Installer) marker(ctx context.Context, name string) (*stagingMarker, error) {
	value, found, err := i.store.Get(ctx, kv.StagingKey(name))
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: no staged binary recorded for %s", ErrTransitionOutOfOrder, name)
	}

	var marker stagingMarker
	if err := json.Unmarshal(value, &marker); err != nil {
		return nil, fmt.Errorf("corrupt staging marker for %s: %w", name, err)
	}

	return &marker, nil
}

func (i *Installer) record(opID, name, step string, from, to models.InstallState, err error) {
	t := Transition{
		OperationID: opID,
		Service:     name,
		Step:        step,
		From:        from,
		To:          to,
	}

	event := i.log.Debug()

	if err != nil {
		t.Err = err.Error()
		event = i.log.Warn().Err(err)
	}

	i.journal.record(t)

	event.
		Str("operation_id", opID).
		Str("service", name).
		Str("step", step).
		Str("from_state", string(from)).
		Str("to_state", string(to)).
		Msg("State transition")
}

// tryLock acquires the per-service named lock without blocking. A false
// return means another install or uninstall is mid-flight.
func (i *Installer) tryLock(name string) (*sync.Mutex, bool) {
	i.lockMu.Lock()

	lock, ok := i.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		i.locks[name] = lock
	}

	i.lockMu.Unlock()

	if !lock.TryLock() {
		return nil, false
	}

	return lock, true
}
