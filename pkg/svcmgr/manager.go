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

// Package svcmgr implements the service descriptor manager: staging the
// driver image, committing the descriptor record, and the stop-before-
// delete uninstall path.
package svcmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyberhaven/fltsetup/pkg/kv"
	"github.com/cyberhaven/fltsetup/pkg/logger"
	"github.com/cyberhaven/fltsetup/pkg/models"
	"github.com/cyberhaven/fltsetup/pkg/scm"
)

const defaultStopTimeout = 30 * time.Second

// Record is the persisted service entry: the declared descriptor plus
// where its image was staged.
type Record struct {
	Descriptor models.ServiceDescriptor `json:"descriptor"`
	StagedPath string                   `json:"staged_path"`
}

// Manager installs and uninstalls service descriptors.
type Manager struct {
	store       kv.Store
	ctl         scm.ServiceControl
	stager      Stager
	stopTimeout time.Duration
	log         zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithStopTimeout bounds how long Uninstall waits for the driver to stop.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) { m.stopTimeout = d }
}

// New returns a Manager persisting into store and driving ctl.
func New(store kv.Store, ctl scm.ServiceControl, stager Stager, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		ctl:         ctl,
		stager:      stager,
		stopTimeout: defaultStopTimeout,
		log:         log.WithComponent("svcmgr"),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// InstallOptions tunes Install behavior.
type InstallOptions struct {
	// Force replaces an existing record with conflicting attributes
	// instead of failing with ErrDuplicateService (driver-update flow).
	Force bool
}

// Record loads the persisted entry for a service.
func (m *Manager) Record(ctx context.Context, name string) (*Record, bool, error) {
	value, found, err := m.store.Get(ctx, kv.ServiceKey(name))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read service record %s: %w", name, err)
	}

	if !found {
		return nil, false, nil
	}

	var rec Record
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, false, fmt.Errorf("corrupt service record %s: %w", name, err)
	}

	return &rec, true, nil
}

// StageBinary validates the descriptor and copies its image into the
// staging directory. Staging happens before any record is committed so a
// descriptor never points at a binary that is not there yet.
func (m *Manager) StageBinary(ctx context.Context, desc *models.ServiceDescriptor) (string, error) {
	if err := desc.Validate(); err != nil {
		return "", err
	}

	if !desc.ServiceType.FilterCapable() {
		return "", fmt.Errorf("%w: %s", ErrInvalidServiceType, desc.ServiceType)
	}

	staged, err := m.stager.Stage(ctx, desc.BinaryPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBinaryStageFailed, err)
	}

	m.log.Debug().
		Str("service", desc.Name).
		Str("staged_path", staged).
		Msg("Staged driver binary")

	return staged, nil
}

// RegisterService commits the descriptor record and creates the SCM
// service. An existing identical record makes this a no-op; a
// conflicting one fails with ErrDuplicateService unless force is set.
func (m *Manager) RegisterService(ctx context.Context, desc *models.ServiceDescriptor, stagedPath string, force bool) error {
	existing, found, err := m.Record(ctx, desc.Name)
	if err != nil {
		return err
	}

	if found && !existing.Descriptor.SameIdentity(desc) && !force {
		return fmt.Errorf("%w: %s", ErrDuplicateService, desc.Name)
	}

	rec := Record{Descriptor: *desc, StagedPath: stagedPath}

	value, err := json.Marshal(&rec)
	if err != nil {
		return err
	}

	if err := m.store.Put(ctx, kv.ServiceKey(desc.Name), value); err != nil {
		return fmt.Errorf("failed to write service record %s: %w", desc.Name, err)
	}

	scmDesc := *desc
	scmDesc.BinaryPath = stagedPath

	if err := m.ctl.CreateService(ctx, &scmDesc); err != nil && !errors.Is(err, scm.ErrServiceExists) {
		return fmt.Errorf("failed to create service %s: %w", desc.Name, err)
	}

	m.log.Info().
		Str("service", desc.Name).
		Str("service_type", string(desc.ServiceType)).
		Str("load_order_group", desc.LoadOrderGroup).
		Msg("Registered service")

	return nil
}

// Install stages the binary then registers the descriptor. Re-running
// with an identical descriptor succeeds without side effects beyond
// re-staging the same image.
func (m *Manager) Install(ctx context.Context, desc *models.ServiceDescriptor, opts InstallOptions) error {
	staged, err := m.StageBinary(ctx, desc)
	if err != nil {
		return err
	}

	return m.RegisterService(ctx, desc, staged, opts.Force)
}

// EnsureStopped drives the service to Stopped within the configured
// bounded wait, mapping a timed-out stop to ErrServiceBusy. A service
// unknown to the SCM counts as stopped.
func (m *Manager) EnsureStopped(ctx context.Context, name string) error {
	err := m.ctl.StopService(ctx, name, m.stopTimeout)

	switch {
	case err == nil, errors.Is(err, scm.ErrServiceNotFound):
		return nil
	case errors.Is(err, scm.ErrServiceBusy):
		return fmt.Errorf("%w: %s did not stop within %s", ErrServiceBusy, name, m.stopTimeout)
	default:
		return fmt.Errorf("failed to stop service %s: %w", name, err)
	}
}

// UnregisterService deletes the SCM service and the descriptor record.
// The caller must have removed the filter registration record first; a
// registration record without its owning service is meaningless.
func (m *Manager) UnregisterService(ctx context.Context, name string) error {
	if err := m.ctl.DeleteService(ctx, name); err != nil && !errors.Is(err, scm.ErrServiceNotFound) {
		return fmt.Errorf("failed to delete service %s: %w", name, err)
	}

	if err := m.store.Delete(ctx, kv.ServiceKey(name)); err != nil {
		return fmt.Errorf("failed to delete service record %s: %w", name, err)
	}

	m.log.Info().Str("service", name).Msg("Unregistered service")

	return nil
}

// RemoveBinary deletes a staged driver image.
func (m *Manager) RemoveBinary(ctx context.Context, stagedPath string) error {
	if stagedPath == "" {
		return nil
	}

	if err := m.stager.Remove(ctx, stagedPath); err != nil {
		return err
	}

	m.log.Debug().Str("staged_path", stagedPath).Msg("Removed staged binary")

	return nil
}

// Uninstall stops the service, removes its registration, and deletes the
// staged binary. If the stop times out nothing is removed. Uninstalling
// a service that was never installed returns ErrRecordNotFound.
func (m *Manager) Uninstall(ctx context.Context, name string) error {
	rec, found, err := m.Record(ctx, name)
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, name)
	}

	if err := m.EnsureStopped(ctx, name); err != nil {
		return err
	}

	if err := m.UnregisterService(ctx, name); err != nil {
		return err
	}

	return m.RemoveBinary(ctx, rec.StagedPath)
}
