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

// Package fltmgr implements the filter registration manager: the
// per-service Instances subtree, the default-instance binding, and the
// altitude-ordered view a filter manager consults at attach time.
package fltmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cyberhaven/fltsetup/pkg/altitude"
	"github.com/cyberhaven/fltsetup/pkg/kv"
	"github.com/cyberhaven/fltsetup/pkg/logger"
	"github.com/cyberhaven/fltsetup/pkg/models"
)

// Manager mutates filter registration records. It is the only writer of
// the altitude-ordered instance set.
type Manager struct {
	store kv.Store
	alts  *altitude.Registry
	log   zerolog.Logger
}

// New returns a Manager persisting into store and claiming altitudes
// from alts.
func New(store kv.Store, alts *altitude.Registry, log logger.Logger) *Manager {
	return &Manager{
		store: store,
		alts:  alts,
		log:   log.WithComponent("fltmgr"),
	}
}

// RegisterInstance claims the instance's altitude and persists the
// instance spec under the owning service. The first instance registered
// for a service becomes its default instance.
func (m *Manager) RegisterInstance(ctx context.Context, serviceName string, spec models.InstanceSpec) error {
	// The binding leaf shares the Instances subtree with the specs, so
	// its name cannot double as an instance name.
	if spec.Name == "" || spec.Name == kv.DefaultInstanceName {
		return fmt.Errorf("%w: %q", ErrReservedInstanceName, spec.Name)
	}

	_, found, err := m.store.Get(ctx, kv.ServiceKey(serviceName))
	if err != nil {
		return fmt.Errorf("failed to look up service %s: %w", serviceName, err)
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownService, serviceName)
	}

	if err := m.alts.Claim(ctx, spec.Altitude, serviceName); err != nil {
		if errors.Is(err, altitude.ErrCollision) {
			return fmt.Errorf("%w: %s at %s", ErrAltitudeCollision, spec.Name, spec.Altitude)
		}

		return err
	}

	value, err := json.Marshal(&spec)
	if err != nil {
		return err
	}

	if err := m.store.Put(ctx, kv.InstanceKey(serviceName, spec.Name), value); err != nil {
		// Unwind the claim so a failed write does not leak the altitude.
		_ = m.alts.Release(ctx, spec.Altitude, serviceName)

		return fmt.Errorf("failed to write instance %s: %w", spec.Name, err)
	}

	defaultKey := kv.DefaultInstanceKey(serviceName)
	if err := m.store.PutIfAbsent(ctx, defaultKey, []byte(spec.Name)); err != nil && !errors.Is(err, kv.ErrKeyExists) {
		return fmt.Errorf("failed to bind default instance: %w", err)
	}

	m.log.Info().
		Str("service", serviceName).
		Str("instance", spec.Name).
		Str("altitude", spec.Altitude).
		Uint32("flags", uint32(spec.Flags)).
		Msg("Registered filter instance")

	return nil
}

// SetDefaultInstance rebinds the default instance. The named instance
// must already be registered.
func (m *Manager) SetDefaultInstance(ctx context.Context, serviceName, instanceName string) error {
	_, found, err := m.store.Get(ctx, kv.InstanceKey(serviceName, instanceName))
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceName)
	}

	return m.store.Put(ctx, kv.DefaultInstanceKey(serviceName), []byte(instanceName))
}

// Registration assembles the persisted record for a service. Instances
// are ordered by altitude, lowest (closest to the file system) first.
func (m *Manager) Registration(ctx context.Context, serviceName string) (*models.FilterRegistrationRecord, error) {
	entries, err := m.store.List(ctx, kv.InstancesPrefix(serviceName))
	if err != nil {
		return nil, fmt.Errorf("failed to list instances for %s: %w", serviceName, err)
	}

	record := &models.FilterRegistrationRecord{}

	for _, entry := range entries {
		if entry.Key == kv.DefaultInstanceKey(serviceName) {
			record.DefaultInstanceName = string(entry.Value)
			continue
		}

		if _, ok := kv.InstanceName(serviceName, entry.Key); !ok {
			continue
		}

		var spec models.InstanceSpec
		if err := json.Unmarshal(entry.Value, &spec); err != nil {
			return nil, fmt.Errorf("corrupt instance record at %s: %w", entry.Key, err)
		}

		record.Instances = insertByAltitude(record.Instances, spec)
	}

	return record, nil
}

// ResolveDefaultInstance resolves the instance used when an attach
// request names none.
func (m *Manager) ResolveDefaultInstance(ctx context.Context, serviceName string) (models.InstanceSpec, error) {
	record, err := m.Registration(ctx, serviceName)
	if err != nil {
		return models.InstanceSpec{}, err
	}

	if record.DefaultInstanceName == "" {
		return models.InstanceSpec{}, fmt.Errorf("%w: no default bound for %s", ErrNoDefaultInstance, serviceName)
	}

	spec, ok := record.DefaultInstance()
	if !ok {
		return models.InstanceSpec{}, fmt.Errorf("%w: %s", ErrNoDefaultInstance, record.DefaultInstanceName)
	}

	return spec, nil
}

// UnregisterAll releases the service's altitude claims and removes its
// Instances subtree. Unregistering a service with no instances is a
// no-op.
func (m *Manager) UnregisterAll(ctx context.Context, serviceName string) error {
	if err := m.alts.ReleaseOwner(ctx, serviceName); err != nil {
		return err
	}

	if err := m.store.DeletePrefix(ctx, kv.InstancesPrefix(serviceName)); err != nil {
		return fmt.Errorf("failed to remove instances for %s: %w", serviceName, err)
	}

	m.log.Info().Str("service", serviceName).Msg("Unregistered filter instances")

	return nil
}

// insertByAltitude slots spec into its ordered position. The slice stays
// sorted at all times; specs with unparseable altitudes sort last.
func insertByAltitude(instances []models.InstanceSpec, spec models.InstanceSpec) []models.InstanceSpec {
	alt, err := altitude.Parse(spec.Altitude)

	i := len(instances)

	if err == nil {
		for j, existing := range instances {
			other, perr := altitude.Parse(existing.Altitude)
			if perr != nil || alt.Compare(other) < 0 {
				i = j
				break
			}
		}
	}

	instances = append(instances, models.InstanceSpec{})
	copy(instances[i+1:], instances[i:])
	instances[i] = spec

	return instances
}
