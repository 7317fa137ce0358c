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

package fltmgr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cyberhaven/fltsetup/pkg/altitude"
	"github.com/cyberhaven/fltsetup/pkg/kv"
	"github.com/cyberhaven/fltsetup/pkg/models"
)

// Attachment is one filter instance attached to a volume.
type Attachment struct {
	Service  string
	Instance models.InstanceSpec
}

// Attacher simulates the filter manager's attach surface: which
// instances sit on which volumes, kept in altitude order per volume.
// I/O requests visit the stack bottom-up; completions run it top-down.
type Attacher struct {
	mgr   *Manager
	store kv.Store

	mu      sync.Mutex
	volumes map[string][]Attachment // ordered by altitude, lowest first
}

// NewAttacher returns an Attacher over the same store the manager
// persists into.
func NewAttacher(mgr *Manager, store kv.Store) *Attacher {
	return &Attacher{
		mgr:     mgr,
		store:   store,
		volumes: make(map[string][]Attachment),
	}
}

// AttachInstance attaches the named instance to a volume. An empty
// instance name resolves the service's default instance. Re-attaching an
// already attached instance is a no-op.
func (a *Attacher) AttachInstance(ctx context.Context, volume, serviceName, instanceName string) error {
	var (
		spec models.InstanceSpec
		err  error
	)

	if instanceName == "" {
		spec, err = a.mgr.ResolveDefaultInstance(ctx, serviceName)
		if err != nil {
			return err
		}
	} else {
		spec, err = a.lookup(ctx, serviceName, instanceName)
		if err != nil {
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, att := range a.volumes[volume] {
		if att.Service == serviceName && att.Instance.Name == spec.Name {
			return nil
		}
	}

	a.volumes[volume] = insertAttachment(a.volumes[volume], Attachment{Service: serviceName, Instance: spec})

	return nil
}

// AttachAll attaches every registered instance whose flags permit
// automatic attachment (flags == 0) to the volume, the way the filter
// manager walks registrations on a volume mount.
func (a *Attacher) AttachAll(ctx context.Context, volume string) error {
	services, err := a.serviceNames(ctx)
	if err != nil {
		return err
	}

	for _, service := range services {
		record, err := a.mgr.Registration(ctx, service)
		if err != nil {
			return err
		}

		for _, spec := range record.Instances {
			if !spec.Flags.AttachesEverywhere() {
				continue
			}

			if err := a.AttachInstance(ctx, volume, service, spec.Name); err != nil {
				return err
			}
		}
	}

	return nil
}

// DetachInstance removes the instance from the volume's stack.
func (a *Attacher) DetachInstance(_ context.Context, volume, serviceName, instanceName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	stack := a.volumes[volume]

	for i, att := range stack {
		if att.Service == serviceName && att.Instance.Name == instanceName {
			a.volumes[volume] = append(stack[:i], stack[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("%w: %s on %s", ErrNotAttached, instanceName, volume)
}

// DetachService removes every instance of the service from every volume.
func (a *Attacher) DetachService(_ context.Context, serviceName string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for volume, stack := range a.volumes {
		kept := stack[:0]

		for _, att := range stack {
			if att.Service != serviceName {
				kept = append(kept, att)
			}
		}

		a.volumes[volume] = kept
	}
}

// RequestOrder returns the volume's stack in the order an I/O request
// visits it: bottom-up, lowest altitude first.
func (a *Attacher) RequestOrder(volume string) []Attachment {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Attachment, len(a.volumes[volume]))
	copy(out, a.volumes[volume])

	return out
}

// CompletionOrder returns the stack in completion order: top-down.
func (a *Attacher) CompletionOrder(volume string) []Attachment {
	ordered := a.RequestOrder(volume)

	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}

	return ordered
}

func (a *Attacher) lookup(ctx context.Context, serviceName, instanceName string) (models.InstanceSpec, error) {
	record, err := a.mgr.Registration(ctx, serviceName)
	if err != nil {
		return models.InstanceSpec{}, err
	}

	for _, spec := range record.Instances {
		if spec.Name == instanceName {
			return spec, nil
		}
	}

	return models.InstanceSpec{}, fmt.Errorf("%w: %s/%s", ErrInstanceNotFound, serviceName, instanceName)
}

func (a *Attacher) serviceNames(ctx context.Context) ([]string, error) {
	entries, err := a.store.List(ctx, "Services/")
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	var names []string

	for _, entry := range entries {
		name := strings.TrimPrefix(entry.Key, "Services/")
		if name == "" || strings.Contains(name, "/") {
			continue
		}

		names = append(names, name)
	}

	return names, nil
}

func insertAttachment(stack []Attachment, att Attachment) []Attachment {
	alt, err := altitude.Parse(att.Instance.Altitude)

	i := len(stack)

	if err == nil {
		for j, existing := range stack {
			other, perr := altitude.Parse(existing.Instance.Altitude)
			if perr != nil || alt.Compare(other) < 0 {
				i = j
				break
			}
		}
	}

	stack = append(stack, Attachment{})
	copy(stack[i+1:], stack[i:])
	stack[i] = att

	return stack
}
