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

package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sys/windows/registry"
)

const registryDataValue = "Data"

// RegistryStore persists the tree under a base key in the Windows
// registry. Each path maps to a subkey and the payload is stored as a
// REG_BINARY value named "Data" on that subkey, so a path can be both a
// leaf and a parent, mirroring the Services hive shape.
type RegistryStore struct {
	root registry.Key
	base string
}

// NewRegistryStore opens (or creates) base under HKEY_LOCAL_MACHINE, e.g.
// `SOFTWARE\Cyberhaven\FltSetup`.
func NewRegistryStore(base string) (*RegistryStore, error) {
	k, _, err := registry.CreateKey(registry.LOCAL_MACHINE, base, registry.ALL_ACCESS)
	if err != nil {
		return nil, fmt.Errorf("failed to open base key %s: %w", base, err)
	}

	if err := k.Close(); err != nil {
		return nil, err
	}

	return &RegistryStore{root: registry.LOCAL_MACHINE, base: base}, nil
}

func (r *RegistryStore) subkeyPath(key string) string {
	return r.base + `\` + strings.ReplaceAll(key, "/", `\`)
}

func (r *RegistryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	k, err := registry.OpenKey(r.root, r.subkeyPath(key), registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to open key %s: %w", key, err)
	}
	defer k.Close()

	value, _, err := k.GetBinaryValue(registryDataValue)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %s: %w", key, err)
	}

	return value, true, nil
}

func (r *RegistryStore) Put(_ context.Context, key string, value []byte) error {
	k, _, err := registry.CreateKey(r.root, r.subkeyPath(key), registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("failed to create key %s: %w", key, err)
	}
	defer k.Close()

	if err := k.SetBinaryValue(registryDataValue, value); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}

	return nil
}

func (r *RegistryStore) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	k, created, err := registry.CreateKey(r.root, r.subkeyPath(key), registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("failed to create key %s: %w", key, err)
	}
	defer k.Close()

	if !created {
		if _, _, err := k.GetBinaryValue(registryDataValue); err == nil {
			return ErrKeyExists
		}
	}

	if err := k.SetBinaryValue(registryDataValue, value); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}

	return nil
}

func (r *RegistryStore) Delete(_ context.Context, key string) error {
	path := r.subkeyPath(key)

	k, err := registry.OpenKey(r.root, path, registry.ALL_ACCESS)
	if errors.Is(err, registry.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to open key %s: %w", key, err)
	}

	names, err := k.ReadSubKeyNames(-1)
	if err != nil {
		k.Close()
		return fmt.Errorf("failed to enumerate key %s: %w", key, err)
	}

	// A leaf with children only loses its payload; the subtree stays.
	if len(names) > 0 {
		err := k.DeleteValue(registryDataValue)
		k.Close()

		if err != nil && !errors.Is(err, registry.ErrNotExist) {
			return fmt.Errorf("failed to clear key %s: %w", key, err)
		}

		return nil
	}

	k.Close()

	if err := registry.DeleteKey(r.root, path); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

func (r *RegistryStore) DeletePrefix(ctx context.Context, prefix string) error {
	parent := strings.TrimSuffix(prefix, "/")

	return r.deleteTree(r.subkeyPath(parent))
}

func (r *RegistryStore) deleteTree(path string) error {
	k, err := registry.OpenKey(r.root, path, registry.ALL_ACCESS)
	if errors.Is(err, registry.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to open key %s: %w", path, err)
	}

	names, err := k.ReadSubKeyNames(-1)
	if err != nil {
		k.Close()
		return fmt.Errorf("failed to enumerate key %s: %w", path, err)
	}

	k.Close()

	for _, name := range names {
		if err := r.deleteTree(path + `\` + name); err != nil {
			return err
		}
	}

	if err := registry.DeleteKey(r.root, path); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("failed to delete key %s: %w", path, err)
	}

	return nil
}

func (r *RegistryStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	var entries []Entry

	parent := strings.TrimSuffix(prefix, "/")

	if err := r.walk(ctx, parent, &entries); err != nil {
		return nil, err
	}

	// Keep only strict prefix matches; walking the parent key may have
	// picked up the parent leaf itself.
	out := entries[:0]

	for _, e := range entries {
		if strings.HasPrefix(e.Key, prefix) {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out, nil
}

func (r *RegistryStore) walk(ctx context.Context, key string, entries *[]Entry) error {
	value, found, err := r.Get(ctx, key)
	if err != nil {
		return err
	}

	if found {
		*entries = append(*entries, Entry{Key: key, Value: value})
	}

	k, err := registry.OpenKey(r.root, r.subkeyPath(key), registry.ENUMERATE_SUB_KEYS)
	if errors.Is(err, registry.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to open key %s: %w", key, err)
	}

	names, err := k.ReadSubKeyNames(-1)
	k.Close()

	if err != nil {
		return fmt.Errorf("failed to enumerate key %s: %w", key, err)
	}

	for _, name := range names {
		if err := r.walk(ctx, key+"/"+name, entries); err != nil {
			return err
		}
	}

	return nil
}

func (*RegistryStore) Watch(context.Context, string) (<-chan []byte, error) {
	return nil, ErrWatchUnsupported
}

func (*RegistryStore) Close() error {
	return nil
}

var _ Store = (*RegistryStore)(nil)
