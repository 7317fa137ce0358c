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

package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is the in-memory Store used by tests and by single-host
// installs that do not need shared state. The key index is kept sorted at
// insertion time, never re-sorted after the fact.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string][]byte
	keys     []string
	watchers map[string][]chan []byte
	closed   bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string][]byte),
		watchers: make(map[string][]chan []byte),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrStoreClosed
	}

	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}

	out := make([]byte, len(value))
	copy(out, value)

	return out, true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.set(key, value)
	m.notify(key, value)

	return nil
}

func (m *MemoryStore) PutIfAbsent(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if _, ok := m.values[key]; ok {
		return ErrKeyExists
	}

	m.set(key, value)
	m.notify(key, value)

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.remove(key)

	return nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	for _, key := range m.keysWithPrefix(prefix) {
		m.remove(key)
	}

	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	keys := m.keysWithPrefix(prefix)
	entries := make([]Entry, 0, len(keys))

	for _, key := range keys {
		value := make([]byte, len(m.values[key]))
		copy(value, m.values[key])
		entries = append(entries, Entry{Key: key, Value: value})
	}

	return entries, nil
}

func (m *MemoryStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	ch := make(chan []byte, 8)
	m.watchers[key] = append(m.watchers[key], ch)

	go func() {
		<-ctx.Done()
		m.dropWatcher(key, ch)
	}()

	return ch, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true

	for key, chans := range m.watchers {
		for _, ch := range chans {
			close(ch)
		}

		delete(m.watchers, key)
	}

	return nil
}

// set inserts key into the sorted index if new, then stores the value.
// Callers hold the write lock.
func (m *MemoryStore) set(key string, value []byte) {
	if _, ok := m.values[key]; !ok {
		i := sort.SearchStrings(m.keys, key)
		m.keys = append(m.keys, "")
		copy(m.keys[i+1:], m.keys[i:])
		m.keys[i] = key
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
}

func (m *MemoryStore) remove(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}

	delete(m.values, key)

	i := sort.SearchStrings(m.keys, key)
	if i < len(m.keys) && m.keys[i] == key {
		m.keys = append(m.keys[:i], m.keys[i+1:]...)
	}

	m.notify(key, nil)
}

func (m *MemoryStore) keysWithPrefix(prefix string) []string {
	start := sort.SearchStrings(m.keys, prefix)

	var out []string

	for _, key := range m.keys[start:] {
		if !strings.HasPrefix(key, prefix) {
			break
		}

		out = append(out, key)
	}

	return out
}

// notify fans the new value out to watchers without blocking a slow
// consumer; a full watcher channel drops the update. Callers hold the
// write lock.
func (m *MemoryStore) notify(key string, value []byte) {
	for _, ch := range m.watchers[key] {
		select {
		case ch <- value:
		default:
		}
	}
}

func (m *MemoryStore) dropWatcher(key string, target chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	chans := m.watchers[key]
	for i, ch := range chans {
		if ch == target {
			m.watchers[key] = append(chans[:i], chans[i+1:]...)
			close(ch)

			break
		}
	}
}

var _ Store = (*MemoryStore)(nil)
