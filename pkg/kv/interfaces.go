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

//go:generate mockgen -destination=mock_kv.go -package=kv github.com/cyberhaven/fltsetup/pkg/kv Store

// Package kv models the registry-like hierarchical store the installers
// persist into: slash-separated key paths with structured values. Backends
// include an in-memory tree, a NATS JetStream bucket, and (on Windows) the
// registry itself.
package kv

import (
	"context"
)

// Store is the key-value tree consumed by the service and filter managers.
// Keys are slash-separated paths such as "Services/s2e/Instances/s2e Instance".
type Store interface {
	// Get retrieves the value at key. The boolean reports whether the key
	// was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value at key, overwriting any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// PutIfAbsent stores value at key only if the key does not exist.
	// Returns ErrKeyExists otherwise.
	PutIfAbsent(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key at or under prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// List returns every entry whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Watch monitors key for changes and sends the new value (nil on
	// delete) through the returned channel until the context is canceled.
	Watch(ctx context.Context, key string) (<-chan []byte, error)

	// Close releases backend resources.
	Close() error
}

// Entry is one key-value pair returned by List.
type Entry struct {
	Key   string
	Value []byte
}
