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
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore backs the registry tree with a JetStream KeyValue bucket so
// several hosts can share one record and altitude-claim store.
type NATSStore struct {
	nc  *nats.Conn
	kv  jetstream.KeyValue
	ctx context.Context
}

// NewNATSStore connects to NATS and creates (or binds to) the bucket.
func NewNATSStore(ctx context.Context, natsURL, bucket string) (*NATSStore, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create KV bucket: %w", err)
	}

	return &NATSStore{
		nc:  nc,
		kv:  store,
		ctx: ctx,
	}, nil
}

func (n *NATSStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := n.kv.Get(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return entry.Value(), true, nil
}

func (n *NATSStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := n.kv.Put(ctx, encodeKey(key), value); err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}

	return nil
}

func (n *NATSStore) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	_, err := n.kv.Create(ctx, encodeKey(key), value)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return ErrKeyExists
	}

	if err != nil {
		return fmt.Errorf("failed to create key %s: %w", key, err)
	}

	return nil
}

func (n *NATSStore) Delete(ctx context.Context, key string) error {
	err := n.kv.Purge(ctx, encodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

func (n *NATSStore) DeletePrefix(ctx context.Context, prefix string) error {
	entries, err := n.List(ctx, prefix)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := n.Delete(ctx, entry.Key); err != nil {
			return err
		}
	}

	return nil
}

func (n *NATSStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	lister, err := n.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	var keys []string

	for encoded := range lister.Keys() {
		key, err := decodeKey(encoded)
		if err != nil {
			continue
		}

		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))

	for _, key := range keys {
		value, found, err := n.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		if found {
			entries = append(entries, Entry{Key: key, Value: value})
		}
	}

	return entries, nil
}

func (n *NATSStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	watcher, err := n.kv.Watch(ctx, encodeKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to watch key %s: %w", key, err)
	}

	ch := make(chan []byte, 1)
	go n.handleWatchUpdates(ctx, watcher, ch)

	return ch, nil
}

func (n *NATSStore) handleWatchUpdates(ctx context.Context, watcher jetstream.KeyWatcher, ch chan<- []byte) {
	defer func() {
		_ = watcher.Stop()
		close(ch)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.ctx.Done():
			return
		case update, ok := <-watcher.Updates():
			if !ok {
				return
			}

			if update == nil {
				continue // initial-values marker
			}

			var value []byte
			if update.Operation() == jetstream.KeyValuePut {
				value = update.Value()
			}

			select {
			case ch <- value:
			case <-ctx.Done():
				return
			case <-n.ctx.Done():
				return
			}
		}
	}
}

func (n *NATSStore) Close() error {
	n.nc.Close()

	return nil
}

// JetStream keys cannot carry spaces or arbitrary bytes, so each path
// segment is escaped with "=XX" hex escapes; '/' separators pass through
// and '=' is the escape lead-in. Escaping is at byte granularity, so the
// encoded form of a path prefix remains a prefix of the encoded path.
const keyEscape = '='

func encodeKey(key string) string {
	var b strings.Builder

	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == '/', c == '-', c == '_',
			c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%c%02X", keyEscape, c)
		}
	}

	return b.String()
}

func decodeKey(encoded string) (string, error) {
	var b strings.Builder

	for i := 0; i < len(encoded); i++ {
		c := encoded[i]
		if c != keyEscape {
			b.WriteByte(c)
			continue
		}

		if i+3 > len(encoded) {
			return "", fmt.Errorf("truncated escape in key %q", encoded)
		}

		var decoded byte
		if _, err := fmt.Sscanf(encoded[i+1:i+3], "%02X", &decoded); err != nil {
			return "", fmt.Errorf("bad escape in key %q: %w", encoded, err)
		}

		b.WriteByte(decoded)
		i += 2
	}

	return b.String(), nil
}

var _ Store = (*NATSStore)(nil)
