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

package altitude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cyberhaven/fltsetup/pkg/kv"
)

var (
	// ErrCollision is returned when the requested altitude is already
	// claimed by another filter anywhere on the system.
	ErrCollision = errors.New("altitude already claimed")

	// ErrClaimNotFound is returned when releasing an unclaimed altitude.
	ErrClaimNotFound = errors.New("altitude claim not found")
)

// Claim records which service owns an altitude.
type Claim struct {
	Altitude string `json:"altitude"`
	Owner    string `json:"owner"`
}

// Registry is the system-wide altitude claim set. Altitudes are shared
// across every filter on the machine, not just ours, so one Registry
// (and one lock) guards the whole ordering. The claim list is kept
// sorted by altitude through insertion, never re-sorted, and each claim
// is also persisted so concurrent installers sharing a store conflict
// on the claim key rather than racing.
type Registry struct {
	mu     sync.Mutex
	store  kv.Store
	vendor Range
	claims []Claim // ordered by altitude, lowest first
}

// NewRegistry returns a Registry persisting claims into store, accepting
// only altitudes within the vendor range.
func NewRegistry(store kv.Store, vendor Range) *Registry {
	return &Registry{store: store, vendor: vendor}
}

// Load primes the in-memory claim list from the store.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.store.List(ctx, "Altitudes/")
	if err != nil {
		return fmt.Errorf("failed to list altitude claims: %w", err)
	}

	r.claims = nil

	for _, entry := range entries {
		var claim Claim
		if err := json.Unmarshal(entry.Value, &claim); err != nil {
			return fmt.Errorf("corrupt altitude claim at %s: %w", entry.Key, err)
		}

		if err := r.insertLocked(claim); err != nil {
			return err
		}
	}

	return nil
}

// Claim reserves alt for owner. The collision check and the ordered
// insert happen under one lock acquisition so two concurrent installs
// cannot both claim the same altitude.
func (r *Registry) Claim(ctx context.Context, alt, owner string) error {
	parsed, err := Parse(alt)
	if err != nil {
		return err
	}

	if !r.vendor.Contains(parsed) {
		return fmt.Errorf("%w: %s not in [%d, %d]", ErrAltitudeOutsideRange, alt, r.vendor.Min, r.vendor.Max)
	}

	// Claims are compared and persisted by canonical spelling, so
	// "265000.5" and "265000.50" contend for the same slot.
	canonical := parsed.Canonical()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.claims {
		existing, perr := Parse(c.Altitude)
		if perr != nil || parsed.Compare(existing) != 0 {
			continue
		}

		if c.Owner == owner {
			return nil // re-claim by the same owner is a no-op
		}

		return fmt.Errorf("%w: %s held by %s", ErrCollision, alt, c.Owner)
	}

	claim := Claim{Altitude: canonical, Owner: owner}

	value, err := json.Marshal(claim)
	if err != nil {
		return err
	}

	if err := r.store.PutIfAbsent(ctx, kv.AltitudeKey(canonical), value); err != nil {
		if errors.Is(err, kv.ErrKeyExists) {
			return fmt.Errorf("%w: %s", ErrCollision, alt)
		}

		return fmt.Errorf("failed to persist altitude claim: %w", err)
	}

	return r.insertLocked(claim)
}

// Release drops owner's claim on alt. Any spelling of the altitude
// releases the claim.
func (r *Registry) Release(ctx context.Context, alt, owner string) error {
	parsed, err := Parse(alt)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.claims {
		existing, perr := Parse(c.Altitude)
		if perr != nil || parsed.Compare(existing) != 0 || c.Owner != owner {
			continue
		}

		if err := r.store.Delete(ctx, kv.AltitudeKey(c.Altitude)); err != nil {
			return fmt.Errorf("failed to remove altitude claim: %w", err)
		}

		r.claims = append(r.claims[:i], r.claims[i+1:]...)

		return nil
	}

	return fmt.Errorf("%w: %s owned by %s", ErrClaimNotFound, alt, owner)
}

// ReleaseOwner drops every claim held by owner. On a store failure the
// in-memory list keeps every claim whose key was not removed.
func (r *Registry) ReleaseOwner(ctx context.Context, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// kept must be a fresh slice: filtering in place would overwrite
	// claims still pending deletion if the store fails mid-iteration.
	kept := make([]Claim, 0, len(r.claims))

	for i, c := range r.claims {
		if c.Owner != owner {
			kept = append(kept, c)
			continue
		}

		if err := r.store.Delete(ctx, kv.AltitudeKey(c.Altitude)); err != nil {
			r.claims = append(kept, r.claims[i:]...)

			return fmt.Errorf("failed to remove altitude claim: %w", err)
		}
	}

	r.claims = kept

	return nil
}

// Claims returns a copy of the claim list, lowest altitude first.
func (r *Registry) Claims() []Claim {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Claim, len(r.claims))
	copy(out, r.claims)

	return out
}

// insertLocked slots the claim into its sorted position. Insert-in-order
// keeps the list sorted at every point in time, so a crash mid-sequence
// never leaves an unordered set behind.
func (r *Registry) insertLocked(claim Claim) error {
	parsed, err := Parse(claim.Altitude)
	if err != nil {
		return err
	}

	i := sort.Search(len(r.claims), func(i int) bool {
		existing, _ := Parse(r.claims[i].Altitude)
		return parsed.Compare(existing) < 0
	})

	r.claims = append(r.claims, Claim{})
	copy(r.claims[i+1:], r.claims[i:])
	r.claims[i] = claim

	return nil
}
