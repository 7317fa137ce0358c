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

package installer

import (
	"sync"
	"time"

	"github.com/cyberhaven/fltsetup/pkg/models"
)

// Transition is one journal entry: a single state-machine step and its
// outcome. A failed step records the attempted target; the machine stays
// at From.
type Transition struct {
	OperationID string
	Service     string
	Step        string
	From        models.InstallState
	To          models.InstallState
	At          time.Time
	Err         string
}

// Journal is the instrumented transition log. Every step the installer
// takes lands here, in order, so the strict state ordering can be
// audited after the fact.
type Journal struct {
	mu      sync.Mutex
	entries []Transition
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) record(t Transition) {
	t.At = time.Now()

	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, t)
}

// Entries returns a copy of the journal in recording order.
func (j *Journal) Entries() []Transition {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Transition, len(j.entries))
	copy(out, j.entries)

	return out
}

// ForService filters the journal down to one service's transitions.
func (j *Journal) ForService(name string) []Transition {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Transition

	for _, t := range j.entries {
		if t.Service == name {
			out = append(out, t)
		}
	}

	return out
}
