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

//go:build !windows

package main

import (
	"context"
	"fmt"

	"github.com/cyberhaven/fltsetup/pkg/kv"
	"github.com/cyberhaven/fltsetup/pkg/scm"
)

// Non-Windows hosts run against the simulated SCM; installs are dry
// runs or shared-state rehearsals through the NATS backend.
func newServiceControl() scm.ServiceControl {
	return scm.NewSimulatedManager()
}

func openStore(ctx context.Context, cfg *Config) (kv.Store, error) {
	switch cfg.Store.Backend {
	case "memory", "":
		return kv.NewMemoryStore(), nil
	case "nats":
		bucket := cfg.Store.Bucket
		if bucket == "" {
			bucket = "fltsetup"
		}

		return kv.NewNATSStore(ctx, cfg.Store.NATSURL, bucket)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownBackend, cfg.Store.Backend)
	}
}

func defaultStagingDir() string {
	return "/var/lib/fltsetup/drivers"
}
