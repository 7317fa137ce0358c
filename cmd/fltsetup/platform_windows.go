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

package main

import (
	"context"
	"fmt"

	"github.com/cyberhaven/fltsetup/pkg/kv"
	"github.com/cyberhaven/fltsetup/pkg/scm"
)

func newServiceControl() scm.ServiceControl {
	return scm.NewWindowsManager()
}

func openStore(ctx context.Context, cfg *Config) (kv.Store, error) {
	switch cfg.Store.Backend {
	case "registry", "":
		base := cfg.Store.BaseKey
		if base == "" {
			base = `SOFTWARE\Cyberhaven\FltSetup`
		}

		return kv.NewRegistryStore(base)
	case "memory":
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
	return `C:\Windows\System32\drivers`
}
