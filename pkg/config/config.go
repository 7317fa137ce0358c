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

// Package config loads JSON configuration files for the fltsetup CLI
// and validates them before use.
package config

import (
	"context"
	"errors"
	"fmt"
)

var errInvalidConfigPtr = errors.New("config must be a non-nil pointer")

// Loader loads configuration from a source into dst.
type Loader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Validator is implemented by config structs that can check themselves.
type Validator interface {
	Validate() error
}

// Config holds the configuration loading dependencies.
type Config struct {
	loader Loader
}

// NewConfig returns a Config using the file loader.
func NewConfig() *Config {
	return &Config{loader: &FileLoader{}}
}

// LoadAndValidate loads path into dst and runs its Validate hook if it
// has one.
func (c *Config) LoadAndValidate(ctx context.Context, path string, dst interface{}) error {
	if dst == nil {
		return errInvalidConfigPtr
	}

	if err := c.loader.Load(ctx, path, dst); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if v, ok := dst.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	return nil
}
