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

package svcmgr

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Stager copies the driver image into its destination directory before
// the descriptor referencing it is committed, and removes it on
// uninstall.
type Stager interface {
	// Stage copies the image at source into the destination directory
	// and returns the staged path. Staging over an identical file is
	// not an error.
	Stage(ctx context.Context, source string) (string, error)

	// Remove deletes a previously staged image. Removing a missing file
	// is not an error.
	Remove(ctx context.Context, staged string) error
}

// FileStager stages driver binaries into a directory on the local
// filesystem (the drivers directory on a real host).
type FileStager struct {
	Dir string
}

// NewFileStager returns a Stager writing into dir.
func NewFileStager(dir string) *FileStager {
	return &FileStager{Dir: dir}
}

func (f *FileStager) Stage(_ context.Context, source string) (string, error) {
	src, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("failed to open source image %s: %w", source, err)
	}
	defer src.Close()

	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging dir %s: %w", f.Dir, err)
	}

	staged := filepath.Join(f.Dir, filepath.Base(source))

	// Write through a temp file and rename so a crash mid-copy never
	// leaves a half-written image at the staged path.
	tmp, err := os.CreateTemp(f.Dir, ".staging-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging temp file: %w", err)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to copy image to %s: %w", staged, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to finish staging %s: %w", staged, err)
	}

	if err := os.Rename(tmp.Name(), staged); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move staged image into place: %w", err)
	}

	return staged, nil
}

func (f *FileStager) Remove(_ context.Context, staged string) error {
	if err := os.Remove(staged); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged image %s: %w", staged, err)
	}

	return nil
}

var _ Stager = (*FileStager)(nil)
