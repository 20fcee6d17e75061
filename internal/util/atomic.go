// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicWriteFile replaces path with data. Readers of the price cache and
// the config file see either the old contents or the new, never a mix.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return AtomicWrite(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// AtomicWrite streams write into a hidden sibling of path, syncs it and
// renames it over path. Missing parent directories are created private
// (0700) when perm grants nothing to group or others, and 0755 otherwise.
func AtomicWrite(path string, perm os.FileMode, write func(io.Writer) error) (err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, dirPerm(perm)); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	// The temp name stays in dir so the rename never crosses filesystems,
	// and its dot prefix keeps it out of directory watchers' targets.
	f, err := os.CreateTemp(dir, "."+filepath.Base(abs)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriter(f)
	if err = write(bw); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(abs), err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(abs), err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", filepath.Base(abs), err)
	}
	// Windows refuses to rename an open file.
	if err = f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmp, abs); err != nil {
		return fmt.Errorf("replace %s: %w", abs, err)
	}
	return nil
}

func dirPerm(perm os.FileMode) os.FileMode {
	if perm&0077 == 0 {
		return 0700
	}
	return 0755
}
