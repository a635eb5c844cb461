// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/gatewayz-core/internal/util"
)

// =============================================================================
// FILE BACKEND
// =============================================================================

// fileSuffix marks cache entry files so Keys can skip strangers.
const fileSuffix = ".cache.json"

// FileBackend persists entries as JSON files in one directory, surviving
// process restarts. Keys are hashed into filenames so arbitrary key strings
// can never escape the cache directory.
type FileBackend struct {
	dir string

	// mu serializes writers per process; cross-process callers get
	// whatever atomic rename semantics the filesystem provides.
	mu sync.Mutex
}

// fileEntry is the on-disk shape; the original key rides along so Keys can
// recover it from hashed filenames.
type fileEntry struct {
	Key   string `json:"key"`
	Entry Entry  `json:"entry"`
}

// NewFileBackend creates a backend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir}, nil
}

// Read implements Backend.
func (b *FileBackend) Read(key string) (Entry, bool, error) {
	data, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var fe fileEntry
	if err := json.Unmarshal(data, &fe); err != nil {
		// A torn or hand-edited file counts as a miss, not a failure.
		return Entry{}, false, nil
	}
	return fe.Entry, true, nil
}

// Write implements Backend.
func (b *FileBackend) Write(key string, e Entry) error {
	data, err := json.Marshal(fileEntry{Key: key, Entry: e})
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return util.WriteFileAtomic(b.path(key), data, 0o644)
}

// Delete implements Backend.
func (b *FileBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := os.Remove(b.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Keys implements Backend.
func (b *FileBackend) Keys() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, de.Name()))
		if err != nil {
			continue
		}
		var fe fileEntry
		if err := json.Unmarshal(data, &fe); err != nil {
			continue
		}
		keys = append(keys, fe.Key)
	}
	return keys, nil
}

// path maps a key to its file. Hashing keeps gateway names, URLs, and any
// other key shape filesystem-safe.
func (b *FileBackend) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(b.dir, hex.EncodeToString(sum[:8])+fileSuffix)
}
