package goask

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/asklab/goask/observability"
)

// FileKeyValue is a KeyValue medium backed by a single JSON document on disk.
// Every Set rewrites the file through a temp-file-and-rename so a crash never
// leaves a half-written document behind. A file that fails to parse at load
// time is moved aside to a .backup and the medium starts fresh.
type FileKeyValue struct {
	path   string
	values map[string]string
	logger observability.Logger
	mu     sync.Mutex
}

// NewFileKeyValue creates a FileKeyValue persisted at path, creating the
// parent directory if needed and loading any existing document.
func NewFileKeyValue(path string, logger observability.Logger) (*FileKeyValue, error) {
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	kv := &FileKeyValue{
		path:   path,
		values: make(map[string]string),
		logger: logger,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	if err := kv.load(); err != nil {
		return nil, err
	}

	return kv, nil
}

func (kv *FileKeyValue) load() error {
	data, err := os.ReadFile(kv.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read storage file: %w", err)
	}

	if err := json.Unmarshal(data, &kv.values); err != nil {
		// Corrupted file - keep it aside and start fresh
		backupPath := kv.path + ".backup"
		if renameErr := os.Rename(kv.path, backupPath); renameErr == nil {
			kv.logger.WithFields(map[string]interface{}{"backup": backupPath}).WithErr(err).
				Warn("storage file is corrupted, moved aside")
		}
		kv.values = make(map[string]string)
	}

	return nil
}

// Get returns the value stored under key.
func (kv *FileKeyValue) Get(key string) (string, bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	value, exists := kv.values[key]
	return value, exists
}

// Set stores value under key and rewrites the backing file.
func (kv *FileKeyValue) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.values[key] = value

	data, err := json.MarshalIndent(kv.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage document: %w", err)
	}

	tempPath := kv.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, kv.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
