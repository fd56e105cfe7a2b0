// Package filestore keeps the current selection in a YAML file shared between
// the picker commands and a running device.
package filestore

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/user/kamishibai/pkg/ports"
)

// DefaultFileName is used when no selection file is configured.
const DefaultFileName = "kamishibai-selection.yaml"

// Store is a ports.SelectionStore backed by one YAML file.
type Store struct {
	path string
	fs   ports.FileSystem
}

// New creates a store at path.
func New(path string, fs ports.FileSystem) *Store {
	if path == "" {
		path = DefaultFileName
	}
	return &Store{path: path, fs: fs}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the selection. A missing file is an empty selection.
func (s *Store) Load() (ports.Selection, error) {
	var sel ports.Selection
	exists, err := s.fs.Exists(s.path)
	if err != nil {
		return sel, fmt.Errorf("stat selection file: %w", err)
	}
	if !exists {
		return sel, nil
	}

	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		return sel, fmt.Errorf("read selection file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return sel, fmt.Errorf("parse selection file: %w", err)
	}
	return sel, nil
}

// Save replaces the selection file.
func (s *Store) Save(sel ports.Selection) error {
	data, err := yaml.Marshal(&sel)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	if err := s.fs.WriteFile(s.path, data); err != nil {
		return fmt.Errorf("write selection file: %w", err)
	}
	return nil
}

// Clear deletes the selection file. Load then reports an empty selection.
func (s *Store) Clear() error {
	exists, err := s.fs.Exists(s.path)
	if err != nil {
		return fmt.Errorf("stat selection file: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Remove(s.path); err != nil {
		return fmt.Errorf("remove selection file: %w", err)
	}
	return nil
}

var _ ports.SelectionStore = (*Store)(nil)
