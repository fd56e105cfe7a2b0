package mocks

import (
	"sync"

	"github.com/user/kamishibai/pkg/ports"
)

// SelectionStore is an in-memory implementation of ports.SelectionStore.
type SelectionStore struct {
	mu  sync.Mutex
	sel ports.Selection

	LoadFunc func() (ports.Selection, error)
	SaveFunc func(sel ports.Selection) error

	Loads int
}

// NewSelectionStore creates an empty store.
func NewSelectionStore() *SelectionStore {
	return &SelectionStore{}
}

func (m *SelectionStore) Load() (ports.Selection, error) {
	m.mu.Lock()
	m.Loads++
	sel := m.sel
	m.mu.Unlock()
	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return sel, nil
}

func (m *SelectionStore) Save(sel ports.Selection) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(sel)
	}
	m.mu.Lock()
	m.sel = sel
	m.mu.Unlock()
	return nil
}

var _ ports.SelectionStore = (*SelectionStore)(nil)
