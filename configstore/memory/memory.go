/*
   pluginhost - plugin registry and dependency resolution host
   Copyright (C) 2012-2025  Casey Marshall and Hockeypuck Contributors

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published by
   the Free Software Foundation, version 3.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package memory

import (
	"context"
	"sync"

	"pluginhost/configstore"
)

func init() {
	configstore.Register("memory", func(*configstore.Settings) (configstore.Backend, error) {
		return New(), nil
	})
}

// Backend keeps config documents in process memory.
type Backend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{docs: make(map[string][]byte)}
}

// Put implements configstore.Backend.
func (b *Backend) Put(ctx context.Context, id string, doc []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[id] = append([]byte(nil), doc...)
	return nil
}

// Delete implements configstore.Backend.
func (b *Backend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.docs, id)
	return nil
}

// All implements configstore.Backend.
func (b *Backend) All(ctx context.Context) (map[string][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	docs := make(map[string][]byte, len(b.docs))
	for id, doc := range b.docs {
		docs[id] = append([]byte(nil), doc...)
	}
	return docs, nil
}

// Close implements configstore.Backend.
func (b *Backend) Close() error {
	return nil
}
