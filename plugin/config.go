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

package plugin

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"pluginhost/plugin/events"
)

// Persister stores config values outside the process. Values are JSON
// documents keyed by plugin ID.
type Persister interface {
	Put(ctx context.Context, id string, value []byte) error
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) (map[string][]byte, error)
}

// ConfigStore maps plugin IDs to opaque configuration values. Entries
// survive plugin unloads and load passes.
//
// The zero value is an empty, memory-only store ready for use. It is safe
// for concurrent use.
type ConfigStore struct {
	mu      sync.RWMutex
	values  map[ID]interface{}
	flushMu sync.Mutex
	flushes map[ID]*sync.Mutex
	persist Persister
	events  *events.EventBus
	logger  *log.Logger
	timeout time.Duration
}

// ConfigOption configures a ConfigStore.
type ConfigOption func(*ConfigStore)

// ConfigPersister writes every change through to p.
func ConfigPersister(p Persister) ConfigOption {
	return func(c *ConfigStore) {
		c.persist = p
	}
}

// ConfigEvents publishes plugin.config.updated events on bus.
func ConfigEvents(bus *events.EventBus) ConfigOption {
	return func(c *ConfigStore) {
		c.events = bus
	}
}

// ConfigLogger sets the logger used to report persistence failures.
func ConfigLogger(logger *log.Logger) ConfigOption {
	return func(c *ConfigStore) {
		c.logger = logger
	}
}

// ConfigTimeout bounds each persistence call. The default is 5 seconds.
func ConfigTimeout(d time.Duration) ConfigOption {
	return func(c *ConfigStore) {
		c.timeout = d
	}
}

// NewConfigStore creates a config store.
func NewConfigStore(options ...ConfigOption) *ConfigStore {
	c := &ConfigStore{}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *ConfigStore) log() *log.Logger {
	if c.logger == nil {
		return log.StandardLogger()
	}
	return c.logger
}

func (c *ConfigStore) persistContext() (context.Context, context.CancelFunc) {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// Get returns the value stored for id.
func (c *ConfigStore) Get(id ID) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[id]
	return v, ok
}

// Set stores value for id, replacing any previous value. Persistence
// failures are logged; the in-memory value is updated regardless.
func (c *ConfigStore) Set(id ID, value interface{}) {
	c.mu.Lock()
	c.set(id, value)
	c.mu.Unlock()
	c.flush(id)
	c.updated(id, "set")
}

// SetDefault stores value for id only if id has no value yet. It reports
// whether value was stored.
func (c *ConfigStore) SetDefault(id ID, value interface{}) bool {
	c.mu.Lock()
	if _, ok := c.values[id]; ok {
		c.mu.Unlock()
		return false
	}
	c.set(id, value)
	c.mu.Unlock()
	c.flush(id)
	c.updated(id, "set")
	return true
}

// Delete removes the value stored for id.
func (c *ConfigStore) Delete(id ID) {
	c.mu.Lock()
	_, ok := c.values[id]
	delete(c.values, id)
	c.mu.Unlock()
	if ok {
		c.flush(id)
		c.updated(id, "delete")
	}
}

// IDs returns the IDs with a stored value, sorted.
func (c *ConfigStore) IDs() []ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedIDs(maps.Keys(c.values))
}

// Restore loads every persisted value into memory, replacing values held
// for the same IDs. It returns the number of values restored.
func (c *ConfigStore) Restore(ctx context.Context) (int, error) {
	if c.persist == nil {
		return 0, nil
	}
	docs, err := c.persist.All(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[ID]interface{}, len(docs))
	}
	n := 0
	for id, doc := range docs {
		var v interface{}
		if err := json.Unmarshal(doc, &v); err != nil {
			c.log().WithFields(log.Fields{
				"plugin": id,
				"error":  errors.WithStack(err),
			}).Warning("skipping unreadable persisted plugin config")
			continue
		}
		c.values[ID(id)] = v
		n++
	}
	return n, nil
}

// set must be called with c.mu held for writing.
func (c *ConfigStore) set(id ID, value interface{}) {
	if c.values == nil {
		c.values = make(map[ID]interface{})
	}
	c.values[id] = value
}

// flushLock returns the lock serializing persistence of id.
func (c *ConfigStore) flushLock(id ID) *sync.Mutex {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	if c.flushes == nil {
		c.flushes = make(map[ID]*sync.Mutex)
	}
	l, ok := c.flushes[id]
	if !ok {
		l = &sync.Mutex{}
		c.flushes[id] = l
	}
	return l
}

// flush writes the current value of id through to the persister, or
// deletes it if id has no value. It runs without c.mu held; concurrent
// flushes of one id are serialized and each persists the value current
// when it starts, so the persisted state converges on the last write.
func (c *ConfigStore) flush(id ID) {
	if c.persist == nil {
		return
	}
	l := c.flushLock(id)
	l.Lock()
	defer l.Unlock()

	c.mu.RLock()
	value, ok := c.values[id]
	c.mu.RUnlock()

	ctx, cancel := c.persistContext()
	defer cancel()
	if !ok {
		if err := c.persist.Delete(ctx, string(id)); err != nil {
			c.log().WithFields(log.Fields{
				"plugin": id,
				"error":  errors.WithStack(err),
			}).Error("failed to delete persisted plugin config")
		}
		return
	}
	doc, err := json.Marshal(value)
	if err != nil {
		c.log().WithFields(log.Fields{
			"plugin": id,
			"error":  errors.WithStack(err),
		}).Error("plugin config value cannot be persisted")
		return
	}
	if err := c.persist.Put(ctx, string(id), doc); err != nil {
		c.log().WithFields(log.Fields{
			"plugin": id,
			"error":  errors.WithStack(err),
		}).Error("failed to persist plugin config")
	}
}

func (c *ConfigStore) updated(id ID, op string) {
	c.events.Publish(events.PluginEvent{
		Type:   events.EventPluginConfigUpdated,
		Source: string(id),
		Data: map[string]interface{}{
			"op": op,
		},
	})
}
