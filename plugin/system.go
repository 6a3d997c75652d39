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
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"pluginhost/plugin/events"
)

// Unload reasons, reported in plugin.unloaded events.
const (
	ReasonManual      = "manual"
	ReasonCascade     = "cascade"
	ReasonReset       = "reset"
	ReasonUnsatisfied = "unsatisfied"
)

// System owns the plugin catalog, registry and enabled set, and performs
// every lifecycle transition.
//
// Lifecycle operations are serialized by the System's lock and plugin
// callbacks run while it is held: callbacks must not call back into the
// System. The config store has its own lock and may be used from
// callbacks. Events published during a lifecycle operation, including
// config updates made by callbacks, are held on the bus and delivered once
// the lock is released, so event handlers may query the System.
type System struct {
	mu       sync.RWMutex
	catalog  *Catalog
	registry *Registry
	enabled  EnabledSet
	loaders  []Loader
	config   *ConfigStore
	events   *events.EventBus
	logger   *log.Logger
	lastPass *PassInfo
}

// Option configures a System.
type Option func(*System)

// Enabled sets the IDs that load automatically when registered.
func Enabled(ids ...ID) Option {
	return func(s *System) {
		for _, id := range ids {
			s.enabled[id] = struct{}{}
		}
	}
}

// Loaders sets the loaders scanned, in order, by each load pass.
func Loaders(loaders ...Loader) Option {
	return func(s *System) {
		s.loaders = append(s.loaders, loaders...)
	}
}

// Logger sets the logger. The default is the logrus standard logger.
func Logger(logger *log.Logger) Option {
	return func(s *System) {
		s.logger = logger
	}
}

// EventBus sets the bus lifecycle events are published on.
func EventBus(bus *events.EventBus) Option {
	return func(s *System) {
		s.events = bus
	}
}

// Config sets the plugin config store.
func Config(config *ConfigStore) Option {
	return func(s *System) {
		s.config = config
	}
}

// NewSystem creates a plugin system with an empty catalog and registry.
func NewSystem(options ...Option) *System {
	s := &System{
		catalog:  newCatalog(),
		registry: newRegistry(),
		enabled:  EnabledSet{},
		logger:   log.StandardLogger(),
	}
	for _, o := range options {
		o(s)
	}
	if s.events == nil {
		s.events = events.NewEventBus(s.logger)
	}
	if s.config == nil {
		s.config = NewConfigStore(ConfigEvents(s.events), ConfigLogger(s.logger))
	}
	return s
}

func (s *System) lock() {
	s.mu.Lock()
	s.events.Hold()
}

func (s *System) unlock() {
	s.mu.Unlock()
	s.events.Release()
}

// Config returns the plugin config store.
func (s *System) Config() *ConfigStore {
	return s.config
}

// Events returns the lifecycle event bus.
func (s *System) Events() *events.EventBus {
	return s.events
}

// Enabled returns the enabled IDs in sorted order.
func (s *System) Enabled() []ID {
	return s.enabled.IDs()
}

// IsEnabled reports whether id loads automatically on registration.
func (s *System) IsEnabled(id ID) bool {
	return s.enabled.Contains(id)
}

// Register records desc in the catalog and, if its ID is enabled and not
// already loaded, loads it. Dependencies are not resolved here; see
// Resolve. Invalid descriptors are logged and ignored.
func (s *System) Register(desc Descriptor) {
	s.lock()
	defer s.unlock()
	s.register(desc)
}

func (s *System) register(desc Descriptor) {
	if err := desc.validate(); err != nil {
		s.logger.WithFields(log.Fields{
			"plugin": desc.ID,
			"source": desc.Source,
			"error":  err,
		}).Warning("ignoring invalid plugin registration")
		return
	}
	d := desc.normalized()
	if !s.catalog.add(d) {
		s.logger.WithFields(log.Fields{
			"plugin": d.ID,
			"source": d.Source,
		}).Debug("ignoring duplicate plugin registration")
	}
	if !s.enabled.Contains(d.ID) || s.registry.Has(d.ID) {
		return
	}
	cataloged, _ := s.catalog.Get(d.ID)
	s.load(cataloged)
}

// Unload unloads id and every loaded plugin that transitively depends on
// it, returning the unloaded IDs in unload order. Unloading a plugin that
// is not loaded does nothing.
func (s *System) Unload(id ID) []ID {
	s.lock()
	defer s.unlock()
	return s.unload(id, ReasonManual, ReasonCascade)
}

// UnloadAll unloads every loaded plugin.
func (s *System) UnloadAll() []ID {
	s.lock()
	defer s.unlock()
	return s.unloadAll()
}

func (s *System) unloadAll() []ID {
	var unloaded []ID
	for _, id := range s.registry.LoadOrder() {
		unloaded = append(unloaded, s.unload(id, ReasonReset, ReasonReset)...)
	}
	return unloaded
}

// unload removes id and everything that transitively depends on it. The
// affected set is gathered breadth-first over reverse dependency edges;
// id is unloaded first and the rest follow in load order, so each plugin's
// OnUnload runs exactly once and before those of its dependents.
func (s *System) unload(id ID, reason, cascadeReason string) []ID {
	if !s.registry.Has(id) {
		return nil
	}
	affected := map[ID]struct{}{id: {}}
	worklist := []ID{id}
	for len(worklist) > 0 {
		current := worklist[0]
		worklist = worklist[1:]
		for _, dep := range s.registry.Dependents(current) {
			if _, ok := affected[dep]; !ok {
				affected[dep] = struct{}{}
				worklist = append(worklist, dep)
			}
		}
	}

	sequence := make([]ID, 1, len(affected))
	sequence[0] = id
	for _, other := range s.registry.LoadOrder() {
		if _, ok := affected[other]; ok && other != id {
			sequence = append(sequence, other)
		}
	}

	for _, current := range sequence {
		d, _ := s.registry.Get(current)
		s.invoke(d, "unload", d.Plugin.OnUnload)
		s.registry.remove(current)

		r := cascadeReason
		if current == id {
			r = reason
		}
		s.logger.WithFields(log.Fields{
			"plugin": current,
			"reason": r,
		}).Debug("plugin unloaded")
		s.events.Publish(events.PluginEvent{
			Type:   events.EventPluginUnloaded,
			Source: string(current),
			Data: map[string]interface{}{
				"reason":   r,
				"root":     string(id),
				"registry": s.registry.Len(),
			},
		})
	}
	return sequence
}

func (s *System) load(d *Descriptor) {
	s.invoke(d, "load", d.Plugin.OnLoad)
	s.registry.insert(d)
	s.logger.WithFields(log.Fields{
		"plugin": d.ID,
		"source": d.Source,
	}).Debug("plugin loaded")
	s.events.Publish(events.PluginEvent{
		Type:   events.EventPluginLoaded,
		Source: string(d.ID),
		Data: map[string]interface{}{
			"loader":   d.Source,
			"registry": s.registry.Len(),
		},
	})
}

// invoke runs a plugin callback, logging any error or panic it produces.
func (s *System) invoke(d *Descriptor, callback string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("panic: %v", r)
			}
		}()
		return errors.WithStack(fn())
	}()
	if err == nil {
		return
	}
	s.logger.WithFields(log.Fields{
		"plugin":   d.ID,
		"callback": callback,
		"error":    err,
	}).Error("plugin callback failed")
	s.events.Publish(events.PluginEvent{
		Type:   events.EventPluginError,
		Source: string(d.ID),
		Data: map[string]interface{}{
			"callback": callback,
			"error":    err.Error(),
		},
	})
}

// Loaded returns the loaded IDs in sorted order.
func (s *System) Loaded() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.IDs()
}

// LoadOrder returns the loaded IDs with each plugin after its dependencies.
func (s *System) LoadOrder() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.LoadOrder()
}

// IsLoaded reports whether id is loaded.
func (s *System) IsLoaded(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Has(id)
}

// Dependents returns the loaded plugins that directly depend on id.
func (s *System) Dependents(id ID) []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Dependents(id)
}

// Cataloged returns the IDs registered during the current load pass, in
// sorted order.
func (s *System) Cataloged() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.IDs()
}

// Descriptor returns a copy of the cataloged descriptor for id.
func (s *System) Descriptor(id ID) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.catalog.Get(id)
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// LastPass returns a summary of the most recent load pass, or nil.
func (s *System) LastPass() *PassInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPass
}
