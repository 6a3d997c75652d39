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

// Package plugin implements the plugin catalog and registry, dependency
// resolution and cascading unload, and the two stores shared with plugins:
// the process-wide plugin config store and the per-request plugin data
// store.
package plugin

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ID identifies a plugin. Dependencies are matched by ID equality only.
type ID string

func (id ID) String() string {
	return string(id)
}

// Plugin is the capability every registered plugin provides. OnLoad runs
// when the plugin enters the registry, OnUnload when it leaves.
type Plugin interface {
	OnLoad() error
	OnUnload() error
}

// Funcs adapts plain closures to Plugin. Nil fields are no-ops.
type Funcs struct {
	Load   func()
	Unload func()
}

// OnLoad implements Plugin.
func (f Funcs) OnLoad() error {
	if f.Load != nil {
		f.Load()
	}
	return nil
}

// OnUnload implements Plugin.
func (f Funcs) OnUnload() error {
	if f.Unload != nil {
		f.Unload()
	}
	return nil
}

// Descriptor describes a discovered plugin.
type Descriptor struct {
	ID ID

	// DependsOn lists the plugins that must be loaded alongside this one.
	// Order is the order the resolver examines them in.
	DependsOn []ID

	// Metadata is carried for the plugin's author and never interpreted.
	Metadata map[string]interface{}

	Plugin Plugin

	// Source names the loader that produced the descriptor.
	Source string
}

var (
	ErrEmptyID  = errors.New("plugin id is empty")
	ErrNoPlugin = errors.New("plugin has no callbacks")
)

func (d *Descriptor) validate() error {
	if d.ID == "" {
		return ErrEmptyID
	}
	if d.Plugin == nil {
		return errors.Wrapf(ErrNoPlugin, "plugin %q", d.ID)
	}
	return nil
}

// normalized returns a private copy of d with duplicate dependencies
// collapsed, keeping the first occurrence of each.
func (d *Descriptor) normalized() *Descriptor {
	nd := *d
	nd.DependsOn = make([]ID, 0, len(d.DependsOn))
	seen := make(map[ID]struct{}, len(d.DependsOn))
	for _, dep := range d.DependsOn {
		if _, ok := seen[dep]; ok {
			continue
		}
		seen[dep] = struct{}{}
		nd.DependsOn = append(nd.DependsOn, dep)
	}
	return &nd
}

// EnabledSet is the set of plugin IDs loaded automatically on registration.
type EnabledSet map[ID]struct{}

// NewEnabledSet returns an EnabledSet containing ids.
func NewEnabledSet(ids ...ID) EnabledSet {
	s := make(EnabledSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is enabled.
func (s EnabledSet) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the enabled IDs in sorted order.
func (s EnabledSet) IDs() []ID {
	return sortedIDs(maps.Keys(s))
}

func sortedIDs(ids []ID) []ID {
	slices.Sort(ids)
	return ids
}
