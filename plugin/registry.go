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
	"golang.org/x/exp/maps"
)

// Registry holds the loaded subset of the Catalog together with the
// dependency graph between loaded plugins.
type Registry struct {
	active map[ID]*Descriptor
	graph  *DependencyGraph
}

func newRegistry() *Registry {
	return &Registry{
		active: make(map[ID]*Descriptor),
		graph:  NewDependencyGraph(),
	}
}

func (r *Registry) insert(d *Descriptor) {
	r.active[d.ID] = d
	r.graph.AddNode(d.ID, d.DependsOn)
}

func (r *Registry) remove(id ID) {
	delete(r.active, id)
	r.graph.RemoveNode(id)
}

// Get returns the loaded descriptor for id.
func (r *Registry) Get(id ID) (*Descriptor, bool) {
	d, ok := r.active[id]
	return d, ok
}

// Has reports whether id is loaded.
func (r *Registry) Has(id ID) bool {
	_, ok := r.active[id]
	return ok
}

// Len returns the number of loaded plugins.
func (r *Registry) Len() int {
	return len(r.active)
}

// IDs returns the loaded IDs in sorted order.
func (r *Registry) IDs() []ID {
	return sortedIDs(maps.Keys(r.active))
}

// Dependents returns the loaded plugins that directly depend on id.
func (r *Registry) Dependents(id ID) []ID {
	return r.graph.Dependents(id)
}

// LoadOrder returns the loaded IDs with every plugin after its
// dependencies. Plugins caught in a dependency cycle come last, sorted.
func (r *Registry) LoadOrder() []ID {
	order, err := r.graph.TopologicalSort()
	if err == nil {
		return order
	}
	placed := make(map[ID]struct{}, len(order))
	for _, id := range order {
		placed[id] = struct{}{}
	}
	for _, id := range r.IDs() {
		if _, ok := placed[id]; !ok {
			order = append(order, id)
		}
	}
	return order
}
