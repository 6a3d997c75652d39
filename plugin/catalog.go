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

// Catalog holds every plugin registered during the current load pass,
// whether loaded or not. The first registration of an ID wins.
type Catalog struct {
	entries map[ID]*Descriptor
}

func newCatalog() *Catalog {
	return &Catalog{entries: make(map[ID]*Descriptor)}
}

// add stores d unless its ID is already present. It reports whether d was
// stored.
func (c *Catalog) add(d *Descriptor) bool {
	if _, ok := c.entries[d.ID]; ok {
		return false
	}
	c.entries[d.ID] = d
	return true
}

func (c *Catalog) reset() {
	c.entries = make(map[ID]*Descriptor)
}

// Get returns the descriptor registered for id.
func (c *Catalog) Get(id ID) (*Descriptor, bool) {
	d, ok := c.entries[id]
	return d, ok
}

// Has reports whether id has been registered in this pass.
func (c *Catalog) Has(id ID) bool {
	_, ok := c.entries[id]
	return ok
}

// Len returns the number of cataloged plugins.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// IDs returns the cataloged IDs in sorted order.
func (c *Catalog) IDs() []ID {
	return sortedIDs(maps.Keys(c.entries))
}
