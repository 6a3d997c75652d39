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
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// ErrDependencyCycle is returned by TopologicalSort when the graph
// contains a cycle.
var ErrDependencyCycle = errors.New("circular dependency detected")

// DependencyGraph tracks the dependency edges of loaded plugins in both
// directions. A node's dependencies need not be nodes themselves.
//
// DependencyGraph is not safe for concurrent use; the owning System
// serializes access.
type DependencyGraph struct {
	nodes      map[ID][]ID
	dependents map[ID]map[ID]struct{}
}

// NewDependencyGraph creates an empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:      make(map[ID][]ID),
		dependents: make(map[ID]map[ID]struct{}),
	}
}

// AddNode adds id with edges to each of deps, replacing any previous edges
// of id.
func (g *DependencyGraph) AddNode(id ID, deps []ID) {
	g.RemoveNode(id)
	g.nodes[id] = deps
	for _, dep := range deps {
		set, ok := g.dependents[dep]
		if !ok {
			set = make(map[ID]struct{})
			g.dependents[dep] = set
		}
		set[id] = struct{}{}
	}
}

// RemoveNode removes id and its outgoing edges. Edges pointing at id from
// other nodes are kept until those nodes are removed.
func (g *DependencyGraph) RemoveNode(id ID) {
	deps, ok := g.nodes[id]
	if !ok {
		return
	}
	for _, dep := range deps {
		set := g.dependents[dep]
		delete(set, id)
		if len(set) == 0 {
			delete(g.dependents, dep)
		}
	}
	delete(g.nodes, id)
}

// Has reports whether id is a node.
func (g *DependencyGraph) Has(id ID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Dependents returns the nodes with a direct edge to id, sorted.
func (g *DependencyGraph) Dependents(id ID) []ID {
	return sortedIDs(maps.Keys(g.dependents[id]))
}

// TopologicalSort orders the nodes so that every node follows the nodes it
// depends on. Ties are broken by ID. If the graph has a cycle, the nodes
// that could be ordered are returned along with ErrDependencyCycle.
func (g *DependencyGraph) TopologicalSort() ([]ID, error) {
	inDegree := make(map[ID]int, len(g.nodes))
	for id, deps := range g.nodes {
		n := 0
		for _, dep := range deps {
			if dep != id && g.Has(dep) {
				n++
			}
		}
		inDegree[id] = n
	}

	var queue []ID
	for _, id := range sortedIDs(maps.Keys(g.nodes)) {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]ID, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range g.Dependents(current) {
			if dependent == current {
				continue
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return result, ErrDependencyCycle
	}
	return result, nil
}
