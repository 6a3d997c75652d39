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
	gc "gopkg.in/check.v1"
)

type GraphSuite struct{}

var _ = gc.Suite(&GraphSuite{})

func (s *GraphSuite) TestTopologicalSort(c *gc.C) {
	g := NewDependencyGraph()
	g.AddNode("D", []ID{"B", "C"})
	g.AddNode("C", []ID{"A"})
	g.AddNode("B", []ID{"A", "missing"})
	g.AddNode("A", nil)

	order, err := g.TopologicalSort()
	c.Assert(err, gc.IsNil)
	c.Assert(order, gc.DeepEquals, []ID{"A", "B", "C", "D"})
	c.Assert(g.Dependents("A"), gc.DeepEquals, []ID{"B", "C"})
	c.Assert(g.Dependents("missing"), gc.DeepEquals, []ID{"B"})
}

func (s *GraphSuite) TestRemoveNode(c *gc.C) {
	g := NewDependencyGraph()
	g.AddNode("A", nil)
	g.AddNode("B", []ID{"A"})
	g.RemoveNode("B")
	c.Assert(g.Has("B"), gc.Equals, false)
	c.Assert(g.Dependents("A"), gc.HasLen, 0)

	g.RemoveNode("nope")
}

func (s *GraphSuite) TestCycle(c *gc.C) {
	g := NewDependencyGraph()
	g.AddNode("A", []ID{"B"})
	g.AddNode("B", []ID{"A"})
	g.AddNode("C", nil)
	order, err := g.TopologicalSort()
	c.Assert(err, gc.Equals, ErrDependencyCycle)
	c.Assert(order, gc.DeepEquals, []ID{"C"})
}
