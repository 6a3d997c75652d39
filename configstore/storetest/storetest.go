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

// Package storetest exercises configstore.Backend implementations.
package storetest

import (
	"context"
	"encoding/json"

	gc "gopkg.in/check.v1"

	"pluginhost/configstore"
	"pluginhost/plugin"
)

// Exercise runs the behaviour every backend must share against b, which
// must start empty.
func Exercise(c *gc.C, b configstore.Backend) {
	ctx := context.Background()

	docs, err := b.All(ctx)
	c.Assert(err, gc.IsNil)
	c.Assert(docs, gc.HasLen, 0)

	c.Assert(b.Put(ctx, "a", []byte(`{"greeting":"hello"}`)), gc.IsNil)
	c.Assert(b.Put(ctx, "b", []byte(`[1,2,3]`)), gc.IsNil)
	c.Assert(b.Put(ctx, "a", []byte(`{"greeting":"hi"}`)), gc.IsNil)

	docs, err = b.All(ctx)
	c.Assert(err, gc.IsNil)
	c.Assert(docs, gc.HasLen, 2)
	assertJSON(c, docs["a"], `{"greeting":"hi"}`)
	assertJSON(c, docs["b"], `[1,2,3]`)

	c.Assert(b.Delete(ctx, "b"), gc.IsNil)
	c.Assert(b.Delete(ctx, "missing"), gc.IsNil)
	docs, err = b.All(ctx)
	c.Assert(err, gc.IsNil)
	c.Assert(docs, gc.HasLen, 1)

	// write-through from a config store, then restore into a fresh one
	cs := plugin.NewConfigStore(plugin.ConfigPersister(b))
	cs.Set("c", map[string]interface{}{"n": 1})
	restored := plugin.NewConfigStore(plugin.ConfigPersister(b))
	n, err := restored.Restore(ctx)
	c.Assert(err, gc.IsNil)
	c.Assert(n, gc.Equals, 2)
	v, ok := restored.Get("c")
	c.Assert(ok, gc.Equals, true)
	c.Assert(v, gc.DeepEquals, map[string]interface{}{"n": float64(1)})
}

// assertJSON compares documents by value; some backends normalize
// whitespace.
func assertJSON(c *gc.C, got []byte, want string) {
	var g, w interface{}
	c.Assert(json.Unmarshal(got, &g), gc.IsNil, gc.Commentf("document %q", got))
	c.Assert(json.Unmarshal([]byte(want), &w), gc.IsNil)
	c.Assert(g, gc.DeepEquals, w)
}
