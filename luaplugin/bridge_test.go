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

package luaplugin

import (
	lua "github.com/yuin/gopher-lua"
	gc "gopkg.in/check.v1"
)

type BridgeSuite struct {
	L *lua.LState
}

var _ = gc.Suite(&BridgeSuite{})

func (s *BridgeSuite) SetUpTest(c *gc.C) {
	s.L = lua.NewState(lua.Options{SkipOpenLibs: true})
}

func (s *BridgeSuite) TearDownTest(c *gc.C) {
	s.L.Close()
}

func (s *BridgeSuite) eval(c *gc.C, expr string) interface{} {
	c.Assert(s.L.DoString("result = "+expr), gc.IsNil)
	return toGo(s.L.GetGlobal("result"))
}

func (s *BridgeSuite) TestScalars(c *gc.C) {
	c.Assert(s.eval(c, "3"), gc.Equals, int64(3))
	c.Assert(s.eval(c, "1.5"), gc.Equals, 1.5)
	c.Assert(s.eval(c, `"x"`), gc.Equals, "x")
	c.Assert(s.eval(c, "true"), gc.Equals, true)
	c.Assert(s.eval(c, "nil"), gc.IsNil)
}

func (s *BridgeSuite) TestTables(c *gc.C) {
	c.Assert(s.eval(c, `{"a", "b"}`), gc.DeepEquals, []interface{}{"a", "b"})
	c.Assert(s.eval(c, `{x = 1, y = {2}}`), gc.DeepEquals, map[string]interface{}{
		"x": int64(1),
		"y": []interface{}{int64(2)},
	})
}

func (s *BridgeSuite) TestSharedTableConvertedEachTime(c *gc.C) {
	c.Assert(s.L.DoString(`t = {n = 1}`), gc.IsNil)
	c.Assert(s.eval(c, `{a = t, b = t, list = {t, t}}`), gc.DeepEquals, map[string]interface{}{
		"a":    map[string]interface{}{"n": int64(1)},
		"b":    map[string]interface{}{"n": int64(1)},
		"list": []interface{}{map[string]interface{}{"n": int64(1)}, map[string]interface{}{"n": int64(1)}},
	})
}

func (s *BridgeSuite) TestCycleBecomesNil(c *gc.C) {
	c.Assert(s.L.DoString(`t = {name = "t"}; t.self = t`), gc.IsNil)
	c.Assert(s.eval(c, "t"), gc.DeepEquals, map[string]interface{}{
		"name": "t",
		"self": nil,
	})
}

func (s *BridgeSuite) TestRoundTrip(c *gc.C) {
	v := map[string]interface{}{"greeting": "hi", "list": []interface{}{int64(1), "two"}}
	c.Assert(toGo(toLua(s.L, v)), gc.DeepEquals, v)
}
