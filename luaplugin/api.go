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
	log "github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"pluginhost/plugin"
)

// module implements the global plugin table of one plugin directory.
type module struct {
	loader *Loader
	unit   unit
	reg    plugin.Registrar
	state  *state
	logger *log.Entry
}

func (m *module) install() {
	L := m.state.L
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"register":   m.register,
		"config_get": m.configGet,
		"config_set": m.configSet,
		"log":        m.log,
	})
	mod.RawSetString("dir", lua.LString(m.unit.dir))
	mod.RawSetString("name", lua.LString(m.unit.name))
	L.SetGlobal("plugin", mod)
}

// register implements plugin.register{id=, depends_on=, meta=, init=, unload=}.
func (m *module) register(L *lua.LState) int {
	tbl := L.CheckTable(1)

	id, ok := tbl.RawGetString("id").(lua.LString)
	if !ok || id == "" {
		L.ArgError(1, "id must be a non-empty string")
		return 0
	}

	var deps []plugin.ID
	switch v := tbl.RawGetString("depends_on").(type) {
	case *lua.LNilType:
	case *lua.LTable:
		for i := 1; i <= v.Len(); i++ {
			dep, ok := v.RawGetInt(i).(lua.LString)
			if !ok {
				L.ArgError(1, "depends_on entries must be strings")
				return 0
			}
			deps = append(deps, plugin.ID(dep))
		}
	default:
		L.ArgError(1, "depends_on must be a list of plugin ids")
		return 0
	}

	initFn, ok := tbl.RawGetString("init").(*lua.LFunction)
	if !ok {
		L.ArgError(1, "init must be a function")
		return 0
	}
	var unloadFn *lua.LFunction
	switch v := tbl.RawGetString("unload").(type) {
	case *lua.LNilType:
	case *lua.LFunction:
		unloadFn = v
	default:
		L.ArgError(1, "unload must be a function")
		return 0
	}

	var meta map[string]interface{}
	if t, ok := tbl.RawGetString("meta").(*lua.LTable); ok {
		meta = tableToMap(t, make(map[*lua.LTable]bool))
	}

	m.reg.Register(plugin.Descriptor{
		ID:        plugin.ID(id),
		DependsOn: deps,
		Metadata:  meta,
		Plugin:    &luaPlugin{state: m.state, init: initFn, unload: unloadFn},
		Source:    m.loader.name,
	})
	return 0
}

func (m *module) configGet(L *lua.LState) int {
	id := L.CheckString(1)
	if m.loader.config == nil {
		L.Push(lua.LNil)
		return 1
	}
	v, ok := m.loader.config.Get(plugin.ID(id))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(toLua(L, v))
	return 1
}

func (m *module) configSet(L *lua.LState) int {
	id := L.CheckString(1)
	value := L.CheckAny(2)
	if m.loader.config == nil {
		L.RaiseError("plugin config store is not available")
		return 0
	}
	m.loader.config.Set(plugin.ID(id), toGo(value))
	return 0
}

// log implements plugin.log(level, message).
func (m *module) log(L *lua.LState) int {
	level, err := log.ParseLevel(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	m.logger.Log(level, L.CheckString(2))
	return 0
}

// luaPlugin adapts Lua init and unload functions to plugin.Plugin.
type luaPlugin struct {
	state  *state
	init   *lua.LFunction
	unload *lua.LFunction
}

func (p *luaPlugin) OnLoad() error {
	return p.state.call(p.init)
}

func (p *luaPlugin) OnUnload() error {
	if p.unload == nil {
		return nil
	}
	return p.state.call(p.unload)
}
