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
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// toGo converts a Lua value into plain Go data: nil, bool, int64, float64,
// string, []interface{} or map[string]interface{}. Functions, userdata
// and references back to an enclosing table become nil; a table shared by
// several fields is converted at each of them.
func toGo(lv lua.LValue) interface{} {
	return toGoVisited(lv, make(map[*lua.LTable]bool))
}

func toGoVisited(lv lua.LValue, visited map[*lua.LTable]bool) interface{} {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		if arr, ok := tableToSlice(v, visited); ok {
			return arr
		}
		return tableToMap(v, visited)
	default:
		return nil
	}
}

// tableToSlice converts t if its keys are exactly 1..n.
func tableToSlice(t *lua.LTable, visited map[*lua.LTable]bool) ([]interface{}, bool) {
	n := t.Len()
	if n == 0 {
		return nil, false
	}
	count := 0
	t.ForEach(func(_, _ lua.LValue) {
		count++
	})
	if count != n {
		return nil, false
	}
	arr := make([]interface{}, n)
	for i := 1; i <= n; i++ {
		v := t.RawGetInt(i)
		if v == lua.LNil {
			return nil, false
		}
		arr[i-1] = toGoVisited(v, visited)
	}
	return arr, true
}

func tableToMap(t *lua.LTable, visited map[*lua.LTable]bool) map[string]interface{} {
	m := make(map[string]interface{})
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = kv.String()
		default:
			key = k.String()
		}
		m[key] = toGoVisited(v, visited)
	})
	return m
}

// toLua converts Go data into a Lua value owned by L.
func toLua(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case time.Time:
		return lua.LString(val.Format(time.RFC3339))
	case []interface{}:
		t := L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	case []string:
		t := L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, lua.LString(item))
		}
		return t
	case map[string]interface{}:
		t := L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	case map[string]string:
		t := L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, lua.LString(item))
		}
		return t
	case lua.LValue:
		return val
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
