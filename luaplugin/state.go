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
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// state is the interpreter of one plugin directory.
type state struct {
	L      *lua.LState
	closed bool
}

var errStateClosed = errors.New("lua state closed")

// unsafeGlobals are removed from every state after the base library is
// opened: they reach the file system or load code from strings.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

func newState(logger *log.Entry) *state {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		logger.Info(strings.Join(parts, "\t"))
		return 0
	}))
	return &state{L: L}
}

func (s *state) close() {
	if !s.closed {
		s.L.Close()
		s.closed = true
	}
}

// run executes a compiled chunk.
func (s *state) run(proto *lua.FunctionProto) error {
	return s.protect(func() error {
		s.L.Push(s.L.NewFunctionFromProto(proto))
		return s.L.PCall(0, lua.MultRet, nil)
	})
}

// call invokes fn with no arguments, discarding its results.
func (s *state) call(fn *lua.LFunction) error {
	if s.closed {
		return errStateClosed
	}
	return s.protect(func() error {
		return s.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	})
}

func (s *state) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("lua panic: %v", r)
		}
	}()
	return errors.WithStack(fn())
}

type cacheKey struct {
	path  string
	size  int64
	mtime int64
}

// compile returns the compiled chunk for path, reusing the cached one while
// the file's size and modification time are unchanged.
func (l *Loader) compile(path string) (*lua.FunctionProto, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	key := cacheKey{path: path, size: fi.Size(), mtime: fi.ModTime().UnixNano()}
	if v, ok := l.cache.Get(key); ok {
		return v.(*lua.FunctionProto), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	chunk, err := parse.Parse(bufio.NewReader(f), path)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q", path)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling %q", path)
	}
	l.cache.Add(key, proto)
	l.compiles++
	return proto, nil
}
