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

package leveldb

import (
	"context"
	"path/filepath"
	stdtesting "testing"

	gc "gopkg.in/check.v1"

	"pluginhost/configstore"
	"pluginhost/configstore/storetest"
)

func Test(t *stdtesting.T) { gc.TestingT(t) }

type LevelDBSuite struct {
	path string
}

var _ = gc.Suite(&LevelDBSuite{})

func (s *LevelDBSuite) SetUpTest(c *gc.C) {
	s.path = filepath.Join(c.MkDir(), "config.leveldb")
}

func (s *LevelDBSuite) TestBackend(c *gc.C) {
	b, err := New(s.path)
	c.Assert(err, gc.IsNil)
	defer b.Close()
	storetest.Exercise(c, b)
}

func (s *LevelDBSuite) TestReopen(c *gc.C) {
	settings := configstore.DefaultSettings()
	settings.Type = "leveldb"
	settings.LevelDB.Path = s.path

	b, err := configstore.New(&settings)
	c.Assert(err, gc.IsNil)
	c.Assert(b.Put(context.Background(), "a", []byte(`"kept"`)), gc.IsNil)
	c.Assert(b.Close(), gc.IsNil)

	b, err = configstore.New(&settings)
	c.Assert(err, gc.IsNil)
	defer b.Close()
	docs, err := b.All(context.Background())
	c.Assert(err, gc.IsNil)
	c.Assert(string(docs["a"]), gc.Equals, `"kept"`)
}

func (s *LevelDBSuite) TestEmptyPath(c *gc.C) {
	_, err := New("")
	c.Assert(err, gc.NotNil)
}
