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

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"pluginhost/configstore"
)

func init() {
	configstore.Register("leveldb", func(settings *configstore.Settings) (configstore.Backend, error) {
		return New(settings.LevelDB.Path)
	})
}

var keyPrefix = []byte("config:")

// Backend stores config documents in a local LevelDB database.
type Backend struct {
	db *leveldb.DB
}

// New opens or creates the database at path.
func New(path string) (*Backend, error) {
	if path == "" {
		return nil, errors.New("leveldb path is required")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open leveldb %q", path)
	}
	return &Backend{db: db}, nil
}

func key(id string) []byte {
	return append(append([]byte(nil), keyPrefix...), id...)
}

// Put implements configstore.Backend.
func (b *Backend) Put(ctx context.Context, id string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(b.db.Put(key(id), doc, nil))
}

// Delete implements configstore.Backend.
func (b *Backend) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(b.db.Delete(key(id), nil))
}

// All implements configstore.Backend.
func (b *Backend) All(ctx context.Context) (map[string][]byte, error) {
	docs := make(map[string][]byte)
	iter := b.db.NewIterator(util.BytesPrefix(keyPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		id := string(iter.Key()[len(keyPrefix):])
		docs[id] = append([]byte(nil), iter.Value()...)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.WithStack(err)
	}
	return docs, nil
}

// Close implements configstore.Backend.
func (b *Backend) Close() error {
	return errors.WithStack(b.db.Close())
}
