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

package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"pluginhost/configstore"
)

func init() {
	configstore.Register("postgres", func(settings *configstore.Settings) (configstore.Backend, error) {
		return Dial(settings.Postgres.DSN)
	})
}

var crTablesSQL = []string{
	`CREATE TABLE IF NOT EXISTS plugin_config
(
id TEXT NOT NULL PRIMARY KEY,
doc jsonb NOT NULL,
mtime TIMESTAMPTZ NOT NULL
)`,
}

const (
	upsertSQL = `INSERT INTO plugin_config (id, doc, mtime) VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, mtime = EXCLUDED.mtime`
	deleteSQL = `DELETE FROM plugin_config WHERE id = $1`
	selectSQL = `SELECT id, doc FROM plugin_config`
)

// Backend stores config documents in a PostgreSQL table.
type Backend struct {
	*sql.DB
}

// Dial returns a backend connected to the given database.
func Dial(dsn string) (*Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	b, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// New returns a backend using db, creating its table if needed.
func New(db *sql.DB) (*Backend, error) {
	b := &Backend{DB: db}
	for _, crTableSQL := range crTablesSQL {
		if _, err := b.Exec(crTableSQL); err != nil {
			return nil, errors.Wrapf(err, "cannot create plugin config table")
		}
	}
	return b, nil
}

// Put implements configstore.Backend.
func (b *Backend) Put(ctx context.Context, id string, doc []byte) error {
	_, err := b.ExecContext(ctx, upsertSQL, id, string(doc))
	return errors.WithStack(err)
}

// Delete implements configstore.Backend.
func (b *Backend) Delete(ctx context.Context, id string) error {
	_, err := b.ExecContext(ctx, deleteSQL, id)
	return errors.WithStack(err)
}

// All implements configstore.Backend.
func (b *Backend) All(ctx context.Context) (map[string][]byte, error) {
	rows, err := b.QueryContext(ctx, selectSQL)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	docs := make(map[string][]byte)
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, errors.WithStack(err)
		}
		docs[id] = doc
	}
	return docs, errors.WithStack(rows.Err())
}
