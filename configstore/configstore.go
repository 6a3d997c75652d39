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

// Package configstore defines the persistence backends behind the plugin
// config store. Backends register themselves by name from their package
// init; import them for side effects:
//
//	import _ "pluginhost/configstore/redis"
package configstore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Backend persists plugin config documents keyed by plugin ID.
type Backend interface {
	// Put stores doc for id, replacing any previous document.
	Put(ctx context.Context, id string, doc []byte) error

	// Delete removes the document for id. Deleting a missing id is not an
	// error.
	Delete(ctx context.Context, id string) error

	// All returns every stored document.
	All(ctx context.Context) (map[string][]byte, error)

	// Close releases the backend's resources.
	Close() error
}

// Settings selects and configures a backend.
type Settings struct {
	Type     string           `toml:"type"` // "memory", "redis", "leveldb" or "postgres"
	Redis    RedisSettings    `toml:"redis"`
	LevelDB  LevelDBSettings  `toml:"leveldb"`
	Postgres PostgresSettings `toml:"postgres"`
}

// RedisSettings configures the redis backend.
type RedisSettings struct {
	Addr         string        `toml:"addr"`         // Redis server address (default: "localhost:6379")
	Password     string        `toml:"password"`     // Redis password
	DB           int           `toml:"db"`           // Redis database number (default: 0)
	PoolSize     int           `toml:"poolSize"`     // Connection pool size (default: 10)
	DialTimeout  time.Duration `toml:"dialTimeout"`  // Connection timeout (default: 5s)
	ReadTimeout  time.Duration `toml:"readTimeout"`  // Read timeout (default: 3s)
	WriteTimeout time.Duration `toml:"writeTimeout"` // Write timeout (default: 3s)
	KeyPrefix    string        `toml:"keyPrefix"`    // Key prefix for Redis keys
}

// LevelDBSettings configures the leveldb backend.
type LevelDBSettings struct {
	Path string `toml:"path"`
}

// PostgresSettings configures the postgres backend.
type PostgresSettings struct {
	DSN string `toml:"dsn"`
}

const (
	DefaultType          = "memory"
	DefaultRedisAddr     = "localhost:6379"
	DefaultRedisPrefix   = "pluginhost:"
	DefaultLevelDBPath   = "plugin-config.leveldb"
	DefaultPostgresDSN   = "database=pluginhost host=/var/run/postgresql port=5432 sslmode=disable"
	DefaultRedisPoolSize = 10
)

// DefaultSettings returns settings for the memory backend, with defaults
// filled in for the others.
func DefaultSettings() Settings {
	return Settings{
		Type: DefaultType,
		Redis: RedisSettings{
			Addr:         DefaultRedisAddr,
			PoolSize:     DefaultRedisPoolSize,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			KeyPrefix:    DefaultRedisPrefix,
		},
		LevelDB: LevelDBSettings{
			Path: DefaultLevelDBPath,
		},
		Postgres: PostgresSettings{
			DSN: DefaultPostgresDSN,
		},
	}
}

// Constructor creates a backend from settings.
type Constructor func(settings *Settings) (Backend, error)

var (
	mu           sync.RWMutex
	constructors = make(map[string]Constructor)
)

// Register makes a backend available under name. Registering the same name
// twice replaces the earlier constructor.
func Register(name string, constructor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	constructors[name] = constructor
}

// Names returns the registered backend names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := maps.Keys(constructors)
	slices.Sort(names)
	return names
}

// New creates the backend selected by settings.Type. An empty type selects
// the memory backend.
func New(settings *Settings) (Backend, error) {
	typ := settings.Type
	if typ == "" {
		typ = DefaultType
	}
	mu.RLock()
	constructor, ok := constructors[typ]
	mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("config store backend %q not registered - import _ \"pluginhost/configstore/%s\"", typ, typ)
	}
	b, err := constructor(settings)
	if err != nil {
		return nil, errors.Wrapf(err, "config store backend %q", typ)
	}
	return b, nil
}
