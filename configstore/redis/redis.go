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

package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"pluginhost/configstore"
)

func init() {
	configstore.Register("redis", func(settings *configstore.Settings) (configstore.Backend, error) {
		return New(&settings.Redis)
	})
}

// Backend stores config documents as fields of a single Redis hash.
type Backend struct {
	client    *redis.Client
	keyPrefix string
}

// New connects to Redis.
func New(settings *configstore.RedisSettings) (*Backend, error) {
	if settings == nil {
		defaults := configstore.DefaultSettings().Redis
		settings = &defaults
	}

	client := redis.NewClient(&redis.Options{
		Addr:         settings.Addr,
		Password:     settings.Password,
		DB:           settings.DB,
		PoolSize:     settings.PoolSize,
		DialTimeout:  settings.DialTimeout,
		ReadTimeout:  settings.ReadTimeout,
		WriteTimeout: settings.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &Backend{
		client:    client,
		keyPrefix: settings.KeyPrefix,
	}, nil
}

func (b *Backend) configKey() string {
	return b.keyPrefix + "config"
}

// Put implements configstore.Backend.
func (b *Backend) Put(ctx context.Context, id string, doc []byte) error {
	return errors.WithStack(b.client.HSet(ctx, b.configKey(), id, doc).Err())
}

// Delete implements configstore.Backend.
func (b *Backend) Delete(ctx context.Context, id string) error {
	return errors.WithStack(b.client.HDel(ctx, b.configKey(), id).Err())
}

// All implements configstore.Backend.
func (b *Backend) All(ctx context.Context) (map[string][]byte, error) {
	fields, err := b.client.HGetAll(ctx, b.configKey()).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.WithStack(err)
	}
	docs := make(map[string][]byte, len(fields))
	for id, doc := range fields {
		docs[id] = []byte(doc)
	}
	return docs, nil
}

// Close implements configstore.Backend.
func (b *Backend) Close() error {
	return errors.WithStack(b.client.Close())
}

// clear removes every stored document.
func (b *Backend) clear(ctx context.Context) error {
	return errors.WithStack(b.client.Del(ctx, b.configKey()).Err())
}
