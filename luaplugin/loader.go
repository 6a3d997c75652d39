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

// Package luaplugin discovers plugins written in Lua. Each subdirectory of
// a search path holding an init.lua file is one plugin unit; init.lua runs
// in its own sandboxed interpreter and registers plugins through the global
// plugin module.
package luaplugin

import (
	"context"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"pluginhost/plugin"
)

const (
	// InitFile is the file run for each plugin directory.
	InitFile = "init.lua"

	// DefaultCacheSize is the default number of compiled chunks kept.
	DefaultCacheSize = 128
)

// Loader is a plugin.Loader for Lua plugin directories.
//
// A Loader is driven by the plugin.System it is attached to and is not
// safe for concurrent use otherwise.
type Loader struct {
	name      string
	paths     []string
	config    *plugin.ConfigStore
	logger    *log.Logger
	cacheSize int
	cache     *lru.Cache
	compiles  int
	states    []*state
}

// Option configures a Loader.
type Option func(*Loader)

// Paths sets the directories searched for plugins, in priority order.
func Paths(paths ...string) Option {
	return func(l *Loader) {
		l.paths = append(l.paths, paths...)
	}
}

// Config gives plugins access to the config store through
// plugin.config_get and plugin.config_set.
func Config(config *plugin.ConfigStore) Option {
	return func(l *Loader) {
		l.config = config
	}
}

// Logger sets the logger used for loader diagnostics and plugin.log.
func Logger(logger *log.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// CacheSize sets the number of compiled chunks kept between scans.
func CacheSize(n int) Option {
	return func(l *Loader) {
		l.cacheSize = n
	}
}

// Name sets the loader name reported as each descriptor's Source.
func Name(name string) Option {
	return func(l *Loader) {
		l.name = name
	}
}

// New creates a Lua plugin loader.
func New(options ...Option) (*Loader, error) {
	l := &Loader{
		name:      "lua",
		logger:    log.StandardLogger(),
		cacheSize: DefaultCacheSize,
	}
	for _, o := range options {
		o(l)
	}
	cache, err := lru.New(l.cacheSize)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cache size %d", l.cacheSize)
	}
	l.cache = cache
	return l, nil
}

// Name implements plugin.Loader.
func (l *Loader) Name() string {
	return l.name
}

type unit struct {
	name string
	dir  string
	init string
}

// Scan implements plugin.Loader. Interpreters left by the previous scan are
// closed first, so Scan must only run once the plugins it registered last
// time are unloaded, as plugin.System.LoadPass guarantees. A failing plugin
// directory is logged and skipped; the error returned counts the failures.
func (l *Loader) Scan(ctx context.Context, reg plugin.Registrar) error {
	l.closeStates()

	units := l.discover()
	failed := 0
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		if err := l.load(u, reg); err != nil {
			failed++
			l.logger.WithFields(log.Fields{
				"dir":   u.dir,
				"error": err,
			}).Error("failed to load lua plugin")
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d lua plugins failed to load", failed, len(units))
	}
	return nil
}

// discover lists plugin units. A directory name found in an earlier path
// shadows the same name in later ones.
func (l *Loader) discover() []unit {
	var units []unit
	seen := make(map[string]bool)
	for _, path := range l.paths {
		entries, err := os.ReadDir(path)
		if os.IsNotExist(err) {
			l.logger.WithField("path", path).Debug("plugin path does not exist")
			continue
		} else if err != nil {
			l.logger.WithFields(log.Fields{
				"path":  path,
				"error": err,
			}).Warning("cannot read plugin path")
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || seen[entry.Name()] {
				continue
			}
			dir := filepath.Join(path, entry.Name())
			initPath := filepath.Join(dir, InitFile)
			if fi, err := os.Stat(initPath); err != nil || !fi.Mode().IsRegular() {
				continue
			}
			seen[entry.Name()] = true
			units = append(units, unit{name: entry.Name(), dir: dir, init: initPath})
		}
	}
	return units
}

func (l *Loader) load(u unit, reg plugin.Registrar) error {
	proto, err := l.compile(u.init)
	if err != nil {
		return err
	}
	logger := l.logger.WithField("plugin_dir", u.name)
	st := newState(logger)
	l.states = append(l.states, st)

	m := &module{loader: l, unit: u, reg: reg, state: st, logger: logger}
	m.install()
	return errors.Wrapf(st.run(proto), "running %q", u.init)
}

func (l *Loader) closeStates() {
	for _, st := range l.states {
		st.close()
	}
	l.states = nil
}

// Close releases every interpreter. Plugins registered by the loader must
// already be unloaded.
func (l *Loader) Close() error {
	l.closeStates()
	l.cache.Purge()
	return nil
}
