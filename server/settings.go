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

package server

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"

	"pluginhost/configstore"
)

type HTTPConfig struct {
	Bind              string `toml:"bind"`
	LogRequestDetails bool   `toml:"logRequestDetails"`
}

type PluginsConfig struct {
	// Enabled lists the plugin IDs loaded automatically when discovered.
	// Their dependencies are loaded too, enabled or not.
	Enabled []string `toml:"enabled"`

	// Paths are searched for Lua plugin directories, in priority order.
	// Relative paths are resolved against DataDir.
	Paths []string `toml:"paths"`

	// CacheSize bounds the number of compiled Lua chunks kept between load
	// passes.
	CacheSize int `toml:"cacheSize"`

	// Config seeds the plugin config store, one table per plugin ID.
	// Values already persisted by the store take precedence.
	Config map[string]interface{} `toml:"config"`

	Store configstore.Settings `toml:"store"`
}

const (
	DefaultHTTPBind          = ":8080"
	DefaultLogRequestDetails = true
	DefaultLogLevel          = "INFO"
	DefaultDataDir           = "/var/lib/pluginhost"
	DefaultPluginPath        = "plugins"
	DefaultPluginCacheSize   = 128
)

type Settings struct {
	HTTP    HTTPConfig    `toml:"http"`
	Plugins PluginsConfig `toml:"plugins"`

	LogFile  string `toml:"logfile"`
	LogLevel string `toml:"loglevel"`

	DataDir string `toml:"dataDir"`

	Software string
	Version  string
	BuiltAt  string
}

var (
	Software = "pluginhost"
	Version  = "~unreleased"
	BuiltAt  string
)

func DefaultSettings() Settings {
	return Settings{
		HTTP: HTTPConfig{
			Bind:              DefaultHTTPBind,
			LogRequestDetails: DefaultLogRequestDetails,
		},
		Plugins: PluginsConfig{
			Enabled:   []string{},
			Paths:     []string{DefaultPluginPath},
			CacheSize: DefaultPluginCacheSize,
			Config:    map[string]interface{}{},
			Store:     configstore.DefaultSettings(),
		},
		LogLevel: DefaultLogLevel,
		DataDir:  DefaultDataDir,
		Software: Software,
		Version:  Version,
		BuiltAt:  BuiltAt,
	}
}

func ParseSettings(data string) (*Settings, error) {
	// Check if data contains template syntax - if so, process as template first
	if strings.Contains(data, "{{") && strings.Contains(data, "}}") {
		tmpl, err := template.New("config").Funcs(sprig.TxtFuncMap()).Funcs(envFuncMap()).Parse(data)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		w := &bytes.Buffer{}
		err = tmpl.Execute(w, readEnv())
		if err != nil {
			return nil, errors.WithStack(err)
		}
		data = w.String()
	}

	// Try parsing directly without wrapper first
	settings := DefaultSettings()
	md, err := toml.Decode(data, &settings)
	if err == nil && !md.IsDefined("pluginhost") {
		settings.configureDataDirPaths()
		return &settings, nil
	}

	// Try parsing with [pluginhost] wrapper
	var docWithWrapper struct {
		PluginHost Settings `toml:"pluginhost"`
	}
	docWithWrapper.PluginHost = DefaultSettings()
	_, err = toml.Decode(data, &docWithWrapper)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	settings = docWithWrapper.PluginHost
	settings.configureDataDirPaths()
	return &settings, nil
}

// EnvFuncMap returns a map of functions that can be used in a template
func envFuncMap() template.FuncMap {
	return template.FuncMap(
		map[string]interface{}{
			"osenv": func(prefix string) map[string]string {
				env := make(map[string]string)
				for _, e := range os.Environ() {
					pair := strings.SplitN(e, "=", 2)
					// if the environment variable starts with the prefix, add it to the map
					if strings.HasPrefix(pair[0], prefix) {
						env[pair[0]] = pair[1]
					}
				}
				return env
			},
		},
	)
}

// ReadEnv returns a map of environment variables
func readEnv() map[string]string {
	env := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		env[pair[0]] = pair[1]
	}
	return env
}

// configureDataDirPaths resolves relative plugin and store paths under DataDir.
func (s *Settings) configureDataDirPaths() {
	if s.DataDir == "" {
		return
	}
	for i, path := range s.Plugins.Paths {
		if !filepath.IsAbs(path) {
			s.Plugins.Paths[i] = filepath.Join(s.DataDir, path)
		}
	}
	if s.Plugins.Store.LevelDB.Path != "" && !filepath.IsAbs(s.Plugins.Store.LevelDB.Path) {
		s.Plugins.Store.LevelDB.Path = filepath.Join(s.DataDir, s.Plugins.Store.LevelDB.Path)
	}
}
