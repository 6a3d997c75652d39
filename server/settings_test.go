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
	"path/filepath"
	"testing"

	"pluginhost/configstore"
)

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()

	if settings.HTTP.Bind != DefaultHTTPBind {
		t.Errorf("Expected default HTTP bind %s, got %s", DefaultHTTPBind, settings.HTTP.Bind)
	}

	if settings.HTTP.LogRequestDetails != DefaultLogRequestDetails {
		t.Errorf("Expected default log request details %v, got %v", DefaultLogRequestDetails, settings.HTTP.LogRequestDetails)
	}

	if settings.LogLevel != DefaultLogLevel {
		t.Errorf("Expected default log level %s, got %s", DefaultLogLevel, settings.LogLevel)
	}

	if settings.Plugins.CacheSize != DefaultPluginCacheSize {
		t.Errorf("Expected default cache size %d, got %d", DefaultPluginCacheSize, settings.Plugins.CacheSize)
	}

	if len(settings.Plugins.Enabled) != 0 {
		t.Errorf("Expected no enabled plugins, got %v", settings.Plugins.Enabled)
	}

	if settings.Plugins.Store.Type != configstore.DefaultType {
		t.Errorf("Expected default store type %s, got %s", configstore.DefaultType, settings.Plugins.Store.Type)
	}

	if settings.Software == "" {
		t.Error("Software should not be empty")
	}

	if settings.Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestParseSettingsBasic(t *testing.T) {
	tomlData := `
loglevel = "DEBUG"
dataDir = "/srv/pluginhost"

[http]
bind = ":9090"
logRequestDetails = false

[plugins]
enabled = ["auth", "greeter"]
paths = ["plugins", "/opt/plugins"]
cacheSize = 16
`

	settings, err := ParseSettings(tomlData)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}

	if settings.HTTP.Bind != ":9090" {
		t.Errorf("Expected HTTP bind :9090, got %s", settings.HTTP.Bind)
	}

	if settings.HTTP.LogRequestDetails {
		t.Error("Expected LogRequestDetails to be false")
	}

	if settings.LogLevel != "DEBUG" {
		t.Errorf("Expected log level DEBUG, got %s", settings.LogLevel)
	}

	if len(settings.Plugins.Enabled) != 2 || settings.Plugins.Enabled[0] != "auth" || settings.Plugins.Enabled[1] != "greeter" {
		t.Errorf("Expected enabled [auth greeter], got %v", settings.Plugins.Enabled)
	}

	if settings.Plugins.CacheSize != 16 {
		t.Errorf("Expected cache size 16, got %d", settings.Plugins.CacheSize)
	}

	expected := []string{"/srv/pluginhost/plugins", "/opt/plugins"}
	if len(settings.Plugins.Paths) != len(expected) {
		t.Fatalf("Expected paths %v, got %v", expected, settings.Plugins.Paths)
	}
	for i := range expected {
		if settings.Plugins.Paths[i] != expected[i] {
			t.Errorf("Expected path %s, got %s", expected[i], settings.Plugins.Paths[i])
		}
	}
}

func TestParseSettingsWithWrapper(t *testing.T) {
	tomlData := `
[pluginhost]
loglevel = "WARN"

[pluginhost.http]
bind = ":7070"

[pluginhost.plugins]
enabled = ["greeter"]
`

	settings, err := ParseSettings(tomlData)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}

	if settings.HTTP.Bind != ":7070" {
		t.Errorf("Expected HTTP bind :7070, got %s", settings.HTTP.Bind)
	}

	if settings.LogLevel != "WARN" {
		t.Errorf("Expected log level WARN, got %s", settings.LogLevel)
	}

	if len(settings.Plugins.Enabled) != 1 || settings.Plugins.Enabled[0] != "greeter" {
		t.Errorf("Expected enabled [greeter], got %v", settings.Plugins.Enabled)
	}

	if settings.Plugins.CacheSize != DefaultPluginCacheSize {
		t.Errorf("Expected default cache size %d, got %d", DefaultPluginCacheSize, settings.Plugins.CacheSize)
	}
}

func TestParseSettingsWithPluginConfig(t *testing.T) {
	tomlData := `
[plugins.config.greeter]
greeting = "hello"
repeat = 3
`

	settings, err := ParseSettings(tomlData)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}

	v, ok := settings.Plugins.Config["greeter"]
	if !ok {
		t.Fatal("Expected config for greeter")
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected a table, got %T", v)
	}
	if m["greeting"] != "hello" {
		t.Errorf("Expected greeting hello, got %v", m["greeting"])
	}
	if m["repeat"] != int64(3) {
		t.Errorf("Expected repeat 3, got %v", m["repeat"])
	}
}

func TestParseSettingsWithStore(t *testing.T) {
	tomlData := `
dataDir = "/srv/pluginhost"

[plugins.store]
type = "leveldb"

[plugins.store.redis]
addr = "redis:6379"
keyPrefix = "test:"
`

	settings, err := ParseSettings(tomlData)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}

	store := settings.Plugins.Store
	if store.Type != "leveldb" {
		t.Errorf("Expected store type leveldb, got %s", store.Type)
	}

	expected := filepath.Join("/srv/pluginhost", configstore.DefaultLevelDBPath)
	if store.LevelDB.Path != expected {
		t.Errorf("Expected leveldb path %s, got %s", expected, store.LevelDB.Path)
	}

	if store.Redis.Addr != "redis:6379" {
		t.Errorf("Expected redis addr redis:6379, got %s", store.Redis.Addr)
	}

	if store.Redis.KeyPrefix != "test:" {
		t.Errorf("Expected redis key prefix test:, got %s", store.Redis.KeyPrefix)
	}

	if store.Redis.PoolSize != configstore.DefaultRedisPoolSize {
		t.Errorf("Expected default redis pool size %d, got %d", configstore.DefaultRedisPoolSize, store.Redis.PoolSize)
	}
}

func TestParseSettingsWithTemplateVariables(t *testing.T) {
	t.Setenv("TEST_PLUGINHOST_BIND", ":6060")

	tomlData := `
[http]
bind = "{{ env "TEST_PLUGINHOST_BIND" }}"
`

	settings, err := ParseSettings(tomlData)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}

	if settings.HTTP.Bind != ":6060" {
		t.Errorf("Expected HTTP bind :6060, got %s", settings.HTTP.Bind)
	}
}

func TestParseSettingsWithOsenv(t *testing.T) {
	t.Setenv("TEST_PLUGINHOST_LEVEL", "ERROR")

	tomlData := `
loglevel = "{{ (osenv "TEST_PLUGINHOST_").TEST_PLUGINHOST_LEVEL }}"
`

	settings, err := ParseSettings(tomlData)
	if err != nil {
		t.Fatalf("ParseSettings failed: %v", err)
	}

	if settings.LogLevel != "ERROR" {
		t.Errorf("Expected log level ERROR, got %s", settings.LogLevel)
	}
}

func TestParseSettingsInvalidTOML(t *testing.T) {
	invalidData := `
[http
bind = ":8080"
`

	_, err := ParseSettings(invalidData)
	if err == nil {
		t.Error("Expected error for invalid TOML")
	}
}

func TestParseSettingsInvalidTemplate(t *testing.T) {
	_, err := ParseSettings(`loglevel = "{{ nosuchfunc }}"`)
	if err == nil {
		t.Error("Expected error for invalid template")
	}
}

func TestConfigureDataDirPathsEmpty(t *testing.T) {
	settings := DefaultSettings()
	settings.DataDir = ""
	settings.configureDataDirPaths()

	if settings.Plugins.Paths[0] != DefaultPluginPath {
		t.Errorf("Expected path %s unchanged, got %s", DefaultPluginPath, settings.Plugins.Paths[0])
	}
}

func TestEnvFuncMap(t *testing.T) {
	funcMap := envFuncMap()
	if funcMap == nil {
		t.Error("envFuncMap should not return nil")
	}

	if _, exists := funcMap["osenv"]; !exists {
		t.Error("envFuncMap should contain 'osenv' function")
	}
}
