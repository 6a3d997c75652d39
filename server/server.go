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
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/carbocation/interpose"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"

	"pluginhost/configstore"
	_ "pluginhost/configstore/leveldb"
	_ "pluginhost/configstore/memory"
	_ "pluginhost/configstore/postgres"
	_ "pluginhost/configstore/redis"
	"pluginhost/luaplugin"
	"pluginhost/plugin"
	"pluginhost/plugin/events"
)

var ErrStopping = errors.New("stopping")

// Builtin is a plugin compiled into the server. Setup, if set, runs once
// from NewServer and may register routes, middleware and tasks on the
// plugin's Host. They take effect only while the plugin is loaded.
type Builtin struct {
	plugin.Descriptor
	Setup func(host *Host) error
}

type Server struct {
	settings *Settings
	system   *plugin.System
	events   *events.EventBus
	config   *plugin.ConfigStore
	store    configstore.Backend
	lua      *luaplugin.Loader
	builtin  *plugin.Static
	tasks    []task

	middle *interpose.Middleware
	r      *httprouter.Router
	sealed bool

	t        tomb.Tomb
	started  bool
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	httpAddr string

	logMu     sync.Mutex
	logWriter io.WriteCloser
}

// NewServer creates a server from settings. Nothing is loaded or served
// until Start.
func NewServer(settings *Settings, builtins ...Builtin) (*Server, error) {
	if settings == nil {
		defaults := DefaultSettings()
		settings = &defaults
	}
	s := &Server{
		settings: settings,
		r:        httprouter.New(),
		middle:   interpose.New(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	registerMetrics()

	s.events = events.NewEventBus(log.StandardLogger())
	s.events.Subscribe(events.EventAll, metricsEventNotifier)

	store, err := configstore.New(&settings.Plugins.Store)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	s.store = store
	s.config = plugin.NewConfigStore(
		plugin.ConfigPersister(store),
		plugin.ConfigEvents(s.events),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := s.config.Restore(ctx)
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "failed to restore plugin config")
	}
	log.Debugf("restored %d plugin config entries", n)
	for id, value := range settings.Plugins.Config {
		s.config.SetDefault(plugin.ID(id), value)
	}

	s.lua, err = luaplugin.New(
		luaplugin.Paths(settings.Plugins.Paths...),
		luaplugin.Config(s.config),
		luaplugin.CacheSize(settings.Plugins.CacheSize),
	)
	if err != nil {
		store.Close()
		return nil, errors.WithStack(err)
	}

	enabled := make([]plugin.ID, len(settings.Plugins.Enabled))
	for i, id := range settings.Plugins.Enabled {
		enabled[i] = plugin.ID(id)
	}
	s.builtin = plugin.NewStatic("builtin")
	s.system = plugin.NewSystem(
		plugin.Enabled(enabled...),
		plugin.Loaders(s.builtin, s.lua),
		plugin.EventBus(s.events),
		plugin.Config(s.config),
	)

	s.middle.Use(requestIDMiddleware)
	s.middle.Use(requestDataMiddleware)
	s.middle.Use(s.requestMetricsMiddleware)

	for _, b := range builtins {
		if b.Setup != nil {
			if err := b.Setup(&Host{server: s, id: b.ID}); err != nil {
				store.Close()
				return nil, errors.Wrapf(err, "failed to set up builtin plugin %q", b.ID)
			}
		}
		s.builtin.Add(b.Descriptor)
	}

	s.registerHandlers()
	s.middle.UseHandler(s.r)
	s.sealed = true
	return s, nil
}

// System returns the plugin system.
func (s *Server) System() *plugin.System {
	return s.system
}

// Handler returns the server's HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.middle
}

// Addr returns the address the HTTP listener is bound to, once started.
func (s *Server) Addr() string {
	return s.httpAddr
}

// Start runs the initial load pass and starts serving.
func (s *Server) Start() error {
	s.openLog()

	if _, err := s.Reload(); err != nil {
		return errors.WithStack(err)
	}

	ln, err := net.Listen("tcp", s.settings.HTTP.Bind)
	if err != nil {
		return errors.WithStack(err)
	}
	s.httpAddr = ln.Addr().String()
	log.Infof("serving HTTP on %s", s.httpAddr)

	srv := &http.Server{Handler: s.middle}
	s.started = true
	s.t.Go(func() error {
		err := srv.Serve(ln)
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.WithStack(err)
	})
	s.t.Go(func() error {
		<-s.t.Dying()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.WithStack(srv.Shutdown(ctx))
	})
	for _, tk := range s.tasks {
		tk := tk
		s.t.Go(func() error {
			s.runTask(tk)
			return nil
		})
	}
	return nil
}

// Reload runs a plugin load pass. It is interrupted only if the server
// is stopping.
func (s *Server) Reload() (*plugin.PassInfo, error) {
	return s.system.LoadPass(s.ctx)
}

// Stop shuts the server down: the listener is closed, every plugin is
// unloaded and the Lua interpreters and config store are released. Stop may
// be called more than once and from several goroutines; every call returns
// only after shutdown has completed.
func (s *Server) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *Server) stop() {
	defer s.closeLog()
	s.cancel()
	if s.started {
		s.t.Kill(ErrStopping)
		s.t.Wait()
	}
	s.system.UnloadAll()
	if err := s.lua.Close(); err != nil {
		log.Errorf("error closing lua plugins: %v", err)
	}
	if err := s.store.Close(); err != nil {
		log.Errorf("error closing plugin config store: %v", err)
	}
}

// Wait blocks until the server's goroutines have exited and returns the
// reason. Call Stop afterwards to wait for plugins and stores to be
// released.
func (s *Server) Wait() error {
	return s.t.Wait()
}

func (s *Server) openLog() {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	level, err := log.ParseLevel(strings.ToLower(s.settings.LogLevel))
	if err != nil {
		log.Warningf("invalid LogLevel=%q: %v", s.settings.LogLevel, err)
	} else {
		log.SetLevel(level)
	}

	if s.settings.LogFile == "" {
		return
	}
	f, err := os.OpenFile(s.settings.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Errorf("failed to open LogFile=%q: %v", s.settings.LogFile, err)
		return
	}
	s.logWriter = f
	log.SetOutput(f)
}

func (s *Server) closeLog() {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	if s.logWriter != nil {
		log.SetOutput(os.Stderr)
		s.logWriter.Close()
		s.logWriter = nil
	}
}

// LogRotate reopens the log file.
func (s *Server) LogRotate() {
	s.closeLog()
	s.openLog()
}
