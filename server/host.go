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
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"pluginhost/plugin"
	"pluginhost/plugin/events"
)

// ErrChainSealed is returned when middleware is registered after the
// server's handler chain has been built.
var ErrChainSealed = errors.New("middleware chain already built")

// Host is the server as seen by one builtin plugin. Everything registered
// through a Host is active only while that plugin is loaded.
type Host struct {
	server *Server
	id     plugin.ID
}

type task struct {
	name     string
	owner    plugin.ID
	interval time.Duration
	fn       func(context.Context) error
}

// ID returns the ID of the plugin this host serves.
func (h *Host) ID() plugin.ID {
	return h.id
}

func (h *Host) loaded() bool {
	return h.server.system.IsLoaded(h.id)
}

// RegisterMiddleware adds middleware applied to requests whose path starts
// with path, or to every request if path is empty.
func (h *Host) RegisterMiddleware(path string, middleware func(http.Handler) http.Handler) error {
	if h.server.sealed {
		return errors.WithStack(ErrChainSealed)
	}
	h.server.middle.Use(func(next http.Handler) http.Handler {
		wrapped := middleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.loaded() && (path == "" || strings.HasPrefix(r.URL.Path, path)) {
				wrapped.ServeHTTP(w, r)
			} else {
				next.ServeHTTP(w, r)
			}
		})
	})

	log.WithFields(log.Fields{
		"plugin": h.id,
		"path":   path,
	}).Debug("plugin middleware registered")
	return nil
}

// RegisterHandler routes method and pattern to handle. While the plugin is
// not loaded the route answers 404.
func (h *Host) RegisterHandler(method, pattern string, handle httprouter.Handle) {
	h.server.r.Handle(method, pattern, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !h.loaded() {
			http.NotFound(w, r)
			return
		}
		handle(w, r, ps)
	})

	log.WithFields(log.Fields{
		"plugin":  h.id,
		"method":  method,
		"pattern": pattern,
	}).Debug("plugin handler registered")
}

// RegisterTask runs fn every interval once the server starts, skipping
// ticks while the plugin is not loaded.
func (h *Host) RegisterTask(name string, interval time.Duration, fn func(context.Context) error) {
	h.server.tasks = append(h.server.tasks, task{
		name:     name,
		owner:    h.id,
		interval: interval,
		fn:       fn,
	})
}

func (s *Server) runTask(tk task) {
	ticker := time.NewTicker(tk.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.system.IsLoaded(tk.owner) {
				continue
			}
			if err := tk.fn(s.ctx); err != nil {
				log.WithFields(log.Fields{
					"plugin": tk.owner,
					"task":   tk.name,
					"error":  err,
				}).Error("task error")
			}
		case <-s.t.Dying():
			return
		}
	}
}

// Config returns the plugin config store.
func (h *Host) Config() *plugin.ConfigStore {
	return h.server.config
}

// Events returns the plugin lifecycle event bus.
func (h *Host) Events() *events.EventBus {
	return h.server.events
}

// Logger returns a logger tagged with the plugin ID.
func (h *Host) Logger() *log.Entry {
	return log.WithField("plugin", h.id)
}
