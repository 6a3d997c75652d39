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
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"pluginhost/plugin"
)

const maxConfigBytes = 1 << 20

type pluginStatus struct {
	ID         plugin.ID              `json:"id"`
	State      plugin.State           `json:"state"`
	Enabled    bool                   `json:"enabled"`
	Source     string                 `json:"source,omitempty"`
	DependsOn  []plugin.ID            `json:"dependsOn,omitempty"`
	Dependents []plugin.ID            `json:"dependents,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type systemStatus struct {
	Plugins   []pluginStatus   `json:"plugins"`
	LoadOrder []plugin.ID      `json:"loadOrder"`
	Enabled   []plugin.ID      `json:"enabled"`
	LastPass  *plugin.PassInfo `json:"lastPass,omitempty"`
}

type configDoc struct {
	ID    plugin.ID   `json:"id"`
	Value interface{} `json:"value"`
}

func (s *Server) registerHandlers() {
	s.r.GET("/plugins", s.handleStatus)
	s.r.POST("/plugins/reload", s.handleReload)
	s.r.DELETE("/plugins/:id", s.handleUnload)
	s.r.GET("/plugins/:id/config", s.handleGetConfig)
	s.r.PUT("/plugins/:id/config", s.handlePutConfig)
	s.r.DELETE("/plugins/:id/config", s.handleDeleteConfig)
	s.r.Handler("GET", "/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("failed to write response: %v", err)
	}
}

func (s *Server) status() systemStatus {
	st := systemStatus{
		Plugins:   []pluginStatus{},
		LoadOrder: s.system.LoadOrder(),
		Enabled:   s.system.Enabled(),
		LastPass:  s.system.LastPass(),
	}
	for _, id := range s.system.Cataloged() {
		d, _ := s.system.Descriptor(id)
		st.Plugins = append(st.Plugins, pluginStatus{
			ID:         id,
			State:      s.system.State(id),
			Enabled:    s.system.IsEnabled(id),
			Source:     d.Source,
			DependsOn:  d.DependsOn,
			Dependents: s.system.Dependents(id),
			Metadata:   d.Metadata,
		})
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pass, err := s.Reload()
	if err != nil {
		log.Errorf("load pass interrupted: %v", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, pass)
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := plugin.ID(ps.ByName("id"))
	if _, ok := s.system.Descriptor(id); !ok {
		http.NotFound(w, r)
		return
	}
	unloaded := s.system.Unload(id)
	if unloaded == nil {
		unloaded = []plugin.ID{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unloaded": unloaded,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := plugin.ID(ps.ByName("id"))
	v, ok := s.config.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, configDoc{ID: id, Value: v})
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := plugin.ID(ps.ByName("id"))
	var v interface{}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBytes))
	if err := dec.Decode(&v); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.config.Set(id, v)
	log.WithField("plugin", id).Info("plugin config updated")
	writeJSON(w, http.StatusOK, configDoc{ID: id, Value: v})
}

func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := plugin.ID(ps.ByName("id"))
	if _, ok := s.config.Get(id); !ok {
		http.NotFound(w, r)
		return
	}
	s.config.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}
