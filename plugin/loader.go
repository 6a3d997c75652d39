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

package plugin

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pluginhost/plugin/events"
)

// Registrar accepts plugin registrations from a loader.
type Registrar interface {
	Register(desc Descriptor)
}

// Loader discovers plugins and registers them. Scan must call Register
// from the calling goroutine only.
type Loader interface {
	Name() string
	Scan(ctx context.Context, reg Registrar) error
}

// PassInfo summarizes a load pass.
type PassInfo struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Cataloged  int           `json:"cataloged"`
	Loaded     []ID          `json:"loaded"`
	Resolution Resolution    `json:"resolution"`
	Errors     []string      `json:"errors,omitempty"`
}

// passRegistrar registers into a System whose lock is already held.
type passRegistrar struct {
	s *System
}

func (r passRegistrar) Register(desc Descriptor) {
	r.s.register(desc)
}

// LoadPass rediscovers all plugins: every loaded plugin is unloaded, the
// catalog is cleared, each loader scans in order and the registry is
// resolved once. Loader errors are logged and the next loader runs.
//
// ctx is checked between loaders. If it is done, remaining loaders are
// skipped, the plugins registered so far are still resolved, and ctx's
// error is returned along with the pass summary.
func (s *System) LoadPass(ctx context.Context) (*PassInfo, error) {
	s.lock()
	defer s.unlock()

	pass := &PassInfo{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
	}
	logger := s.logger.WithField("pass", pass.ID)

	s.unloadAll()
	s.catalog.reset()

	var ctxErr error
	for _, l := range s.loaders {
		if ctxErr = ctx.Err(); ctxErr != nil {
			logger.WithField("error", ctxErr).Warning("load pass interrupted, skipping remaining loaders")
			break
		}
		if err := l.Scan(ctx, passRegistrar{s}); err != nil {
			logger.WithFields(log.Fields{
				"loader": l.Name(),
				"error":  err,
			}).Error("plugin loader failed")
			pass.Errors = append(pass.Errors, l.Name()+": "+err.Error())
		}
	}

	pass.Resolution = s.resolve()
	pass.Cataloged = s.catalog.Len()
	pass.Loaded = s.registry.LoadOrder()
	pass.Duration = time.Since(pass.StartedAt)
	s.lastPass = pass

	logger.WithFields(log.Fields{
		"cataloged":   pass.Cataloged,
		"loaded":      len(pass.Loaded),
		"unsatisfied": len(pass.Resolution.Unsatisfied),
		"duration":    pass.Duration,
	}).Info("plugin load pass complete")
	s.events.Publish(events.PluginEvent{
		Type:   events.EventLoadPassCompleted,
		Source: pass.ID,
		Data: map[string]interface{}{
			"cataloged": pass.Cataloged,
			"loaded":    len(pass.Loaded),
			"duration":  pass.Duration,
		},
	})
	return pass, ctxErr
}

// Static is a Loader for plugins compiled into the binary.
type Static struct {
	name  string
	descs []Descriptor
}

// NewStatic creates a static loader registering descs in order.
func NewStatic(name string, descs ...Descriptor) *Static {
	return &Static{name: name, descs: descs}
}

// Add appends desc to the plugins registered by each scan.
func (st *Static) Add(desc Descriptor) {
	st.descs = append(st.descs, desc)
}

// Name implements Loader.
func (st *Static) Name() string {
	return st.name
}

// Scan implements Loader.
func (st *Static) Scan(ctx context.Context, reg Registrar) error {
	for _, d := range st.descs {
		if d.Source == "" {
			d.Source = st.name
		}
		reg.Register(d)
	}
	return nil
}
