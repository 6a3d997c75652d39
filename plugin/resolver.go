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
	log "github.com/sirupsen/logrus"

	"pluginhost/plugin/events"
)

// Unsatisfied records a plugin unloaded because a dependency was neither
// loaded nor cataloged.
type Unsatisfied struct {
	Plugin  ID `json:"plugin"`
	Missing ID `json:"missing"`
}

// Resolution summarizes a Resolve run.
type Resolution struct {
	// Loaded lists the dependencies loaded by the resolver, in load order.
	Loaded []ID `json:"loaded"`

	// Unloaded lists every plugin unloaded because of an unsatisfied
	// dependency, including cascaded dependents.
	Unloaded []ID `json:"unloaded"`

	Unsatisfied []Unsatisfied `json:"unsatisfied"`

	// Passes is the number of sweeps over the registry.
	Passes int `json:"passes"`
}

// Resolve brings the registry to dependency closure. Cataloged
// dependencies of loaded plugins are loaded; plugins with a dependency that
// is not cataloged are unloaded along with their dependents. Sweeps repeat
// until one loads nothing new.
func (s *System) Resolve() Resolution {
	s.lock()
	defer s.unlock()
	return s.resolve()
}

func (s *System) resolve() Resolution {
	var res Resolution
	for {
		res.Passes++
		resolved := 0
		for _, id := range s.registry.IDs() {
			d, ok := s.registry.Get(id)
			if !ok {
				// cascaded out earlier in this sweep
				continue
			}
			for _, dep := range d.DependsOn {
				if s.registry.Has(dep) {
					continue
				}
				if candidate, ok := s.catalog.Get(dep); ok {
					s.load(candidate)
					res.Loaded = append(res.Loaded, dep)
					resolved++
					continue
				}
				s.unsatisfied(d, dep, &res)
				break
			}
		}
		if resolved == 0 {
			return res
		}
	}
}

func (s *System) unsatisfied(d *Descriptor, missing ID, res *Resolution) {
	s.logger.WithFields(log.Fields{
		"plugin":  d.ID,
		"missing": missing,
	}).Warning("unsatisfied plugin dependency, unloading")
	s.events.Publish(events.PluginEvent{
		Type:   events.EventPluginUnsatisfied,
		Source: string(d.ID),
		Data: map[string]interface{}{
			"missing": string(missing),
		},
	})
	res.Unsatisfied = append(res.Unsatisfied, Unsatisfied{Plugin: d.ID, Missing: missing})
	res.Unloaded = append(res.Unloaded, s.unload(d.ID, ReasonUnsatisfied, ReasonCascade)...)
}
