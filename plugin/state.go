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

// State is a plugin's position in the lifecycle.
type State int

const (
	// StateUnknown means the plugin was not registered in the current pass.
	StateUnknown State = iota
	// StateAvailable means the plugin is cataloged but not loaded.
	StateAvailable
	// StateLoaded means the plugin is in the registry.
	StateLoaded
)

var stateNames = [...]string{
	StateUnknown:   "unknown",
	StateAvailable: "available",
	StateLoaded:    "loaded",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State reports where id is in the lifecycle.
func (s *System) State(id ID) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.registry.Has(id):
		return StateLoaded
	case s.catalog.Has(id):
		return StateAvailable
	default:
		return StateUnknown
	}
}
