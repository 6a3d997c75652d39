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

// Package events provides a small synchronous publish/subscribe bus for
// plugin lifecycle notifications.
package events

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Event types published by the plugin system.
const (
	EventPluginLoaded        = "plugin.loaded"
	EventPluginUnloaded      = "plugin.unloaded"
	EventPluginUnsatisfied   = "plugin.unsatisfied"
	EventPluginError         = "plugin.error"
	EventPluginConfigUpdated = "plugin.config.updated"
	EventLoadPassCompleted   = "plugin.loadpass.completed"

	// EventAll subscribes a handler to every event type.
	EventAll = "*"
)

// PluginEvent is a single lifecycle notification.
type PluginEvent struct {
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// PluginEventHandler handles a published event. Errors are logged by the bus.
type PluginEventHandler func(event PluginEvent) error

// EventBus dispatches events to subscribed handlers, in subscription order,
// on the publishing goroutine. While the bus is held, events are queued and
// delivered in publish order by the Release that ends the hold.
type EventBus struct {
	handlers map[string][]PluginEventHandler
	held     int
	queue    []PluginEvent

	mu     sync.RWMutex
	logger *log.Logger
}

// NewEventBus creates a new event bus. A nil logger uses the logrus
// standard logger.
func NewEventBus(logger *log.Logger) *EventBus {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &EventBus{
		handlers: make(map[string][]PluginEventHandler),
		logger:   logger,
	}
}

// Publish delivers event to the handlers subscribed to its type and to
// EventAll. A zero Timestamp is set to the current time.
func (eb *EventBus) Publish(event PluginEvent) {
	if eb == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.Lock()
	if eb.held > 0 {
		eb.queue = append(eb.queue, event)
		eb.mu.Unlock()
		return
	}
	eb.mu.Unlock()
	eb.deliver(event)
}

// Hold queues published events until the matching Release. Holds nest.
func (eb *EventBus) Hold() {
	if eb == nil {
		return
	}
	eb.mu.Lock()
	eb.held++
	eb.mu.Unlock()
}

// Release ends a hold. When the last hold ends, the queued events are
// delivered on the calling goroutine.
func (eb *EventBus) Release() {
	if eb == nil {
		return
	}
	eb.mu.Lock()
	if eb.held > 0 {
		eb.held--
	}
	if eb.held > 0 {
		eb.mu.Unlock()
		return
	}
	queue := eb.queue
	eb.queue = nil
	eb.mu.Unlock()

	for _, event := range queue {
		eb.deliver(event)
	}
}

func (eb *EventBus) deliver(event PluginEvent) {
	eb.mu.RLock()
	handlers := make([]PluginEventHandler, 0, len(eb.handlers[event.Type])+len(eb.handlers[EventAll]))
	handlers = append(handlers, eb.handlers[event.Type]...)
	handlers = append(handlers, eb.handlers[EventAll]...)
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		eb.logger.WithFields(log.Fields{
			"event_type": event.Type,
			"source":     event.Source,
		}).Debug("no handlers for event type")
		return
	}

	for _, handler := range handlers {
		if err := eb.dispatch(handler, event); err != nil {
			eb.logger.WithFields(log.Fields{
				"event_type": event.Type,
				"source":     event.Source,
				"error":      err,
			}).Error("event handler error")
		}
	}
}

func (eb *EventBus) dispatch(handler PluginEventHandler, event PluginEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.WithFields(log.Fields{
				"event_type": event.Type,
				"panic":      r,
			}).Error("event handler panicked")
		}
	}()
	return handler(event)
}

// Subscribe registers handler for eventType, or for every event when
// eventType is EventAll.
func (eb *EventBus) Subscribe(eventType string, handler PluginEventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)

	eb.logger.WithFields(log.Fields{
		"event_type":    eventType,
		"handler_count": len(eb.handlers[eventType]),
	}).Debug("event handler subscribed")
}
