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
	"net/http"

	log "github.com/sirupsen/logrus"
)

// RequestData maps plugin IDs to values private to a single request. It is
// owned by the goroutine handling the request and is not locked.
type RequestData struct {
	values map[ID]interface{}
}

// Get returns the value stored for id. A nil RequestData is empty.
func (d *RequestData) Get(id ID) (interface{}, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[id]
	return v, ok
}

// Set stores value for id.
func (d *RequestData) Set(id ID, value interface{}) {
	if d.values == nil {
		d.values = make(map[ID]interface{})
	}
	d.values[id] = value
}

// Len returns the number of stored values.
func (d *RequestData) Len() int {
	if d == nil {
		return 0
	}
	return len(d.values)
}

type requestDataKey struct{}

// NewContext returns a copy of ctx carrying d.
func NewContext(ctx context.Context, d *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, d)
}

// FromContext returns the RequestData carried by ctx, or nil.
func FromContext(ctx context.Context) *RequestData {
	d, _ := ctx.Value(requestDataKey{}).(*RequestData)
	return d
}

// WithRequestData returns r if it already carries a RequestData, otherwise
// a copy of r carrying an empty one.
func WithRequestData(r *http.Request) *http.Request {
	if FromContext(r.Context()) != nil {
		return r
	}
	return r.WithContext(NewContext(r.Context(), &RequestData{}))
}

// SetRequestData stores data for id in the store owned by r.
//
// If r has no store, one is created on a derived request which is
// returned: data set this way is visible only through the returned
// request, and is lost if the caller keeps using r. Requests served by
// the server always carry a store, so r itself is returned.
func SetRequestData(r *http.Request, id ID, data interface{}) *http.Request {
	if FromContext(r.Context()) == nil {
		log.WithFields(log.Fields{
			"plugin": id,
			"path":   r.URL.Path,
		}).Debug("request has no plugin data store, attaching one to a derived request")
		r = WithRequestData(r)
	}
	FromContext(r.Context()).Set(id, data)
	return r
}

// GetRequestData returns the value stored for id in the store owned by r.
func GetRequestData(r *http.Request, id ID) (interface{}, bool) {
	return FromContext(r.Context()).Get(id)
}
