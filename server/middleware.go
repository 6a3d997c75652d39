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
	"net/http"
	"time"

	"github.com/jmcvetta/randutil"
	log "github.com/sirupsen/logrus"

	"pluginhost/plugin"
)

const requestIDHeader = "X-Request-Id"

// requestIDMiddleware tags every request and response with an ID, keeping
// one supplied by the client.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			var err error
			id, err = randutil.AlphaString(16)
			if err != nil {
				log.Warningf("failed to generate request id: %v", err)
			}
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// requestDataMiddleware attaches an empty plugin data store to every
// request.
func requestDataMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, plugin.WithRequestData(r))
	})
}

// statusWriter wraps http.ResponseWriter to capture status codes
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)
		duration := time.Since(start)
		recordHTTPRequestDuration(r.Method, sw.statusCode, duration)

		if s.settings.HTTP.LogRequestDetails {
			log.WithFields(log.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     sw.statusCode,
				"duration":   duration,
				"request_id": r.Header.Get(requestIDHeader),
				"plugins":    plugin.FromContext(r.Context()).Len(),
			}).Info("request")
		}
	})
}
