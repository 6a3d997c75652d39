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
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestRequestDataIsolation(t *testing.T) {
	r1 := WithRequestData(httptest.NewRequest("GET", "/", nil))
	r2 := WithRequestData(httptest.NewRequest("GET", "/", nil))

	if got := SetRequestData(r1, "A", "one"); got != r1 {
		t.Errorf("Expected the same request when a store is attached")
	}
	SetRequestData(r2, "A", "two")

	v, ok := GetRequestData(r1, "A")
	if !ok || v != "one" {
		t.Errorf("Expected %q got %v", "one", v)
	}
	v, ok = GetRequestData(r2, "A")
	if !ok || v != "two" {
		t.Errorf("Expected %q got %v", "two", v)
	}
	if _, ok := GetRequestData(r1, "B"); ok {
		t.Errorf("Expected no value for B")
	}
}

func TestRequestDataWithoutStore(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if _, ok := GetRequestData(r, "A"); ok {
		t.Errorf("Expected no value on a bare request")
	}
	r2 := SetRequestData(r, "A", 1)
	if r2 == r {
		t.Errorf("Expected a derived request carrying a new store")
	}
	if v, ok := GetRequestData(r2, "A"); !ok || v != 1 {
		t.Errorf("Expected 1 got %v", v)
	}
	if _, ok := GetRequestData(r, "A"); ok {
		t.Errorf("Expected the original request to stay empty")
	}
}

func TestRequestDataContext(t *testing.T) {
	if d := FromContext(context.Background()); d != nil {
		t.Errorf("Expected nil store, got %v", d)
	}
	d := &RequestData{}
	ctx := NewContext(context.Background(), d)
	FromContext(ctx).Set("A", true)
	if v, ok := d.Get("A"); !ok || v != true {
		t.Errorf("Expected true got %v", v)
	}
	if d.Len() != 1 {
		t.Errorf("Expected 1 entry got %d", d.Len())
	}
}

func TestSetRequestDataWithoutStoreLogs(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(level)

	SetRequestData(WithRequestData(httptest.NewRequest("GET", "/", nil)), "A", 1)
	if n := len(hook.AllEntries()); n != 0 {
		t.Errorf("Expected no log entries with a store attached, got %d", n)
	}

	SetRequestData(httptest.NewRequest("GET", "/bare", nil), "A", 1)
	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("Expected a debug entry for a request without a store")
	}
	if entry.Level != log.DebugLevel || entry.Data["plugin"] != ID("A") || entry.Data["path"] != "/bare" {
		t.Errorf("Unexpected entry %v %v", entry.Level, entry.Data)
	}
}
