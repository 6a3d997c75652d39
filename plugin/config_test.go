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
	"sync"
	"time"

	"github.com/pkg/errors"
	gc "gopkg.in/check.v1"

	"pluginhost/plugin/events"
)

type ConfigSuite struct{}

var _ = gc.Suite(&ConfigSuite{})

type mapPersister struct {
	mu   sync.Mutex
	docs map[string][]byte
	fail bool
}

func (p *mapPersister) Put(ctx context.Context, id string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("unavailable")
	}
	p.docs[id] = value
	return nil
}

func (p *mapPersister) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.docs, id)
	return nil
}

func (p *mapPersister) All(ctx context.Context) (map[string][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	docs := make(map[string][]byte, len(p.docs))
	for id, doc := range p.docs {
		docs[id] = doc
	}
	return docs, nil
}

// blockingPersister holds every Put until release is closed.
type blockingPersister struct {
	mapPersister
	entered chan string
	release chan struct{}
}

func (p *blockingPersister) Put(ctx context.Context, id string, value []byte) error {
	p.entered <- id
	<-p.release
	return p.mapPersister.Put(ctx, id, value)
}

func (s *ConfigSuite) TestZeroValue(c *gc.C) {
	var cs ConfigStore
	_, ok := cs.Get("A")
	c.Assert(ok, gc.Equals, false)
	c.Assert(cs.IDs(), gc.HasLen, 0)

	cs.Set("A", 42)
	v, ok := cs.Get("A")
	c.Assert(ok, gc.Equals, true)
	c.Assert(v, gc.Equals, 42)
}

func (s *ConfigSuite) TestRoundTrip(c *gc.C) {
	cs := NewConfigStore()
	value := map[string]interface{}{"greeting": "hello"}
	cs.Set("A", value)
	cs.Set("B", "other")
	v, ok := cs.Get("A")
	c.Assert(ok, gc.Equals, true)
	c.Assert(v, gc.DeepEquals, value)

	cs.Set("A", "replaced")
	v, _ = cs.Get("A")
	c.Assert(v, gc.Equals, "replaced")
	c.Assert(cs.IDs(), gc.DeepEquals, []ID{"A", "B"})

	cs.Delete("A")
	_, ok = cs.Get("A")
	c.Assert(ok, gc.Equals, false)
}

func (s *ConfigSuite) TestSetDefault(c *gc.C) {
	cs := NewConfigStore()
	c.Assert(cs.SetDefault("A", 1), gc.Equals, true)
	c.Assert(cs.SetDefault("A", 2), gc.Equals, false)
	v, _ := cs.Get("A")
	c.Assert(v, gc.Equals, 1)
}

func (s *ConfigSuite) TestSurvivesUnload(c *gc.C) {
	sys := NewSystem(Enabled("A"))
	sys.Register(Descriptor{ID: "A", Plugin: Funcs{
		Load: func() { sys.Config().Set("A", "from init") },
	}})
	sys.Unload("A")
	v, ok := sys.Config().Get("A")
	c.Assert(ok, gc.Equals, true)
	c.Assert(v, gc.Equals, "from init")
}

func (s *ConfigSuite) TestPersistence(c *gc.C) {
	p := &mapPersister{docs: map[string][]byte{}}
	cs := NewConfigStore(ConfigPersister(p))
	cs.Set("A", map[string]interface{}{"n": 1})
	c.Assert(string(p.docs["A"]), gc.Equals, `{"n":1}`)

	cs.Delete("A")
	c.Assert(p.docs, gc.HasLen, 0)

	p.docs["B"] = []byte(`{"enabled":true}`)
	p.docs["bad"] = []byte(`{`)
	restored := NewConfigStore(ConfigPersister(p))
	n, err := restored.Restore(context.Background())
	c.Assert(err, gc.IsNil)
	c.Assert(n, gc.Equals, 1)
	v, ok := restored.Get("B")
	c.Assert(ok, gc.Equals, true)
	c.Assert(v, gc.DeepEquals, map[string]interface{}{"enabled": true})
}

func (s *ConfigSuite) TestPersistenceFailureKeepsValue(c *gc.C) {
	cs := NewConfigStore(ConfigPersister(&mapPersister{fail: true}))
	cs.Set("A", "v")
	v, ok := cs.Get("A")
	c.Assert(ok, gc.Equals, true)
	c.Assert(v, gc.Equals, "v")
}

func (s *ConfigSuite) TestUpdatedEvent(c *gc.C) {
	bus := events.NewEventBus(nil)
	cs := NewConfigStore(ConfigEvents(bus))
	var got []string
	bus.Subscribe(events.EventPluginConfigUpdated, func(e events.PluginEvent) error {
		v, _ := cs.Get(ID(e.Source))
		got = append(got, e.Source+"="+v.(string))
		return nil
	})
	cs.Set("A", "x")
	c.Assert(got, gc.DeepEquals, []string{"A=x"})
}

func (s *ConfigSuite) TestConcurrentAccess(c *gc.C) {
	cs := NewConfigStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cs.Set("A", i)
				cs.Get("A")
			}
		}(i)
	}
	wg.Wait()
	_, ok := cs.Get("A")
	c.Assert(ok, gc.Equals, true)
}

func (s *ConfigSuite) TestSlowPersistenceDoesNotBlockReads(c *gc.C) {
	p := &blockingPersister{
		mapPersister: mapPersister{docs: map[string][]byte{"B": []byte(`"b"`)}},
		entered:      make(chan string, 1),
		release:      make(chan struct{}),
	}
	cs := NewConfigStore(ConfigPersister(p))
	_, err := cs.Restore(context.Background())
	c.Assert(err, gc.IsNil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		cs.Set("A", "a")
	}()
	c.Assert(<-p.entered, gc.Equals, "A")

	read := make(chan interface{}, 2)
	go func() {
		b, _ := cs.Get("B")
		a, _ := cs.Get("A")
		read <- b
		read <- a
	}()
	select {
	case b := <-read:
		c.Check(b, gc.Equals, "b")
		c.Check(<-read, gc.Equals, "a")
	case <-time.After(5 * time.Second):
		c.Fatal("reads blocked behind persistence")
	}

	close(p.release)
	<-done
	docs, err := p.All(context.Background())
	c.Assert(err, gc.IsNil)
	c.Assert(string(docs["A"]), gc.Equals, `"a"`)
}

func (s *ConfigSuite) TestConcurrentPersistenceConverges(c *gc.C) {
	p := &mapPersister{docs: map[string][]byte{}}
	cs := NewConfigStore(ConfigPersister(p))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				cs.Set("A", float64(i*100+j))
			}
		}(i)
	}
	wg.Wait()

	v, ok := cs.Get("A")
	c.Assert(ok, gc.Equals, true)
	restored := NewConfigStore(ConfigPersister(p))
	_, err := restored.Restore(context.Background())
	c.Assert(err, gc.IsNil)
	persisted, _ := restored.Get("A")
	c.Assert(persisted, gc.Equals, v)
}
