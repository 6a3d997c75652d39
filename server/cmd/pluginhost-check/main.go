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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"pluginhost/server"
	"pluginhost/server/cmd"
)

var timeout = flag.Duration("timeout", time.Minute, "load pass timeout")

// pluginhost-check runs one load pass against the configured plugin paths
// and reports what would be loaded, without serving HTTP.
func main() {
	flag.Parse()
	if len(flag.Args()) != 0 {
		flag.Usage()
		cmd.Die(errors.New("unexpected command line arguments"))
	}
	settings := cmd.Init(false)
	err := check(settings)
	cmd.Die(err)
}

func check(settings *server.Settings) error {
	srv, err := server.NewServer(settings)
	if err != nil {
		return errors.WithStack(err)
	}
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	sys := srv.System()
	pass, err := sys.LoadPass(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	w := os.Stdout
	fmt.Fprintf(w, "load pass %s: %d cataloged, %d loaded in %v\n",
		pass.ID, pass.Cataloged, len(pass.Loaded), pass.Duration)
	for _, id := range sys.Cataloged() {
		d, _ := sys.Descriptor(id)
		var deps []string
		for _, dep := range d.DependsOn {
			deps = append(deps, string(dep))
		}
		fmt.Fprintf(w, "  %-24s %-10s %-8s %s\n", id, sys.State(id), d.Source, strings.Join(deps, ","))
	}
	for _, u := range pass.Resolution.Unsatisfied {
		fmt.Fprintf(w, "unsatisfied: %s requires %s\n", u.Plugin, u.Missing)
	}
	for _, e := range pass.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	if len(pass.Errors) > 0 || len(pass.Resolution.Unsatisfied) > 0 {
		return errors.Errorf("%d loader errors, %d unsatisfied plugins",
			len(pass.Errors), len(pass.Resolution.Unsatisfied))
	}
	return nil
}
