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
	"flag"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"pluginhost/server"
	"pluginhost/server/cmd"
)

func main() {
	flag.Parse()
	if len(flag.Args()) != 0 {
		flag.Usage()
		cmd.Die(errors.New("unexpected command line arguments"))
	}

	settings := cmd.Init(true)

	srv, err := server.NewServer(settings)
	if err != nil {
		cmd.Die(err)
	}

	err = srv.Start()
	if err != nil {
		srv.Stop()
		cmd.Die(err)
	}

	cmd.Sigmap[syscall.SIGINT] = srv.Stop
	cmd.Sigmap[syscall.SIGTERM] = srv.Stop
	cmd.Sigmap[syscall.SIGUSR1] = srv.LogRotate
	cmd.Sigmap[syscall.SIGHUP] = func() {
		if _, err := srv.Reload(); err != nil {
			log.Errorf("reload failed: %v", err)
		}
	}
	cmd.HandleSignals()

	err = srv.Wait()
	srv.Stop()
	if err != server.ErrStopping {
		cmd.Die(err)
	}
	cmd.Die(nil)
}
