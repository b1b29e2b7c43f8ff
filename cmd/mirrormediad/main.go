// cmd/mirrormediad/main.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// mirrormediad is a privileged local daemon that exports and restores
// private on-device application data on behalf of a less-privileged
// client connected over an abstract local socket.
package main

import (
	"flag"

	"github.com/1vegedog/android-backup/internal/daemon"
	"github.com/1vegedog/android-backup/internal/util"
)

func main() {
	verbose := flag.Bool("verbose", false, "log info-level progress")
	debug := flag.Bool("debug", false, "log debug-level progress, including per-entry detail")
	flag.Parse()

	log := util.NewLogger(*verbose, *debug)

	cfg := daemon.DefaultConfig(log)
	srv := daemon.Listen(cfg)
	srv.Run()
}
