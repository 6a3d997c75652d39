package cmd

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"pluginhost/server"
)

var (
	configFile = flag.String("config", "", "config file")
	logLevel   = flag.String("log", "", "log level")
	cpuProf    = flag.Bool("cpuprof", false, "enable CPU profiling")
	memProf    = flag.Bool("memprof", false, "enable mem profiling")
)

var cpuFile *os.File

var Sigmap = map[os.Signal]func(){
	syscall.SIGUSR2: func() {
		cpuFile = StartCPUProf(*cpuProf, cpuFile)
		WriteMemProf(*memProf)
	},
}

// Init handles common command line flags, logging, profiling etc. for all CLI commands.
// The caller MUST import "flag" and call flag.Parse() before calling Init().
// Without -config the default settings are used.
func Init(isServer bool) *server.Settings {
	var settings *server.Settings
	if *configFile != "" {
		conf, err := os.ReadFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration file '%s'.\n", *configFile)
			Die(errors.WithStack(err))
		}
		settings, err = server.ParseSettings(string(conf))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing configuration file '%s'.\n", *configFile)
			Die(errors.WithStack(err))
		}
	} else {
		defaults := server.DefaultSettings()
		settings = &defaults
	}

	if *logLevel != "" {
		settings.LogLevel = *logLevel
	}
	if !isServer {
		level, err := log.ParseLevel(strings.ToLower(settings.LogLevel))
		if err != nil {
			log.Warningf("invalid LogLevel=%q: %v", settings.LogLevel, err)
		} else {
			log.SetLevel(level)
		}
	}

	cpuFile = StartCPUProf(*cpuProf, nil)
	return settings
}

func HandleSignals() {
	c := make(chan os.Signal, 1)
	keys := make([]os.Signal, 0, len(Sigmap))
	for k := range Sigmap {
		keys = append(keys, k)
	}
	signal.Notify(c, keys...)
	go func() {
		for sig := range c {
			if f := Sigmap[sig]; f != nil {
				f()
			}
		}
	}()
}

// Die prints the error and exits with a non-zero exit code
func Die(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func StartCPUProf(cpuProf bool, prior *os.File) *os.File {
	if prior != nil {
		pprof.StopCPUProfile()
		log.Infof("CPU profile written to %q", prior.Name())
		prior.Close()
		os.Rename(filepath.Join(os.TempDir(), "pluginhost-cpu.prof.part"),
			filepath.Join(os.TempDir(), "pluginhost-cpu.prof"))
	}
	if cpuProf {
		profName := filepath.Join(os.TempDir(), "pluginhost-cpu.prof.part")
		f, err := os.Create(profName)
		if err != nil {
			Die(errors.WithStack(err))
		}
		pprof.StartCPUProfile(f)
		return f
	}
	return nil
}

func WriteMemProf(memProf bool) {
	if memProf {
		tmpName := filepath.Join(os.TempDir(), fmt.Sprintf("pluginhost-mem.prof.%d", time.Now().Unix()))
		profName := filepath.Join(os.TempDir(), "pluginhost-mem.prof")
		f, err := os.Create(tmpName)
		if err != nil {
			Die(errors.WithStack(err))
		}
		err = pprof.WriteHeapProfile(f)
		f.Close()
		if err != nil {
			log.Warningf("failed to write heap profile: %v", err)
			return
		}
		log.Infof("Heap profile written to %q", f.Name())
		os.Rename(tmpName, profName)
	}
}
