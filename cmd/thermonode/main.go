package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/alive/v2"
	"github.com/temoto/thermonode/cmd/thermonode/probe"
	"github.com/temoto/thermonode/cmd/thermonode/run"
	"github.com/temoto/thermonode/cmd/thermonode/subcmd"
	"github.com/temoto/thermonode/internal/state"
	"github.com/temoto/thermonode/log2"
)

var log = log2.NewStderr(log2.LInfo)

var modules = []subcmd.Mod{
	run.Mod,
	run.OnceMod,
	probe.SensorMod,
	probe.BlinkMod,
}

func main() {
	flagset := flag.NewFlagSet("thermonode", flag.ExitOnError)
	flagConfig := flagset.String("config", "thermonode.hcl", "config file, .hcl or .yaml")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: thermonode [-config path] [command]\nCommands:\n")
		for _, m := range modules {
			fmt.Fprintf(flagset.Output(), "  %-8s %s\n", m.Name, m.Usage)
		}
		flagset.PrintDefaults()
	}
	_ = flagset.Parse(os.Args[1:])

	command := flagset.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		flagset.Usage()
		log.Fatal(err)
	}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else {
		// assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	}
	log.Debugf("command=%s", mod.Name)

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)

	a := alive.NewAlive()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigch:
			log.Infof("signal=%v, stopping at next duty sleep", sig)
			a.Stop()
		case <-a.StopChan():
		}
		cancel()
	}()

	err = mod.Main(ctx, log, config)
	a.Stop()
	a.Wait()
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
