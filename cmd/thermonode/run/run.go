package run

import (
	"context"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/thermonode/cmd/thermonode/subcmd"
	"github.com/temoto/thermonode/internal/cycle"
	"github.com/temoto/thermonode/internal/state"
	"github.com/temoto/thermonode/log2"
)

var Mod = subcmd.Mod{Name: "run", Usage: "duty cycle forever (default)", Main: Main}
var OnceMod = subcmd.Mod{Name: "once", Usage: "one cycle without duty sleep, fail if nothing published", Main: Once}

var ErrNotPublished = errors.New("nothing published")

func Main(ctx context.Context, log *log2.Log, config *state.Config) error {
	log.SetErrorFunc(func(e error) {
		subcmd.SdNotify(log, "STATUS=error: "+e.Error())
	})
	var n *state.Node
	n, err := state.Build(log, config, state.Env{
		OnReport: func(r cycle.Report) {
			subcmd.SdNotify(log, statusLine(r, n.Orchestrator.Stat()))
		},
	})
	if err != nil {
		return errors.Annotate(err, "build")
	}
	defer n.Close()
	log.Infof("interval=%v %s", config.Interval(), n.Budget().String())

	subcmd.SdNotify(log, daemon.SdNotifyReady)
	err = n.Orchestrator.Run(ctx)
	subcmd.SdNotify(log, daemon.SdNotifyStopping)
	if err == context.Canceled {
		err = nil
	}
	return err
}

// statusLine is systemd STATUS with last cycle and totals since start.
func statusLine(r cycle.Report, s *cycle.Stat) string {
	return "STATUS=" + r.String() + " | " + s.String()
}

func Once(ctx context.Context, log *log2.Log, config *state.Config) error {
	n, err := state.Build(log, config, state.Env{})
	if err != nil {
		return errors.Annotate(err, "build")
	}
	defer n.Close()
	r := n.Orchestrator.Step()
	log.Infof("once %s", r.String())
	if !r.Published {
		return ErrNotPublished
	}
	return nil
}
