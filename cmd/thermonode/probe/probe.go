// Package probe has hardware check commands, links are not touched.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermonode/cmd/thermonode/subcmd"
	"github.com/temoto/thermonode/internal/state"
	"github.com/temoto/thermonode/log2"
)

var SensorMod = subcmd.Mod{Name: "sensor", Usage: "one sensor transaction, print measurement", Main: Sensor}
var BlinkMod = subcmd.Mod{Name: "blink", Usage: "play every indicator pattern once", Main: Blink}

func Sensor(ctx context.Context, log *log2.Log, config *state.Config) error {
	n, err := state.Build(log, config, state.Env{})
	if err != nil {
		return errors.Annotate(err, "build")
	}
	defer n.Close()
	m, err := n.Sensor.Read()
	if err != nil {
		return err
	}
	fmt.Println(m.String())
	return nil
}

func Blink(ctx context.Context, log *log2.Log, config *state.Config) error {
	n, err := state.Build(log, config, state.Env{})
	if err != nil {
		return errors.Annotate(err, "build")
	}
	defer n.Close()
	ind := n.Indicator
	const pause = 2 * time.Second
	log.Infof("searching")
	ind.Searching()
	time.Sleep(pause)
	log.Infof("settled")
	ind.Settled()
	time.Sleep(pause)
	log.Infof("fault pulse")
	ind.Searching()
	ind.Pulse()
	time.Sleep(pause)
	log.Infof("terminal")
	ind.Terminal()
	return nil
}
