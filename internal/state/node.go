package state

import (
	"context"
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermonode/hardware/i2c"
	"github.com/temoto/thermonode/hardware/led"
	"github.com/temoto/thermonode/hardware/radio"
	"github.com/temoto/thermonode/hardware/sht3x"
	"github.com/temoto/thermonode/helpers"
	"github.com/temoto/thermonode/internal/broker"
	"github.com/temoto/thermonode/internal/cycle"
	"github.com/temoto/thermonode/internal/indicator"
	"github.com/temoto/thermonode/internal/wifi"
	"github.com/temoto/thermonode/log2"
)

// Env replaces blocking waits and report sink, zero value means real time.
type Env struct {
	Sleep        func(time.Duration)
	SleepContext func(context.Context, time.Duration) error
	OnReport     func(cycle.Report)
}

// Node is sensor node assembled from Config. Hardware is opened once
// at startup and kept for process lifetime, links are per cycle.
type Node struct {
	Config       *Config
	Log          *log2.Log
	Indicator    *indicator.Indicator
	Radio        radio.Radio
	Bus          i2c.BusCloser
	Sensor       *sht3x.Sensor
	Network      *wifi.Manager
	Broker       *broker.Manager
	Orchestrator *cycle.Orchestrator

	closers []io.Closer
}

func (env *Env) setDefaults() {
	if env.Sleep == nil {
		env.Sleep = time.Sleep
	}
	if env.SleepContext == nil {
		env.SleepContext = helpers.SleepContext
	}
}

// Build opens hardware and constructs managers. On error everything opened is closed.
func Build(log *log2.Log, c *Config, env Env) (*Node, error) {
	env.setDefaults()
	n := &Node{Config: c, Log: log}
	if c.Log.Debug {
		log.SetLevel(log2.LDebug)
	}
	err := n.build(env)
	if err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}

func (n *Node) build(env Env) error {
	c := n.Config

	out, err := openIndicator(c)
	if err != nil {
		return errors.Annotatef(err, "config: indicator.driver=%s", c.Indicator.Driver)
	}
	n.closers = append(n.closers, out)
	n.Indicator = indicator.New(out, indicator.DefaultTiming, env.Sleep, n.Log.Component("indicator"))

	rfkill := c.Network.Rfkill
	if rfkill == RfkillOff {
		rfkill = ""
	}
	n.Radio, err = radio.New(c.Network.Driver, radio.WPAOptions{
		Interface:  c.Network.Interface,
		CtrlDir:    c.Network.CtrlDir,
		RfkillPath: rfkill,
		Log:        n.Log.Component("radio"),
	})
	if err != nil {
		return errors.Annotate(err, "config: network")
	}

	if c.Sensor.Bus == SensorBusMock {
		n.Bus = &sht3x.MockBus{}
	} else {
		n.Bus, err = i2c.Open(c.Sensor.Bus, c.Sensor.Device, c.Sensor.BusNumber)
		if err != nil {
			return errors.Annotatef(err, "config: sensor.bus=%s", c.Sensor.Bus)
		}
	}
	n.closers = append(n.closers, n.Bus)
	n.Sensor = sht3x.New(n.Bus, sht3x.Options{
		Address:  uint16(c.Sensor.Address),
		CheckCRC: c.Sensor.CheckCRC == nil || *c.Sensor.CheckCRC,
		Sleep:    env.Sleep,
		Log:      n.Log.Component("sht3x"),
	})

	n.Network = wifi.NewManager(n.Radio, wifi.Options{
		Name:           c.Network.Name,
		Passphrase:     c.Network.Passphrase,
		PowerUpDelay:   time.Duration(c.Network.PowerUpSec) * time.Second,
		AssociateDelay: time.Duration(c.Network.AssociateSec) * time.Second,
		Policy:         c.RetryPolicy(),
		Signal:         n.Indicator,
		Sleep:          env.Sleep,
		Log:            n.Log.Component("wifi"),
	})

	var opener broker.Opener
	if c.Broker.Client == BrokerMock {
		opener = &broker.MockOpener{}
	} else if opener, err = broker.NewOpener(c.Broker.Client); err != nil {
		return errors.Annotate(err, "config")
	}
	n.Broker = broker.NewManager(opener, broker.ManagerOptions{
		Session: c.BrokerOptions(),
		Policy:  c.RetryPolicy(),
		Signal:  n.Indicator,
		Sleep:   env.Sleep,
		Log:     n.Log.Component("broker"),
	})

	b := cycle.Broker(n.Broker)
	n.Orchestrator = cycle.New(cycle.Options{
		Network:       cycle.WiFi(n.Network),
		Broker:        b,
		Publisher:     b,
		Sensor:        n.Sensor,
		Signal:        n.Indicator,
		Topic:         c.Broker.Topic,
		Interval:      c.Interval(),
		NetworkSettle: c.NetworkSettle(),
		PublishLinger: c.PublishLinger(),
		Sleep:         env.Sleep,
		SleepContext:  env.SleepContext,
		Log:           n.Log.Component("cycle"),
		OnReport:      env.OnReport,
	})
	return nil
}

func openIndicator(c *Config) (led.Output, error) {
	switch c.Indicator.Driver {
	case IndicatorGPIO:
		return led.OpenGPIO(c.Indicator.Chip, uint32(c.Indicator.Line), c.Indicator.ActiveLow)
	case IndicatorSysfs:
		return led.OpenSysfs(c.Indicator.Sysfs)
	case "", IndicatorNone:
		return led.None{}, nil
	}
	return nil, errors.NotValidf("indicator driver")
}

// Budget is static worst case duration of one cycle before duty sleep.
func (n *Node) Budget() cycle.Budget {
	t := n.Indicator.Timing()
	c := n.Config
	return cycle.Budget{
		Network:       n.Network.WorstCase(t.PulseDuration(), t.TerminalDuration()),
		NetworkSettle: c.NetworkSettle(),
		Broker:        n.Broker.WorstCase(t.PulseDuration(), t.TerminalDuration()),
		Sensor:        n.Sensor.MeasureDelay(),
		PublishLinger: c.PublishLinger(),
	}
}

// Close releases hardware opened by Build, indicator is left off.
func (n *Node) Close() error {
	if n.Indicator != nil {
		n.Indicator.Settled()
	}
	return helpers.CloseAll(n.closers...)
}
