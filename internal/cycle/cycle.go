// Package cycle is the duty-cycle orchestrator.
//
// One cycle: indicator searching, network acquire, broker acquire, one sensor
// transaction, publish, release both links, long sleep. Each step runs only if
// the previous link is live. Worst case time to sleep is bounded by retry
// policies of both managers, see WorstCase.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/temoto/atomic_clock"
	"github.com/temoto/thermonode/helpers"
	"github.com/temoto/thermonode/internal/link"
	"github.com/temoto/thermonode/internal/types"
	"github.com/temoto/thermonode/log2"
)

const DefaultInterval = 1800 * time.Second
const DefaultNetworkSettle = 2 * time.Second
const DefaultPublishLinger = 2 * time.Second

type NetworkManager interface {
	Acquire() link.Handle
	Release(link.Handle)
}

type BrokerManager interface {
	Acquire(topic string) link.Handle
	Release(link.Handle)
}

// Publisher is fire-and-forget, delivery failures are not reported.
type Publisher interface {
	Publish(link.Handle, types.Measurement)
}

type Sensor interface {
	Read() (types.Measurement, error)
}

type Options struct {
	Network   NetworkManager
	Broker    BrokerManager
	Publisher Publisher
	Sensor    Sensor
	Signal    link.Signaler
	Topic     string

	Interval      time.Duration
	NetworkSettle time.Duration
	PublishLinger time.Duration

	Sleep        func(time.Duration)
	SleepContext func(context.Context, time.Duration) error
	Log          *log2.Log
	OnReport     func(Report)
}

type Report struct {
	NetworkAttempts int
	NetworkLive     bool
	BrokerAttempts  int
	BrokerLive      bool
	Measurement     types.Measurement
	SensorErr       error
	Published       bool
	Active          time.Duration // from searching to sleep
	Slept           time.Duration
}

func (r Report) String() string {
	s := fmt.Sprintf("network=%s broker=%s", linkString(r.NetworkLive, r.NetworkAttempts), linkString(r.BrokerLive, r.BrokerAttempts))
	switch {
	case r.SensorErr != nil:
		s += fmt.Sprintf(" sensor_err=%v", r.SensorErr)
	case r.Published:
		s += " published " + r.Measurement.String()
	}
	return s + fmt.Sprintf(" active=%v", r.Active.Truncate(time.Millisecond))
}

func linkString(live bool, attempts int) string {
	switch {
	case attempts == 0:
		return "skip"
	case live:
		return fmt.Sprintf("ok/%d", attempts)
	}
	return fmt.Sprintf("degraded/%d", attempts)
}

type Stat struct {
	Cycles          uint32
	Published       uint32
	NetworkDegraded uint32
	BrokerDegraded  uint32
	SensorErrors    uint32
	LastPublished   atomic_clock.Clock
}

func (s *Stat) String() string {
	return fmt.Sprintf("cycles=%d published=%d network_degraded=%d broker_degraded=%d sensor_errors=%d",
		s.Cycles, s.Published, s.NetworkDegraded, s.BrokerDegraded, s.SensorErrors)
}

type Orchestrator struct {
	opt  Options
	stat Stat
}

func New(opt Options) *Orchestrator {
	if opt.Interval == 0 {
		opt.Interval = DefaultInterval
	}
	if opt.Signal == nil {
		opt.Signal = link.NoSignal{}
	}
	if opt.Sleep == nil {
		opt.Sleep = time.Sleep
	}
	if opt.SleepContext == nil {
		opt.SleepContext = helpers.SleepContext
	}
	return &Orchestrator{opt: opt}
}

// Stat is not synchronized, read it from orchestrator goroutine or after Run returned.
func (o *Orchestrator) Stat() *Stat { return &o.stat }

// Step runs one cycle up to (excluding) duty sleep.
// Returns after both links are released. There is no way to interrupt it.
func (o *Orchestrator) Step() (r Report) {
	begin := atomic_clock.Now()
	defer func() {
		r.Active = atomic_clock.Since(begin)
	}()
	o.stat.Cycles++
	o.opt.Signal.Searching()

	nh := o.opt.Network.Acquire()
	r.NetworkAttempts, r.NetworkLive = nh.Attempts(), nh.Live()
	if !r.NetworkLive {
		o.stat.NetworkDegraded++
		// radio may be left half powered by failed attempts
		o.opt.Network.Release(nh)
		return r
	}
	defer o.opt.Network.Release(nh)

	if o.opt.NetworkSettle > 0 {
		o.opt.Sleep(o.opt.NetworkSettle)
	}
	o.opt.Signal.Searching()
	bh := o.opt.Broker.Acquire(o.opt.Topic)
	r.BrokerAttempts, r.BrokerLive = bh.Attempts(), bh.Live()
	if !r.BrokerLive {
		o.stat.BrokerDegraded++
		return r
	}
	defer o.opt.Broker.Release(bh)

	r.Measurement, r.SensorErr = o.opt.Sensor.Read()
	if r.SensorErr != nil {
		o.stat.SensorErrors++
		o.opt.Log.Errorf("sensor err=%v", r.SensorErr)
		return r
	}
	o.opt.Publisher.Publish(bh, r.Measurement)
	r.Published = true
	o.stat.Published++
	o.stat.LastPublished.SetNow()
	if o.opt.PublishLinger > 0 {
		o.opt.Sleep(o.opt.PublishLinger)
	}
	return r
}

// Cycle is Step followed by duty sleep. Sleep interval is the same whichever
// step was reached. Returns early only if ctx is done while sleeping.
func (o *Orchestrator) Cycle(ctx context.Context) Report {
	r := o.Step()
	o.opt.Log.Infof("cycle %d %s, sleep %v", o.stat.Cycles, r.String(), o.opt.Interval)
	if o.opt.OnReport != nil {
		o.opt.OnReport(r)
	}
	start := time.Now()
	if err := o.opt.SleepContext(ctx, o.opt.Interval); err != nil {
		r.Slept = time.Since(start)
		return r
	}
	r.Slept = o.opt.Interval
	return r
}

// Run repeats Cycle until ctx is done. Cancellation is observed only at
// duty sleep, a started cycle always runs to release.
func (o *Orchestrator) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		o.Cycle(ctx)
	}
	o.opt.Log.Infof("stop after cycles=%d published=%d", o.stat.Cycles, o.stat.Published)
	return ctx.Err()
}
