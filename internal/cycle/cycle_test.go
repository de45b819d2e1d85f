package cycle

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/temoto/thermonode/helpers"
	"github.com/temoto/thermonode/internal/indicator"
	"github.com/temoto/thermonode/internal/link"
	"github.com/temoto/thermonode/internal/types"
	"github.com/temoto/thermonode/log2"
)

type trace struct{ calls []string }

func (t *trace) add(format string, args ...interface{}) {
	t.calls = append(t.calls, fmt.Sprintf(format, args...))
}
func (t *trace) String() string { return strings.Join(t.calls, ",") }

type fakeHandle struct {
	live     bool
	attempts int
}

func (h fakeHandle) Live() bool    { return h.live }
func (h fakeHandle) Attempts() int { return h.attempts }

type fakeLink struct {
	t    *trace
	name string
	h    fakeHandle
}

func (f *fakeLink) Acquire() link.Handle {
	f.t.add("%s.acquire", f.name)
	return f.h
}
func (f *fakeLink) Release(h link.Handle) { f.t.add("%s.release live=%t", f.name, h.Live()) }

type fakeBroker struct{ fakeLink }

func (f *fakeBroker) Acquire(topic string) link.Handle {
	f.t.add("broker.acquire topic=%s", topic)
	return f.h
}
func (f *fakeBroker) Publish(h link.Handle, m types.Measurement) { f.t.add("publish %s", m.String()) }

type mockSensor struct {
	mock.Mock
	t *trace
}

func (m *mockSensor) Read() (types.Measurement, error) {
	m.t.add("sensor.read")
	args := m.Called()
	return args.Get(0).(types.Measurement), args.Error(1)
}

func newTraceOrchestrator(t testing.TB, netLive, brokerLive bool, sensorErr error) (*Orchestrator, *trace, *mockSensor) {
	tr := &trace{}
	net := &fakeLink{t: tr, name: "network", h: fakeHandle{netLive, 1}}
	br := &fakeBroker{fakeLink{t: tr, name: "broker", h: fakeHandle{brokerLive, 1}}}
	sensor := &mockSensor{t: tr}
	sensor.On("Read").Return(types.Measurement{Temperature: 72.4, Humidity: 45}, sensorErr)
	o := New(Options{
		Network:       net,
		Broker:        br,
		Publisher:     br,
		Sensor:        sensor,
		Topic:         "home/thermo",
		NetworkSettle: DefaultNetworkSettle,
		PublishLinger: DefaultPublishLinger,
		Sleep:         func(d time.Duration) { tr.add("sleep %v", d) },
		SleepContext: func(ctx context.Context, d time.Duration) error {
			tr.add("duty %v", d)
			return ctx.Err()
		},
		Log: log2.NewTest(t, log2.LDebug),
	})
	return o, tr, sensor
}

func TestCycleTrace(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		netLive    bool
		brokerLive bool
		sensorErr  error
		expect     string
	}{
		{"ok", true, true, nil,
			"network.acquire,sleep 2s,broker.acquire topic=home/thermo,sensor.read,publish temperature=72.40 humidity=45.00,sleep 2s,broker.release live=true,network.release live=true,duty 30m0s"},
		{"network-degraded", false, true, nil,
			"network.acquire,network.release live=false,duty 30m0s"},
		{"broker-degraded", true, false, nil,
			"network.acquire,sleep 2s,broker.acquire topic=home/thermo,network.release live=true,duty 30m0s"},
		{"sensor-error", true, true, fmt.Errorf("sht3x NACK"),
			"network.acquire,sleep 2s,broker.acquire topic=home/thermo,sensor.read,broker.release live=true,network.release live=true,duty 30m0s"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			o, tr, sensor := newTraceOrchestrator(t, c.netLive, c.brokerLive, c.sensorErr)
			r := o.Cycle(context.Background())
			assert.Equal(t, c.expect, tr.String())
			assert.Equal(t, c.netLive, r.NetworkLive)
			assert.Equal(t, c.sensorErr, r.SensorErr)
			assert.Equal(t, c.netLive && c.brokerLive && c.sensorErr == nil, r.Published)
			assert.Equal(t, DefaultInterval, r.Slept)
			if !c.netLive || !c.brokerLive {
				sensor.AssertNotCalled(t, "Read")
			} else {
				sensor.AssertNumberOfCalls(t, "Read", 1)
			}
		})
	}
}

func TestRunCancel(t *testing.T) {
	t.Parallel()
	o, tr, _ := newTraceOrchestrator(t, true, true, nil)
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	o.opt.SleepContext = func(ctx context.Context, d time.Duration) error {
		n++
		if n == 3 {
			cancel()
		}
		return ctx.Err()
	}
	err := o.Run(ctx)
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, uint32(3), o.Stat().Cycles)
	assert.Equal(t, uint32(3), o.Stat().Published)
	assert.Equal(t, 3, strings.Count(tr.String(), "network.release"))
}

func TestCycleReport(t *testing.T) {
	t.Parallel()
	o, _, _ := newTraceOrchestrator(t, true, false, nil)
	var reports []Report
	o.opt.OnReport = func(r Report) { reports = append(reports, r) }
	o.Cycle(context.Background())
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].String(), "network=ok/1 broker=degraded/1")
	assert.Equal(t, uint32(1), o.Stat().BrokerDegraded)
	assert.Equal(t, "cycles=1 published=0 network_degraded=0 broker_degraded=1 sensor_errors=0", o.Stat().String())

	r := Report{NetworkAttempts: 3}
	assert.Contains(t, r.String(), "network=degraded/3 broker=skip")
}

func TestCycleShortSleep(t *testing.T) {
	t.Parallel()
	o, _, _ := newTraceOrchestrator(t, false, false, nil)
	o.opt.Interval = 50 * time.Millisecond
	o.opt.SleepContext = helpers.SleepContext
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := o.Cycle(ctx)
	assert.True(t, r.Slept < o.opt.Interval)
}

func TestBudget(t *testing.T) {
	t.Parallel()
	b := Budget{Network: 30 * time.Second, NetworkSettle: 2 * time.Second, Broker: 37 * time.Second, Sensor: time.Second, PublishLinger: 2 * time.Second}
	assert.Equal(t, 72*time.Second, b.WorstCase())
	assert.Contains(t, b.String(), "worst_case=1m12s")
}

// Ensure indicator recorder is accepted where Signaler is expected.
var _ link.Signaler = &indicator.Recorder{}
