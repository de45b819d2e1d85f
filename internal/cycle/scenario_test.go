package cycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/thermonode/hardware/radio"
	"github.com/temoto/thermonode/hardware/sht3x"
	"github.com/temoto/thermonode/helpers"
	"github.com/temoto/thermonode/internal/broker"
	"github.com/temoto/thermonode/internal/indicator"
	"github.com/temoto/thermonode/internal/types"
	"github.com/temoto/thermonode/internal/wifi"
	"github.com/temoto/thermonode/log2"
)

// stack of real managers over fake drivers
type stack struct {
	o      *Orchestrator
	sig    *indicator.Recorder
	radio  *radio.Mock
	opener *broker.MockOpener
	bus    *sht3x.MockBus
	sleep  *helpers.SleepRecorder
	duty   *helpers.SleepRecorder
}

func newStack(t testing.TB, netFail, brokerFail int, value types.Measurement) *stack {
	s := &stack{
		sig:    &indicator.Recorder{},
		radio:  &radio.Mock{FailFirst: netFail, Addr: "10.0.0.5"},
		opener: &broker.MockOpener{FailFirst: brokerFail},
		bus:    &sht3x.MockBus{Value: value},
		sleep:  &helpers.SleepRecorder{},
		duty:   &helpers.SleepRecorder{},
	}
	log := log2.NewTest(t, log2.LDebug)
	wm := wifi.NewManager(s.radio, wifi.Options{
		Name:       "home",
		Passphrase: "secret",
		Signal:     s.sig,
		Sleep:      s.sleep.Sleep,
		Log:        log.Component("wifi"),
	})
	bm := broker.NewManager(s.opener, broker.ManagerOptions{
		Session: broker.Options{URL: broker.URL("10.0.0.2", 1883), ClientID: "picow_thermo"},
		Signal:  s.sig,
		Sleep:   s.sleep.Sleep,
		Log:     log.Component("broker"),
	})
	b := Broker(bm)
	s.o = New(Options{
		Network:       WiFi(wm),
		Broker:        b,
		Publisher:     b,
		Sensor:        sht3x.New(s.bus, sht3x.Options{CheckCRC: true, Sleep: s.sleep.Sleep}),
		Signal:        s.sig,
		Topic:         "home/thermo",
		NetworkSettle: DefaultNetworkSettle,
		PublishLinger: DefaultPublishLinger,
		Sleep:         s.sleep.Sleep,
		SleepContext:  s.duty.SleepContext,
		Log:           log,
	})
	return s
}

func TestScenarioA(t *testing.T) {
	t.Parallel()
	s := newStack(t, 0, 0, types.Measurement{Temperature: 72.4, Humidity: 45.0})
	r := s.o.Cycle(context.Background())

	assert.True(t, r.Published)
	assert.Equal(t, 1, r.NetworkAttempts)
	assert.Equal(t, 1, r.BrokerAttempts)
	require.Len(t, s.opener.Sessions, 1)
	session := s.opener.Sessions[0]
	require.Len(t, session.Published, 1)
	assert.Equal(t, "home/thermo", session.Published[0].Topic)
	// raw counts quantize values, 72.4F and 45% are within one count
	var msg broker.Message
	require.NoError(t, json.Unmarshal(session.Published[0].Payload, &msg))
	assert.InDelta(t, 72.4, msg.Temperature, 0.01)
	assert.InDelta(t, 45.0, msg.Humidity, 0.01)
	assert.Equal(t, "log", msg.Action)

	assert.Equal(t, 1, session.Closed, "broker released")
	assert.Equal(t, 1, s.radio.Count("PowerDown"), "network released")
	assert.Equal(t, []time.Duration{DefaultInterval}, s.duty.Calls)
	assert.Equal(t, []indicator.State{
		indicator.StateSearching, indicator.StateSettled,
		indicator.StateSearching, indicator.StateSettled,
	}, s.sig.States)
}

func TestScenarioB(t *testing.T) {
	t.Parallel()
	s := newStack(t, 2, 0, types.Measurement{Temperature: 60, Humidity: 30})
	r := s.o.Cycle(context.Background())

	assert.True(t, r.NetworkLive)
	assert.Equal(t, 3, r.NetworkAttempts)
	assert.Equal(t, 2, s.sig.Count(indicator.StateFaultPulse))
	assert.Equal(t, 0, s.sig.Count(indicator.StateTerminal))
	assert.Equal(t, 3, s.radio.Count("PowerUp"))
	assert.Equal(t, 1, s.opener.Opens)
	assert.True(t, r.Published)
	assert.Equal(t, []time.Duration{DefaultInterval}, s.duty.Calls)
}

func TestScenarioC(t *testing.T) {
	t.Parallel()
	s := newStack(t, -1, 0, types.Measurement{Temperature: 60, Humidity: 30})
	r := s.o.Cycle(context.Background())

	assert.False(t, r.NetworkLive)
	assert.Equal(t, 3, r.NetworkAttempts)
	// network does not pulse on the last attempt
	assert.Equal(t, 2, s.sig.Count(indicator.StateFaultPulse))
	assert.Equal(t, 1, s.sig.Count(indicator.StateTerminal))
	assert.Equal(t, indicator.StateTerminal, s.sig.States[len(s.sig.States)-1])
	assert.Equal(t, 0, s.opener.Opens, "broker acquire never called")
	assert.Equal(t, 0, len(s.bus.Writes), "sensor never called")
	assert.False(t, r.Published)
	assert.Equal(t, []time.Duration{DefaultInterval}, s.duty.Calls)
}

func TestScenarioBrokerDegraded(t *testing.T) {
	t.Parallel()
	s := newStack(t, 0, -1, types.Measurement{})
	r := s.o.Cycle(context.Background())

	assert.True(t, r.NetworkLive)
	assert.False(t, r.BrokerLive)
	assert.Equal(t, 3, s.opener.Opens)
	// broker pulses every failed open, network had none
	assert.Equal(t, 3, s.sig.Count(indicator.StateFaultPulse))
	assert.Equal(t, 1, s.sig.Count(indicator.StateTerminal))
	assert.Equal(t, indicator.StateTerminal, s.sig.States[len(s.sig.States)-1])
	assert.Equal(t, 0, len(s.bus.Writes))
	assert.Equal(t, 1, s.radio.Count("PowerDown"))
	assert.Equal(t, []time.Duration{DefaultInterval}, s.duty.Calls)
}

func TestScenarioSensorError(t *testing.T) {
	t.Parallel()
	s := newStack(t, 0, 0, types.Measurement{})
	s.bus.Frame = &[6]byte{0xbe, 0xef, 0x00, 0xbe, 0xef, 0x92}
	r := s.o.Cycle(context.Background())

	assert.Error(t, r.SensorErr)
	assert.False(t, r.Published)
	require.Len(t, s.opener.Sessions, 1)
	assert.Len(t, s.opener.Sessions[0].Published, 0)
	assert.Equal(t, 1, s.opener.Sessions[0].Closed)
	assert.Equal(t, 1, s.radio.Count("PowerDown"))
}
