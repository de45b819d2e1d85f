package indicator

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/thermonode/helpers"
	"github.com/temoto/thermonode/log2"
)

func TestPatterns(t *testing.T) {
	t.Parallel()

	type Case struct {
		name        string
		fun         func(*Indicator)
		expectLevel []bool
		expectSleep []time.Duration
	}
	half := 500 * time.Millisecond
	cases := []Case{
		{"searching", (*Indicator).Searching, []bool{true}, nil},
		{"settled", (*Indicator).Settled, []bool{false}, nil},
		{"pulse", (*Indicator).Pulse, []bool{false, true}, []time.Duration{time.Second}},
		{"terminal", (*Indicator).Terminal,
			[]bool{false, true, false, true, false},
			[]time.Duration{half, half, half, half}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			line := &LineRecorder{}
			sr := &helpers.SleepRecorder{}
			ind := New(line, DefaultTiming, sr.Sleep, log2.NewTest(t, log2.LDebug))
			c.fun(ind)
			assert.Equal(t, c.expectLevel, line.Levels)
			assert.Equal(t, c.expectSleep, sr.Calls)
		})
	}
}

func TestTerminalDuration(t *testing.T) {
	t.Parallel()
	line := &LineRecorder{}
	sr := &helpers.SleepRecorder{}
	ind := New(line, DefaultTiming, sr.Sleep, nil)
	ind.Terminal()
	assert.Equal(t, DefaultTiming.TerminalDuration(), sr.Total)
	assert.Equal(t, 2*time.Second, DefaultTiming.TerminalDuration())
	assert.Equal(t, time.Second, DefaultTiming.PulseDuration())
}

func TestLineErrorIgnored(t *testing.T) {
	t.Parallel()
	line := &LineRecorder{Err: fmt.Errorf("gpio busy")}
	errs := 0
	log := log2.NewTest(t, log2.LDebug)
	log.SetErrorFunc(func(error) { errs++ })
	ind := New(line, DefaultTiming, func(time.Duration) {}, log)
	ind.Pulse()
	assert.Equal(t, []bool{false, true}, line.Levels)
	assert.Equal(t, 2, errs)
}

func TestNilLine(t *testing.T) {
	t.Parallel()
	ind := New(nil, DefaultTiming, func(time.Duration) {}, nil)
	ind.Searching()
	ind.Terminal()
}

func TestRecorder(t *testing.T) {
	t.Parallel()
	r := &Recorder{}
	r.Searching()
	r.Pulse()
	r.Pulse()
	r.Terminal()
	assert.Equal(t, 2, r.Count(StateFaultPulse))
	assert.Equal(t, 1, r.Count(StateTerminal))
	assert.Equal(t, "fault-pulse", StateFaultPulse.String())
}
