// Package indicator encodes node state on a single binary output (usually LED).
//
//	Searching  on
//	Settled    off
//	Pulse      off, hold PulseHold, on (searching resumes)
//	Terminal   off, hold TerminalLead, then Blinks x (on, off) with BlinkHold between
//
// Writes are last-write-wins, nothing is read back for control decisions.
// Output errors are logged and otherwise ignored.
package indicator

import (
	"fmt"
	"time"

	"github.com/temoto/thermonode/log2"
)

// Line is binary output sink, see hardware/led.
type Line interface {
	Set(on bool) error
}

type State uint8

const (
	StateInvalid State = iota
	StateSearching
	StateSettled
	StateFaultPulse
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateSettled:
		return "settled"
	case StateFaultPulse:
		return "fault-pulse"
	case StateTerminal:
		return "terminal"
	}
	return fmt.Sprintf("indicator.State(%d)", uint8(s))
}

type Timing struct {
	PulseHold    time.Duration
	TerminalLead time.Duration
	BlinkHold    time.Duration
	Blinks       int
}

var DefaultTiming = Timing{
	PulseHold:    1 * time.Second,
	TerminalLead: 500 * time.Millisecond,
	BlinkHold:    500 * time.Millisecond,
	Blinks:       2,
}

// Duration of Pulse and Terminal patterns, used for worst case cycle estimate.
func (t Timing) PulseDuration() time.Duration { return t.PulseHold }
func (t Timing) TerminalDuration() time.Duration {
	if t.Blinks <= 0 {
		return t.TerminalLead
	}
	return t.TerminalLead + time.Duration(2*t.Blinks-1)*t.BlinkHold
}

type Indicator struct {
	line   Line
	log    *log2.Log
	sleep  func(time.Duration)
	timing Timing
}

// New with line=nil is valid and only logs. sleep=nil means time.Sleep.
func New(line Line, timing Timing, sleep func(time.Duration), log *log2.Log) *Indicator {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Indicator{
		line:   line,
		log:    log,
		sleep:  sleep,
		timing: timing,
	}
}

func (ind *Indicator) Timing() Timing { return ind.timing }

func (ind *Indicator) Searching() {
	ind.log.Debugf("state=%s", StateSearching.String())
	ind.set(true)
}

func (ind *Indicator) Settled() {
	ind.log.Debugf("state=%s", StateSettled.String())
	ind.set(false)
}

func (ind *Indicator) Pulse() {
	ind.log.Debugf("state=%s", StateFaultPulse.String())
	ind.set(false)
	ind.sleep(ind.timing.PulseHold)
	ind.set(true)
}

func (ind *Indicator) Terminal() {
	ind.log.Debugf("state=%s", StateTerminal.String())
	ind.set(false)
	ind.sleep(ind.timing.TerminalLead)
	for i := 0; i < ind.timing.Blinks; i++ {
		if i != 0 {
			ind.sleep(ind.timing.BlinkHold)
		}
		ind.set(true)
		ind.sleep(ind.timing.BlinkHold)
		ind.set(false)
	}
}

func (ind *Indicator) set(on bool) {
	if ind.line == nil {
		return
	}
	if err := ind.line.Set(on); err != nil {
		ind.log.Errorf("indicator set=%t err=%v", on, err)
	}
}
