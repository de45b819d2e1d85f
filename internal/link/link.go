// Package link holds vocabulary shared by network and broker managers:
// resource kind, attempt counter, retry policy and the bounded acquire loop.
//
// Acquisition never returns an error to caller. Exhausted retries produce
// Outcome with Live=false ("degraded success"), caller must branch on it.
package link

import (
	"fmt"
	"time"

	"github.com/temoto/thermonode/log2"
)

type Kind uint8

const (
	KindInvalid Kind = iota
	KindNetwork
	KindBroker
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindBroker:
		return "broker"
	}
	return fmt.Sprintf("link.Kind(%d)", uint8(k))
}

const DefaultMaxAttempts = 3
const DefaultRetryDelay = 1 * time.Second

// Fixed delay between attempts, deliberately not exponential:
// radio power-up and settle latency already dominate attempt spacing.
type Policy struct {
	MaxAttempts int
	RetryDelay  time.Duration
	// FinalPulse emits fault pulse before terminal signal on the last failed attempt.
	FinalPulse bool
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, RetryDelay: DefaultRetryDelay}
}

func (p Policy) Normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.RetryDelay < 0 {
		p.RetryDelay = 0
	}
	return p
}

// Attempt is loop state of one Acquire call. N is 1-based.
type Attempt struct {
	Kind    Kind
	N       int
	Max     int
	Backoff time.Duration
	Err     error // last failure
}

func NewAttempt(kind Kind, p Policy) *Attempt {
	p = p.Normalize()
	return &Attempt{Kind: kind, N: 1, Max: p.MaxAttempts, Backoff: p.RetryDelay}
}

func (a *Attempt) Exhausted() bool { return a.N >= a.Max }

func (a *Attempt) String() string {
	return fmt.Sprintf("%s attempt=%d/%d", a.Kind.String(), a.N, a.Max)
}

// Signaler is write-only fault indicator capability.
type Signaler interface {
	Searching()
	Settled()
	Pulse()
	Terminal()
}

type NoSignal struct{}

func (NoSignal) Searching() {}
func (NoSignal) Settled()   {}
func (NoSignal) Pulse()     {}
func (NoSignal) Terminal()  {}

// Handle is result of Acquire as seen by orchestrator.
type Handle interface {
	Live() bool
	Attempts() int
}

type Outcome struct {
	Kind     Kind
	Attempts int
	Live     bool
	Err      error // last transient error, nil when Live
}

type TryFunc func(a *Attempt) error

// Acquire calls try until it returns nil or attempts are exhausted.
// Success: Settled. Failure with attempts left: Pulse, sleep Backoff, retry.
// Exhausted: Pulse if p.FinalPulse, then Terminal exactly once, Live=false.
func Acquire(kind Kind, p Policy, sig Signaler, sleep func(time.Duration), log *log2.Log, try TryFunc) Outcome {
	if sig == nil {
		sig = NoSignal{}
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	a := NewAttempt(kind, p)
	for {
		err := try(a)
		if err == nil {
			sig.Settled()
			log.Debugf("%s success", a.String())
			return Outcome{Kind: kind, Attempts: a.N, Live: true}
		}
		a.Err = err
		if a.Exhausted() {
			log.Errorf("%s failed, retries exhausted err=%v", a.String(), err)
			if p.FinalPulse {
				sig.Pulse()
			}
			sig.Terminal()
			return Outcome{Kind: kind, Attempts: a.N, Live: false, Err: err}
		}
		log.Infof("%s failed err=%v retry after=%v", a.String(), err, a.Backoff)
		sig.Pulse()
		sleep(a.Backoff)
		a.N++
	}
}
