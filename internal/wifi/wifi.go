// Package wifi is the network link manager: brings radio up, associates with
// configured network, retries with fixed delay and tears everything down.
package wifi

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermonode/hardware/radio"
	"github.com/temoto/thermonode/internal/link"
	"github.com/temoto/thermonode/log2"
)

const DefaultPowerUpDelay = 3 * time.Second
const DefaultAssociateDelay = 5 * time.Second

var ErrNotAssociated = errors.New("not associated")

type Options struct {
	Name           string
	Passphrase     string // secret
	PowerUpDelay   time.Duration
	AssociateDelay time.Duration
	Policy         link.Policy
	Signal         link.Signaler
	Sleep          func(time.Duration)
	Log            *log2.Log
}

// Handle is network link owned by orchestrator for one duty cycle.
// Not live handle is result of exhausted retries, it must not be used
// for anything except Release.
type Handle struct {
	live     bool
	attempts int
	addr     string
	err      error
	released bool
}

func (h *Handle) Live() bool      { return h != nil && h.live && !h.released }
func (h *Handle) Attempts() int   { return h.attempts }
func (h *Handle) Address() string { return h.addr }
func (h *Handle) Err() error      { return h.err }

type Manager struct {
	radio radio.Radio
	opt   Options
}

func NewManager(r radio.Radio, opt Options) *Manager {
	if opt.PowerUpDelay == 0 {
		opt.PowerUpDelay = DefaultPowerUpDelay
	}
	if opt.AssociateDelay == 0 {
		opt.AssociateDelay = DefaultAssociateDelay
	}
	if opt.Signal == nil {
		opt.Signal = link.NoSignal{}
	}
	if opt.Sleep == nil {
		opt.Sleep = time.Sleep
	}
	if opt.Policy == (link.Policy{}) {
		opt.Policy = link.DefaultPolicy()
	}
	opt.Policy = opt.Policy.Normalize()
	return &Manager{radio: r, opt: opt}
}

func (m *Manager) Options() Options { return m.opt }

// Acquire never fails, check Handle.Live().
func (m *Manager) Acquire() *Handle {
	m.opt.Log.Infof("connecting network name=%s", m.opt.Name)
	out := link.Acquire(link.KindNetwork, m.opt.Policy, m.opt.Signal, m.opt.Sleep, m.opt.Log, m.try)
	h := &Handle{live: out.Live, attempts: out.Attempts, err: out.Err}
	if h.live {
		h.addr = m.radio.Address()
		m.opt.Log.Infof("network connected attempts=%d address=%s", h.attempts, h.addr)
	} else {
		m.opt.Log.Infof("network unavailable attempts=%d, backing off", h.attempts)
	}
	return h
}

// One full attempt, radio is not assumed to stay initialized between attempts.
func (m *Manager) try(a *link.Attempt) error {
	m.opt.Log.Debugf("%s power up", a.String())
	if err := m.radio.PowerUp(); err != nil {
		return errors.Trace(err)
	}
	m.opt.Sleep(m.opt.PowerUpDelay)
	if err := m.radio.Connect(m.opt.Name, m.opt.Passphrase); err != nil {
		return errors.Trace(err)
	}
	m.opt.Sleep(m.opt.AssociateDelay)
	ok, err := m.radio.Associated()
	if err != nil {
		return errors.Trace(err)
	}
	if !ok {
		return ErrNotAssociated
	}
	return nil
}

// Release disconnects and powers radio down regardless of handle liveness.
// Only driver calls, no delays. Driver errors are logged. Repeated Release is no-op.
func (m *Manager) Release(h *Handle) {
	if h == nil || h.released {
		return
	}
	h.released = true
	if err := m.radio.Disconnect(); err != nil {
		m.opt.Log.Debugf("release disconnect err=%v", err)
	}
	if err := m.radio.PowerDown(); err != nil {
		m.opt.Log.Errorf("release power down err=%v", err)
	}
	m.opt.Log.Debugf("network released live=%t", h.live)
}

// WorstCase is upper bound of Acquire duration, excluding driver call latency.
func (m *Manager) WorstCase(pulse, terminal time.Duration) time.Duration {
	p := m.opt.Policy
	attempt := m.opt.PowerUpDelay + m.opt.AssociateDelay
	return time.Duration(p.MaxAttempts)*attempt +
		time.Duration(p.MaxAttempts-1)*(pulse+p.RetryDelay) + terminal
}
