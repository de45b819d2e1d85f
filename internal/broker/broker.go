// Package broker is the broker session manager: bounded retry connect,
// fire-and-forget publish of measurements, release.
package broker

import (
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermonode/internal/link"
	"github.com/temoto/thermonode/internal/types"
	"github.com/temoto/thermonode/log2"
)

const ActionLog = "log"

// Message is JSON body of every publish.
type Message struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Action      string  `json:"action"`
}

func NewMessage(m types.Measurement) Message {
	return Message{Temperature: m.Temperature, Humidity: m.Humidity, Action: ActionLog}
}

type ManagerOptions struct {
	Session Options
	Policy  link.Policy
	Signal  link.Signaler
	Sleep   func(time.Duration)
	Log     *log2.Log
}

type Handle struct {
	live     bool
	attempts int
	topic    string
	session  Session
	err      error
}

func (h *Handle) Live() bool    { return h != nil && h.live }
func (h *Handle) Attempts() int { return h.attempts }
func (h *Handle) Topic() string { return h.topic }
func (h *Handle) Err() error    { return h.err }

// Manager assumes network is up, it does not check.
type Manager struct {
	opener Opener
	opt    ManagerOptions
}

func NewManager(o Opener, opt ManagerOptions) *Manager {
	if opt.Session.KeepAlive == 0 {
		opt.Session.KeepAlive = DefaultKeepAlive
	}
	if opt.Session.ConnectTimeout == 0 {
		opt.Session.ConnectTimeout = DefaultConnectTimeout
	}
	if opt.Session.Log == nil {
		opt.Session.Log = opt.Log
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
	// every failed open is pulsed, including the last one
	opt.Policy.FinalPulse = true
	return &Manager{opener: o, opt: opt}
}

func (m *Manager) Options() ManagerOptions { return m.opt }

// Acquire never fails, check Handle.Live().
func (m *Manager) Acquire(topic string) *Handle {
	h := &Handle{topic: topic}
	m.opt.Log.Infof("connecting broker url=%s client_id=%s", m.opt.Session.URL, m.opt.Session.ClientID)
	out := link.Acquire(link.KindBroker, m.opt.Policy, m.opt.Signal, m.opt.Sleep, m.opt.Log, func(a *link.Attempt) error {
		s, err := m.opener.Open(m.opt.Session)
		if err != nil {
			return errors.Trace(err)
		}
		h.session = s
		return nil
	})
	h.live, h.attempts, h.err = out.Live, out.Attempts, out.Err
	if h.live {
		m.opt.Log.Infof("broker connected attempts=%d", h.attempts)
	}
	return h
}

// Publish sends measurement once with QOS 0. Delivery is not confirmed,
// errors are only visible in debug log. Not live handle is no-op.
func (m *Manager) Publish(h *Handle, meas types.Measurement) {
	if !h.Live() {
		return
	}
	b, err := json.Marshal(NewMessage(meas))
	if err != nil {
		m.opt.Log.Errorf("publish encode err=%v", err)
		return
	}
	if err = h.session.Publish(h.topic, b); err != nil {
		m.opt.Log.Debugf("publish topic=%s err=%v", h.topic, err)
		return
	}
	m.opt.Log.Infof("published topic=%s %s", h.topic, meas.String())
}

// Release closes session. Nil or not live handle is no-op.
func (m *Manager) Release(h *Handle) {
	if !h.Live() {
		return
	}
	h.live = false
	if err := h.session.Close(); err != nil {
		m.opt.Log.Debugf("release close err=%v", err)
	}
	h.session = nil
	m.opt.Log.Debugf("broker released")
}

// WorstCase is upper bound of Acquire duration.
func (m *Manager) WorstCase(pulse, terminal time.Duration) time.Duration {
	p := m.opt.Policy
	// paho waits twice ConnectTimeout, see OpenPaho
	attempt := 2 * m.opt.Session.ConnectTimeout
	return time.Duration(p.MaxAttempts)*(attempt+pulse) +
		time.Duration(p.MaxAttempts-1)*p.RetryDelay + terminal
}
