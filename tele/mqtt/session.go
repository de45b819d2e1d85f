package mqtt

import (
	"fmt"
	"io"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/256dpi/gomqtt/client"
	"github.com/256dpi/gomqtt/packet"
	"github.com/256dpi/gomqtt/transport"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"
	"github.com/temoto/thermonode/log2"
)

const DefaultNetworkTimeout = 5 * time.Second

var ErrSessionClosed = fmt.Errorf("MQTT session is closed")

type Options struct {
	BrokerURL      string
	NetworkTimeout time.Duration // dial and CONNACK
	KeepaliveSec   uint16
	ClientID       string
	Username       string
	Password       string
	Log            *log2.Log
}

// Session is one short lived MQTT connection for duty cycled publishers.
// - Dial blocks until CONNACK or error, there is no background reconnect
// - clean session, no subscriptions
// - QOS 0 only, Publish returns after frame is written to socket
// - PINGREQ is sent only if session outlives keepalive interval
type Session struct {
	alive  *alive.Alive
	closed uint32
	conn   transport.Conn
	opt    Options
	sendMu sync.Mutex
	pingat *atomic_clock.Clock // last outgoing packet
	pongat *atomic_clock.Clock // last incoming packet
}

func Dial(opt Options) (*Session, error) {
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if u, err := url.ParseRequestURI(opt.BrokerURL); err != nil {
		return nil, errors.Annotatef(err, "config error mqtt BrokerURL=%s", opt.BrokerURL)
	} else if u.User != nil && opt.Username == "" && opt.Password == "" {
		opt.Username = u.User.Username()
		opt.Password, _ = u.User.Password()
	}
	conpkt := packet.NewConnect()
	conpkt.ClientID = defaultString(opt.ClientID, opt.Username)
	conpkt.KeepAlive = opt.KeepaliveSec
	conpkt.CleanSession = true
	conpkt.Username = opt.Username
	conpkt.Password = opt.Password

	dialer := transport.NewDialer(transport.DialConfig{Timeout: opt.NetworkTimeout})
	conn, err := dialer.Dial(opt.BrokerURL)
	if err != nil {
		return nil, errors.Annotatef(err, "dial broker=%s", opt.BrokerURL)
	}
	s := &Session{
		alive:  alive.NewAlive(),
		conn:   conn,
		opt:    opt,
		pingat: atomic_clock.Now(),
		pongat: atomic_clock.Now(),
	}
	if err = s.send(conpkt); err != nil {
		_ = conn.Close()
		return nil, err
	}

	// expect CONNACK
	conn.SetReadTimeout(opt.NetworkTimeout)
	pkt, err := conn.Receive()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Annotate(err, "expect CONNACK")
	}
	connack, ok := pkt.(*packet.Connack)
	if !ok {
		_ = conn.Close()
		return nil, errors.Annotatef(client.ErrClientExpectedConnack, "server error pkt=%s", PacketString(pkt))
	}
	opt.Log.Debugf("CONNACK=%s", connack.String())
	if connack.ReturnCode != packet.ConnectionAccepted {
		_ = conn.Close()
		return nil, errors.Annotate(client.ErrClientConnectionDenied, connack.ReturnCode.String())
	}
	conn.SetReadTimeout(0)
	s.pongat.SetNow()

	s.alive.Add(2)
	go s.reader()
	go s.pinger()
	return s, nil
}

func (s *Session) Publish(topic string, payload []byte) error {
	if atomic.LoadUint32(&s.closed) != 0 {
		return ErrSessionClosed
	}
	pub := packet.NewPublish()
	pub.Message = packet.Message{Topic: topic, Payload: payload, QOS: packet.QOSAtMostOnce}
	return errors.Annotate(s.send(pub), "send PUBLISH")
}

// Close sends DISCONNECT (best effort) and waits for background goroutines.
// Safe to call more than once.
func (s *Session) Close() error {
	var err error
	if atomic.LoadUint32(&s.closed) == 0 {
		err = s.send(packet.NewDisconnect())
	}
	s.die(nil)
	s.alive.Wait()
	if isClosedConn(err) {
		err = nil
	}
	return err
}

func (s *Session) die(e error) {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return
	}
	if e != nil {
		s.opt.Log.Debugf("session closed err=%v", e)
	}
	s.alive.Stop()
	_ = s.conn.Close()
}

func (s *Session) send(p packet.Generic) error {
	s.sendMu.Lock()
	err := s.conn.Send(p, false)
	s.sendMu.Unlock()
	if err != nil {
		err = errors.Annotatef(err, "send %s", p.Type().String())
		s.die(err)
		return err
	}
	s.pingat.SetNow()
	s.opt.Log.Debugf("sent %s", PacketString(p))
	return nil
}

func (s *Session) reader() {
	defer s.alive.Done()
	for {
		pkt, err := s.conn.Receive()
		if !s.alive.IsRunning() {
			return
		}
		switch err {
		case nil: // success path

		case io.EOF:
			s.opt.Log.Debugf("server closed connection")
			s.die(ErrSessionClosed)
			return

		default:
			s.die(errors.Annotate(err, "receive"))
			return
		}
		s.pongat.SetNow()
		s.opt.Log.Debugf("received=%s", PacketString(pkt))
		if _, ok := pkt.(*packet.Connack); ok {
			s.die(errors.Errorf("server error duplicate CONNACK"))
			return
		}
	}
}

// [MQTT-3.1.2-24] control packets must arrive at most KeepaliveSec*1.5 apart.
func (s *Session) pinger() {
	defer s.alive.Done()
	if s.opt.KeepaliveSec == 0 {
		return
	}
	keepalive := time.Duration(s.opt.KeepaliveSec) * time.Second
	stopch := s.alive.StopChan()
	for s.alive.IsRunning() {
		window := atomic_clock.Since(s.pingat)
		if window < keepalive {
			select {
			case <-time.After(keepalive - window):
				continue
			case <-stopch:
				return
			}
		}
		if atomic_clock.Since(s.pongat) > keepaliveAndHalf(s.opt.KeepaliveSec) {
			s.die(client.ErrClientMissingPong)
			return
		}
		if err := s.send(packet.NewPingreq()); err != nil {
			return
		}
	}
}
