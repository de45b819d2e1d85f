package broker

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/thermonode/log2"
)

const pahoDisconnectQuiesceMs = 250

type pahoSession struct {
	c mqtt.Client
}

func pahoClientOptions(opt Options) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(opt.URL).
		SetClientID(opt.ClientID).
		SetUsername(opt.User).
		SetPassword(opt.Password).
		SetKeepAlive(opt.KeepAlive).
		SetConnectTimeout(opt.ConnectTimeout).
		SetAutoReconnect(false).
		SetCleanSession(true)
}

// OpenPaho connects with eclipse/paho.mqtt.golang.
func OpenPaho(opt Options) (Session, error) {
	if opt.Log != nil {
		mqtt.ERROR = opt.Log.Printer(log2.LError)
		mqtt.CRITICAL = opt.Log.Printer(log2.LError)
	}
	c := mqtt.NewClient(pahoClientOptions(opt))
	tok := c.Connect()
	// paho ConnectTimeout covers only dial, give CONNACK the same budget
	if !tok.WaitTimeout(opt.ConnectTimeout + opt.ConnectTimeout) {
		c.Disconnect(0)
		return nil, errors.Timeoutf("paho connect broker=%s", opt.URL)
	}
	if err := tok.Error(); err != nil {
		return nil, errors.Annotatef(err, "paho connect broker=%s", opt.URL)
	}
	return &pahoSession{c: c}, nil
}

func (s *pahoSession) Publish(topic string, payload []byte) error {
	tok := s.c.Publish(topic, 0, false, payload)
	// QOS 0 token completes once frame is queued to network goroutine
	tok.WaitTimeout(time.Second)
	return tok.Error()
}

func (s *pahoSession) Close() error {
	s.c.Disconnect(pahoDisconnectQuiesceMs)
	return nil
}
