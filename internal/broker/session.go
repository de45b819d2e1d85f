package broker

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermonode/log2"
)

const (
	ClientPaho   = "paho"
	ClientGomqtt = "gomqtt"
)

const DefaultPort = 1883
const DefaultKeepAlive = 10 * time.Second
const DefaultConnectTimeout = 5 * time.Second

// Session is connected MQTT client, transport specific.
type Session interface {
	// QOS 0, returns after frame is handed to transport, no ack.
	Publish(topic string, payload []byte) error
	Close() error
}

type Options struct {
	URL            string // tcp://host:port
	ClientID       string
	User           string
	Password       string // secret
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	Log            *log2.Log
}

func URL(host string, port int) string {
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

// Opener performs one connect attempt, it must not retry.
type Opener interface {
	Open(Options) (Session, error)
}

type OpenerFunc func(Options) (Session, error)

func (f OpenerFunc) Open(opt Options) (Session, error) { return f(opt) }

func NewOpener(client string) (Opener, error) {
	switch client {
	case "", ClientPaho:
		return OpenerFunc(OpenPaho), nil
	case ClientGomqtt:
		return OpenerFunc(OpenGomqtt), nil
	}
	return nil, errors.NotValidf("broker client=%s", client)
}
