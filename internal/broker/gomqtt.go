package broker

import (
	"github.com/temoto/thermonode/tele/mqtt"
)

// OpenGomqtt connects with single-shot client over 256dpi/gomqtt transport.
func OpenGomqtt(opt Options) (Session, error) {
	s, err := mqtt.Dial(mqtt.Options{
		BrokerURL:      opt.URL,
		NetworkTimeout: opt.ConnectTimeout,
		KeepaliveSec:   uint16(opt.KeepAlive.Seconds()),
		ClientID:       opt.ClientID,
		Username:       opt.User,
		Password:       opt.Password,
		Log:            opt.Log,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
