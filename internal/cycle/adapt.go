package cycle

import (
	"github.com/temoto/thermonode/internal/broker"
	"github.com/temoto/thermonode/internal/link"
	"github.com/temoto/thermonode/internal/types"
	"github.com/temoto/thermonode/internal/wifi"
)

type wifiNetwork struct{ m *wifi.Manager }

func WiFi(m *wifi.Manager) NetworkManager { return wifiNetwork{m} }

func (w wifiNetwork) Acquire() link.Handle { return w.m.Acquire() }
func (w wifiNetwork) Release(h link.Handle) {
	wh, _ := h.(*wifi.Handle)
	w.m.Release(wh)
}

type mqttBroker struct{ m *broker.Manager }

type BrokerPublisher interface {
	BrokerManager
	Publisher
}

func Broker(m *broker.Manager) BrokerPublisher { return mqttBroker{m} }

func (b mqttBroker) Acquire(topic string) link.Handle { return b.m.Acquire(topic) }
func (b mqttBroker) Release(h link.Handle) {
	bh, _ := h.(*broker.Handle)
	b.m.Release(bh)
}
func (b mqttBroker) Publish(h link.Handle, m types.Measurement) {
	bh, _ := h.(*broker.Handle)
	b.m.Publish(bh, m)
}
