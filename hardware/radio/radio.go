// Package radio is WLAN driver boundary used by internal/wifi.
//
// Implementations:
//   - WPA: wpa_supplicant control socket for association, /dev/rfkill for power
//   - None: wired or externally managed network, always associated
//   - Mock: scripted results for tests
package radio

import (
	"net"
	"strings"

	"github.com/juju/errors"
)

const (
	DriverWPA  = "wpa"
	DriverNone = "none"
	DriverMock = "mock"
)

type Radio interface {
	PowerUp() error
	Connect(name, passphrase string) error
	Associated() (bool, error)
	Address() string
	Disconnect() error
	PowerDown() error
}

// None treats network as always available.
type None struct {
	Interface string
}

func (None) PowerUp() error               { return nil }
func (None) Connect(string, string) error { return nil }
func (None) Associated() (bool, error)    { return true, nil }
func (n None) Address() string            { return interfaceAddress(n.Interface) }
func (None) Disconnect() error            { return nil }
func (None) PowerDown() error             { return nil }

// interfaceAddress returns first IPv4 address of iface or empty string.
func interfaceAddress(iface string) string {
	if iface == "" {
		return ""
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return ""
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		s := a.String()
		if i := strings.IndexByte(s, '/'); i >= 0 {
			s = s[:i]
		}
		if ip := net.ParseIP(s); ip != nil && ip.To4() != nil {
			return s
		}
	}
	return ""
}

func New(driver string, opt WPAOptions) (Radio, error) {
	switch driver {
	case "", DriverWPA:
		return NewWPA(opt), nil
	case DriverNone:
		return None{Interface: opt.Interface}, nil
	case DriverMock:
		return &Mock{}, nil
	}
	return nil, errors.NotValidf("radio driver=%s", driver)
}
