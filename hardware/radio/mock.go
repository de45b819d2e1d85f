package radio

import (
	"fmt"
	"sync"
)

// Mock associates after FailFirst failed attempts. FailFirst<0 never associates.
// Every driver call is appended to Calls.
type Mock struct {
	sync.Mutex
	FailFirst  int
	ConnectErr error
	Addr       string
	Calls      []string

	connects int
	powered  bool
}

func (m *Mock) PowerUp() error {
	m.call("PowerUp")
	m.powered = true
	return nil
}

func (m *Mock) Connect(name, passphrase string) error {
	m.call("Connect")
	m.Lock()
	defer m.Unlock()
	m.connects++
	if !m.powered {
		return fmt.Errorf("mock radio connect while powered down")
	}
	return m.ConnectErr
}

func (m *Mock) Associated() (bool, error) {
	m.call("Associated")
	m.Lock()
	defer m.Unlock()
	if m.FailFirst < 0 || m.ConnectErr != nil {
		return false, nil
	}
	return m.powered && m.connects > m.FailFirst, nil
}

func (m *Mock) Address() string { return m.Addr }

func (m *Mock) Disconnect() error {
	m.call("Disconnect")
	return nil
}

func (m *Mock) PowerDown() error {
	m.call("PowerDown")
	m.Lock()
	m.powered = false
	m.Unlock()
	return nil
}

func (m *Mock) Count(name string) int {
	m.Lock()
	defer m.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *Mock) call(name string) {
	m.Lock()
	m.Calls = append(m.Calls, name)
	m.Unlock()
}
