package sht3x

import (
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/thermonode/internal/types"
)

// MockBus emulates SHT3x on i2c bus for tests and `thermonode sensor` dry runs.
type MockBus struct {
	sync.Mutex
	Value    types.Measurement
	Frame    *[frameLength]byte // overrides Value when set
	WriteErr error
	ReadErr  error
	Writes   [][]byte
	Reads    int
}

func (m *MockBus) Tx(addr uint16, w, r []byte) error {
	m.Lock()
	defer m.Unlock()
	if addr != DefaultAddress {
		return errors.Errorf("mock sht3x NACK addr=%02x", addr)
	}
	if len(w) != 0 {
		m.Writes = append(m.Writes, append([]byte(nil), w...))
		if m.WriteErr != nil {
			return m.WriteErr
		}
	}
	if len(r) != 0 {
		m.Reads++
		if m.ReadErr != nil {
			return m.ReadErr
		}
		frame := Encode(m.Value)
		if m.Frame != nil {
			frame = *m.Frame
		}
		copy(r, frame[:])
	}
	return nil
}

func (m *MockBus) Close() error { return nil }
