package i2c

import (
	"strconv"

	"github.com/juju/errors"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

const (
	DriverPeriph = "periph"
	DriverIoctl  = "ioctl"
)

// Open returns bus by driver name.
// periph: name is i2creg bus name or alias, empty means bus number or first available.
// ioctl: /dev/i2c-<number>.
func Open(driver string, name string, number int) (BusCloser, error) {
	switch driver {
	case "", DriverPeriph:
		if _, err := host.Init(); err != nil {
			return nil, errors.Annotate(err, "periph/init")
		}
		if name == "" && number >= 0 {
			name = strconv.Itoa(number)
		}
		bus, err := i2creg.Open(name)
		if err != nil {
			return nil, errors.Annotatef(err, "i2creg.Open name=%s", name)
		}
		return bus, nil

	case DriverIoctl:
		return NewBus(number), nil
	}
	return nil, errors.NotValidf("i2c driver=%s", driver)
}
