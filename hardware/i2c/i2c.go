// Package i2c talks to /dev/i2c-N with combined I2C_RDWR transfers.
// Used as alternative to periph.io when host.Init() is not desired.
package i2c

// Thanks to
// https://github.com/kidoman/embd and https://bitbucket.org/gmcbay/i2c

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

const (
	// as defined in /usr/include/linux/i2c-dev.h
	I2C_RDWR = 0x0707 /* Combined R/W transfer (one STOP only) */

	// i2c_msg flags
	// as defined in /usr/include/linux/i2c.h
	I2C_M_RD = 0x0001 /* read data, from slave to master */
)

type i2c_msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2c_rdwr_ioctl_data struct {
	msgs uintptr
	nmsg uint32
}

// Bus is satisfied by periph.io/x/periph/conn/i2c.Bus as well.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

type BusCloser interface {
	Bus
	Close() error
}

type i2cBus struct {
	busNo       int
	path        string
	file        *os.File
	lk          sync.Mutex
	initialized bool
}

func NewBus(busNo int) BusCloser {
	return &i2cBus{busNo: busNo, path: fmt.Sprintf("/dev/i2c-%d", busNo)}
}

func (b *i2cBus) String() string { return b.path }

func (b *i2cBus) init() error {
	if b.initialized {
		return nil
	}

	var err error
	if b.file, err = os.OpenFile(b.path, os.O_RDWR, os.ModeExclusive); err != nil {
		return errors.Annotatef(err, "i2c open %s", b.path)
	}
	b.initialized = true

	return nil
}

// Tx does write then read in one transaction. Either of w, r may be empty.
func (b *i2cBus) Tx(addr uint16, w, r []byte) error {
	b.lk.Lock()
	defer b.lk.Unlock()

	if err := b.init(); err != nil {
		return err
	}

	nmsg := uint32(0)
	msgs := [2]i2c_msg{}
	if len(w) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: addr, flags: 0,
			buf: uintptr(unsafe.Pointer(&w[0])), len: uint16(len(w)),
		}
		nmsg++
	}
	if len(r) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: addr, flags: I2C_M_RD,
			buf: uintptr(unsafe.Pointer(&r[0])), len: uint16(len(r)),
		}
		nmsg++
	}
	if nmsg == 0 {
		return errors.Errorf("i2c Tx both w=r=empty nothing to do")
	}

	rdwr_data := i2c_rdwr_ioctl_data{
		msgs: uintptr(unsafe.Pointer(&msgs[0])),
		nmsg: nmsg,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL,
		b.file.Fd(), uintptr(I2C_RDWR), uintptr(unsafe.Pointer(&rdwr_data)))
	if errno != 0 {
		return errors.Annotatef(errno, "i2c Tx %s addr=%02x", b.path, addr)
	}
	return nil
}

func (b *i2cBus) Close() error {
	b.lk.Lock()
	defer b.lk.Unlock()

	if !b.initialized {
		return nil
	}
	b.initialized = false
	return b.file.Close()
}
