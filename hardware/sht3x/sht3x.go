// Package sht3x reads Sensirion SHT3x humidity and temperature transducer.
// Single shot measurement with clock stretching, high repeatability:
// write 0x2C06, wait, read 6 bytes T_msb T_lsb T_crc H_msb H_lsb H_crc.
package sht3x

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/thermonode/crc"
	"github.com/temoto/thermonode/hardware/i2c"
	"github.com/temoto/thermonode/internal/types"
	"github.com/temoto/thermonode/log2"
)

const DefaultAddress uint16 = 0x44
const DefaultMeasureDelay = 1 * time.Second
const frameLength = 6

var CommandSingleShotHigh = [2]byte{0x2c, 0x06}

var ErrCRC = errors.New("sht3x CRC mismatch")

type Options struct {
	Address      uint16
	MeasureDelay time.Duration
	CheckCRC     bool
	Sleep        func(time.Duration)
	Log          *log2.Log
}

type Sensor struct {
	bus i2c.Bus
	opt Options
}

func New(bus i2c.Bus, opt Options) *Sensor {
	if opt.Address == 0 {
		opt.Address = DefaultAddress
	}
	if opt.MeasureDelay == 0 {
		opt.MeasureDelay = DefaultMeasureDelay
	}
	if opt.Sleep == nil {
		opt.Sleep = time.Sleep
	}
	return &Sensor{bus: bus, opt: opt}
}

func (s *Sensor) MeasureDelay() time.Duration { return s.opt.MeasureDelay }

// Read performs one transaction. No retries here, caller decides.
func (s *Sensor) Read() (types.Measurement, error) {
	cmd := CommandSingleShotHigh
	if err := s.bus.Tx(s.opt.Address, cmd[:], nil); err != nil {
		return types.Measurement{}, errors.Annotatef(err, "sht3x write command addr=%02x", s.opt.Address)
	}
	s.opt.Sleep(s.opt.MeasureDelay)
	var frame [frameLength]byte
	if err := s.bus.Tx(s.opt.Address, nil, frame[:]); err != nil {
		return types.Measurement{}, errors.Annotatef(err, "sht3x read addr=%02x", s.opt.Address)
	}
	s.opt.Log.Debugf("sht3x frame=%x", frame[:])
	m, err := Decode(frame, s.opt.CheckCRC)
	if err != nil {
		return m, err
	}
	s.opt.Log.Infof("sht3x %s", m.String())
	return m, nil
}

func Decode(frame [frameLength]byte, checkCRC bool) (types.Measurement, error) {
	if checkCRC {
		if c := crc.CRC8_p31_word(frame[0], frame[1]); c != frame[2] {
			return types.Measurement{}, errors.Annotatef(ErrCRC, "temperature frame=%x crc=%02x", frame[:], c)
		}
		if c := crc.CRC8_p31_word(frame[3], frame[4]); c != frame[5] {
			return types.Measurement{}, errors.Annotatef(ErrCRC, "humidity frame=%x crc=%02x", frame[:], c)
		}
	}
	rawT := uint16(frame[0])<<8 | uint16(frame[1])
	rawH := uint16(frame[3])<<8 | uint16(frame[4])
	return types.Measurement{
		Temperature: Fahrenheit(rawT),
		Humidity:    Humidity(rawH),
	}, nil
}

// Encode is inverse of Decode, rounding to nearest raw count. Used by mock bus.
func Encode(m types.Measurement) (frame [frameLength]byte) {
	rawT := toRaw((m.Temperature + 49) * 65535 / 315)
	rawH := toRaw(m.Humidity * 65535 / 100)
	frame[0], frame[1] = byte(rawT>>8), byte(rawT)
	frame[2] = crc.CRC8_p31_word(frame[0], frame[1])
	frame[3], frame[4] = byte(rawH>>8), byte(rawH)
	frame[5] = crc.CRC8_p31_word(frame[3], frame[4])
	return frame
}

func Fahrenheit(raw uint16) float64 { return float64(raw)*315/65535 - 49 }
func Celsius(raw uint16) float64    { return float64(raw)*175/65535 - 45 }
func Humidity(raw uint16) float64   { return float64(raw) * 100 / 65535 }

func toRaw(x float64) uint16 {
	switch {
	case x <= 0:
		return 0
	case x >= 65535:
		return 65535
	}
	return uint16(x + 0.5)
}
