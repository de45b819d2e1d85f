// Package led provides binary output sinks for internal/indicator:
// GPIO character device line, sysfs LED class brightness file, or nothing.
package led

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

const consumerLabel = "thermonode"

type Output interface {
	io.Closer
	Set(on bool) error
}

// GPIO drives one output line via /dev/gpiochipN.
type GPIO struct {
	chip      gpio.Chiper // only for resource cleanup
	lines     gpio.Lineser
	set       gpio.LineSetFunc
	activeLow bool
}

func OpenGPIO(chipPath string, line uint32, activeLow bool) (*GPIO, error) {
	chip, err := gpio.Open(chipPath, consumerLabel)
	if err != nil {
		return nil, errors.Annotatef(err, "led gpio open chip=%s", chipPath)
	}
	g, err := NewGPIO(chip, line, activeLow)
	if err != nil {
		_ = chip.Close()
		return nil, err
	}
	return g, nil
}

// NewGPIO takes ownership of chip.
func NewGPIO(chip gpio.Chiper, line uint32, activeLow bool) (*GPIO, error) {
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel, line)
	if err != nil {
		return nil, errors.Annotatef(err, "led gpio line=%d", line)
	}
	return &GPIO{
		chip:      chip,
		lines:     lines,
		set:       lines.SetFunc(line),
		activeLow: activeLow,
	}, nil
}

func (g *GPIO) Set(on bool) error {
	var v byte
	if on != g.activeLow {
		v = 1
	}
	g.set(v)
	return errors.Annotate(g.lines.Flush(), "led gpio flush")
}

func (g *GPIO) Close() error {
	var errs []error
	if g.lines != nil {
		errs = append(errs, g.lines.Close())
	}
	if g.chip != nil {
		errs = append(errs, g.chip.Close())
	}
	for _, e := range errs {
		if e != nil && !gpio.IsClosed(e) {
			return e
		}
	}
	return nil
}

// Sysfs drives LED class device, e.g. /sys/class/leds/led0/brightness.
// Kernel trigger is set to "none" on open so it does not fight us.
type Sysfs struct {
	path string
	max  string
}

func OpenSysfs(brightnessPath string) (*Sysfs, error) {
	dir := filepath.Dir(brightnessPath)
	if _, err := os.Stat(brightnessPath); err != nil {
		return nil, errors.Annotatef(err, "led sysfs path=%s", brightnessPath)
	}
	trigger := filepath.Join(dir, "trigger")
	if _, err := os.Stat(trigger); err == nil {
		if err = ioutil.WriteFile(trigger, []byte("none"), 0); err != nil {
			return nil, errors.Annotatef(err, "led sysfs trigger=%s", trigger)
		}
	}
	max := "1"
	if b, err := ioutil.ReadFile(filepath.Join(dir, "max_brightness")); err == nil {
		if s := strings.TrimSpace(string(b)); s != "" {
			max = s
		}
	}
	return &Sysfs{path: brightnessPath, max: max}, nil
}

func (s *Sysfs) Set(on bool) error {
	v := "0"
	if on {
		v = s.max
	}
	return errors.Annotate(ioutil.WriteFile(s.path, []byte(v), 0), "led sysfs write")
}

func (s *Sysfs) Close() error { return nil }

// None is used when node has no indicator.
type None struct{}

func (None) Set(bool) error { return nil }
func (None) Close() error   { return nil }
