package led

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gpio "github.com/temoto/gpio-cdev-go"
	gpio_mock "github.com/temoto/gpio-cdev-go/mock"
)

func TestGPIO(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		activeLow bool
		expect    []byte
	}{
		{"active-high", false, []byte{1, 0}},
		{"active-low", true, []byte{0, 1}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			chip := new(gpio_mock.MockChip)
			lines := new(gpio_mock.MockLines)
			values := []byte{}
			chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel, uint32(17)).Return(lines, nil)
			lines.On("SetFunc", uint32(17)).Return(gpio.LineSetFunc(func(v byte) { values = append(values, v) }))
			lines.On("Flush").Return(nil)
			lines.On("Close").Return(nil)
			chip.On("Close").Return(nil)

			g, err := NewGPIO(chip, 17, c.activeLow)
			require.NoError(t, err)
			require.NoError(t, g.Set(true))
			require.NoError(t, g.Set(false))
			assert.Equal(t, c.expect, values)
			require.NoError(t, g.Close())

			chip.AssertExpectations(t)
			lines.AssertExpectations(t)
		})
	}
}

func TestGPIOErrors(t *testing.T) {
	t.Parallel()

	chip := new(gpio_mock.MockChip)
	chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel, uint32(4)).Return((*gpio_mock.MockLines)(nil), fmt.Errorf("device busy"))
	_, err := NewGPIO(chip, 4, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")

	chip = new(gpio_mock.MockChip)
	lines := new(gpio_mock.MockLines)
	chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel, uint32(4)).Return(lines, nil)
	lines.On("SetFunc", uint32(4)).Return(gpio.LineSetFunc(func(byte) {}))
	lines.On("Flush").Return(fmt.Errorf("EIO"))
	lines.On("Close").Return(gpio.ErrClosed)
	chip.On("Close").Return(nil)
	g, err := NewGPIO(chip, 4, false)
	require.NoError(t, err)
	err = g.Set(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EIO")
	assert.NoError(t, g.Close())
}

func TestSysfs(t *testing.T) {
	t.Parallel()

	dir, err := ioutil.TempDir("", "thermonode-led")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	brightness := filepath.Join(dir, "brightness")
	trigger := filepath.Join(dir, "trigger")
	require.NoError(t, ioutil.WriteFile(brightness, []byte("0"), 0644))
	require.NoError(t, ioutil.WriteFile(trigger, []byte("[mmc0] none"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "max_brightness"), []byte("255\n"), 0644))

	s, err := OpenSysfs(brightness)
	require.NoError(t, err)
	b, _ := ioutil.ReadFile(trigger)
	assert.Equal(t, "none", string(b))

	require.NoError(t, s.Set(true))
	b, _ = ioutil.ReadFile(brightness)
	assert.Equal(t, "255", string(b))
	require.NoError(t, s.Set(false))
	b, _ = ioutil.ReadFile(brightness)
	assert.Equal(t, "0", string(b))
	assert.NoError(t, s.Close())

	_, err = OpenSysfs(filepath.Join(dir, "missing", "brightness"))
	assert.Error(t, err)
}

func TestNone(t *testing.T) {
	t.Parallel()
	var o Output = None{}
	assert.NoError(t, o.Set(true))
	assert.NoError(t, o.Close())
}
