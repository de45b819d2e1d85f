package state

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/thermonode/hardware/i2c"
	"github.com/temoto/thermonode/hardware/radio"
	"github.com/temoto/thermonode/hardware/sht3x"
	"github.com/temoto/thermonode/helpers"
	"github.com/temoto/thermonode/internal/broker"
	"github.com/temoto/thermonode/internal/cycle"
	"github.com/temoto/thermonode/internal/link"
	"github.com/temoto/thermonode/internal/wifi"
	"github.com/temoto/thermonode/log2"
	"gopkg.in/yaml.v3"
)

const (
	IndicatorGPIO  = "gpio"
	IndicatorSysfs = "sysfs"
	IndicatorNone  = "none"
	SensorBusMock  = "mock"
	BrokerMock     = "mock"
	RfkillOff      = "off"
	clientIDPrefix = "thermonode-"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include" yaml:"include"`

	Network struct {
		Driver       string `hcl:"driver" yaml:"driver"`
		Interface    string `hcl:"interface" yaml:"interface"`
		CtrlDir      string `hcl:"ctrl_dir" yaml:"ctrl_dir"`
		Rfkill       string `hcl:"rfkill" yaml:"rfkill"`
		Name         string `hcl:"name" yaml:"name"`
		Passphrase   string `hcl:"passphrase" yaml:"passphrase"`
		PowerUpSec   int    `hcl:"power_up_sec" yaml:"power_up_sec"`
		AssociateSec int    `hcl:"associate_sec" yaml:"associate_sec"`
		SettleSec    *int   `hcl:"settle_sec" yaml:"settle_sec"`
	} `hcl:"network" yaml:"network"`

	Broker struct {
		Client            string `hcl:"client" yaml:"client"`
		Host              string `hcl:"host" yaml:"host"`
		Port              int    `hcl:"port" yaml:"port"`
		User              string `hcl:"user" yaml:"user"`
		Password          string `hcl:"password" yaml:"password"`
		ClientID          string `hcl:"client_id" yaml:"client_id"`
		KeepaliveSec      int    `hcl:"keepalive_sec" yaml:"keepalive_sec"`
		ConnectTimeoutSec int    `hcl:"connect_timeout_sec" yaml:"connect_timeout_sec"`
		Topic             string `hcl:"topic" yaml:"topic"`
		LingerSec         *int   `hcl:"linger_sec" yaml:"linger_sec"`
	} `hcl:"broker" yaml:"broker"`

	Retry struct {
		MaxAttempts int  `hcl:"max_attempts" yaml:"max_attempts"`
		DelaySec    *int `hcl:"delay_sec" yaml:"delay_sec"`
	} `hcl:"retry" yaml:"retry"`

	Indicator struct {
		Driver    string `hcl:"driver" yaml:"driver"`
		Chip      string `hcl:"chip" yaml:"chip"`
		Line      int    `hcl:"line" yaml:"line"`
		Sysfs     string `hcl:"sysfs" yaml:"sysfs"`
		ActiveLow bool   `hcl:"active_low" yaml:"active_low"`
	} `hcl:"indicator" yaml:"indicator"`

	Sensor struct {
		Bus       string `hcl:"bus" yaml:"bus"`
		Device    string `hcl:"device" yaml:"device"`
		BusNumber int    `hcl:"bus_number" yaml:"bus_number"`
		Address   int    `hcl:"address" yaml:"address"`
		CheckCRC  *bool  `hcl:"check_crc" yaml:"check_crc"`
	} `hcl:"sensor" yaml:"sensor"`

	Cycle struct {
		IntervalSec int `hcl:"interval_sec" yaml:"interval_sec"`
	} `hcl:"cycle" yaml:"cycle"`

	Log struct {
		Debug bool `hcl:"debug" yaml:"debug"`
	} `hcl:"log" yaml:"log"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key" yaml:"name"`
	Optional bool   `hcl:"optional" yaml:"optional"`
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if isYAML(norm) {
		err = yaml.Unmarshal(bs, c)
	} else {
		err = hcl.Unmarshal(bs, c)
	}
	if err != nil {
		// content is not logged, it contains passwords
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads and merges sources in order, later values overwrite.
// Result has defaults applied and is validated.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		c.setDefaults()
		errs = c.validate()
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

func defaultString(s *string, def string) {
	if *s == "" {
		*s = def
	}
}

func defaultInt(x *int, def int) {
	if *x == 0 {
		*x = def
	}
}

// defaultIntPtr is for values where explicit 0 is meaningful.
func defaultIntPtr(x **int, def int) {
	if *x == nil {
		*x = &def
	}
}

func (c *Config) setDefaults() {
	defaultString(&c.Network.Driver, radio.DriverWPA)
	defaultString(&c.Network.Interface, radio.DefaultInterface)
	defaultString(&c.Network.CtrlDir, radio.DefaultCtrlDir)
	defaultString(&c.Network.Rfkill, radio.DefaultRfkillPath)
	defaultInt(&c.Network.PowerUpSec, int(wifi.DefaultPowerUpDelay/time.Second))
	defaultInt(&c.Network.AssociateSec, int(wifi.DefaultAssociateDelay/time.Second))
	defaultIntPtr(&c.Network.SettleSec, int(cycle.DefaultNetworkSettle/time.Second))

	defaultString(&c.Broker.Client, broker.ClientPaho)
	defaultInt(&c.Broker.Port, broker.DefaultPort)
	defaultInt(&c.Broker.KeepaliveSec, int(broker.DefaultKeepAlive/time.Second))
	defaultInt(&c.Broker.ConnectTimeoutSec, int(broker.DefaultConnectTimeout/time.Second))
	defaultIntPtr(&c.Broker.LingerSec, int(cycle.DefaultPublishLinger/time.Second))
	if c.Broker.ClientID == "" {
		id := strings.Replace(uuid.New().String(), "-", "", -1)
		// MQTT 3.1 servers may reject client id longer than 23 bytes
		c.Broker.ClientID = clientIDPrefix + id[:23-len(clientIDPrefix)]
	}

	defaultInt(&c.Retry.MaxAttempts, link.DefaultMaxAttempts)
	defaultIntPtr(&c.Retry.DelaySec, int(link.DefaultRetryDelay/time.Second))

	defaultString(&c.Indicator.Driver, IndicatorNone)
	defaultString(&c.Indicator.Chip, "/dev/gpiochip0")

	defaultString(&c.Sensor.Bus, i2c.DriverPeriph)
	defaultInt(&c.Sensor.BusNumber, 1)
	defaultInt(&c.Sensor.Address, int(sht3x.DefaultAddress))
	if c.Sensor.CheckCRC == nil {
		t := true
		c.Sensor.CheckCRC = &t
	}

	defaultInt(&c.Cycle.IntervalSec, int(cycle.DefaultInterval/time.Second))
}

func (c *Config) validate() []error {
	errs := make([]error, 0)
	switch c.Network.Driver {
	case radio.DriverWPA:
		if c.Network.Name == "" {
			errs = append(errs, errors.NotValidf("config: empty network.name"))
		}
	case radio.DriverNone, radio.DriverMock:
	default:
		errs = append(errs, errors.NotSupportedf("config: network.driver=%s", c.Network.Driver))
	}
	switch c.Broker.Client {
	case broker.ClientPaho, broker.ClientGomqtt, BrokerMock:
	default:
		errs = append(errs, errors.NotSupportedf("config: broker.client=%s", c.Broker.Client))
	}
	if c.Broker.Host == "" {
		errs = append(errs, errors.NotValidf("config: empty broker.host"))
	}
	if c.Broker.Port < 0 || c.Broker.Port > 65535 {
		errs = append(errs, errors.NotValidf("config: broker.port=%d", c.Broker.Port))
	}
	if c.Broker.Topic == "" {
		errs = append(errs, errors.NotValidf("config: empty broker.topic"))
	}
	if *c.Broker.LingerSec < 0 {
		errs = append(errs, errors.NotValidf("config: broker.linger_sec=%d", *c.Broker.LingerSec))
	}
	if *c.Network.SettleSec < 0 {
		errs = append(errs, errors.NotValidf("config: network.settle_sec=%d", *c.Network.SettleSec))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.NotValidf("config: retry.max_attempts=%d", c.Retry.MaxAttempts))
	}
	if *c.Retry.DelaySec < 0 {
		errs = append(errs, errors.NotValidf("config: retry.delay_sec=%d", *c.Retry.DelaySec))
	}
	switch c.Indicator.Driver {
	case IndicatorGPIO, IndicatorSysfs, IndicatorNone:
	default:
		errs = append(errs, errors.NotSupportedf("config: indicator.driver=%s", c.Indicator.Driver))
	}
	if c.Indicator.Driver == IndicatorSysfs && c.Indicator.Sysfs == "" {
		errs = append(errs, errors.NotValidf("config: empty indicator.sysfs"))
	}
	switch c.Sensor.Bus {
	case i2c.DriverPeriph, i2c.DriverIoctl, SensorBusMock:
	default:
		errs = append(errs, errors.NotSupportedf("config: sensor.bus=%s", c.Sensor.Bus))
	}
	if c.Sensor.Address <= 0 || c.Sensor.Address > 0x7f {
		errs = append(errs, errors.NotValidf("config: sensor.address=%d", c.Sensor.Address))
	}
	if c.Cycle.IntervalSec < 0 {
		errs = append(errs, errors.NotValidf("config: cycle.interval_sec=%d", c.Cycle.IntervalSec))
	}
	return errs
}

func (c *Config) RetryPolicy() link.Policy {
	return link.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		RetryDelay:  time.Duration(*c.Retry.DelaySec) * time.Second,
	}
}

func (c *Config) BrokerOptions() broker.Options {
	return broker.Options{
		URL:            broker.URL(c.Broker.Host, c.Broker.Port),
		ClientID:       c.Broker.ClientID,
		User:           c.Broker.User,
		Password:       c.Broker.Password,
		KeepAlive:      helpers.IntSecondDefault(c.Broker.KeepaliveSec, broker.DefaultKeepAlive),
		ConnectTimeout: helpers.IntSecondDefault(c.Broker.ConnectTimeoutSec, broker.DefaultConnectTimeout),
	}
}

func (c *Config) NetworkSettle() time.Duration {
	return time.Duration(*c.Network.SettleSec) * time.Second
}

func (c *Config) PublishLinger() time.Duration {
	return time.Duration(*c.Broker.LingerSec) * time.Second
}

func (c *Config) Interval() time.Duration {
	return helpers.IntSecondDefault(c.Cycle.IntervalSec, cycle.DefaultInterval)
}
