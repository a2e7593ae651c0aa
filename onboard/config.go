package onboard

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
	"github.com/Masterminds/semver"
	"gopkg.in/yaml.v2"
)

const (
	CONFIG_VERSION = 1

	// FIRMWARE_VERSION is the range of controller board sketches that speak the two
	// byte protocol implemented here.
	FIRMWARE_VERSION = "~1.0.0"
)

type SerialConfig struct {
	Port                  string `yaml:"port"`
	serialbus.PortOptions `yaml:",inline"`
}

type HomeConfig struct {
	Pan  int `yaml:"pan"`
	Tilt int `yaml:"tilt"`
}

type TurretConfig struct {
	Version   int             `yaml:"version"`
	Firmware  string          `yaml:"firmware"`
	Serial    SerialConfig    `yaml:"serial"`
	Home      HomeConfig      `yaml:"home"`
	Timing    hardware.Timing `yaml:"timing"`
	Targeting TargetingConfig `yaml:"targeting"`

	// JournalInterval limits how often the cycle state is persisted. Relay
	// transitions are always persisted.
	JournalInterval time.Duration `yaml:"journal_interval"`
}

func DefaultConfig() TurretConfig {
	return TurretConfig{
		Version:  CONFIG_VERSION,
		Firmware: "DEV",
		Serial: SerialConfig{
			PortOptions: serialbus.PortOptions{
				BaudRate:    serialbus.DEFAULT_BAUD,
				ReadTimeout: serialbus.DEFAULT_READ_TIMEOUT,
			},
		},
		Home:            HomeConfig{Pan: hardware.POS_HOME, Tilt: hardware.POS_HOME},
		Timing:          hardware.DefaultTiming(),
		Targeting:       DefaultTargeting(),
		JournalInterval: time.Second,
	}
}

// UnmarshalYAML starts from DefaultConfig so a file only has to list what it changes.
func (c *TurretConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain TurretConfig
	*c = DefaultConfig()
	return unmarshal((*plain)(c))
}

// LoadConfig reads and validates a yaml config file.
func LoadConfig(filename string) (config TurretConfig, err error) {
	yamlFile, err := ioutil.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("unable to read yaml file: %w", err)
	}

	if err = yaml.Unmarshal(yamlFile, &config); err != nil {
		return config, fmt.Errorf("unable to unmarshal yaml: %w", err)
	}

	return config, config.Validate()
}

func (c TurretConfig) Validate() error {
	switch c.Version {
	case CONFIG_VERSION:
	default:
		return fmt.Errorf("unable to work with config version %d", c.Version)
	}

	if c.Timing.Duration >= c.Timing.Cooldown {
		return fmt.Errorf("fire duration %v must be shorter than the cooldown %v", c.Timing.Duration, c.Timing.Cooldown)
	}
	if c.Timing.Warmup < 0 || c.Timing.Dwell < 0 {
		return fmt.Errorf("timings must not be negative")
	}
	if c.Timing.FeedAngle != hardware.Clamp(c.Timing.FeedAngle) {
		return fmt.Errorf("reload feed angle %d is outside %d-%d", c.Timing.FeedAngle, hardware.POS_MIN, hardware.POS_MAX)
	}
	if c.Targeting.FireDivisor <= 0 || c.Targeting.RevDivisor <= 0 {
		return fmt.Errorf("targeting divisors must be positive")
	}

	if _, err := c.Serial.PortOptions.Normalize(); err != nil {
		return err
	}

	return CheckFirmware(c.Firmware)
}

// CheckFirmware accepts any version satisfying FIRMWARE_VERSION, plus "DEV" for
// boards flashed straight from a workstation.
func CheckFirmware(version string) error {
	if version == "DEV" {
		return nil
	}

	semVer, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("firmware version %q is not a semantic version: %w", version, err)
	}

	constraint, err := semver.NewConstraint(FIRMWARE_VERSION)
	if err != nil {
		return err
	}

	if !constraint.Check(semVer) {
		return fmt.Errorf("unable to use firmware %s - require %s", version, FIRMWARE_VERSION)
	}
	return nil
}

func (c TurretConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
