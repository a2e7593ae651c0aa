package onboard

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CodedInternet/sentrygun/onboard/hardware"
	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v2"
)

const testYaml = `
version: 1
firmware: 1.0.3
serial:
  port: /dev/ttyACM0
  baud: 115200
  parity: even
home:
  pan: 120
  tilt: 80
timing:
  cooldown: 4s
  reload_dwell: 1500ms
  blocking_reload: true
targeting:
  frame_width: 1280
journal_interval: 250ms
`

func TestTurretConfigParsing(t *testing.T) {
	Convey("parsing is successful", t, func() {
		var config TurretConfig
		err := yaml.Unmarshal([]byte(testYaml), &config)
		So(err, ShouldBeNil)
		So(config.Validate(), ShouldBeNil)

		Convey("listed values are applied", func() {
			So(config.Serial.Port, ShouldEqual, "/dev/ttyACM0")
			So(config.Serial.BaudRate, ShouldEqual, 115200)
			So(config.Serial.Parity, ShouldEqual, "even")
			So(config.Home, ShouldResemble, HomeConfig{Pan: 120, Tilt: 80})
			So(config.Timing.Cooldown, ShouldEqual, 4*time.Second)
			So(config.Timing.Dwell, ShouldEqual, 1500*time.Millisecond)
			So(config.Timing.BlockingReload, ShouldBeTrue)
			So(config.Targeting.FrameWidth, ShouldEqual, 1280)
			So(config.JournalInterval, ShouldEqual, 250*time.Millisecond)
		})

		Convey("everything else keeps its default", func() {
			So(config.Timing.Warmup, ShouldEqual, hardware.FIRE_WARMUP)
			So(config.Timing.Duration, ShouldEqual, hardware.FIRE_DURATION)
			So(config.Timing.FeedAngle, ShouldEqual, hardware.RELOAD_FEED_ANGLE)
			So(config.Targeting.FrameHeight, ShouldEqual, 480)
			So(config.Targeting.PanGain, ShouldEqual, 0.03)
			So(config.Serial.ReadTimeout, ShouldEqual, time.Second)
		})
	})

	Convey("the defaults are valid", t, func() {
		So(DefaultConfig().Validate(), ShouldBeNil)
	})

	Convey("marshalled config reads back the same", t, func() {
		config := DefaultConfig()
		config.Home.Pan = 42

		out, err := config.Marshal()
		So(err, ShouldBeNil)

		var back TurretConfig
		So(yaml.Unmarshal(out, &back), ShouldBeNil)
		So(back, ShouldResemble, config)
	})
}

func TestTurretConfigValidation(t *testing.T) {
	Convey("invalid configs are refused", t, func() {
		config := DefaultConfig()

		Convey("unknown version", func() {
			config.Version = 2
			So(config.Validate(), ShouldNotBeNil)
		})

		Convey("shot longer than the cooldown", func() {
			config.Timing.Duration = 5 * time.Second
			So(config.Validate(), ShouldNotBeNil)
		})

		Convey("negative warmup", func() {
			config.Timing.Warmup = -time.Second
			So(config.Validate(), ShouldNotBeNil)
		})

		Convey("feed angle out of range", func() {
			config.Timing.FeedAngle = 250
			So(config.Validate(), ShouldNotBeNil)
		})

		Convey("zero divisor", func() {
			config.Targeting.FireDivisor = 0
			So(config.Validate(), ShouldNotBeNil)
		})

		Convey("bad serial options", func() {
			config.Serial.StopBits = 3
			So(config.Validate(), ShouldNotBeNil)
		})

		Convey("unsupported firmware", func() {
			config.Firmware = "2.0.0"
			So(config.Validate(), ShouldNotBeNil)
		})
	})
}

func TestCheckFirmware(t *testing.T) {
	Convey("firmware versions are gated", t, func() {
		So(CheckFirmware("DEV"), ShouldBeNil)
		So(CheckFirmware("1.0.0"), ShouldBeNil)
		So(CheckFirmware("1.0.9"), ShouldBeNil)
		So(CheckFirmware("1.1.0"), ShouldNotBeNil)
		So(CheckFirmware("0.9.0"), ShouldNotBeNil)
		So(CheckFirmware("banana"), ShouldNotBeNil)
	})
}

func TestLoadConfig(t *testing.T) {
	Convey("configs load from disk", t, func() {
		dir, err := ioutil.TempDir("", "sentrygun")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		Convey("a valid file", func() {
			filename := filepath.Join(dir, "turret.yaml")
			So(ioutil.WriteFile(filename, []byte(testYaml), 0644), ShouldBeNil)

			config, err := LoadConfig(filename)
			So(err, ShouldBeNil)
			So(config.Home.Pan, ShouldEqual, 120)
		})

		Convey("a missing file", func() {
			_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
			So(err, ShouldNotBeNil)
		})

		Convey("a file that fails validation", func() {
			filename := filepath.Join(dir, "bad.yaml")
			So(ioutil.WriteFile(filename, []byte("version: 7\n"), 0644), ShouldBeNil)

			_, err := LoadConfig(filename)
			So(err, ShouldNotBeNil)
		})
	})
}
