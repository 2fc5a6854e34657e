package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/playerid/internal/config"
)

func TestDefaults(t *testing.T) {
	Convey("Given a default configuration", t, func() {
		cfg := config.Default()

		Convey("Then the ensemble weights sum to one", func() {
			sum := cfg.Matcher.BodyWeight + cfg.Matcher.JerseyWeight +
				cfg.Matcher.FootWeight + cfg.Matcher.GeneralWeight
			So(sum, ShouldAlmostEqual, 1.0, 1e-9)
			So(cfg.Matcher.AvgShare+cfg.Matcher.MaxShare, ShouldAlmostEqual, 1.0, 1e-9)
		})

		Convey("Then the gallery bounds are sane", func() {
			So(cfg.Gallery.MaxReferenceFrames, ShouldEqual, 50)
			So(cfg.Gallery.MaxHardNegatives, ShouldEqual, 50)
			So(cfg.Gallery.HardNegativeBandLow, ShouldBeLessThan, cfg.Gallery.HardNegativeBandHigh)
			So(cfg.Gallery.CheckpointPath, ShouldEqual, "data/gallery.json")
		})

		Convey("Then the confidence hierarchy constants hold their ordering", func() {
			So(cfg.Matcher.RouteLockBoostMin, ShouldBeGreaterThan, cfg.Matcher.JerseyBoost)
			So(cfg.Arbiter.RouteLockConfidence, ShouldEqual, 0.75)
			So(cfg.Arbiter.RouteLockWindowFrames, ShouldEqual, 150)
			So(cfg.Arbiter.DuplicateGraceFrames, ShouldEqual, 10)
		})
	})
}

func TestLoadWithEnvOverrides(t *testing.T) {
	Convey("Given a config file and environment overrides", t, func() {
		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := []byte(`
server:
  port: 9090
matcher:
  base_threshold: 0.45
logging:
  level: debug
`)
		So(os.WriteFile(path, yaml, 0o644), ShouldBeNil)
		t.Setenv("PLAYERID_BASE_THRESHOLD", "0.62")
		t.Setenv("PLAYERID_NATS_URL", "nats://broker:4222")

		Convey("When loading", func() {
			cfg, err := config.Load(path)
			So(err, ShouldBeNil)

			Convey("Then file values apply where no env override exists", func() {
				So(cfg.Server.Port, ShouldEqual, 9090)
				So(cfg.Logging.Level, ShouldEqual, "debug")
			})

			Convey("Then env overrides beat the file", func() {
				So(cfg.Matcher.BaseThreshold, ShouldAlmostEqual, 0.62, 1e-9)
				So(cfg.NATS.URL, ShouldEqual, "nats://broker:4222")
			})

			Convey("Then untouched values fall back to defaults", func() {
				So(cfg.Gallery.CheckpointInterval, ShouldEqual, 300)
				So(cfg.Arbiter.ChallengerPersistFrames, ShouldEqual, 3)
			})
		})
	})
}

func TestLoadMissingFile(t *testing.T) {
	Convey("Given a path to nowhere", t, func() {
		_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))

		Convey("Then loading fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
