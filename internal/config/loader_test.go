package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("Given no overrides", t, func() {
		ctx := context.Background()

		Convey("defaults are returned", func() {
			cfg, err := Load(ctx)
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":9080")
			So(cfg.DBPath, ShouldEqual, "pulse.db")
			So(cfg.AtRiskStreak, ShouldEqual, 3)
			So(cfg.AlertWindowHours, ShouldEqual, 24)
			So(cfg.AuthTokens, ShouldBeEmpty)
		})

		Convey("environment variables override defaults", func() {
			t.Setenv("PULSE_ADDR", ":7070")
			t.Setenv("PULSE_DB_PATH", "/tmp/pulse.db")
			t.Setenv("PULSE_AT_RISK_STREAK", "5")

			cfg, err := Load(ctx)
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":7070")
			So(cfg.DBPath, ShouldEqual, "/tmp/pulse.db")
			So(cfg.AtRiskStreak, ShouldEqual, 5)
		})

		Convey("a YAML file is layered beneath the environment", func() {
			path := filepath.Join(t.TempDir(), "pulse.yaml")
			body := "addr: \":6060\"\nalert_queue_size: 64\nauth_tokens:\n  secret-token: PM\n"
			So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)
			t.Setenv("PULSE_CONFIG", path)
			t.Setenv("PULSE_ADDR", ":7070")

			cfg, err := Load(ctx)
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":7070") // env wins
			So(cfg.AlertQueueSize, ShouldEqual, 64)
			So(cfg.AuthTokens["secret-token"], ShouldEqual, "PM")
		})

		Convey("an unknown auth role is rejected", func() {
			path := filepath.Join(t.TempDir(), "pulse.yaml")
			body := "auth_tokens:\n  secret-token: Overlord\n"
			So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)
			t.Setenv("PULSE_CONFIG", path)

			_, err := Load(ctx)
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("a missing config file fails loading", func() {
			t.Setenv("PULSE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
			_, err := Load(ctx)
			So(errors.Is(err, ErrLoadConfig), ShouldBeTrue)
		})
	})
}
