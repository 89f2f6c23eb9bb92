package app

import (
	"testing"
	"time"

	"mcwatch/internal/config"
)

func TestTrackerConfigDefaults(t *testing.T) {
	t.Parallel()

	got, err := trackerConfig(config.TrackerConfig{})
	if err != nil {
		t.Fatalf("trackerConfig: %v", err)
	}
	if got.MessagePollInterval != time.Minute {
		t.Fatalf("message poll = %v", got.MessagePollInterval)
	}
	if got.ChannelPollInterval != 5*time.Minute {
		t.Fatalf("channel poll = %v", got.ChannelPollInterval)
	}
	if got.DefaultLifetime != 15*time.Minute {
		t.Fatalf("lifetime = %v", got.DefaultLifetime)
	}
	if got.GracePeriod != time.Minute {
		t.Fatalf("grace = %v", got.GracePeriod)
	}
}

func TestTrackerConfigOverridesAndErrors(t *testing.T) {
	t.Parallel()

	got, err := trackerConfig(config.TrackerConfig{
		MessagePollInterval: "30s",
		DefaultLifetime:     "5m",
	})
	if err != nil {
		t.Fatalf("trackerConfig: %v", err)
	}
	if got.MessagePollInterval != 30*time.Second || got.DefaultLifetime != 5*time.Minute {
		t.Fatalf("overrides not applied: %+v", got)
	}

	if _, err := trackerConfig(config.TrackerConfig{GracePeriod: "soon"}); err == nil {
		t.Fatal("invalid duration accepted")
	}
}

func TestLogxConfigTranslation(t *testing.T) {
	t.Parallel()

	in := config.LoggingConfig{
		Level:   "debug",
		Console: true,
		File:    config.LoggingFile{Enabled: true, Path: "/tmp/mcwatch.log"},
		Telegram: config.LoggingTelegram{
			Enabled: true, ThreadID: 9, MinLevel: "error", RatePerSec: 2,
		},
	}
	out := logxConfig(in)
	if out.Level != "debug" || !out.Console {
		t.Fatalf("base fields: %+v", out)
	}
	if !out.File.Enabled || out.File.Path != "/tmp/mcwatch.log" {
		t.Fatalf("file sink: %+v", out.File)
	}
	if !out.Telegram.Enabled || out.Telegram.ThreadID != 9 || out.Telegram.MinLevel != "error" || out.Telegram.RatePerSec != 2 {
		t.Fatalf("telegram sink: %+v", out.Telegram)
	}
}
