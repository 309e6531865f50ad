package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/uspctl/internal/driver"
	"github.com/danmuck/uspctl/internal/mtp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uspctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigExample(t *testing.T) {
	cfg, err := loadAppConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Driver.Pacing != 2*time.Second || !cfg.Driver.StrictSession {
		t.Fatalf("unexpected driver config: %+v", cfg.Driver)
	}
	if cfg.MTP.ControllerID != "self::uspctl" {
		t.Fatalf("unexpected controller id: %q", cfg.MTP.ControllerID)
	}
	if cfg.MTP.DrainTimeout != 30*time.Second {
		t.Fatalf("unexpected drain timeout: %v", cfg.MTP.DrainTimeout)
	}
	if cfg.MetricsAddr != "127.0.0.1:9469" {
		t.Fatalf("unexpected metrics addr: %q", cfg.MetricsAddr)
	}
	if len(cfg.MetricsCORSOrigins) != 1 {
		t.Fatalf("unexpected cors origins: %+v", cfg.MetricsCORSOrigins)
	}
	if cfg.JournalDir != "" {
		t.Fatalf("journal should be disabled: %q", cfg.JournalDir)
	}
	broker, ok := cfg.MTP.Broker(1)
	if !ok {
		t.Fatalf("stomp broker 1 missing")
	}
	if broker.Addr != "127.0.0.1:61613" || broker.ReplyDest != "/queue/controller" {
		t.Fatalf("unexpected broker: %+v", broker)
	}
	if cfg.MTP.CoAP.ReplyTo != "coap://127.0.0.1:5684/ctrl" {
		t.Fatalf("unexpected coap reply-to: %q", cfg.MTP.CoAP.ReplyTo)
	}
}

func TestLoadAppConfigEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := loadAppConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Driver != driver.DefaultConfig() {
		t.Fatalf("unexpected driver config: %+v", cfg.Driver)
	}
	if cfg.MTP.QueueSize != mtp.DefaultConfig().QueueSize {
		t.Fatalf("unexpected queue size: %d", cfg.MTP.QueueSize)
	}
}

func TestLoadAppConfigPartialOverride(t *testing.T) {
	path := writeConfig(t, "pacing = \"250ms\"\nstrict_session = false\n")
	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Driver.Pacing != 250*time.Millisecond {
		t.Fatalf("unexpected pacing: %v", cfg.Driver.Pacing)
	}
	if cfg.Driver.StrictSession {
		t.Fatalf("strict_session should be disabled")
	}
	if cfg.MTP.ConnectTimeout != mtp.DefaultConfig().ConnectTimeout {
		t.Fatalf("connect timeout should keep default: %v", cfg.MTP.ConnectTimeout)
	}
}

func TestLoadAppConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad pacing":       "pacing = \"soon\"\n",
		"negative timeout": "connect_timeout = \"-1s\"\n",
		"unknown key":      "pacingg = \"1s\"\n",
		"missing addr":     "[[stomp.brokers]]\ninstance = 1\n",
		"duplicate broker": "[[stomp.brokers]]\ninstance = 1\naddr = \"a:1\"\n[[stomp.brokers]]\ninstance = 1\naddr = \"b:1\"\n",
	}
	for name, body := range cases {
		if _, err := loadAppConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadAppConfigMissingFile(t *testing.T) {
	_, err := loadAppConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "load uspctl config") {
		t.Fatalf("expected load error, got %v", err)
	}
}
