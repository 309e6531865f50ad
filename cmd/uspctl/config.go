package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/uspctl/internal/driver"
	"github.com/danmuck/uspctl/internal/mtp"
)

type appConfig struct {
	Driver             driver.Config
	MTP                mtp.Config
	JournalDir         string
	MetricsAddr        string
	MetricsCORSOrigins []string
}

type fileConfig struct {
	Pacing             string       `toml:"pacing"`
	StrictSession      bool         `toml:"strict_session"`
	ControllerID       string       `toml:"controller_id"`
	JournalDir         string       `toml:"journal_dir"`
	MetricsAddr        string       `toml:"metrics_addr"`
	MetricsCORSOrigins []string     `toml:"metrics_cors_origins"`
	ConnectTimeout     string       `toml:"connect_timeout"`
	SendTimeout        string       `toml:"send_timeout"`
	DrainTimeout       string       `toml:"drain_timeout"`
	QueueSize          int          `toml:"queue_size"`
	MaxDialAttempts    int          `toml:"max_dial_attempts"`
	Stomp              stompSection `toml:"stomp"`
	CoAP               coapSection  `toml:"coap"`
}

type stompSection struct {
	Brokers []stompBroker `toml:"brokers"`
}

type stompBroker struct {
	Instance  int    `toml:"instance"`
	Addr      string `toml:"addr"`
	Login     string `toml:"login"`
	Passcode  string `toml:"passcode"`
	Host      string `toml:"host"`
	ReplyDest string `toml:"reply_dest"`
}

type coapSection struct {
	ListenReplyTo string `toml:"listen_reply_to"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Driver: driver.DefaultConfig(),
		MTP:    mtp.DefaultConfig(),
	}
}

func loadAppConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return appConfig{}, fmt.Errorf("load uspctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return appConfig{}, fmt.Errorf("load uspctl config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("pacing") {
		d, err := parseDuration("pacing", raw.Pacing)
		if err != nil {
			return appConfig{}, err
		}
		cfg.Driver.Pacing = d
	}
	if meta.IsDefined("strict_session") {
		cfg.Driver.StrictSession = raw.StrictSession
	}
	if meta.IsDefined("controller_id") {
		if id := strings.TrimSpace(raw.ControllerID); id != "" {
			cfg.MTP.ControllerID = id
		}
	}
	if meta.IsDefined("journal_dir") {
		cfg.JournalDir = strings.TrimSpace(raw.JournalDir)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("metrics_cors_origins") {
		cfg.MetricsCORSOrigins = normalizeList(raw.MetricsCORSOrigins)
	}
	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration("connect_timeout", raw.ConnectTimeout)
		if err != nil {
			return appConfig{}, err
		}
		cfg.MTP.ConnectTimeout = d
	}
	if meta.IsDefined("send_timeout") {
		d, err := parseDuration("send_timeout", raw.SendTimeout)
		if err != nil {
			return appConfig{}, err
		}
		cfg.MTP.SendTimeout = d
	}
	if meta.IsDefined("drain_timeout") {
		d, err := parseDuration("drain_timeout", raw.DrainTimeout)
		if err != nil {
			return appConfig{}, err
		}
		cfg.MTP.DrainTimeout = d
	}
	if meta.IsDefined("queue_size") {
		cfg.MTP.QueueSize = raw.QueueSize
	}
	if meta.IsDefined("max_dial_attempts") {
		cfg.MTP.MaxDialAttempts = raw.MaxDialAttempts
	}
	if meta.IsDefined("stomp", "brokers") {
		seen := make(map[int]bool, len(raw.Stomp.Brokers))
		for _, b := range raw.Stomp.Brokers {
			addr := strings.TrimSpace(b.Addr)
			if addr == "" {
				return appConfig{}, fmt.Errorf("stomp broker %d: addr is required", b.Instance)
			}
			if seen[b.Instance] {
				return appConfig{}, fmt.Errorf("stomp broker %d: duplicate instance", b.Instance)
			}
			seen[b.Instance] = true
			cfg.MTP.Stomp = append(cfg.MTP.Stomp, mtp.StompBroker{
				Instance:  b.Instance,
				Addr:      addr,
				Login:     b.Login,
				Passcode:  b.Passcode,
				Host:      strings.TrimSpace(b.Host),
				ReplyDest: strings.TrimSpace(b.ReplyDest),
			})
		}
	}
	if meta.IsDefined("coap", "listen_reply_to") {
		cfg.MTP.CoAP.ReplyTo = strings.TrimSpace(raw.CoAP.ListenReplyTo)
	}

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %s", key, d)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
