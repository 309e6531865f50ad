package mtp

import (
	"strings"
	"time"
)

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// StompBroker is one STOMP connection a session may select through
// stomp_instance.
type StompBroker struct {
	Instance  int
	Addr      string
	Login     string
	Passcode  string
	Host      string
	ReplyDest string
}

// CoAPConfig holds controller-side CoAP settings. ReplyTo is sent as the
// reply-to URI query so the agent knows where to answer.
type CoAPConfig struct {
	ReplyTo string
}

// Config defines hub queueing and connection defaults.
type Config struct {
	ControllerID    string
	QueueSize       int
	ConnectTimeout  time.Duration
	SendTimeout     time.Duration
	// DrainTimeout bounds the wait for queued messages once the script
	// has finished.
	DrainTimeout    time.Duration
	MaxDialAttempts int
	Backoff         BackoffConfig
	Stomp           []StompBroker
	CoAP            CoAPConfig
}

func DefaultConfig() Config {
	return Config{
		ControllerID:    "self::uspctl",
		QueueSize:       64,
		ConnectTimeout:  5 * time.Second,
		SendTimeout:     10 * time.Second,
		DrainTimeout:    30 * time.Second,
		MaxDialAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.ControllerID) == "" {
		c.ControllerID = def.ControllerID
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = def.SendTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = def.DrainTimeout
	}
	if c.MaxDialAttempts <= 0 {
		c.MaxDialAttempts = def.MaxDialAttempts
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

// Broker returns the broker configured for instance.
func (c Config) Broker(instance int) (StompBroker, bool) {
	for _, b := range c.Stomp {
		if b.Instance == instance {
			return b, true
		}
	}
	return StompBroker{}, false
}
