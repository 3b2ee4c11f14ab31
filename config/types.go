package config

import (
	"time"

	"dinechain/native/common"
)

// Logging controls the structured logger.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RateLimit bounds JSON-RPC requests per client address.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
	// TrustedProxies lists reverse proxies (IPs or CIDRs) whose
	// X-Forwarded-For header identifies the client.
	TrustedProxies []string `toml:"TrustedProxies"`
}

// Auth protects dine_sendTransaction. A request passes with either the static
// token or an HS256 JWT carrying the tx:send scope.
type Auth struct {
	Token     string `toml:"Token"`
	JWTSecret string `toml:"JWTSecret"`
	JWTIssuer string `toml:"JWTIssuer"`
}

// Enabled reports whether any credential is configured.
func (a Auth) Enabled() bool {
	return a.Token != "" || a.JWTSecret != ""
}

// Indexer configures the SQL payment history.
type Indexer struct {
	Enabled bool `toml:"Enabled"`
	// DSN is a sqlite file path, or a postgres:// URL.
	DSN        string `toml:"DSN"`
	ExportDir  string `toml:"ExportDir"`
	QueueDepth int    `toml:"QueueDepth"`
}

// Telemetry configures OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Pauses lets operators halt mutations per module.
type Pauses struct {
	Discount bool `toml:"Discount"`
	Token    bool `toml:"Token"`
}

// View converts the switches into the pause view consulted by the modules.
func (p Pauses) View() common.StaticPauses {
	return common.StaticPauses{
		common.ModuleDiscount: p.Discount,
		common.ModuleToken:    p.Token,
	}
}

// Quota limits transactions and payment volume per sender.
type Quota struct {
	MaxTxPerEpoch     uint32 `toml:"MaxTxPerEpoch"`
	MaxVolumePerEpoch uint64 `toml:"MaxVolumePerEpoch"` // token base units
	EpochSeconds      uint32 `toml:"EpochSeconds"`
}

// Native converts the section into the module quota type.
func (q Quota) Native() common.Quota {
	return common.Quota{
		MaxTxPerEpoch:     q.MaxTxPerEpoch,
		MaxVolumePerEpoch: q.MaxVolumePerEpoch,
		EpochSeconds:      q.EpochSeconds,
	}
}

// Duration is a time.Duration that reads from TOML strings such as "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
