package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks the values the daemon relies on at startup.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(strings.TrimSpace(c.RPCAddress)); err != nil {
		return fmt.Errorf("RPCAddress: %w", err)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if c.ShutdownTimeout.Duration < 0 {
		return fmt.Errorf("ShutdownTimeout must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MaxBodyBytes must be positive")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("RateLimit: values must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("RateLimit: Burst must be positive when RequestsPerSecond is set")
	}
	for _, proxy := range c.RateLimit.TrustedProxies {
		entry := strings.TrimSpace(proxy)
		if _, _, err := net.ParseCIDR(entry); err == nil {
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("RateLimit: invalid trusted proxy %q", proxy)
		}
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("Auth: JWTSecret must be at least 32 bytes")
	}
	if c.Indexer.Enabled && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("Indexer: DSN required when enabled")
	}
	if c.Indexer.QueueDepth < 0 {
		return fmt.Errorf("Indexer: QueueDepth must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("Telemetry: SampleRatio must be within [0, 1]")
	}
	if q := c.Quota; (q.MaxTxPerEpoch > 0 || q.MaxVolumePerEpoch > 0) && q.EpochSeconds == 0 {
		return fmt.Errorf("Quota: EpochSeconds required when a limit is set")
	}
	return nil
}
