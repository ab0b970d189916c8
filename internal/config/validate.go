package config

import "fmt"

func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.RTP.Validate(); err != nil {
		return fmt.Errorf("rtp config: %w", err)
	}

	if err := c.Packetizer.Validate(); err != nil {
		return fmt.Errorf("packetizer config: %w", err)
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("invalid log format: %s", l.Format)
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", m.Port)
	}

	if m.Path == "" {
		return fmt.Errorf("metrics path is required")
	}

	return nil
}

func (r *RTPConfig) Validate() error {
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("invalid RTP port: %d", r.Port)
	}

	if r.PayloadType < 96 || r.PayloadType > 127 {
		return fmt.Errorf("payload type %d outside dynamic range 96-127", r.PayloadType)
	}

	if r.ClockRate == 0 {
		return fmt.Errorf("clock rate must be positive")
	}

	if r.BufferSize < 1500 {
		return fmt.Errorf("buffer size %d too small for a datagram", r.BufferSize)
	}

	if r.RTCPInterval <= 0 {
		return fmt.Errorf("rtcp_interval must be positive")
	}

	return nil
}

func (p *PacketizerConfig) Validate() error {
	// The hard floor lives in av1.NewPacketizer; this catches configs that
	// could never carry a real OBU element.
	if p.MaxPayloadSize < 8 {
		return fmt.Errorf("max_payload_size %d too small to make progress", p.MaxPayloadSize)
	}

	if p.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}

	return nil
}
