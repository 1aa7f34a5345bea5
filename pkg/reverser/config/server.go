package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/tsarna/reverser/pkg/reverser/reverse"
	"github.com/tsarna/reverser/pkg/reverser/server"
)

// DefaultListen matches the port the page has always been served on.
const DefaultListen = ":5000"

// ServerConfig holds the resolved settings of the server block.
type ServerConfig struct {
	Listen         string
	AllowedOrigins []string // empty means same origin only
	WSPath         string
	ReverseUnit    reverse.Unit
	QueueSize      int
	PingInterval   time.Duration // 0 disables pings
	WriteTimeout   time.Duration
	ReadLimit      int64
}

// TelemetryConfig holds the resolved settings of the telemetry block.
type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:       DefaultListen,
		WSPath:       "/ws",
		ReverseUnit:  reverse.UnitCodePoint,
		QueueSize:    server.DefaultQueueSize,
		PingInterval: server.DefaultPingInterval,
		WriteTimeout: server.DefaultWriteTimeout,
		ReadLimit:    server.DefaultReadLimit,
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		ServiceName: "reverser",
	}
}

type serverDefinition struct {
	Listen         *string        `hcl:"listen,optional"`
	AllowedOrigins *[]string      `hcl:"allowed_origins,optional"`
	WSPath         *string        `hcl:"ws_path,optional"`
	ReverseUnit    *string        `hcl:"reverse_unit,optional"`
	QueueSize      *int           `hcl:"queue_size,optional"`
	PingInterval   hcl.Expression `hcl:"ping_interval,optional"`
	WriteTimeout   hcl.Expression `hcl:"write_timeout,optional"`
	ReadLimit      *int64         `hcl:"read_limit,optional"`
}

type telemetryDefinition struct {
	Enabled     *bool   `hcl:"enabled,optional"`
	ServiceName *string `hcl:"service_name,optional"`
}

func (c *Config) processServerBlock(block *hcl.Block) hcl.Diagnostics {
	def := serverDefinition{}
	diags := gohcl.DecodeBody(block.Body, c.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}

	invalid := func(summary, detail string) {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  summary,
			Detail:   detail,
			Subject:  block.DefRange.Ptr(),
		})
	}

	cfg := &c.Server

	if def.Listen != nil {
		if strings.TrimSpace(*def.Listen) == "" {
			invalid("Invalid listen address", "listen must not be empty")
		}
		cfg.Listen = strings.TrimSpace(*def.Listen)
	}

	if def.AllowedOrigins != nil {
		cfg.AllowedOrigins = nil
		for _, origin := range *def.AllowedOrigins {
			if origin = strings.TrimSpace(origin); origin == "" {
				invalid("Invalid allowed origin", "allowed_origins must not contain empty strings")
				continue
			}
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if def.WSPath != nil {
		if !strings.HasPrefix(*def.WSPath, "/") || *def.WSPath == "/" || strings.ContainsAny(*def.WSPath, "{} ") {
			invalid("Invalid ws_path", fmt.Sprintf("ws_path must be an absolute path other than \"/\" without braces or spaces, got %q", *def.WSPath))
		}
		cfg.WSPath = *def.WSPath
	}

	if def.ReverseUnit != nil {
		unit, err := reverse.ParseUnit(*def.ReverseUnit)
		if err != nil {
			invalid("Invalid reverse_unit", err.Error())
		}
		cfg.ReverseUnit = unit
	}

	if def.QueueSize != nil {
		if *def.QueueSize <= 0 {
			invalid("Invalid queue_size", fmt.Sprintf("queue_size must be positive, got %d", *def.QueueSize))
		}
		cfg.QueueSize = *def.QueueSize
	}

	if def.ReadLimit != nil {
		if *def.ReadLimit <= 0 {
			invalid("Invalid read_limit", fmt.Sprintf("read_limit must be positive, got %d", *def.ReadLimit))
		}
		cfg.ReadLimit = *def.ReadLimit
	}

	if IsExpressionProvided(def.PingInterval) {
		d, durDiags := c.ParseDuration(def.PingInterval)
		diags = diags.Extend(durDiags)
		cfg.PingInterval = d
	}

	if IsExpressionProvided(def.WriteTimeout) {
		d, durDiags := c.ParseDuration(def.WriteTimeout)
		diags = diags.Extend(durDiags)
		if !durDiags.HasErrors() && d == 0 {
			invalid("Invalid write_timeout", "write_timeout must be greater than zero")
		}
		cfg.WriteTimeout = d
	}

	return diags
}

// processTelemetryBlock applies the telemetry block. A telemetry block turns
// telemetry on unless it sets enabled = false.
func (c *Config) processTelemetryBlock(block *hcl.Block) hcl.Diagnostics {
	def := telemetryDefinition{}
	diags := gohcl.DecodeBody(block.Body, c.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}

	c.Telemetry.Enabled = true
	if def.Enabled != nil {
		c.Telemetry.Enabled = *def.Enabled
	}

	if def.ServiceName != nil {
		name := strings.TrimSpace(*def.ServiceName)
		if name == "" {
			return diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid service_name",
				Detail:   "service_name must not be empty",
				Subject:  block.DefRange.Ptr(),
			})
		}
		c.Telemetry.ServiceName = name
	}

	return diags
}
