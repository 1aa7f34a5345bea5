// Package config loads reverser configuration from HCL files.
//
// A configuration is any number of files (or directories of *.rcl files, or
// in-memory sources) holding at most one server block and at most one
// telemetry block between them:
//
//	server {
//	  listen          = ":${lookup(env, "PORT", "5000")}"
//	  allowed_origins = ["*"]
//	  reverse_unit    = "codepoint"
//	  ping_interval   = "30s"
//	}
//
//	telemetry {
//	  service_name = "reverser"
//	}
//
// Expressions can use the process environment through the env object and the
// functions returned by GetFunctions.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"go.uber.org/zap"
)

var configSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "server"},
		{Type: "telemetry"},
	},
}

type ConfigBuilder struct {
	logger  *zap.Logger
	sources []any
}

// Config is the result of evaluating all configuration sources. Server and
// Telemetry hold defaults for anything the sources left unset.
type Config struct {
	Logger    *zap.Logger
	Functions map[string]function.Function
	Constants map[string]cty.Value
	evalCtx   *hcl.EvalContext

	Server    ServerConfig
	Telemetry TelemetryConfig
}

func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		sources: make([]any, 0),
	}
}

func (cb *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	cb.logger = logger
	return cb
}

// WithSources adds configuration sources: file or directory paths (string),
// file contents ([]byte), or an fs.FS such as an embed.FS.
func (cb *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	cb.sources = append(cb.sources, sources...)
	return cb
}

func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	logger := cb.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	config := &Config{
		Logger:    logger,
		Functions: GetFunctions(),
		Constants: map[string]cty.Value{
			"env": GetEnvObject(),
		},
		Server:    DefaultServerConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}

	config.evalCtx = &hcl.EvalContext{
		Functions: config.Functions,
		Variables: config.Constants,
	}

	bodies, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	content, contentDiags := hcl.MergeBodies(bodies).Content(configSchema)
	diags = diags.Extend(contentDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	var serverBlock, telemetryBlock *hcl.Block
	for _, block := range content.Blocks {
		switch block.Type {
		case "server":
			diags = diags.Extend(checkUnique(block, serverBlock))
			serverBlock = block
		case "telemetry":
			diags = diags.Extend(checkUnique(block, telemetryBlock))
			telemetryBlock = block
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	if serverBlock != nil {
		diags = diags.Extend(config.processServerBlock(serverBlock))
	}
	if telemetryBlock != nil {
		diags = diags.Extend(config.processTelemetryBlock(telemetryBlock))
	}
	if diags.HasErrors() {
		return nil, diags
	}

	config.Logger.Debug("Config built successfully",
		zap.Int("sources", len(cb.sources)),
		zap.String("listen", config.Server.Listen),
	)

	return config, diags
}

func checkUnique(block, previous *hcl.Block) hcl.Diagnostics {
	if previous == nil {
		return nil
	}

	return hcl.Diagnostics{
		&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  fmt.Sprintf("Duplicate %s block", block.Type),
			Detail:   fmt.Sprintf("A %s block is already defined at %s", block.Type, previous.DefRange),
			Subject:  block.DefRange.Ptr(),
		},
	}
}
