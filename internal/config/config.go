package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration of a walstore node
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	WAL     WALConfig     `yaml:"wal"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracing TracingConfig `yaml:"tracing"`
}

// NodeConfig holds the listen addresses of the node's servers
type NodeConfig struct {
	HTTPAddress string `yaml:"http_address"`
	GRPCAddress string `yaml:"grpc_address"`
}

// WALConfig locates the log file and selects the record format
type WALConfig struct {
	Path      string `yaml:"path"`
	Checksums bool   `yaml:"checksums"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TracingConfig configures OpenTelemetry. An empty endpoint keeps spans
// in-process.
type TracingConfig struct {
	ServiceName    string `yaml:"service_name"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Node: NodeConfig{
			HTTPAddress: ":8080",
			GRPCAddress: ":9090",
		},
		WAL: WALConfig{
			Path: "./data/wal.log",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			ServiceName: "walstore",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.WAL.Path) == "" {
		return fmt.Errorf("config: wal.path is required")
	}
	if c.Node.HTTPAddress == "" && c.Node.GRPCAddress == "" {
		return fmt.Errorf("config: at least one of node.http_address and node.grpc_address is required")
	}
	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown logger.level %q", c.Logger.Level)
	}
	if c.Tracing.ServiceName == "" {
		return fmt.Errorf("config: tracing.service_name is required")
	}
	return nil
}
