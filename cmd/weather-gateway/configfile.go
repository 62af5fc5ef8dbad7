// ABOUTME: Config file writer shared by the init and bootstrap commands
// ABOUTME: Marshals a typed subset of the gateway config to YAML

package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/2389/weather-gateway/internal/config"
)

// configFile mirrors the YAML keys read by config.Load. Optional sections
// are omitted when nil so the loader applies its defaults.
type configFile struct {
	Server    serverSection     `yaml:"server"`
	Database  databaseSection   `yaml:"database"`
	Auth      authSection       `yaml:"auth"`
	Ingest    *ingestSection    `yaml:"ingest,omitempty"`
	MQTT      *mqttSection      `yaml:"mqtt,omitempty"`
	Tailscale *tailscaleSection `yaml:"tailscale,omitempty"`
	Logging   loggingSection    `yaml:"logging"`
}

type serverSection struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

type databaseSection struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type authSection struct {
	JWTSecret  string `yaml:"jwt_secret"`
	SessionTTL string `yaml:"session_ttl"`
}

type ingestSection struct {
	MinTemperature float64 `yaml:"min_temperature"`
	MaxTemperature float64 `yaml:"max_temperature"`
}

type mqttSection struct {
	Enabled bool   `yaml:"enabled"`
	Broker  string `yaml:"broker,omitempty"`
	Topic   string `yaml:"topic,omitempty"`
}

type tailscaleSection struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname,omitempty"`
	AuthKey   string `yaml:"auth_key,omitempty"`
	Ephemeral bool   `yaml:"ephemeral"`
	Funnel    bool   `yaml:"funnel"`
}

type loggingSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// defaultConfigFile is what bootstrap writes when no config exists yet.
func defaultConfigFile(dbPath, jwtSecret string) configFile {
	return configFile{
		Server:   serverSection{GRPCAddr: "localhost:50051", HTTPAddr: "localhost:8080"},
		Database: databaseSection{Driver: config.DefaultDatabaseDriver, Path: dbPath},
		Auth:     authSection{JWTSecret: jwtSecret, SessionTTL: config.DefaultSessionTTL.String()},
		Logging:  loggingSection{Level: config.DefaultLogLevel, Format: config.DefaultLogFormat},
	}
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// writeConfigFile writes cfg to path with owner-only permissions, creating
// the parent directory.
func writeConfigFile(path, generatedBy string, cfg configFile) error {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	content := fmt.Sprintf("# weather-gateway configuration\n# Generated by weather-gateway %s\n\n%s", generatedBy, body)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
