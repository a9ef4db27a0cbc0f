package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type config struct {
	Addr           string    `yaml:"addr"`
	HistoryDB      string    `yaml:"history_db"`
	AliasesFile    string    `yaml:"aliases_file"`
	MaxUploadBytes int64     `yaml:"max_upload_bytes"`
	MaxRows        int       `yaml:"max_rows"`
	TLS            tlsConfig `yaml:"tls"`
}

// tlsConfig switches serve to the TLS edge (HTTP/1.1+2, HTTP/3 and MCP
// over QUIC). Without cert files a self-signed certificate is generated.
type tlsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

func defaultConfig() config {
	return config{
		Addr:           ":8430",
		HistoryDB:      "fleetintake.db",
		MaxUploadBytes: 16 << 20,
		MaxRows:        10000,
	}
}

// loadConfig reads path over the defaults, then applies FLEETINTAKE_*
// environment overrides. A missing file is not an error. A .env file in
// the working directory is loaded first when present.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *config) error {
	if v, ok := os.LookupEnv("FLEETINTAKE_ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("FLEETINTAKE_HISTORY_DB"); ok {
		cfg.HistoryDB = v
	}
	if v, ok := os.LookupEnv("FLEETINTAKE_ALIASES_FILE"); ok {
		cfg.AliasesFile = v
	}
	if v, ok := os.LookupEnv("FLEETINTAKE_MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FLEETINTAKE_MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.MaxUploadBytes = n
	}
	if v, ok := os.LookupEnv("FLEETINTAKE_TLS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLEETINTAKE_TLS_ENABLED: %w", err)
		}
		cfg.TLS.Enabled = b
	}
	if v, ok := os.LookupEnv("FLEETINTAKE_TLS_CERT_FILE"); ok {
		cfg.TLS.CertFile = v
	}
	if v, ok := os.LookupEnv("FLEETINTAKE_TLS_KEY_FILE"); ok {
		cfg.TLS.KeyFile = v
	}
	if v, ok := os.LookupEnv("FLEETINTAKE_MAX_ROWS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLEETINTAKE_MAX_ROWS: %w", err)
		}
		cfg.MaxRows = n
	}
	return nil
}
