// Package config centralizes runtime configuration for ctd. It loads a
// JSON configuration file and exposes a process-wide configuration with
// sensible defaults. Tests and development builds will use defaults when the
// file is not present. Production operators should place a JSON file at
// /etc/ctd/config.json or specify a different path via the CONFIG_FILE env var.
package config

import (
	"encoding/json"
	"os"
)

// Config holds configurable options for the ctd node.
type Config struct {
	NodeName        string   `json:"node_name"`
	IDFile          string   `json:"id_file"`
	DBFile          string   `json:"db_file"`
	Port            int      `json:"port"`
	AdvertiseURL    string   `json:"advertise_url"`
	SeedPeers       []string `json:"seed_peers"`
	SyncIntervalSec int      `json:"sync_interval_sec"`
	PeerTimeoutSec  int      `json:"peer_timeout_sec"`
	ValidateOnAdopt bool     `json:"validate_on_adopt"`
	EnableMDNS      bool     `json:"enable_mdns"`
	MDNSServiceName string   `json:"mdns_service_name"`
	LogBufferSize   int      `json:"log_buffer_size"`
}

var cfg *Config

// LoadConfig reads a JSON file at path. If the file does not exist or
// cannot be parsed, LoadConfig returns defaults (and no error) so that the
// application can run in development with minimal friction.
func LoadConfig(path string) (*Config, error) {
	// sensible defaults
	def := &Config{
		NodeName:        "ctd-node",
		IDFile:          "ctd_node_id",
		DBFile:          "ctd.db",
		Port:            5000,
		SyncIntervalSec: 10,
		PeerTimeoutSec:  5,
		ValidateOnAdopt: false,
		EnableMDNS:      false,
		MDNSServiceName: "_ctd._tcp",
		LogBufferSize:   200,
	}

	// if no file path provided, return defaults
	if path == "" {
		cfg = def
		return cfg, nil
	}

	// read file
	b, err := os.ReadFile(path)
	if err != nil {
		// file missing or unreadable -> use defaults
		cfg = def
		return cfg, nil
	}

	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		// parse error -> use defaults
		cfg = def
		return cfg, nil
	}

	// merge defaults for any zero-value fields
	if c.NodeName == "" {
		c.NodeName = def.NodeName
	}
	if c.IDFile == "" {
		c.IDFile = def.IDFile
	}
	if c.DBFile == "" {
		c.DBFile = def.DBFile
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.SyncIntervalSec == 0 {
		c.SyncIntervalSec = def.SyncIntervalSec
	}
	if c.PeerTimeoutSec == 0 {
		c.PeerTimeoutSec = def.PeerTimeoutSec
	}
	if c.MDNSServiceName == "" {
		c.MDNSServiceName = def.MDNSServiceName
	}
	if c.LogBufferSize == 0 {
		c.LogBufferSize = def.LogBufferSize
	}

	cfg = &c
	return cfg, nil
}

// Get returns the loaded configuration. If LoadConfig hasn't been called
// yet, it returns defaults.
func Get() *Config {
	if cfg == nil {
		// initialize with defaults
		LoadConfig("")
	}
	return cfg
}
