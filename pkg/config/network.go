// Copyright 2025 Archethic Network
//
// Bootstrap network file: the initial authorized-node roster and storage
// nonce a fresh validator seeds its kvsnapshot.Store from before it has
// ever received a node_shared_secrets or node transaction over the wire.
// Loaded from YAML the way the teacher's anchor_config.go loads its
// deployment settings.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BootstrapNode is one roster entry as listed in the network YAML file.
type BootstrapNode struct {
	PublicKeyHex      string    `yaml:"public_key"`
	FirstPublicKeyHex string    `yaml:"first_public_key"`
	IPAddress         string    `yaml:"ip_address"`
	Port              int       `yaml:"port"`
	GeoPatch          string    `yaml:"geo_patch"`
	AuthorizationDate time.Time `yaml:"authorization_date"`
}

// NetworkBootstrap is the full seed file: the genesis roster plus the
// long-lived storage nonce used for storage-node election (spec.md §4.1).
type NetworkBootstrap struct {
	StorageNonceHex string          `yaml:"storage_nonce"`
	Nodes           []BootstrapNode `yaml:"nodes"`
}

// LoadNetworkBootstrap reads and parses a network bootstrap YAML file.
func LoadNetworkBootstrap(path string) (*NetworkBootstrap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read network bootstrap file: %w", err)
	}
	var nb NetworkBootstrap
	if err := yaml.Unmarshal(raw, &nb); err != nil {
		return nil, fmt.Errorf("config: parse network bootstrap file: %w", err)
	}
	return &nb, nil
}
