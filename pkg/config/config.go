// Copyright 2025 Archethic Network
//
// Config - environment-driven configuration for the mining core validator
// process. Mirrors the teacher's flat-struct, explicit-required-field style:
// every setting is a plain field, Load() reads the environment once, and
// Validate() is a separate pass so callers can decide when to enforce
// required settings.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the mining core validator service.
type Config struct {
	// Node identity
	NodeID         string
	ListenAddr     string
	AdvertiseAddr  string // dialable http://host:port peers use to reach this node
	MetricsAddr    string
	HealthAddr     string
	DataDir        string
	NodeKeyPath    string // path to the Ed25519 node identity key
	DailyNoncePath string // path to the current BLS daily-nonce key

	// NetworkBootstrapPath points at a YAML file seeding the initial roster
	// and storage nonce on first start. Empty means the node starts with an
	// empty snapshot and expects to learn the roster over the wire.
	NetworkBootstrapPath string

	// Database (storage collaborator)
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
	DatabaseRequired    bool

	// kvsnapshot (read-mostly roster/key tables)
	SnapshotDir string

	// Oracle (UCO/USD price feed)
	OracleRPCURL         string
	OraclePriceFeedAddr  string
	OracleChainID        int64
	OracleCacheTTL       time.Duration

	// Beacon publisher (Firestore-backed)
	BeaconEnabled           bool
	BeaconFirebaseProjectID string
	BeaconCredentialsFile   string

	// Transport (P2P send_message / broadcast_message)
	PeerEndpoints      []string
	TransportTimeout   time.Duration
	ReplicationTimeout time.Duration
	ContextTimeout     time.Duration
	StampTimeout       time.Duration

	// Election constraints
	MinValidators     int
	ReplicationFactor int

	LogLevel string
}

// Load reads configuration from environment variables. Required variables
// have no defaults; call Validate() after Load() to enforce them.
func Load() (*Config, error) {
	cfg := &Config{
		NodeID:         os.Getenv("ARCH_NODE_ID"),
		ListenAddr:     getEnv("ARCH_LISTEN_ADDR", ":9000"),
		AdvertiseAddr:  os.Getenv("ARCH_ADVERTISE_ADDR"),
		MetricsAddr:    getEnv("ARCH_METRICS_ADDR", ":9100"),
		HealthAddr:     getEnv("ARCH_HEALTH_ADDR", ":9200"),
		DataDir:        getEnv("ARCH_DATA_DIR", "./data"),
		NodeKeyPath:    os.Getenv("ARCH_NODE_KEY_PATH"),
		DailyNoncePath: os.Getenv("ARCH_DAILY_NONCE_PATH"),

		NetworkBootstrapPath: os.Getenv("ARCH_NETWORK_BOOTSTRAP_FILE"),

		DatabaseURL:         os.Getenv("ARCH_DATABASE_URL"),
		DatabaseMaxConns:    getEnvInt("ARCH_DB_MAX_CONNS", 10),
		DatabaseMinConns:    getEnvInt("ARCH_DB_MIN_CONNS", 2),
		DatabaseMaxIdleTime: getEnvInt("ARCH_DB_MAX_IDLE_SECONDS", 300),
		DatabaseMaxLifetime: getEnvInt("ARCH_DB_MAX_LIFETIME_SECONDS", 3600),
		DatabaseRequired:    getEnvBool("ARCH_DB_REQUIRED", true),

		SnapshotDir: getEnv("ARCH_SNAPSHOT_DIR", "./data/snapshot"),

		OracleRPCURL:        os.Getenv("ARCH_ORACLE_RPC_URL"),
		OraclePriceFeedAddr: os.Getenv("ARCH_ORACLE_FEED_ADDRESS"),
		OracleChainID:       int64(getEnvInt("ARCH_ORACLE_CHAIN_ID", 1)),
		OracleCacheTTL:      time.Duration(getEnvInt("ARCH_ORACLE_CACHE_SECONDS", 30)) * time.Second,

		BeaconEnabled:           getEnvBool("ARCH_BEACON_ENABLED", false),
		BeaconFirebaseProjectID: os.Getenv("ARCH_BEACON_PROJECT_ID"),
		BeaconCredentialsFile:   os.Getenv("ARCH_BEACON_CREDENTIALS_FILE"),

		PeerEndpoints:      splitCSV(os.Getenv("ARCH_PEER_ENDPOINTS")),
		TransportTimeout:   time.Duration(getEnvInt("ARCH_TRANSPORT_TIMEOUT_MS", 2000)) * time.Millisecond,
		ReplicationTimeout: time.Duration(getEnvInt("ARCH_REPLICATION_TIMEOUT_MS", 5000)) * time.Millisecond,
		ContextTimeout:     time.Duration(getEnvInt("ARCH_CONTEXT_TIMEOUT_MS", 3000)) * time.Millisecond,
		StampTimeout:       time.Duration(getEnvInt("ARCH_STAMP_TIMEOUT_MS", 3000)) * time.Millisecond,

		MinValidators:     getEnvInt("ARCH_MIN_VALIDATORS", 3),
		ReplicationFactor: getEnvInt("ARCH_REPLICATION_FACTOR", 3),

		LogLevel: getEnv("ARCH_LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate enforces the settings required to run a validator node.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("ARCH_NODE_ID is required")
	}
	if c.DatabaseRequired && c.DatabaseURL == "" {
		return fmt.Errorf("ARCH_DATABASE_URL is required")
	}
	if c.NodeKeyPath == "" {
		return fmt.Errorf("ARCH_NODE_KEY_PATH is required")
	}
	if c.AdvertiseAddr == "" {
		return fmt.Errorf("ARCH_ADVERTISE_ADDR is required")
	}
	if c.MinValidators < 1 {
		return fmt.Errorf("ARCH_MIN_VALIDATORS must be >= 1")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
