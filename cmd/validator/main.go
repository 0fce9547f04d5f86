// Copyright 2025 Archethic Network
//
// cmd/validator runs one consensus-mining node: it loads this node's key
// material, opens its storage and snapshot databases, dials its external
// collaborators (oracle, beacon, transport), and serves the mining HTTP
// API until signaled to stop.

package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archethic-network/mining-core/pkg/beacon"
	"github.com/archethic-network/mining-core/pkg/config"
	"github.com/archethic-network/mining-core/pkg/election"
	"github.com/archethic-network/mining-core/pkg/keystore"
	"github.com/archethic-network/mining-core/pkg/kvsnapshot"
	"github.com/archethic-network/mining-core/pkg/ledger"
	"github.com/archethic-network/mining-core/pkg/metrics"
	"github.com/archethic-network/mining-core/pkg/mining"
	"github.com/archethic-network/mining-core/pkg/oracle"
	"github.com/archethic-network/mining-core/pkg/server"
	"github.com/archethic-network/mining-core/pkg/storage"
	"github.com/archethic-network/mining-core/pkg/transport"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("🚀 starting mining-core validator")

	var (
		nodeID  = flag.String("node-id", "", "node ID (overrides ARCH_NODE_ID env var)")
		showEnv = flag.Bool("show-env", false, "print resolved configuration and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ load configuration: %v", err)
	}
	if *nodeID != "" {
		log.Printf("📋 CLI flag override: node ID from command line: %s", *nodeID)
		cfg.NodeID = *nodeID
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ invalid configuration: %v", err)
	}
	if *showEnv {
		log.Printf("📋 %+v", cfg)
		return
	}

	identity, dailyNonce := loadKeys(cfg)
	log.Printf("✅ node identity loaded, public key %s", hex.EncodeToString(identity.PublicKey()))

	if err := os.MkdirAll(cfg.SnapshotDir, 0o700); err != nil {
		log.Fatalf("❌ create snapshot directory: %v", err)
	}
	snapshotDB, err := dbm.NewGoLevelDB("snapshot", cfg.SnapshotDir)
	if err != nil {
		log.Fatalf("❌ open snapshot database: %v", err)
	}
	snapStore, err := kvsnapshot.NewStore(snapshotDB)
	if err != nil {
		log.Fatalf("❌ load snapshot store: %v", err)
	}
	seedBootstrap(cfg, snapStore)

	var storageEngine storage.Engine
	if cfg.DatabaseURL != "" {
		dbClient, err := storage.NewClient(cfg)
		if err != nil {
			if cfg.DatabaseRequired {
				log.Fatalf("❌ database connection required but failed: %v", err)
			}
			log.Printf("⚠️ database connection failed, running in DEGRADED mode: %v", err)
		} else {
			log.Printf("✅ connected to PostgreSQL")
			if err := dbClient.Migrate(context.Background()); err != nil {
				log.Printf("⚠️ database migration failed: %v", err)
			}
			storageEngine = storage.NewPostgresEngine(dbClient)
		}
	} else if cfg.DatabaseRequired {
		log.Fatalf("❌ ARCH_DATABASE_URL is required")
	}
	if storageEngine == nil {
		log.Fatalf("❌ no storage engine available and ARCH_DB_REQUIRED=false has no in-memory fallback")
	}

	oracleSource := buildOracleSource(cfg)

	ctx := context.Background()
	beaconClient, err := beacon.NewClient(ctx, beacon.ClientConfig{
		ProjectID:       cfg.BeaconFirebaseProjectID,
		CredentialsFile: cfg.BeaconCredentialsFile,
		Enabled:         cfg.BeaconEnabled,
		Logger:          log.New(log.Writer(), "[Beacon] ", log.LstdFlags),
	})
	if err != nil {
		log.Fatalf("❌ initialize beacon publisher: %v", err)
	}
	beaconService := beacon.NewSyncService(beaconClient, log.New(log.Writer(), "[Beacon] ", log.LstdFlags))

	metricsRegistry := metrics.New()
	httpTransport := transport.NewHTTPTransport(cfg.TransportTimeout)

	deps := &mining.Deps{
		Self:         identity,
		SelfEndpoint: cfg.AdvertiseAddr,
		DailyNonce:   dailyNonce,

		Storage:   storageEngine,
		Transport: httpTransport,
		Oracle:    oracleSource,
		Beacon:    beaconService,
		Metrics:   metricsRegistry,
		Snapshot:  snapStore,

		Pricing:     ledger.Pricing{},
		Constraints: election.Constraints{MinValidators: cfg.MinValidators, ReplicationFactor: cfg.ReplicationFactor},

		MaxContentSize:     3 * 1024 * 1024,
		ContextTimeout:     cfg.ContextTimeout,
		StampTimeout:       cfg.StampTimeout,
		ReplicationTimeout: cfg.ReplicationTimeout,
		ResponsivenessStep: 2 * time.Second,

		Logger: log.New(log.Writer(), "[Mining] ", log.LstdFlags),
	}

	registry := mining.NewRegistry(deps)
	srv := server.New(registry, storageEngine, identity, httpTransport, cfg.NodeID)

	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler())
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		log.Printf("🌐 mining API listening on %s, advertised as %s", cfg.ListenAddr, cfg.AdvertiseAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ mining API server: %v", err)
		}
	}()
	go func() {
		log.Printf("📈 metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️ metrics server: %v", err)
		}
	}()

	log.Printf("✅ validator %s ready, %d workflows active", cfg.NodeID, registry.Count())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("🛑 shutting down validator %s", cfg.NodeID)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ mining API shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ metrics shutdown error: %v", err)
	}
	if err := snapStore.Close(); err != nil {
		log.Printf("⚠️ snapshot store close error: %v", err)
	}
}

// loadKeys reads the hex-encoded files cmd/nodekey writes: it derives the
// node's Ed25519 identity from the node seed, and decodes the BLS
// daily-nonce private key, which that file stores as-is.
func loadKeys(cfg *config.Config) (*keystore.NodeIdentity, *keystore.DailyNonceHandle) {
	nodeSeed, err := readHexFile(cfg.NodeKeyPath)
	if err != nil {
		log.Fatalf("❌ read node key %s: %v", cfg.NodeKeyPath, err)
	}
	identity, err := keystore.NodeIdentityFromSeed(nodeSeed)
	if err != nil {
		log.Fatalf("❌ derive node identity: %v", err)
	}

	if cfg.DailyNoncePath == "" {
		log.Fatalf("❌ ARCH_DAILY_NONCE_PATH is required")
	}
	nonceBytes, err := readHexFile(cfg.DailyNoncePath)
	if err != nil {
		log.Fatalf("❌ read daily-nonce key %s: %v", cfg.DailyNoncePath, err)
	}
	priv, err := keystore.BLSPrivateKeyFromBytes(nonceBytes)
	if err != nil {
		log.Fatalf("❌ decode daily-nonce key: %v", err)
	}
	return identity, keystore.NewDailyNonceHandle(priv)
}

func readHexFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(string(raw))
}

// seedBootstrap loads the genesis roster and storage nonce from a YAML
// bootstrap file the first time this node starts with an empty snapshot.
// A node that already has a persisted snapshot keeps it; the bootstrap
// file only matters before the roster has ever been learned over the wire.
func seedBootstrap(cfg *config.Config, store *kvsnapshot.Store) {
	if cfg.NetworkBootstrapPath == "" {
		return
	}
	if len(store.Load().Roster) > 0 {
		log.Printf("🔄 snapshot already has a roster, skipping network bootstrap file")
		return
	}

	nb, err := config.LoadNetworkBootstrap(cfg.NetworkBootstrapPath)
	if err != nil {
		log.Fatalf("❌ load network bootstrap file: %v", err)
	}
	storageNonce, err := hex.DecodeString(nb.StorageNonceHex)
	if err != nil {
		log.Fatalf("❌ decode bootstrap storage nonce: %v", err)
	}

	roster := make([]election.Node, 0, len(nb.Nodes))
	for _, n := range nb.Nodes {
		pubKey, err := hex.DecodeString(n.PublicKeyHex)
		if err != nil {
			log.Fatalf("❌ decode bootstrap node public key %q: %v", n.PublicKeyHex, err)
		}
		firstKey, err := hex.DecodeString(n.FirstPublicKeyHex)
		if err != nil {
			log.Fatalf("❌ decode bootstrap node first public key %q: %v", n.FirstPublicKeyHex, err)
		}
		roster = append(roster, election.Node{
			PublicKey:         pubKey,
			FirstPublicKey:    firstKey,
			IPAddress:         n.IPAddress,
			Port:              n.Port,
			AuthorizationDate: n.AuthorizationDate,
			GeoPatch:          n.GeoPatch,
			Available:         true,
		})
	}

	if err := store.Replace(&kvsnapshot.Snapshot{
		Roster:       roster,
		StorageNonce: storageNonce,
	}); err != nil {
		log.Fatalf("❌ seed network bootstrap snapshot: %v", err)
	}
	log.Printf("✅ seeded network bootstrap: %d nodes", len(roster))
}

// buildOracleSource wires an Ethereum-backed price feed when a feed
// address is configured, falling back to a fixed price for standalone
// and test networks with no on-chain feed.
func buildOracleSource(cfg *config.Config) oracle.Source {
	if cfg.OracleRPCURL == "" || cfg.OraclePriceFeedAddr == "" {
		log.Printf("⚠️ no oracle RPC URL/feed address configured, using static UCO price source")
		return oracle.StaticSource{Price: oracle.Price{USD: 1.0, EUR: 0.92, Timestamp: time.Now().UTC()}}
	}
	src, err := oracle.NewEthereumSource(cfg.OracleRPCURL, common.HexToAddress(cfg.OraclePriceFeedAddr), cfg.OracleCacheTTL)
	if err != nil {
		log.Fatalf("❌ connect to oracle price feed: %v", err)
	}
	return src
}
