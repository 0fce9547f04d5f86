// Copyright 2025 Archethic Network
//
// Beacon is the one outbound call this core makes into the out-of-scope
// beacon-chain subsystem (spec.md §1): publishing a ReplicationAttestation
// once a transaction replicates. Adapted from the teacher's pkg/firestore
// sync service — same shape (a Firestore-backed fan-out of domain events,
// an in-memory cache, an audit hash chain) repointed at attestation events
// instead of proof-cycle UI sync events.

package beacon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// ReplicationAttestation is the event this core publishes once a
// transaction's chain-storage quorum acknowledges persistence.
type ReplicationAttestation struct {
	TransactionAddress []byte    `json:"transaction_address"`
	GenesisAddress     []byte    `json:"genesis_address"`
	ValidatorPublicKey []byte    `json:"validator_public_key"`
	ReplicatedAt       time.Time `json:"replicated_at"`
	ChainStorageCount  int       `json:"chain_storage_count"`
	AcknowledgedCount  int       `json:"acknowledged_count"`
}

// Publisher sends ReplicationAttestations onward to the beacon chain. A
// real deployment's beacon subsystem is external; this core's contract
// with it is exactly this one method.
type Publisher interface {
	PublishAttestation(ctx context.Context, att ReplicationAttestation) error
}

// Client wraps the Firestore client used to fan the attestation out,
// mirroring the teacher's firestore.Client: a no-op when disabled, so local
// development and standalone-network tests never need real credentials.
type Client struct {
	app       *firebase.App
	firestore *gcpfirestore.Client
	projectID string
	enabled   bool
	logger    *log.Logger
	mu        sync.RWMutex
}

// ClientConfig configures the Firestore-backed beacon publisher.
type ClientConfig struct {
	ProjectID       string
	CredentialsFile string
	Enabled         bool
	Logger          *log.Logger
}

// NewClient opens the Firestore client, or returns a disabled no-op client
// when cfg.Enabled is false.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Beacon] ", log.LstdFlags)
	}

	c := &Client{projectID: cfg.ProjectID, enabled: cfg.Enabled, logger: cfg.Logger}
	if !cfg.Enabled {
		cfg.Logger.Println("beacon publisher disabled, running in no-op mode")
		return c, nil
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("beacon: init firebase app: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("beacon: init firestore client: %w", err)
	}

	c.app = app
	c.firestore = fsClient
	return c, nil
}

// IsEnabled reports whether this client performs real writes.
func (c *Client) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled && c.firestore != nil
}

// Close releases the underlying Firestore client.
func (c *Client) Close() error {
	if c.firestore == nil {
		return nil
	}
	return c.firestore.Close()
}

// SyncService publishes ReplicationAttestations to Firestore, maintaining
// an audit hash chain per genesis address the same way the teacher's
// SyncService chains audit entries per user.
type SyncService struct {
	client *Client
	logger *log.Logger

	auditChainsMu sync.RWMutex
	auditChains   map[string]string // genesis address (hex) -> latest entry hash
}

// NewSyncService wraps client in the attestation-publishing service.
func NewSyncService(client *Client, logger *log.Logger) *SyncService {
	if logger == nil {
		logger = log.New(log.Writer(), "[BeaconSync] ", log.LstdFlags)
	}
	return &SyncService{client: client, logger: logger, auditChains: make(map[string]string)}
}

func (s *SyncService) computeAttestationHash(att ReplicationAttestation, previousHash string) string {
	data := map[string]any{
		"transactionAddress": hex.EncodeToString(att.TransactionAddress),
		"genesisAddress":     hex.EncodeToString(att.GenesisAddress),
		"replicatedAt":       att.ReplicatedAt.Unix(),
		"acknowledgedCount":  att.AcknowledgedCount,
		"previousHash":       previousHash,
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// PublishAttestation implements Publisher. It is a no-op when the
// underlying client is disabled, matching the teacher's
// IsEnabled()-gated sync methods.
func (s *SyncService) PublishAttestation(ctx context.Context, att ReplicationAttestation) error {
	if s.client == nil || !s.client.IsEnabled() {
		return nil
	}

	genesisKey := hex.EncodeToString(att.GenesisAddress)

	s.auditChainsMu.RLock()
	previousHash := s.auditChains[genesisKey]
	s.auditChainsMu.RUnlock()

	entryHash := s.computeAttestationHash(att, previousHash)

	doc := map[string]any{
		"transactionAddress": hex.EncodeToString(att.TransactionAddress),
		"genesisAddress":     genesisKey,
		"validatorPublicKey": hex.EncodeToString(att.ValidatorPublicKey),
		"replicatedAt":       att.ReplicatedAt,
		"chainStorageCount":  att.ChainStorageCount,
		"acknowledgedCount":  att.AcknowledgedCount,
		"entryHash":          entryHash,
		"previousHash":       previousHash,
	}

	s.client.mu.RLock()
	fsClient := s.client.firestore
	s.client.mu.RUnlock()

	_, _, err := fsClient.Collection("replication_attestations").Add(ctx, doc)
	if err != nil {
		return fmt.Errorf("beacon: publish attestation: %w", err)
	}

	s.auditChainsMu.Lock()
	s.auditChains[genesisKey] = entryHash
	s.auditChainsMu.Unlock()

	s.logger.Printf("published replication attestation for %s (acked %d/%d)",
		genesisKey[:minInt(12, len(genesisKey))], att.AcknowledgedCount, att.ChainStorageCount)
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

var _ Publisher = (*SyncService)(nil)
