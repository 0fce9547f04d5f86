// Copyright 2025 Archethic Network
//
// kvsnapshot holds the process-wide read-mostly tables spec.md §5 calls
// out: the authorized-node roster, the origin-key set, the storage nonce
// and the last renewal slot. Daily-nonce key material is not held here; it
// lives in keystore.DailyNonceHandle. Readers take a lock-free Load();
// a single writer publishes a new Snapshot atomically on network-event
// messages (new node authorized, daily-nonce rotated, ...), the same shape
// as keystore.DailyNonceHandle's atomic.Pointer swap but for the tables
// instead of key material. Snapshots are durably persisted to disk through
// cometbft-db (goleveldb backend), reusing the teacher's pkg/kvdb adapter
// over dbm.DB.

package kvsnapshot

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/archethic-network/mining-core/pkg/election"
)

// Snapshot is one immutable generation of network state.
type Snapshot struct {
	Roster       []election.Node
	OriginKeys   [][]byte // known origin public keys, for the proof-of-work search
	StorageNonce []byte   // long-lived storage-nonce seed for storage-node election
	RenewalSlot  int64    // last scheduled node_shared_secrets renewal slot
}

// Store is the atomically-swappable holder for the current Snapshot, backed
// by a persistent KV adapter the way pkg/kvdb.KVAdapter backs the teacher's
// ledger store.
type Store struct {
	current atomic.Pointer[Snapshot]
	db      dbm.DB
}

const snapshotKey = "snapshot/current"

// NewStore wraps an already-opened snapshot database db and loads the
// last-persisted snapshot from it, if any.
func NewStore(db dbm.DB) (*Store, error) {
	s := &Store{db: db}

	raw, err := db.Get([]byte(snapshotKey))
	if err != nil {
		return nil, fmt.Errorf("kvsnapshot: read persisted snapshot: %w", err)
	}
	if raw == nil {
		s.current.Store(&Snapshot{})
		return s, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("kvsnapshot: decode persisted snapshot: %w", err)
	}
	s.current.Store(&snap)
	return s, nil
}

// Load returns the current snapshot generation without blocking any writer.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Replace atomically installs snap as the new current generation and
// persists it, so a restart resumes from the latest published state.
func (s *Store) Replace(snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("kvsnapshot: encode snapshot: %w", err)
	}
	if s.db != nil {
		if err := s.db.SetSync([]byte(snapshotKey), raw); err != nil {
			return fmt.Errorf("kvsnapshot: persist snapshot: %w", err)
		}
	}
	s.current.Store(snap)
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
