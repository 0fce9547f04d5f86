// Copyright 2025 Archethic Network
//
// Storage is the persistent storage engine contract spec.md §6 names as an
// external collaborator (get_transaction/write_transaction/chain
// enumeration). This package defines that contract plus a PostgreSQL
// implementation, reusing the teacher's pkg/database client/repository
// split: a *Client wraps *sql.DB with pool configuration, and one
// repository-shaped type implements the actual queries.

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/archethic-network/mining-core/pkg/txtypes"
)

// ErrNotFound is returned when a requested transaction or address does not
// exist in this storage node's dataset.
var ErrNotFound = errors.New("storage: not found")

// FieldFilter restricts which parts of a stored transaction GetTransaction
// returns, mirroring the teacher's selective-column repository methods
// (avoid shipping ownerships/code back over the wire when only the stamp is
// needed).
type FieldFilter struct {
	Content          bool
	ValidationStamp  bool
	CrossValidations bool
}

// AllFields requests the complete transaction record.
func AllFields() FieldFilter {
	return FieldFilter{Content: true, ValidationStamp: true, CrossValidations: true}
}

// Engine is the storage contract every mining component depends on.
// Implementations may be the chain-storage, beacon-storage, or I/O-storage
// role; the contract is the same for all three (spec.md §6).
type Engine interface {
	GetTransaction(ctx context.Context, address []byte, filter FieldFilter) (*txtypes.Transaction, error)
	WriteTransaction(ctx context.Context, tx *txtypes.Transaction) error
	ChainSize(ctx context.Context, address []byte) (int, error)
	ListAddressesByType(ctx context.Context, txType txtypes.TransactionType) ([][]byte, error)
	GetLastChainAddress(ctx context.Context, address []byte, at ...time.Time) ([]byte, error)
	GetFirstChainAddress(ctx context.Context, address []byte) ([]byte, error)
}
