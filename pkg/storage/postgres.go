// Copyright 2025 Archethic Network
//
// PostgresEngine implements Engine against the schema in
// migrations/0001_init.sql, following the teacher's one-repository-struct
// over a raw *sql.DB pattern (pkg/database/repository_anchor.go): plain
// SQL, explicit column lists, JSONB for the nested value types.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/archethic-network/mining-core/pkg/txtypes"
)

// PostgresEngine is a storage.Engine backed by a PostgreSQL transactions
// table.
type PostgresEngine struct {
	client *Client
}

// NewPostgresEngine wraps an already-connected Client.
func NewPostgresEngine(client *Client) *PostgresEngine {
	return &PostgresEngine{client: client}
}

func genesisAddressOf(ctx context.Context, db *sql.DB, previousAddress []byte) ([]byte, error) {
	var genesis []byte
	err := db.QueryRowContext(ctx, `SELECT genesis_address FROM transactions WHERE address = $1`, previousAddress).Scan(&genesis)
	if err == sql.ErrNoRows {
		// previousAddress is itself the chain genesis (no prior transaction
		// recorded yet): the chain's genesis is the address this tx follows.
		return previousAddress, nil
	}
	if err != nil {
		return nil, err
	}
	return genesis, nil
}

// WriteTransaction inserts tx, computing its genesis_address lineage from
// the transaction it follows (idempotent: AlreadyExists is the caller's
// concern via ON CONFLICT DO NOTHING per spec.md §7).
func (e *PostgresEngine) WriteTransaction(ctx context.Context, tx *txtypes.Transaction) error {
	previousAddress := txtypes.DeriveAddress(tx.PreviousPublicKey)
	genesis, err := genesisAddressOf(ctx, e.client.DB(), previousAddress)
	if err != nil {
		return fmt.Errorf("storage: resolve genesis address: %w", err)
	}

	ownerships, err := json.Marshal(tx.Data.Ownerships)
	if err != nil {
		return err
	}
	ledger, err := json.Marshal(tx.Data.Ledger)
	if err != nil {
		return err
	}
	recipients, err := json.Marshal(tx.Data.Recipients)
	if err != nil {
		return err
	}
	stamp, err := json.Marshal(tx.ValidationStamp)
	if err != nil {
		return err
	}
	crossValidations, err := json.Marshal(tx.CrossValidationStamps)
	if err != nil {
		return err
	}

	var stampTimestamp *time.Time
	if tx.ValidationStamp != nil {
		t := tx.ValidationStamp.Timestamp
		stampTimestamp = &t
	}

	_, err = e.client.DB().ExecContext(ctx, `
		INSERT INTO transactions (
			address, type, previous_public_key, previous_signature, origin_signature,
			content, code, ownerships, ledger, recipients, validation_stamp,
			cross_validations, previous_address, genesis_address, stamp_timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (address) DO NOTHING`,
		tx.Address, string(tx.Type), tx.PreviousPublicKey, tx.PreviousSignature, tx.OriginSignature,
		tx.Data.Content, tx.Data.Code, ownerships, ledger, recipients, stamp,
		crossValidations, previousAddress, genesis, stampTimestamp)
	if err != nil {
		return fmt.Errorf("storage: write transaction: %w", err)
	}
	return nil
}

func scanTransaction(row *sql.Row, filter FieldFilter) (*txtypes.Transaction, error) {
	var (
		tx                                   txtypes.Transaction
		typ                                  string
		content, code                        []byte
		ownerships, ledger, recipients       []byte
		stamp, crossValidations              []byte
	)
	if err := row.Scan(&tx.Address, &typ, &tx.PreviousPublicKey, &tx.PreviousSignature, &tx.OriginSignature,
		&content, &code, &ownerships, &ledger, &recipients, &stamp, &crossValidations); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: scan transaction: %w", err)
	}

	tx.Type = txtypes.TransactionType(typ)
	if filter.Content {
		tx.Data.Content = content
		tx.Data.Code = code
		if len(ownerships) > 0 {
			if err := json.Unmarshal(ownerships, &tx.Data.Ownerships); err != nil {
				return nil, err
			}
		}
		if len(recipients) > 0 {
			if err := json.Unmarshal(recipients, &tx.Data.Recipients); err != nil {
				return nil, err
			}
		}
	}
	if len(ledger) > 0 {
		if err := json.Unmarshal(ledger, &tx.Data.Ledger); err != nil {
			return nil, err
		}
	}
	if filter.ValidationStamp && len(stamp) > 0 && string(stamp) != "null" {
		tx.ValidationStamp = &txtypes.ValidationStamp{}
		if err := json.Unmarshal(stamp, tx.ValidationStamp); err != nil {
			return nil, err
		}
	}
	if filter.CrossValidations && len(crossValidations) > 0 {
		if err := json.Unmarshal(crossValidations, &tx.CrossValidationStamps); err != nil {
			return nil, err
		}
	}
	return &tx, nil
}

// GetTransaction implements Engine.
func (e *PostgresEngine) GetTransaction(ctx context.Context, address []byte, filter FieldFilter) (*txtypes.Transaction, error) {
	row := e.client.DB().QueryRowContext(ctx, `
		SELECT address, type, previous_public_key, previous_signature, origin_signature,
		       content, code, ownerships, ledger, recipients, validation_stamp, cross_validations
		FROM transactions WHERE address = $1`, address)
	return scanTransaction(row, filter)
}

// ChainSize implements Engine.
func (e *PostgresEngine) ChainSize(ctx context.Context, address []byte) (int, error) {
	genesis, err := genesisAddressOf(ctx, e.client.DB(), address)
	if err != nil {
		return 0, err
	}
	var n int
	err = e.client.DB().QueryRowContext(ctx, `SELECT count(*) FROM transactions WHERE genesis_address = $1`, genesis).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: chain size: %w", err)
	}
	return n, nil
}

// ListAddressesByType implements Engine.
func (e *PostgresEngine) ListAddressesByType(ctx context.Context, txType txtypes.TransactionType) ([][]byte, error) {
	rows, err := e.client.DB().QueryContext(ctx, `SELECT address FROM transactions WHERE type = $1 ORDER BY created_at`, string(txType))
	if err != nil {
		return nil, fmt.Errorf("storage: list addresses by type: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var addr []byte
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// GetLastChainAddress implements Engine: the most recently stamped
// transaction on the chain rooted at address, optionally bounded by an
// "at" timestamp.
func (e *PostgresEngine) GetLastChainAddress(ctx context.Context, address []byte, at ...time.Time) ([]byte, error) {
	genesis, err := genesisAddressOf(ctx, e.client.DB(), address)
	if err != nil {
		return nil, err
	}

	var row *sql.Row
	if len(at) > 0 {
		row = e.client.DB().QueryRowContext(ctx, `
			SELECT address FROM transactions
			WHERE genesis_address = $1 AND stamp_timestamp <= $2
			ORDER BY stamp_timestamp DESC LIMIT 1`, genesis, at[0])
	} else {
		row = e.client.DB().QueryRowContext(ctx, `
			SELECT address FROM transactions
			WHERE genesis_address = $1
			ORDER BY stamp_timestamp DESC LIMIT 1`, genesis)
	}

	var last []byte
	if err := row.Scan(&last); err != nil {
		if err == sql.ErrNoRows {
			return address, nil // chain has no committed transaction yet
		}
		return nil, fmt.Errorf("storage: last chain address: %w", err)
	}
	return last, nil
}

// GetFirstChainAddress implements Engine.
func (e *PostgresEngine) GetFirstChainAddress(ctx context.Context, address []byte) ([]byte, error) {
	genesis, err := genesisAddressOf(ctx, e.client.DB(), address)
	if err != nil {
		return nil, err
	}
	var first []byte
	err = e.client.DB().QueryRowContext(ctx, `
		SELECT address FROM transactions
		WHERE genesis_address = $1
		ORDER BY stamp_timestamp ASC LIMIT 1`, genesis).Scan(&first)
	if err == sql.ErrNoRows {
		return genesis, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: first chain address: %w", err)
	}
	return first, nil
}

var _ Engine = (*PostgresEngine)(nil)
