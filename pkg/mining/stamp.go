// Copyright 2025 Archethic Network
//
// Stamp assembly: the computations spec.md §4.3 steps 2-6 describe, shared
// verbatim between the coordinator (which produces the ValidationStamp)
// and every cross-validator (which independently recomputes it to detect
// inconsistencies). Keeping this logic in one place is what makes
// recomputation possible at all — spec.md §4.4 calls the fee/ledger engine
// out explicitly for the same reason.

package mining

import (
	"context"
	"fmt"
	"time"

	"github.com/archethic-network/mining-core/pkg/keystore"
	"github.com/archethic-network/mining-core/pkg/ledger"
	"github.com/archethic-network/mining-core/pkg/storage"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

// previousAddress is the address tx's previous_public_key hashes to — the
// transaction it follows on its chain.
func previousAddress(tx *txtypes.Transaction) []byte {
	return txtypes.DeriveAddress(tx.PreviousPublicKey)
}

// fetchPreviousProofOfIntegrity returns the prior transaction's POI, or nil
// if tx is its chain's genesis (property 2).
func fetchPreviousProofOfIntegrity(ctx context.Context, eng storage.Engine, tx *txtypes.Transaction) ([]byte, error) {
	prev, err := eng.GetTransaction(ctx, previousAddress(tx), storage.FieldFilter{ValidationStamp: true})
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mining: fetch previous transaction: %w", err)
	}
	if prev.ValidationStamp == nil {
		return nil, nil
	}
	return prev.ValidationStamp.ProofOfIntegrity, nil
}

// fetchChainUnspentOutputs returns the unspent outputs available to spend
// against, sourced from the chain's most recently validated transaction
// (the "replication context" spec.md §4.3 step 4 refers to).
func fetchChainUnspentOutputs(ctx context.Context, eng storage.Engine, tx *txtypes.Transaction) ([]txtypes.UnspentOutput, error) {
	prevAddr := previousAddress(tx)
	lastAddr, err := eng.GetLastChainAddress(ctx, prevAddr)
	if err != nil {
		return nil, fmt.Errorf("mining: resolve last chain address: %w", err)
	}
	last, err := eng.GetTransaction(ctx, lastAddr, storage.FieldFilter{ValidationStamp: true})
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mining: fetch chain utxos: %w", err)
	}
	if last.ValidationStamp == nil {
		return nil, nil
	}
	return last.ValidationStamp.LedgerOperations.UnspentOutputs, nil
}

// computeProofOfWork implements spec.md §4.3 step 3: search the known
// origin-key set for the key under which origin_signature verifies.
// Returns nil if none verify (proof_of_work = 0 per spec.md §4.1's
// algorithm description).
func computeProofOfWork(tx *txtypes.Transaction, originKeys [][]byte) []byte {
	signed := txtypes.SerializeForOriginSignature(tx)
	for _, key := range originKeys {
		if keystore.VerifyEd25519(key, signed, tx.OriginSignature) {
			return key
		}
	}
	return nil
}

// resolveRecipients implements spec.md §4.3 step 6: resolve every declared
// recipient to its last-known chain address as of the transaction's stamp
// timestamp.
func resolveRecipients(ctx context.Context, eng storage.Engine, tx *txtypes.Transaction, stampTime int64) ([]txtypes.ResolvedRecipient, error) {
	out := make([]txtypes.ResolvedRecipient, 0, len(tx.Data.Recipients))
	for _, r := range tx.Data.Recipients {
		resolved, err := eng.GetLastChainAddress(ctx, r.Address, time.Unix(stampTime, 0))
		if err != nil {
			return nil, fmt.Errorf("mining: resolve recipient %x: %w", r.Address, err)
		}
		out = append(out, txtypes.ResolvedRecipient{Address: r.Address, ResolvedAddress: resolved})
	}
	return out, nil
}

// stampInputs is everything needed to assemble a ValidationStamp,
// independent of who is computing it (coordinator building, or a
// cross-validator recomputing for comparison).
type stampInputs struct {
	tx              *txtypes.Transaction
	timestamp       time.Time
	originKeys      [][]byte
	pricing         ledger.Pricing
	ucoUSDPrice     float64
	protocolVersion uint32
}

// assembleValidationStamp runs spec.md §4.3 steps 3-6 and returns an
// unsigned ValidationStamp (Signature is left empty; the caller attaches
// it with the coordinator's daily-nonce key).
func assembleValidationStamp(ctx context.Context, eng storage.Engine, in stampInputs) (*txtypes.ValidationStamp, error) {
	tx := in.tx

	prevPOI, err := fetchPreviousProofOfIntegrity(ctx, eng, tx)
	if err != nil {
		return nil, err
	}
	poi := txtypes.ComputeProofOfIntegrity(tx, prevPOI)

	utxos, err := fetchChainUnspentOutputs(ctx, eng, tx)
	if err != nil {
		return nil, err
	}

	fee := ledger.ComputeFee(tx, in.pricing, in.ucoUSDPrice)

	stampTimestamp := in.timestamp
	ledgerOps, err := ledger.BuildLedgerOperations(utxos, tx.Data.Ledger, fee, tx.Address, stampTimestamp)
	if err != nil {
		return nil, fmt.Errorf("mining: build ledger operations: %w", err)
	}

	recipients, err := resolveRecipients(ctx, eng, tx, stampTimestamp.Unix())
	if err != nil {
		return nil, err
	}

	pow := computeProofOfWork(tx, in.originKeys)

	return &txtypes.ValidationStamp{
		Timestamp:        stampTimestamp,
		ProofOfWork:      pow,
		ProofOfIntegrity: poi,
		LedgerOperations: ledgerOps,
		Recipients:       recipients,
		ProtocolVersion:  in.protocolVersion,
	}, nil
}

// compareStamps implements spec.md §4.3 step 2: diff a recomputed stamp
// against the coordinator's, collecting every InconsistencyKind that
// disagrees. coordinatorKey is the network's current daily-nonce public
// key, the same key every committee member holds locally (it is unwrapped
// from the shared node_shared_secrets payload, not a per-node identity
// key), so a cross-validator can check want.Signature without ever
// contacting the coordinator.
func compareStamps(got, want *txtypes.ValidationStamp, coordinatorKey *keystore.BLSPublicKey) []txtypes.InconsistencyKind {
	var out []txtypes.InconsistencyKind
	if !got.Timestamp.Equal(want.Timestamp) {
		out = append(out, txtypes.InconsistencyTimestamp)
	}
	if string(got.ProofOfWork) != string(want.ProofOfWork) {
		out = append(out, txtypes.InconsistencyProofOfWork)
	}
	if string(got.ProofOfIntegrity) != string(want.ProofOfIntegrity) {
		out = append(out, txtypes.InconsistencyProofOfIntegrity)
	}
	if got.LedgerOperations.Fee != want.LedgerOperations.Fee {
		out = append(out, txtypes.InconsistencyTransactionFee)
	}
	if !movementsEqual(got.LedgerOperations.TransactionMovements, want.LedgerOperations.TransactionMovements) {
		out = append(out, txtypes.InconsistencyMovements)
	}
	if !utxosEqual(got.LedgerOperations.UnspentOutputs, want.LedgerOperations.UnspentOutputs) {
		out = append(out, txtypes.InconsistencyUnspentOutputs)
	}
	if !verifyStampSignature(coordinatorKey, want) {
		out = append(out, txtypes.InconsistencySignature)
	}
	return out
}

// verifyStampSignature checks that stamp.Signature is a valid BLS signature
// over stamp's signed body under pub, the daily-nonce key that produced it.
func verifyStampSignature(pub *keystore.BLSPublicKey, stamp *txtypes.ValidationStamp) bool {
	sig, err := keystore.BLSSignatureFromBytes(stamp.Signature)
	if err != nil {
		return false
	}
	body := txtypes.SerializeValidationStampForSignature(stamp)
	return pub.VerifyWithDomain(sig, keystore.DomainValidationStamp, body)
}

func movementsEqual(a, b []txtypes.Movement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if string(a[i].To) != string(b[i].To) || a[i].Amount != b[i].Amount || a[i].Type != b[i].Type || string(a[i].TokenID) != string(b[i].TokenID) {
			return false
		}
	}
	return true
}

func utxosEqual(a, b []txtypes.UnspentOutput) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if string(a[i].From) != string(b[i].From) || a[i].Amount != b[i].Amount || a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}
