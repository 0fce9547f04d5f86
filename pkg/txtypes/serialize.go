// Copyright 2025 Archethic Network
//
// Stable binary serialization for signing and hashing, per spec.md §3/§6/§8.
// Every function here is a pure, deterministic mapping from a value to bytes
// in a fixed field order, built on pkg/cryptoutil's TLV writer. Encoding is
// one-way: no decoder back to a Transaction or stamp is provided.

package txtypes

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/archethic-network/mining-core/pkg/cryptoutil"
)

// DeriveAddress computes hash(previous_public_key), the value every
// transaction's Address field must equal (property 3).
func DeriveAddress(previousPublicKey []byte) []byte {
	return cryptoutil.AddressFromKey(cryptoutil.HashSHA256, previousPublicKey)
}

func writeTime(w *cryptoutil.Writer, ts time.Time) {
	w.WriteUint64(uint64(ts.UnixNano()))
}

func readTime(r *cryptoutil.Reader) (time.Time, error) {
	n, err := r.ReadUint64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, int64(n)).UTC(), nil
}

func writeOwnership(w *cryptoutil.Writer, o Ownership) {
	w.WriteBlob(o.Secret)
	w.WriteUint64(uint64(len(o.AuthorizedKeys)))
	for _, ak := range o.AuthorizedKeys {
		w.WriteBlob(ak.PublicKey)
		w.WriteBlob(ak.EncryptedKey)
	}
}

func writeLedger(w *cryptoutil.Writer, l TransactionLedger) {
	w.WriteUint64(uint64(len(l.UCO)))
	for _, u := range l.UCO {
		w.WriteBlob(u.To)
		w.WriteUint64(u.Amount)
	}
	w.WriteUint64(uint64(len(l.Token)))
	for _, tk := range l.Token {
		w.WriteBlob(tk.To)
		w.WriteUint64(tk.Amount)
		w.WriteBlob(tk.Token)
		w.WriteUint64(tk.TokenID)
	}
}

func writeRecipient(w *cryptoutil.Writer, r Recipient) {
	w.WriteBlob(r.Address)
	w.WriteBlob([]byte(r.Action))
	w.WriteUint64(uint64(len(r.Args)))
	for _, a := range r.Args {
		w.WriteBlob(a)
	}
}

// serializePendingBase encodes the fields an author signs before
// previous_signature/origin_signature exist: type, data, previous_public_key.
func serializePendingBase(t *Transaction) []byte {
	w := cryptoutil.NewWriter()
	w.WriteBlob([]byte(t.Type))
	w.WriteBlob(t.Data.Content)
	w.WriteBlob(t.Data.Code)
	w.WriteUint64(uint64(len(t.Data.Ownerships)))
	for _, o := range t.Data.Ownerships {
		writeOwnership(w, o)
	}
	writeLedger(w, t.Data.Ledger)
	w.WriteUint64(uint64(len(t.Data.Recipients)))
	for _, r := range t.Data.Recipients {
		writeRecipient(w, r)
	}
	w.WriteBlob(t.PreviousPublicKey)
	return w.Bytes()
}

// SerializeForPreviousSignature returns the bytes previous_signature signs.
func SerializeForPreviousSignature(t *Transaction) []byte {
	return serializePendingBase(t)
}

// SerializeForOriginSignature returns the bytes origin_signature signs:
// the pending base plus the already-computed previous_signature.
func SerializeForOriginSignature(t *Transaction) []byte {
	w := cryptoutil.NewWriter()
	w.WriteBlob(serializePendingBase(t))
	w.WriteBlob(t.PreviousSignature)
	return w.Bytes()
}

// SerializePending returns the full pending-transaction encoding used as
// input to the proof-of-integrity chain: base fields plus both signatures.
func SerializePending(t *Transaction) []byte {
	w := cryptoutil.NewWriter()
	w.WriteBlob(serializePendingBase(t))
	w.WriteBlob(t.PreviousSignature)
	w.WriteBlob(t.OriginSignature)
	return w.Bytes()
}

// ComputeProofOfIntegrity implements the POI chain law (property 2):
// POI_n = hash(serialize(tx_n_pending) || POI_{n-1}), or
// hash(serialize(tx_pending)) for the genesis of a chain (prevPOI == nil).
func ComputeProofOfIntegrity(t *Transaction, prevPOI []byte) []byte {
	if len(prevPOI) == 0 {
		return cryptoutil.Hash(cryptoutil.HashSHA256, SerializePending(t))
	}
	return cryptoutil.Hash(cryptoutil.HashSHA256, SerializePending(t), prevPOI)
}

// serializeLedgerOps encodes LedgerOperations for stamp signing/hashing.
func serializeLedgerOps(w *cryptoutil.Writer, lo LedgerOperations) {
	w.WriteUint64(lo.Fee)
	w.WriteUint64(uint64(len(lo.TransactionMovements)))
	for _, m := range lo.TransactionMovements {
		w.WriteBlob(m.To)
		w.WriteUint64(m.Amount)
		w.WriteBlob([]byte(m.Type))
		w.WriteBlob(m.TokenID)
	}
	w.WriteUint64(uint64(len(lo.UnspentOutputs)))
	for _, u := range lo.UnspentOutputs {
		w.WriteBlob(u.From)
		w.WriteBlob([]byte(u.Type))
		w.WriteUint64(u.Amount)
		writeTime(w, u.Timestamp)
		w.WriteBlob(u.TokenID)
	}
}

// SerializeValidationStampForSignature returns the bytes the coordinator
// signs: the assembled stamp excluding its own signature field.
func SerializeValidationStampForSignature(vs *ValidationStamp) []byte {
	w := cryptoutil.NewWriter()
	writeTime(w, vs.Timestamp)
	w.WriteBlob(vs.ProofOfWork)
	w.WriteBlob(vs.ProofOfIntegrity)
	w.WriteBlob(vs.ProofOfElection)
	serializeLedgerOps(w, vs.LedgerOperations)
	w.WriteUint64(uint64(len(vs.Recipients)))
	for _, r := range vs.Recipients {
		w.WriteBlob(r.Address)
		w.WriteBlob(r.ResolvedAddress)
	}
	var pv [4]byte
	binary.BigEndian.PutUint32(pv[:], vs.ProtocolVersion)
	w.WriteBlob(pv[:])
	return w.Bytes()
}

// SerializeForCrossValidation returns the bytes a CrossValidationStamp
// signs: (validation_stamp, inconsistencies).
func SerializeForCrossValidation(vs *ValidationStamp, inconsistencies []InconsistencyKind) []byte {
	w := cryptoutil.NewWriter()
	w.WriteBlob(SerializeValidationStampForSignature(vs))
	w.WriteBlob(vs.Signature)
	w.WriteUint64(uint64(len(inconsistencies)))
	for _, k := range inconsistencies {
		w.WriteBlob([]byte(k))
	}
	return w.Bytes()
}

// ValidatePreviousKeyLinksToAddress checks that tx's previous_public_key
// hashes to the expected prior address (property 3, continuity rule).
func ValidatePreviousKeyLinksToAddress(prevAddress, candidatePreviousPublicKey []byte) error {
	derived := cryptoutil.AddressFromKey(cryptoutil.HashSHA256, candidatePreviousPublicKey)
	if string(derived) != string(prevAddress) {
		return fmt.Errorf("txtypes: previous_public_key does not hash to expected address")
	}
	return nil
}
