package txtypes

import (
	"bytes"
	"testing"
	"time"

	"github.com/archethic-network/mining-core/pkg/cryptoutil"
)

func sampleTransaction(prevKey []byte, content string) *Transaction {
	tx := &Transaction{
		Type: TypeTransfer,
		Data: TransactionData{
			Content: []byte(content),
			Ledger: TransactionLedger{
				UCO: []UCOTransfer{{To: []byte("recipient"), Amount: 1_000_000_00000000}},
			},
		},
		PreviousPublicKey: prevKey,
	}
	tx.Address = DeriveAddress(prevKey)
	return tx
}

func TestAddressLaw(t *testing.T) {
	prevKey := cryptoutil.PrefixedKey(cryptoutil.CurveEd25519, cryptoutil.OriginSoftware, []byte("prev-public-key-bytes"))
	tx := sampleTransaction(prevKey, "hello")
	if err := ValidatePreviousKeyLinksToAddress(tx.Address, tx.PreviousPublicKey); err != nil {
		t.Fatalf("expected address to validate: %v", err)
	}
	if err := ValidatePreviousKeyLinksToAddress(tx.Address, []byte("wrong-key")); err == nil {
		t.Fatalf("expected mismatched key to fail validation")
	}
}

func TestSerializationDeterminism(t *testing.T) {
	prevKey := cryptoutil.PrefixedKey(cryptoutil.CurveEd25519, cryptoutil.OriginSoftware, []byte("prev-key"))
	tx := sampleTransaction(prevKey, "determinism check")
	a := SerializeForPreviousSignature(tx)
	b := SerializeForPreviousSignature(tx)
	if !bytes.Equal(a, b) {
		t.Fatalf("serialization is not deterministic")
	}

	tx2 := sampleTransaction(prevKey, "different content")
	c := SerializeForPreviousSignature(tx2)
	if bytes.Equal(a, c) {
		t.Fatalf("different transactions serialized identically")
	}
}

func TestProofOfIntegrityChainLaw(t *testing.T) {
	prevKey := cryptoutil.PrefixedKey(cryptoutil.CurveEd25519, cryptoutil.OriginSoftware, []byte("k0"))
	t0 := sampleTransaction(prevKey, "genesis")
	t0.PreviousSignature = []byte("sig0")
	t0.OriginSignature = []byte("origin0")

	poi0 := ComputeProofOfIntegrity(t0, nil)
	expected0 := cryptoutil.Hash(cryptoutil.HashSHA256, SerializePending(t0))
	if !bytes.Equal(poi0, expected0) {
		t.Fatalf("genesis POI mismatch")
	}

	t1 := sampleTransaction(prevKey, "second")
	t1.PreviousSignature = []byte("sig1")
	t1.OriginSignature = []byte("origin1")
	poi1 := ComputeProofOfIntegrity(t1, poi0)
	expected1 := cryptoutil.Hash(cryptoutil.HashSHA256, SerializePending(t1), poi0)
	if !bytes.Equal(poi1, expected1) {
		t.Fatalf("chained POI mismatch")
	}
	if bytes.Equal(poi0, poi1) {
		t.Fatalf("POI did not change across the chain")
	}
}

func TestBitstringAndAndRoundTrip(t *testing.T) {
	a := NewBitstring(4)
	a.Set(0, true)
	a.Set(1, true)
	b := NewBitstring(4)
	b.Set(1, true)
	b.Set(2, true)

	and := And(a, b)
	if and.Get(0) || !and.Get(1) || and.Get(2) || and.Get(3) {
		t.Fatalf("unexpected AND result: %v", and.Bytes())
	}

	encoded, err := and.MarshalJSON()
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	var decoded Bitstring
	if err := decoded.UnmarshalJSON(encoded); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if decoded.Len() != 4 || !decoded.Get(1) {
		t.Fatalf("round trip mismatch")
	}
}

func TestValidationStampSignatureBytesExcludeSignature(t *testing.T) {
	vs := &ValidationStamp{
		Timestamp:       time.Unix(1000, 0),
		ProofOfWork:     []byte{1, 2, 3},
		ProofOfIntegrity: []byte{4, 5, 6},
		ProofOfElection:  []byte{7, 8, 9},
		LedgerOperations: LedgerOperations{Fee: 100},
		ProtocolVersion:  1,
	}
	withoutSig := SerializeValidationStampForSignature(vs)
	vs.Signature = []byte("a-signature-that-should-not-change-the-signed-bytes")
	withSigSet := SerializeValidationStampForSignature(vs)
	if !bytes.Equal(withoutSig, withSigSet) {
		t.Fatalf("setting Signature should not change the bytes being signed")
	}
}
