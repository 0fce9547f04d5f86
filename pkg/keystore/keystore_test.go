package keystore

import "testing"

func TestEd25519SignVerify(t *testing.T) {
	id, err := NewNodeIdentity()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := []byte("pending transaction body")
	sig := id.Sign(msg)
	if !VerifyEd25519(id.PublicKey(), msg, sig) {
		t.Fatalf("expected signature to verify")
	}
	if VerifyEd25519(id.PublicKey(), []byte("tampered"), sig) {
		t.Fatalf("expected signature over different message to fail")
	}
}

func TestElectionSeedDeterministic(t *testing.T) {
	priv, _, err := GenerateBLSKeyPairFromSeed([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addr := []byte{0, 0, 1, 2, 3}
	a := ElectionSeed(priv, addr, 1000)
	b := ElectionSeed(priv, addr, 1000)
	if string(a) != string(b) {
		t.Fatalf("election seed is not deterministic")
	}
	c := ElectionSeed(priv, addr, 1001)
	if string(a) == string(c) {
		t.Fatalf("election seed did not change with timestamp")
	}
}

func TestDailyNonceHandleRotation(t *testing.T) {
	priv, _, err := GenerateBLSKeyPairFromSeed([]byte("seed-generation-zero-needs-32byt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	handle := NewDailyNonceHandle(priv)
	body := []byte("validation stamp body")
	sigGen0 := handle.SignValidationStamp(body)
	pubGen0 := handle.PublicKey()
	if !pubGen0.VerifyWithDomain(sigGen0, DomainValidationStamp, body) {
		t.Fatalf("expected generation-zero signature to verify")
	}

	if err := handle.UnwrapAndRotate([]byte("seed-generation-one-needs-32byte")); err != nil {
		t.Fatalf("unexpected rotate error: %v", err)
	}
	pubGen1 := handle.PublicKey()
	if pubGen1.Hex() == pubGen0.Hex() {
		t.Fatalf("expected rotation to change the public key")
	}
	sigGen1 := handle.SignValidationStamp(body)
	if !pubGen1.VerifyWithDomain(sigGen1, DomainValidationStamp, body) {
		t.Fatalf("expected generation-one signature to verify under generation-one key")
	}
	if pubGen0.VerifyWithDomain(sigGen1, DomainValidationStamp, body) {
		t.Fatalf("generation-one signature should not verify under generation-zero key")
	}
}
