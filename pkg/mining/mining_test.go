package mining

import (
	"testing"
	"time"

	"github.com/archethic-network/mining-core/pkg/election"
	"github.com/archethic-network/mining-core/pkg/keystore"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

func nodeWithKey(key byte) election.Node {
	return election.Node{PublicKey: []byte{key}, Available: true}
}

func TestAllAtomicCommitRequiresEveryStampClean(t *testing.T) {
	clean := []txtypes.CrossValidationStamp{
		{NodePublicKey: []byte{1}},
		{NodePublicKey: []byte{2}},
	}
	if !allAtomicCommit(clean) {
		t.Fatalf("expected atomic commit with no inconsistencies")
	}

	dirty := append([]txtypes.CrossValidationStamp{}, clean...)
	dirty[1].Inconsistencies = []txtypes.InconsistencyKind{txtypes.InconsistencyProofOfWork}
	if allAtomicCommit(dirty) {
		t.Fatalf("expected atomic commit to fail once any stamp flags an inconsistency")
	}
}

func TestBuildGovernanceReportFlagsNonRespondersAndDisagreers(t *testing.T) {
	committee := []election.Node{nodeWithKey(1), nodeWithKey(2), nodeWithKey(3)}
	stamps := []txtypes.CrossValidationStamp{
		{NodePublicKey: []byte{1}},
		{NodePublicKey: []byte{2}, Inconsistencies: []txtypes.InconsistencyKind{txtypes.InconsistencyTransactionFee}},
		// node 3 never responded.
	}

	report := buildGovernanceReport([]byte("addr"), committee, stamps)

	if report.ID == "" {
		t.Fatalf("expected a non-empty correlation ID")
	}
	if len(report.SuspectKeys) != 2 {
		t.Fatalf("expected 2 suspects, got %d: %v", len(report.SuspectKeys), report.SuspectKeys)
	}
	foundNode2, foundNode3 := false, false
	for _, k := range report.SuspectKeys {
		if string(k) == string([]byte{2}) {
			foundNode2 = true
		}
		if string(k) == string([]byte{3}) {
			foundNode3 = true
		}
	}
	if !foundNode2 || !foundNode3 {
		t.Fatalf("expected both the disagreeing node and the non-responder flagged, got %v", report.SuspectKeys)
	}
}

func TestDedupeStringsPreservesFirstOccurrenceOrder(t *testing.T) {
	in := []string{"a", "b", "a", "c", "b"}
	got := dedupeStrings(in)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestReplicationQuorumIsTwoThirdsRoundedUp(t *testing.T) {
	cases := []struct {
		count int
		want  int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{6, 4},
	}
	for _, c := range cases {
		if got := replicationQuorum(c.count); got != c.want {
			t.Errorf("replicationQuorum(%d) = %d, want %d", c.count, got, c.want)
		}
	}
}

func TestReplicationTreesEqualDetectsRowDivergence(t *testing.T) {
	row := func(bits ...bool) txtypes.Bitstring {
		b := txtypes.NewBitstring(len(bits))
		for i, v := range bits {
			b.Set(i, v)
		}
		return b
	}

	a := txtypes.ReplicationTree{
		Chain:  []txtypes.Bitstring{row(true, false), row(false, true)},
		Beacon: []txtypes.Bitstring{row(true), row(false)},
		IO:     []txtypes.Bitstring{row(true), row(false)},
	}
	identical := txtypes.ReplicationTree{
		Chain:  []txtypes.Bitstring{row(true, false), row(false, true)},
		Beacon: []txtypes.Bitstring{row(true), row(false)},
		IO:     []txtypes.Bitstring{row(true), row(false)},
	}
	if !replicationTreesEqual(a, identical) {
		t.Fatalf("expected identical replication trees to compare equal")
	}

	diverged := txtypes.ReplicationTree{
		Chain:  []txtypes.Bitstring{row(false, true), row(true, false)},
		Beacon: []txtypes.Bitstring{row(true), row(false)},
		IO:     []txtypes.Bitstring{row(true), row(false)},
	}
	if replicationTreesEqual(a, diverged) {
		t.Fatalf("expected a diverged chain-storage row assignment to compare unequal")
	}
}

func TestAvailabilityViewReflectsNodeAvailability(t *testing.T) {
	nodes := []election.Node{
		{PublicKey: []byte{1}, Available: true},
		{PublicKey: []byte{2}, Available: false},
		{PublicKey: []byte{3}, Available: true},
	}
	view := availabilityView(nodes)
	if !view.Get(0) || view.Get(1) || !view.Get(2) {
		t.Fatalf("availability view did not reflect per-node availability")
	}
}

func signedBaseStamp(t *testing.T) (*txtypes.ValidationStamp, *keystore.BLSPublicKey) {
	t.Helper()
	priv, pub, err := keystore.GenerateBLSKeyPairFromSeed([]byte("cross-validator-stamp-test-seed!"))
	if err != nil {
		t.Fatalf("generate BLS key pair: %v", err)
	}
	base := &txtypes.ValidationStamp{
		Timestamp:        time.Unix(1700000000, 0).UTC(),
		ProofOfWork:      []byte("pow"),
		ProofOfIntegrity: []byte("poi"),
		LedgerOperations: txtypes.LedgerOperations{
			Fee: 100,
			TransactionMovements: []txtypes.Movement{
				{To: []byte("recipient"), Amount: 50},
			},
			UnspentOutputs: []txtypes.UnspentOutput{
				{From: []byte("sender"), Amount: 200},
			},
		},
	}
	body := txtypes.SerializeValidationStampForSignature(base)
	base.Signature = priv.SignWithDomain(keystore.DomainValidationStamp, body).Bytes()
	return base, pub
}

func TestCompareStampsDetectsFeeInconsistency(t *testing.T) {
	base, pub := signedBaseStamp(t)

	if diff := compareStamps(base, base, pub); len(diff) != 0 {
		t.Fatalf("expected no inconsistencies comparing a stamp against itself, got %v", diff)
	}

	skewed := *base
	skewed.LedgerOperations.Fee = 999
	if diff := compareStamps(&skewed, base, pub); len(diff) != 1 || diff[0] != txtypes.InconsistencyTransactionFee {
		t.Fatalf("expected a single fee inconsistency, got %v", diff)
	}
}

func TestCompareStampsDetectsBadSignature(t *testing.T) {
	base, pub := signedBaseStamp(t)

	tampered := *base
	tampered.Signature = append([]byte(nil), base.Signature...)
	tampered.Signature[0] ^= 0xFF

	diff := compareStamps(base, &tampered, pub)
	found := false
	for _, d := range diff {
		if d == txtypes.InconsistencySignature {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a signature inconsistency for a tampered signature, got %v", diff)
	}
}

func TestCompareStampsRejectsGenuineSignatureUnderForeignKey(t *testing.T) {
	base, _ := signedBaseStamp(t)
	_, otherKey, err := keystore.GenerateBLSKeyPairFromSeed([]byte("a-completely-different-seed!!!!!"))
	if err != nil {
		t.Fatalf("generate BLS key pair: %v", err)
	}

	diff := compareStamps(base, base, otherKey)
	found := false
	for _, d := range diff {
		if d == txtypes.InconsistencySignature {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a signature inconsistency when verifying under the wrong key, got %v", diff)
	}
}
