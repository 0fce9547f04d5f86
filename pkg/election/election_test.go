package election

import (
	"reflect"
	"testing"
	"time"
)

func sampleRoster() []Node {
	base := time.Unix(1000, 0)
	return []Node{
		{PublicKey: []byte("n0"), FirstPublicKey: []byte("n0-first"), GeoPatch: "eu", AuthorizationDate: base, Available: true},
		{PublicKey: []byte("n1"), FirstPublicKey: []byte("n1-first"), GeoPatch: "eu", AuthorizationDate: base, Available: true},
		{PublicKey: []byte("n2"), FirstPublicKey: []byte("n2-first"), GeoPatch: "us", AuthorizationDate: base, Available: true},
		{PublicKey: []byte("n3"), FirstPublicKey: []byte("n3-first"), GeoPatch: "as", AuthorizationDate: base, Available: true},
		{PublicKey: []byte("n4"), FirstPublicKey: []byte("n4-first"), GeoPatch: "us", AuthorizationDate: base, Available: true},
	}
}

func TestElectionDeterministic(t *testing.T) {
	roster := sampleRoster()
	seed := []byte("fixed-daily-seed")
	storageSeed := []byte("fixed-storage-seed")
	txTime := time.Unix(2000, 0)
	constraints := Constraints{MinValidators: 3, ReplicationFactor: 3}

	r1 := Elect(txTime, seed, storageSeed, roster, constraints)
	r2 := Elect(txTime, seed, storageSeed, roster, constraints)

	if !reflect.DeepEqual(r1, r2) {
		t.Fatalf("election is not deterministic:\n%+v\n%+v", r1, r2)
	}
	if len(r1.ValidationCommittee) == 0 {
		t.Fatalf("expected a non-empty committee")
	}
}

func TestElectionExcludesUnauthorizedNodes(t *testing.T) {
	roster := sampleRoster()
	roster[0].AuthorizationDate = time.Unix(5000, 0) // authorized after the tx
	committee := ElectValidationCommittee(time.Unix(2000, 0), []byte("seed"), roster, Constraints{})
	for _, n := range committee {
		if string(n.PublicKey) == "n0" {
			t.Fatalf("expected n0 to be excluded for late authorization")
		}
	}
}

func TestCommitteeSizeFormula(t *testing.T) {
	cases := []struct {
		n, min, want int
	}{
		{1, 3, 1},
		{2, 3, 2},
		{5, 3, 3},
		{9, 3, 4},
		{100, 3, 7},
	}
	for _, c := range cases {
		got := committeeSize(c.n, c.min)
		if got != c.want {
			t.Fatalf("committeeSize(%d,%d) = %d, want %d", c.n, c.min, got, c.want)
		}
	}
}

func TestStorageElectionUsesDistinctSeedsPerClass(t *testing.T) {
	roster := sampleRoster()
	chain := ElectStorageNodes([]byte("storage-seed"), "chain", roster, Constraints{ReplicationFactor: 3})
	beacon := ElectStorageNodes([]byte("storage-seed"), "beacon", roster, Constraints{ReplicationFactor: 3})
	if reflect.DeepEqual(chain, beacon) {
		t.Fatalf("expected chain and beacon storage elections to differ with distinct class labels")
	}
}
