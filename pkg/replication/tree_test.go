package replication

import (
	"testing"

	"github.com/archethic-network/mining-core/pkg/election"
)

func nodes(patches ...string) []election.Node {
	out := make([]election.Node, len(patches))
	for i, p := range patches {
		out[i] = election.Node{PublicKey: []byte(p), GeoPatch: p}
	}
	return out
}

func TestBuildClassTreeOneSetBitPerColumn(t *testing.T) {
	validators := nodes("eu", "us", "as")
	storage := nodes("eu", "eu", "us", "as", "as", "as")

	tree := BuildClassTree(validators, storage)
	for col := 0; col < len(storage); col++ {
		count := 0
		for _, row := range tree {
			if row.Get(col) {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("column %d: expected exactly 1 assigned validator, got %d", col, count)
		}
	}
}

func TestBuildClassTreeBalancesLoad(t *testing.T) {
	validators := nodes("eu", "eu", "eu") // identical patches so load dominates
	storage := nodes("eu", "eu", "eu", "eu", "eu", "eu")

	tree := BuildClassTree(validators, storage)
	counts := make([]int, len(validators))
	for i, row := range tree {
		counts[i] = row.Count()
	}
	min, max := counts[0], counts[0]
	for _, c := range counts {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	if max-min > 1 {
		t.Fatalf("expected balanced row cardinality (diff <= 1), got counts %v", counts)
	}
}

func TestBuildClassTreeDistinctPatchesClusteredStorageStaysBalanced(t *testing.T) {
	validators := nodes("eu", "us", "as")
	storage := nodes("eu", "eu", "eu", "eu", "eu", "eu") // all storage nodes share validator 0's patch

	tree := BuildClassTree(validators, storage)
	counts := make([]int, len(validators))
	for i, row := range tree {
		counts[i] = row.Count()
	}
	min, max := counts[0], counts[0]
	for _, c := range counts {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	if max-min > 1 {
		t.Fatalf("expected balanced row cardinality (diff <= 1) even with storage clustered in one patch, got counts %v", counts)
	}
}

func TestBuildClassTreeEmptyValidatorsProducesNoRows(t *testing.T) {
	tree := BuildClassTree(nil, nodes("eu"))
	if len(tree) != 0 {
		t.Fatalf("expected no rows with no validators, got %d", len(tree))
	}
}

func TestBuildTreeCoversAllThreeClasses(t *testing.T) {
	validators := nodes("eu", "us")
	full := BuildTree(validators, nodes("eu"), nodes("us"), nodes("as"))
	if len(full.Chain) != len(validators) || len(full.Beacon) != len(validators) || len(full.IO) != len(validators) {
		t.Fatalf("expected one row per validator per class")
	}
}
