// Copyright 2025 Archethic Network
//
// Election implements spec.md §4.1: a pure, deterministic rendezvous-hash
// over the live roster. Every honest node computes the same committee and
// storage sets for the same (transaction, roster, constraints) — property 1.

package election

import (
	"math"
	"sort"
	"time"

	"github.com/archethic-network/mining-core/pkg/cryptoutil"
)

// Constraints parameterizes the election beyond the transaction and roster.
type Constraints struct {
	MinValidators     int // default 3
	ReplicationFactor int // storage-node count per storage class
}

func (c Constraints) minValidators() int {
	if c.MinValidators <= 0 {
		return 3
	}
	return c.MinValidators
}

func (c Constraints) replicationFactor() int {
	if c.ReplicationFactor <= 0 {
		return 3
	}
	return c.ReplicationFactor
}

// Result is the full election output for one transaction.
type Result struct {
	ValidationCommittee []Node // [coordinator, cross_1, ..., cross_{N-1}]
	ChainStorage        []Node
	BeaconStorage       []Node
	IOStorage           []Node
}

// scoredNode pairs a node with its rendezvous score for this transaction.
type scoredNode struct {
	node  Node
	score []byte
}

// scoreNodes computes score = hash(node.first_public_key || seed) for every
// candidate and returns them sorted by score ascending.
func scoreNodes(nodes []Node, seed []byte) []scoredNode {
	out := make([]scoredNode, 0, len(nodes))
	for _, n := range nodes {
		score := cryptoutil.Hash(cryptoutil.HashSHA256, n.FirstPublicKey, seed)
		out = append(out, scoredNode{node: n, score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		return lessBytes(out[i].score, out[j].score)
	})
	return out
}

func lessBytes(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// committeeSize implements K = min(max(ceil(log2(n)), minValidators), n).
func committeeSize(n, minValidators int) int {
	if n <= 0 {
		return 0
	}
	k := int(math.Ceil(math.Log2(float64(n))))
	if k < minValidators {
		k = minValidators
	}
	if k > n {
		k = n
	}
	return k
}

// selectDiverse picks count nodes from a score-sorted candidate list,
// preferring one representative per distinct geo_patch before allowing a
// second node from an already-used patch — spec.md §4.1's diversification
// tie-break, applied deterministically over the score order rather than as
// an ad hoc tie-break among equal scores (real hash scores essentially
// never tie).
func selectDiverse(sorted []scoredNode, count int) []Node {
	if count > len(sorted) {
		count = len(sorted)
	}
	selected := make([]Node, 0, count)
	used := make(map[int]bool, len(sorted))
	seenPatch := make(map[string]bool)

	for i := range sorted {
		if len(selected) >= count {
			break
		}
		patch := sorted[i].node.GeoPatch
		if patch != "" && seenPatch[patch] {
			continue
		}
		selected = append(selected, sorted[i].node)
		used[i] = true
		if patch != "" {
			seenPatch[patch] = true
		}
	}
	if len(selected) < count {
		for i := range sorted {
			if len(selected) >= count {
				break
			}
			if used[i] {
				continue
			}
			selected = append(selected, sorted[i].node)
			used[i] = true
		}
	}
	return selected
}

// ElectValidationCommittee implements the committee-selection half of §4.1.
// txTimestamp is the transaction's election time; seed is the BLS-derived
// sorting seed (keystore.DailyNonceHandle.ElectionSeed), which already
// binds the transaction's address.
func ElectValidationCommittee(txTimestamp time.Time, seed []byte, roster []Node, constraints Constraints) []Node {
	eligible := make([]Node, 0, len(roster))
	for _, n := range roster {
		if n.AuthorizationDate.Before(txTimestamp) {
			eligible = append(eligible, n)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	k := committeeSize(len(eligible), constraints.minValidators())
	sorted := scoreNodes(eligible, seed)
	return selectDiverse(sorted, k)
}

// ElectStorageNodes implements the storage-node half of §4.1 for one
// storage class, using a seed derived from the storage nonce (not the daily
// nonce) and a distinct per-class label so chain/beacon/io storage sets do
// not collide even when the roster and constraints are identical.
func ElectStorageNodes(storageSeed []byte, class string, roster []Node, constraints Constraints) []Node {
	available := make([]Node, 0, len(roster))
	for _, n := range roster {
		if n.Available {
			available = append(available, n)
		}
	}
	if len(available) == 0 {
		return nil
	}
	classSeed := cryptoutil.Hash(cryptoutil.HashSHA256, storageSeed, []byte(class))
	sorted := scoreNodes(available, classSeed)
	return selectDiverse(sorted, constraints.replicationFactor())
}

// Elect runs the full election: committee plus the three storage sets.
func Elect(txTimestamp time.Time, dailySeed, storageSeed []byte, roster []Node, constraints Constraints) Result {
	return Result{
		ValidationCommittee: ElectValidationCommittee(txTimestamp, dailySeed, roster, constraints),
		ChainStorage:        ElectStorageNodes(storageSeed, "chain", roster, constraints),
		BeaconStorage:       ElectStorageNodes(storageSeed, "beacon", roster, constraints),
		IOStorage:           ElectStorageNodes(storageSeed, "io", roster, constraints),
	}
}
