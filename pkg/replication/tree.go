// Copyright 2025 Archethic Network
//
// Replication tree builder: spec.md §4.5. Assigns each elected storage node
// to exactly one validator, who becomes responsible for sending that
// storage node the transaction and collecting its AcknowledgeStorage. The
// assignment balances load across validators and prefers assigning a
// storage node to a validator in the same geo_patch, grounded in the same
// greedy-diversification idea election.selectDiverse uses, applied here to
// load balancing instead of candidate selection.

package replication

import (
	"github.com/archethic-network/mining-core/pkg/election"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

func patchDistance(a, b string) int {
	if a == b {
		return 0
	}
	return 1
}

// BuildClassTree assigns each node in storageNodes to exactly one validator
// in validators, returning one Bitstring per validator over the storage-node
// index space (property 7: each column has exactly one set bit, and row
// cardinalities differ by at most one).
func BuildClassTree(validators, storageNodes []election.Node) []txtypes.Bitstring {
	rows := make([]txtypes.Bitstring, len(validators))
	for i := range rows {
		rows[i] = txtypes.NewBitstring(len(storageNodes))
	}
	if len(validators) == 0 {
		return rows
	}

	load := make([]int, len(validators))
	for col, storageNode := range storageNodes {
		best := 0
		bestCost := patchDistance(validators[0].GeoPatch, storageNode.GeoPatch) + load[0]
		for i := 1; i < len(validators); i++ {
			cost := patchDistance(validators[i].GeoPatch, storageNode.GeoPatch) + load[i]
			if cost < bestCost || (cost == bestCost && load[i] < load[best]) {
				best = i
				bestCost = cost
			}
		}
		rows[best].Set(col, true)
		load[best]++
	}
	return rows
}

// BuildTree assembles the full per-class replication tree the coordinator
// attaches to CrossValidate.
func BuildTree(validators []election.Node, chainStorage, beaconStorage, ioStorage []election.Node) txtypes.ReplicationTree {
	return txtypes.ReplicationTree{
		Chain:  BuildClassTree(validators, chainStorage),
		Beacon: BuildClassTree(validators, beaconStorage),
		IO:     BuildClassTree(validators, ioStorage),
	}
}
