// Copyright 2025 Archethic Network
//
// Governance surfacing: spec.md §4.3's malicious-validator detection. When
// atomic commitment fails, identify which committee members either never
// answered or answered with a stamp disagreeing with the honest majority,
// so the network can act on it later (slashing, exclusion) — out of scope
// here beyond producing the report.

package mining

import (
	"strings"

	"github.com/google/uuid"

	"github.com/archethic-network/mining-core/pkg/election"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

// buildGovernanceReport names the committee members responsible for a
// failed atomic commitment: anyone who flagged an inconsistency, and
// anyone in committee who never returned a stamp at all.
func buildGovernanceReport(address []byte, committee []election.Node, stamps []txtypes.CrossValidationStamp) GovernanceReport {
	responded := make(map[string]txtypes.CrossValidationStamp, len(stamps))
	for _, s := range stamps {
		responded[string(s.NodePublicKey)] = s
	}

	var suspects [][]byte
	var reasons []string
	for _, n := range committee {
		stamp, ok := responded[string(n.PublicKey)]
		if !ok {
			suspects = append(suspects, n.PublicKey)
			reasons = append(reasons, "no_response")
			continue
		}
		if !stamp.IsAtomicCommit() {
			suspects = append(suspects, n.PublicKey)
			reasons = append(reasons, string(stamp.Inconsistencies[0]))
		}
	}

	return GovernanceReport{
		ID:          uuid.NewString(),
		Address:     address,
		SuspectKeys: suspects,
		Reason:      strings.Join(dedupeStrings(reasons), ","),
	}
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
