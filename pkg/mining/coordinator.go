// Copyright 2025 Archethic Network
//
// Coordinator role: spec.md §4.3 steps 1-7, run by the first-ranked
// committee member. Collects every cross-validator's availability view,
// assembles and signs the ValidationStamp, broadcasts CrossValidate, then
// waits for the committee's counter-signatures before deciding commit or
// abort under the atomic-commitment rule.

package mining

import (
	"context"
	"time"

	"github.com/archethic-network/mining-core/pkg/transport"
	"github.com/archethic-network/mining-core/pkg/txtypes"
)

func (w *Workflow) runCoordinator(ctx context.Context) {
	w.setState(StatePendingValidated)

	collectStarted := time.Now()
	merged, err := w.collectMiningContexts(ctx)
	if w.deps.Metrics != nil {
		w.deps.Metrics.ContextCollectionLatency.Observe(time.Since(collectStarted).Seconds())
	}
	if err != nil {
		w.abort(ctx, ErrorNetworkIssue, "collect mining contexts: %v", err)
		return
	}
	w.setState(StateContextCollected)

	price, err := priceAt(ctx, w.deps.Oracle, w.timestamp)
	if err != nil {
		w.abort(ctx, ErrorNetworkIssue, "oracle price unavailable: %v", err)
		return
	}

	stamp, err := assembleValidationStamp(ctx, w.deps.Storage, stampInputs{
		tx: w.tx, timestamp: w.timestamp, originKeys: w.deps.Snapshot.Load().OriginKeys,
		pricing: w.deps.Pricing, ucoUSDPrice: price, protocolVersion: 1,
	})
	if err != nil {
		w.abort(ctx, ErrorInvalidTransaction, "assemble stamp: %v", err)
		return
	}
	w.signStamp(stamp)
	w.setState(StateValidated)

	tree := buildReplicationTree(w.committee, w.chainStore, w.beaconStore, w.ioStore)

	confirmed := txtypes.NewBitstring(len(w.committee))
	confirmed.Set(w.selfIndex, true)
	for i, n := range w.committee {
		if merged.confirmed[string(n.PublicKey)] {
			confirmed.Set(i, true)
		}
	}

	peers := make([]transport.Peer, 0, len(w.committee)-1)
	for i, n := range w.committee {
		if i == w.selfIndex {
			continue
		}
		peers = append(peers, peerFromNode(n))
	}
	w.deps.Transport.BroadcastMessage(ctx, peers, "cross-validate", txtypes.CrossValidate{
		Address:                  w.address,
		ValidationStamp:          *stamp,
		ReplicationTree:          tree,
		ConfirmedValidationNodes: confirmed,
	})

	own := txtypes.CrossValidationStamp{
		NodePublicKey: w.deps.Self.PublicKey(),
		Signature:     w.deps.Self.Sign(txtypes.SerializeForCrossValidation(stamp, nil)),
	}
	w.deps.Transport.BroadcastMessage(ctx, peers, "cross-validation-done", txtypes.CrossValidationDone{
		Address:              w.address,
		CrossValidationStamp: own,
	})

	stamps, err := w.collectCrossValidationStamps(ctx, own)
	if err != nil {
		w.abort(ctx, ErrorNetworkIssue, "collect cross-validation stamps: %v", err)
		return
	}

	if !allAtomicCommit(stamps) {
		report := buildGovernanceReport(w.address, w.committee, stamps)
		w.deps.Logger.Printf("⚠️ %x atomic commitment failed: %d suspect keys", w.address, len(report.SuspectKeys))
		w.abort(ctx, ErrorInconsistency, "atomic commitment failed: %s", report.Reason)
		return
	}

	w.tx.ValidationStamp = stamp
	w.tx.CrossValidationStamps = stamps
	w.setState(StateCommitted)
	w.replicate(ctx, tree)
}

type mergedContext struct {
	previousStorageKeysSeen map[string]bool
	confirmed               map[string]bool
}

// collectMiningContexts waits for every other committee member's
// AddMiningContext (spec.md §4.3 step 1) and records which members answered
// and which previous-storage keys they reported. The chain, beacon and I/O
// availability views carried by each context are not read or merged.
func (w *Workflow) collectMiningContexts(ctx context.Context) (mergedContext, error) {
	merged := mergedContext{previousStorageKeysSeen: map[string]bool{}, confirmed: map[string]bool{}}
	merged.confirmed[string(w.deps.Self.PublicKey())] = true

	// A promoted fallback coordinator (selfIndex != 0) gets no context from
	// the originally-ranked coordinator, which never sends one, so one fewer
	// message is outstanding than for the originally-ranked coordinator.
	want := len(w.committee) - 1
	if w.selfIndex != 0 {
		want--
	}
	if want <= 0 {
		return merged, nil
	}

	deadline := time.NewTimer(w.deps.ContextTimeout)
	defer deadline.Stop()

	for received := 0; received < want; {
		select {
		case msg := <-w.contextCh:
			merged.confirmed[string(msg.context.ValidationNodePublicKey)] = true
			for _, k := range msg.context.PreviousStorageNodesKeys {
				merged.previousStorageKeysSeen[string(k)] = true
			}
			received++
		case <-deadline.C:
			// Partial quorum still lets the coordinator proceed; missing
			// members simply aren't marked confirmed.
			return merged, nil
		case <-ctx.Done():
			return merged, ctx.Err()
		}
	}
	return merged, nil
}

// collectCrossValidationStamps gathers every committee member's stamp,
// starting with the caller's own, up to deps.StampTimeout.
func (w *Workflow) collectCrossValidationStamps(ctx context.Context, own txtypes.CrossValidationStamp) ([]txtypes.CrossValidationStamp, error) {
	stamps := []txtypes.CrossValidationStamp{own}
	want := len(w.committee) - 1
	if want <= 0 {
		return stamps, nil
	}

	deadline := time.NewTimer(w.deps.StampTimeout)
	defer deadline.Stop()

	seen := map[string]bool{string(own.NodePublicKey): true}
	for len(seen) <= want {
		select {
		case msg := <-w.crossDoneCh:
			key := string(msg.CrossValidationStamp.NodePublicKey)
			if seen[key] {
				continue
			}
			seen[key] = true
			stamps = append(stamps, msg.CrossValidationStamp)
		case <-deadline.C:
			return stamps, nil
		case <-ctx.Done():
			return stamps, ctx.Err()
		}
		if len(stamps) == len(w.committee) {
			break
		}
	}
	return stamps, nil
}

func allAtomicCommit(stamps []txtypes.CrossValidationStamp) bool {
	for _, s := range stamps {
		if !s.IsAtomicCommit() {
			return false
		}
	}
	return true
}
